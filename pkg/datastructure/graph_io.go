package datastructure

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/twpayne/go-polyline"

	"github.com/lintang-b-s/tracematch/pkg"
	"github.com/lintang-b-s/tracematch/pkg/util"
)

func (g *Graph) WriteGraph(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return util.WrapErrorf(err, util.ErrGraphIO, "create %s", filename)
	}
	defer f.Close()

	bz, err := bzip2.NewWriter(f, &bzip2.WriterConfig{})
	if err != nil {
		return util.WrapErrorf(err, util.ErrGraphIO, "bzip2 writer %s", filename)
	}
	defer bz.Close()

	w := bufio.NewWriter(bz)

	fmt.Fprintf(w, "%d %d %d\n", len(g.vertices), len(g.edges), len(g.edgeInfos))

	for vID := 0; vID < len(g.vertices); vID++ {
		v := g.vertices[vID]
		latF := strconv.FormatFloat(v.lat, 'f', -1, 64)
		lonF := strconv.FormatFloat(v.lon, 'f', -1, 64)

		fmt.Fprintf(w, "%d %s %s\n", v.id, latF, lonF)
	}

	for _, e := range g.edges {
		lengthF := strconv.FormatFloat(e.length, 'f', -1, 64)

		fmt.Fprintf(w, "%d %d %d %d %d %t %s %d\n",
			e.id, e.startNode, e.endNode, e.opposing, e.edgeInfoOffset,
			e.forward, lengthF, e.access)
	}

	// encoded polylines contain no whitespace, safe as the whole line
	for _, ei := range g.edgeInfos {
		encoded := ei.encodedShape
		if encoded == nil {
			coords := make([][]float64, len(ei.shape))
			for i, c := range ei.shape {
				coords[i] = []float64{c.Lat, c.Lon}
			}
			encoded = polyline.EncodeCoords(coords)
		}
		fmt.Fprintf(w, "%s\n", string(encoded))
	}

	return w.Flush()
}

func ReadGraph(filename string) (*Graph, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrGraphIO, "open %s", filename)
	}
	defer f.Close()

	bz, err := bzip2.NewReader(f, &bzip2.ReaderConfig{})
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrGraphIO, "bzip2 reader %s", filename)
	}
	defer bz.Close()

	sc := bufio.NewScanner(bz)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)

	readLine := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", util.WrapErrorf(nil, util.ErrGraphIO, "unexpected end of graph file %s", filename)
		}
		return sc.Text(), nil
	}

	header, err := readLine()
	if err != nil {
		return nil, err
	}
	counts := strings.Fields(header)
	if len(counts) != 3 {
		return nil, util.WrapErrorf(nil, util.ErrGraphIO, "bad graph header %q", header)
	}
	numVertices, _ := strconv.Atoi(counts[0])
	numEdges, _ := strconv.Atoi(counts[1])
	numEdgeInfos, _ := strconv.Atoi(counts[2])

	g := NewGraph()
	g.vertices = make([]Vertex, 0, numVertices)
	g.edges = make([]DirectedEdge, 0, numEdges)
	g.edgeInfos = make([]EdgeInfo, 0, numEdgeInfos)

	for i := 0; i < numVertices; i++ {
		line, err := readLine()
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, util.WrapErrorf(nil, util.ErrGraphIO, "bad vertex line %q", line)
		}
		id, _ := strconv.ParseUint(fields[0], 10, 32)
		lat, _ := strconv.ParseFloat(fields[1], 64)
		lon, _ := strconv.ParseFloat(fields[2], 64)
		g.vertices = append(g.vertices, NewVertex(lat, lon, Index(id)))
	}

	for i := 0; i < numEdges; i++ {
		line, err := readLine()
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) != 8 {
			return nil, util.WrapErrorf(nil, util.ErrGraphIO, "bad edge line %q", line)
		}
		id, _ := strconv.ParseUint(fields[0], 10, 32)
		startNode, _ := strconv.ParseUint(fields[1], 10, 32)
		endNode, _ := strconv.ParseUint(fields[2], 10, 32)
		opposing, _ := strconv.ParseUint(fields[3], 10, 32)
		infoOffset, _ := strconv.ParseUint(fields[4], 10, 32)
		forward, _ := strconv.ParseBool(fields[5])
		length, _ := strconv.ParseFloat(fields[6], 64)
		access, _ := strconv.ParseUint(fields[7], 10, 8)

		g.edges = append(g.edges, DirectedEdge{
			id:             Index(id),
			startNode:      Index(startNode),
			endNode:        Index(endNode),
			opposing:       Index(opposing),
			edgeInfoOffset: Index(infoOffset),
			forward:        forward,
			length:         length,
			access:         pkg.ModeAccess(access),
		})
	}

	for i := 0; i < numEdgeInfos; i++ {
		line, err := readLine()
		if err != nil {
			return nil, err
		}
		g.edgeInfos = append(g.edgeInfos, EdgeInfo{encodedShape: []byte(line)})
	}

	g.Freeze()
	return g, nil
}
