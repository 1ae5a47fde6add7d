package datastructure

import (
	"math"
	"sort"
	"sync"

	"github.com/lintang-b-s/tracematch/pkg"
	"github.com/lintang-b-s/tracematch/pkg/geo"
	"github.com/twpayne/go-polyline"
)

type Index uint32

const (
	INVALID_INDEX Index = math.MaxUint32

	// number of decoded shapes kept before the reader reports itself
	// over committed
	DEFAULT_MAX_CACHED_SHAPES = 1 << 20
)

type Vertex struct {
	lat float64
	lon float64
	id  Index
}

func NewVertex(lat, lon float64, id Index) Vertex {
	return Vertex{
		lat: lat,
		lon: lon,
		id:  id,
	}
}

func (v *Vertex) GetID() Index {
	return v.id
}

func (v *Vertex) GetLat() float64 {
	return v.lat
}

func (v *Vertex) GetLon() float64 {
	return v.lon
}

// DirectedEdge. one direction of a road arc. a two-way road is stored as a
// pair of directed edges that share one EdgeInfo and point at each other
// through opposing.
type DirectedEdge struct {
	id             Index
	startNode      Index
	endNode        Index
	opposing       Index // INVALID_INDEX for oneway edges
	edgeInfoOffset Index
	forward        bool // true if the shared shape runs startNode -> endNode
	length         float64 // meter
	access         pkg.ModeAccess
}

func (e *DirectedEdge) GetID() Index {
	return e.id
}

func (e *DirectedEdge) GetStartNode() Index {
	return e.startNode
}

func (e *DirectedEdge) GetEndNode() Index {
	return e.endNode
}

func (e *DirectedEdge) GetOpposing() Index {
	return e.opposing
}

func (e *DirectedEdge) GetEdgeInfoOffset() Index {
	return e.edgeInfoOffset
}

func (e *DirectedEdge) IsForward() bool {
	return e.forward
}

func (e *DirectedEdge) GetLength() float64 {
	return e.length
}

func (e *DirectedEdge) GetAccess() pkg.ModeAccess {
	return e.access
}

// EdgeInfo. geometry shared by a directed edge pair. graphs loaded from disk
// carry the polyline-encoded form and decode it on first use; graphs built in
// memory keep the exact shape.
type EdgeInfo struct {
	encodedShape []byte

	shape []geo.Coordinate
}

func (ei *EdgeInfo) GetEncodedShape() []byte {
	return ei.encodedShape
}

type Graph struct {
	vertices  []Vertex
	edges     []DirectedEdge
	edgeInfos []EdgeInfo

	// CSR adjacency over startNode, built by Freeze
	firstOut   []Index
	outEdgeIDs []Index
	frozen     bool

	mu              sync.RWMutex
	decodedShapes   int
	maxCachedShapes int
}

func NewGraph() *Graph {
	return &Graph{
		vertices:        make([]Vertex, 0),
		edges:           make([]DirectedEdge, 0),
		edgeInfos:       make([]EdgeInfo, 0),
		maxCachedShapes: DEFAULT_MAX_CACHED_SHAPES,
	}
}

func (g *Graph) AddVertex(lat, lon float64) Index {
	id := Index(len(g.vertices))
	g.vertices = append(g.vertices, NewVertex(lat, lon, id))
	g.frozen = false
	return id
}

// AddEdge append a directed edge pair from->to with the given shape (running
// from->to). shape may be nil, then the straight segment between the two
// vertices is used. for oneway roads the second returned id is INVALID_INDEX.
func (g *Graph) AddEdge(from, to Index, shape []geo.Coordinate, access pkg.ModeAccess,
	oneway bool) (Index, Index) {
	if shape == nil {
		shape = []geo.Coordinate{
			geo.NewCoordinate(g.vertices[from].lat, g.vertices[from].lon),
			geo.NewCoordinate(g.vertices[to].lat, g.vertices[to].lon),
		}
	}

	length := shapeLength(shape)

	infoOffset := Index(len(g.edgeInfos))
	g.edgeInfos = append(g.edgeInfos, EdgeInfo{shape: shape})

	fwdID := Index(len(g.edges))
	revID := INVALID_INDEX
	if !oneway {
		revID = fwdID + 1
	}

	g.edges = append(g.edges, DirectedEdge{
		id:             fwdID,
		startNode:      from,
		endNode:        to,
		opposing:       revID,
		edgeInfoOffset: infoOffset,
		forward:        true,
		length:         length,
		access:         access,
	})

	if !oneway {
		g.edges = append(g.edges, DirectedEdge{
			id:             revID,
			startNode:      to,
			endNode:        from,
			opposing:       fwdID,
			edgeInfoOffset: infoOffset,
			forward:        false,
			length:         length,
			access:         access,
		})
	}

	g.frozen = false
	return fwdID, revID
}

// Freeze build the CSR adjacency. must be called after the last AddVertex/AddEdge
// and before any query.
func (g *Graph) Freeze() {
	n := len(g.vertices)
	g.firstOut = make([]Index, n+1)
	g.outEdgeIDs = make([]Index, len(g.edges))

	for i := range g.outEdgeIDs {
		g.outEdgeIDs[i] = Index(i)
	}
	sort.Slice(g.outEdgeIDs, func(i, j int) bool {
		ei, ej := g.outEdgeIDs[i], g.outEdgeIDs[j]
		if g.edges[ei].startNode != g.edges[ej].startNode {
			return g.edges[ei].startNode < g.edges[ej].startNode
		}
		return ei < ej
	})

	cur := Index(0)
	for i, eid := range g.outEdgeIDs {
		for cur <= g.edges[eid].startNode {
			g.firstOut[cur] = Index(i)
			cur++
		}
	}
	for int(cur) <= n {
		g.firstOut[cur] = Index(len(g.outEdgeIDs))
		cur++
	}

	g.frozen = true
}

func (g *Graph) NumberOfVertices() int {
	return len(g.vertices)
}

func (g *Graph) NumberOfEdges() int {
	return len(g.edges)
}

func (g *Graph) GetVertex(id Index) *Vertex {
	return &g.vertices[id]
}

func (g *Graph) GetVertexCoordinates(id Index) (float64, float64) {
	v := &g.vertices[id]
	return v.lat, v.lon
}

func (g *Graph) GetDirectedEdge(id Index) *DirectedEdge {
	return &g.edges[id]
}

func (g *Graph) IsValidEdge(id Index) bool {
	return id != INVALID_INDEX && int(id) < len(g.edges)
}

// GetOpposingEdge the directed edge running the other way, nil for oneways.
func (g *Graph) GetOpposingEdge(id Index) *DirectedEdge {
	opp := g.edges[id].opposing
	if opp == INVALID_INDEX {
		return nil
	}
	return &g.edges[opp]
}

func (g *Graph) GetStartNode(edgeID Index) Index {
	return g.edges[edgeID].startNode
}

func (g *Graph) GetEndNode(edgeID Index) Index {
	return g.edges[edgeID].endNode
}

func (g *Graph) ForOutEdgesOf(node Index, fn func(e *DirectedEdge)) {
	for i := g.firstOut[node]; i < g.firstOut[node+1]; i++ {
		fn(&g.edges[g.outEdgeIDs[i]])
	}
}

// EdgeShape decoded shape of the directed edge, oriented startNode -> endNode.
func (g *Graph) EdgeShape(edgeID Index) []geo.Coordinate {
	e := &g.edges[edgeID]
	shape := g.edgeInfoShape(e.edgeInfoOffset)
	if e.forward {
		return shape
	}

	reversed := make([]geo.Coordinate, len(shape))
	for i, c := range shape {
		reversed[len(shape)-1-i] = c
	}
	return reversed
}

func (g *Graph) edgeInfoShape(offset Index) []geo.Coordinate {
	g.mu.RLock()
	shape := g.edgeInfos[offset].shape
	g.mu.RUnlock()
	if shape != nil {
		return shape
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edgeInfos[offset].shape != nil {
		return g.edgeInfos[offset].shape
	}
	if g.edgeInfos[offset].encodedShape == nil {
		return nil
	}

	coords, _, err := polyline.DecodeCoords(g.edgeInfos[offset].encodedShape)
	if err != nil {
		return nil
	}
	shape = make([]geo.Coordinate, len(coords))
	for i, c := range coords {
		shape[i] = geo.NewCoordinate(c[0], c[1])
	}
	g.edgeInfos[offset].shape = shape
	g.decodedShapes++
	return shape
}

// PointAlongEdge coordinate at arc-length fraction offset in [0,1] of the
// directed edge.
func (g *Graph) PointAlongEdge(edgeID Index, offset float64) geo.Coordinate {
	shape := g.EdgeShape(edgeID)
	e := &g.edges[edgeID]

	offset = Clamp(offset, 0.0, 1.0)
	targetDist := offset * e.length

	walked := 0.0
	for i := 0; i+1 < len(shape); i++ {
		seg := geo.GreatCircleDistance(shape[i], shape[i+1])
		if walked+seg >= targetDist && seg > 0 {
			f := (targetDist - walked) / seg
			return geo.NewCoordinate(
				shape[i].Lat+(shape[i+1].Lat-shape[i].Lat)*f,
				shape[i].Lon+(shape[i+1].Lon-shape[i].Lon)*f,
			)
		}
		walked += seg
	}
	return shape[len(shape)-1]
}

// EdgeBearingAt heading of the directed edge at arc-length fraction offset.
func (g *Graph) EdgeBearingAt(edgeID Index, offset float64) float64 {
	shape := g.EdgeShape(edgeID)
	e := &g.edges[edgeID]

	offset = Clamp(offset, 0.0, 1.0)
	targetDist := offset * e.length

	walked := 0.0
	for i := 0; i+1 < len(shape); i++ {
		seg := geo.GreatCircleDistance(shape[i], shape[i+1])
		if walked+seg >= targetDist && seg > 0 {
			return geo.BearingTo(shape[i].Lat, shape[i].Lon, shape[i+1].Lat, shape[i+1].Lon)
		}
		walked += seg
	}
	last := len(shape) - 1
	return geo.BearingTo(shape[last-1].Lat, shape[last-1].Lon, shape[last].Lat, shape[last].Lon)
}

// EdgeShapeClipped sub-shape of the directed edge between arc-length
// fractions source and target, source <= target.
func (g *Graph) EdgeShapeClipped(edgeID Index, source, target float64) []geo.Coordinate {
	shape := g.EdgeShape(edgeID)
	e := &g.edges[edgeID]

	source = Clamp(source, 0.0, 1.0)
	target = Clamp(target, source, 1.0)
	startDist := source * e.length
	endDist := target * e.length

	clipped := make([]geo.Coordinate, 0, len(shape))
	clipped = append(clipped, g.PointAlongEdge(edgeID, source))

	walked := 0.0
	for i := 0; i+1 < len(shape); i++ {
		seg := geo.GreatCircleDistance(shape[i], shape[i+1])
		walked += seg
		if walked > startDist && walked < endDist {
			clipped = append(clipped, shape[i+1])
		}
	}

	clipped = append(clipped, g.PointAlongEdge(edgeID, target))
	return clipped
}

// OverCommitted true when the decoded shape cache grew beyond its budget.
func (g *Graph) OverCommitted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.decodedShapes > g.maxCachedShapes
}

// Clear drop the decoded shape cache. the encoded shapes stay; shapes that
// only exist decoded (in-memory built graphs) are kept.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.edgeInfos {
		if g.edgeInfos[i].encodedShape != nil {
			g.edgeInfos[i].shape = nil
		}
	}
	g.decodedShapes = 0
}

func (g *Graph) SetMaxCachedShapes(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maxCachedShapes = n
}

func shapeLength(shape []geo.Coordinate) float64 {
	length := 0.0
	for i := 0; i+1 < len(shape); i++ {
		length += geo.GreatCircleDistance(shape[i], shape[i+1])
	}
	return length
}
