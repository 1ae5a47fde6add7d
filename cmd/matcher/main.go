package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/twpayne/go-polyline"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/logger"
	"github.com/lintang-b-s/tracematch/pkg/matcher"
)

var (
	graphFile  = flag.String("graph", "./data/road.graph", "serialized road graph file")
	configFile = flag.String("config", "", "matcher config file (yaml), optional")
	mode       = flag.String("mode", "auto", "travel mode: auto, bicycle, pedestrian, multimodal")
	numWorkers = flag.Int("workers", 4, "number of concurrent matching workers")
)

func main() {
	flag.Parse()

	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	traceFiles := flag.Args()
	if len(traceFiles) == 0 {
		fmt.Fprintln(os.Stderr, "usage: matcher [flags] trace.csv [trace2.csv ...]")
		os.Exit(2)
	}

	v := viper.New()
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			log.Fatal("read config", zap.Error(err))
		}
	}

	graph, err := datastructure.ReadGraph(*graphFile)
	if err != nil {
		log.Fatal("read graph", zap.Error(err))
	}
	log.Info("road graph loaded",
		zap.Int("vertices", graph.NumberOfVertices()),
		zap.Int("edges", graph.NumberOfEdges()))

	factory, err := matcher.NewMapMatcherFactory(v, graph, log)
	if err != nil {
		log.Fatal("build matcher factory", zap.Error(err))
	}

	traces := make([][]datastructure.Measurement, len(traceFiles))
	g := errgroup.Group{}
	for i, file := range traceFiles {
		i, file := i, file
		g.Go(func() error {
			trace, err := readTrace(file)
			if err != nil {
				return err
			}
			traces[i] = trace
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal("read traces", zap.Error(err))
	}

	preferences := map[string]interface{}{"mode": *mode}
	allResults, err := factory.MatchAll(traces, preferences, *numWorkers)
	if err != nil {
		log.Fatal("match failed", zap.Error(err))
	}

	m, err := factory.CreateFromPreferences(preferences)
	if err != nil {
		log.Fatal("create matcher", zap.Error(err))
	}

	for i, results := range allResults {
		fmt.Printf("# trace %s\n", traceFiles[i])
		for j, res := range results {
			kind := "unmatched"
			switch res.GraphType() {
			case matcher.GRAPH_EDGE:
				kind = "edge"
			case matcher.GRAPH_NODE:
				kind = "node"
			}
			fmt.Printf("%d %s %.7f %.7f dist=%.2f id=%d\n",
				j, kind, res.LngLat().Lon, res.LngLat().Lat, res.Distance(), res.GraphID())
		}

		// re-match on an owned session so route reconstruction can read the
		// label chains
		sessionResults := m.OfflineMatch(traces[i])
		route, err := m.ConstructRoute(sessionResults)
		if err != nil {
			log.Warn("route reconstruction failed", zap.String("trace", traceFiles[i]), zap.Error(err))
			continue
		}

		coords := make([][]float64, 0, len(route)*4)
		for _, segment := range route {
			for _, c := range segment.Shape(graph) {
				coords = append(coords, []float64{c.Lat, c.Lon})
			}
		}
		fmt.Printf("route: %s\n", string(polyline.EncodeCoords(coords)))
	}

	factory.ClearCacheIfPossible()
}

// readTrace parse a lon,lat csv, one measurement per line, # for comments
func readTrace(filename string) ([]datastructure.Measurement, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	measurements := make([]datastructure.Measurement, 0, 128)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			return nil, fmt.Errorf("bad trace line %q in %s", line, filename)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, err
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, err
		}
		measurements = append(measurements, datastructure.NewMeasurement(lat, lon))
	}
	return measurements, sc.Err()
}
