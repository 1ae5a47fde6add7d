package matcher

import (
	"github.com/lintang-b-s/tracematch/pkg"
	"github.com/lintang-b-s/tracematch/pkg/costing"
	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/geo"
	"github.com/lintang-b-s/tracematch/pkg/spatialindex"
	"go.uber.org/zap"
)

// meters of one degree of latitude (and of longitude at the equator), all
// test graphs live near (0, 0)
const metersPerDegree = 111194.92664455873

func deg(meters float64) float64 {
	return meters / metersPerDegree
}

// buildStraightGraph one 100m west-east edge pair from (0,0) to (0, 100m).
// returns the graph and the forward/reverse edge ids.
func buildStraightGraph() (*datastructure.Graph, datastructure.Index, datastructure.Index) {
	g := datastructure.NewGraph()
	a := g.AddVertex(0, 0)
	b := g.AddVertex(0, deg(100))
	fwd, rev := g.AddEdge(a, b, nil, pkg.ALL_ACCESS, false)
	g.Freeze()
	return g, fwd, rev
}

// buildCornerGraph a 90 degree corner: edge A runs 100m east from (0,0),
// edge B runs 100m north from A's end node.
func buildCornerGraph() (*datastructure.Graph, datastructure.Index, datastructure.Index) {
	g := datastructure.NewGraph()
	a := g.AddVertex(0, 0)
	b := g.AddVertex(0, deg(100))
	c := g.AddVertex(deg(100), deg(100))
	edgeA, _ := g.AddEdge(a, b, nil, pkg.ALL_ACCESS, false)
	edgeB, _ := g.AddEdge(b, c, nil, pkg.ALL_ACCESS, false)
	g.Freeze()
	return g, edgeA, edgeB
}

// edgeCandidate candidate on the edge pair (fwd, rev) at the arc-length
// fraction dist of the forward edge
func edgeCandidate(g *datastructure.Graph, fwd, rev datastructure.Index,
	dist, sqDistance float64) *spatialindex.Candidate {
	edges := []spatialindex.EdgeProjection{
		spatialindex.NewEdgeProjection(fwd, dist),
	}
	if rev != datastructure.INVALID_INDEX {
		edges = append(edges, spatialindex.NewEdgeProjection(rev, 1.0-dist))
	}
	return spatialindex.NewCandidate(g.PointAlongEdge(fwd, dist), sqDistance,
		false, datastructure.INVALID_INDEX, edges)
}

func autoCosting() costing.Costing {
	return costing.NewAutoCost(nil)
}

func zeroTurnTable() []float64 {
	return make([]float64, pkg.TURN_COST_TABLE_SIZE)
}

func testMatcher(cfg Config, g *datastructure.Graph) (*MapMatcher, error) {
	index := spatialindex.NewCandidateIndex(g, 2000, zap.NewNop())
	return NewMapMatcher(cfg, g, index, autoCosting(), zap.NewNop())
}

func traceAlongLon(lateralMeters float64, lonMeters ...float64) []datastructure.Measurement {
	trace := make([]datastructure.Measurement, 0, len(lonMeters))
	for _, m := range lonMeters {
		trace = append(trace, datastructure.NewMeasurement(deg(lateralMeters), deg(m)))
	}
	return trace
}

func coordAt(latMeters, lonMeters float64) geo.Coordinate {
	return geo.NewCoordinate(deg(latMeters), deg(lonMeters))
}

func greatCircle(a, b datastructure.Measurement) float64 {
	return geo.GreatCircleDistance(a.LngLat(), b.LngLat())
}
