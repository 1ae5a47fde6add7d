package spatialindex

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lintang-b-s/tracematch/pkg"
	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/geo"
)

const metersPerDegree = 111194.92664455873

func deg(meters float64) float64 {
	return meters / metersPerDegree
}

func buildIndexedGraph() (*datastructure.Graph, datastructure.Index, datastructure.Index) {
	g := datastructure.NewGraph()
	a := g.AddVertex(0, 0)
	b := g.AddVertex(0, deg(100))
	fwd, rev := g.AddEdge(a, b, nil, pkg.ALL_ACCESS, false)
	g.Freeze()
	return g, fwd, rev
}

func TestQueryFindsNearbyEdge(t *testing.T) {
	g, fwd, rev := buildIndexedGraph()
	ci := NewCandidateIndex(g, 2000, zap.NewNop())

	// 3m north of the edge midpoint
	point := geo.NewCoordinate(deg(3), deg(50))
	results := ci.Query(point, 50*50, nil)

	require.Len(t, results, 1)
	cand := results[0]
	require.False(t, cand.IsNode())
	require.InDelta(t, 9.0, cand.SqDistance(), 1.5)

	require.Len(t, cand.Edges(), 2)
	require.Equal(t, fwd, cand.Edges()[0].GetEdgeID())
	require.InDelta(t, 0.5, cand.Edges()[0].GetDist(), 0.01)
	require.Equal(t, rev, cand.Edges()[1].GetEdgeID())
	require.InDelta(t, 0.5, cand.Edges()[1].GetDist(), 0.01)
}

func TestQueryBeyondRadiusIsEmpty(t *testing.T) {
	g, _, _ := buildIndexedGraph()
	ci := NewCandidateIndex(g, 2000, zap.NewNop())

	point := geo.NewCoordinate(deg(500), deg(50))
	results := ci.Query(point, 50*50, nil)
	require.Empty(t, results)
}

func TestQuerySnapsToNode(t *testing.T) {
	g, fwd, rev := buildIndexedGraph()
	ci := NewCandidateIndex(g, 2000, zap.NewNop())

	// right on top of the start node
	point := geo.NewCoordinate(0, 0)
	results := ci.Query(point, 50*50, nil)

	require.Len(t, results, 1)
	cand := results[0]
	require.True(t, cand.IsNode())
	require.Equal(t, g.GetStartNode(fwd), cand.NodeID())

	// the outgoing edge at offset 0 and its opposing at offset 1
	dists := make(map[datastructure.Index]float64)
	for _, ep := range cand.Edges() {
		dists[ep.GetEdgeID()] = ep.GetDist()
	}
	require.Equal(t, 0.0, dists[fwd])
	require.Equal(t, 1.0, dists[rev])
}

func TestQueryRespectsCostingFilter(t *testing.T) {
	g := datastructure.NewGraph()
	a := g.AddVertex(0, 0)
	b := g.AddVertex(0, deg(100))
	g.AddEdge(a, b, nil, pkg.PEDESTRIAN_ACCESS, false)
	g.Freeze()

	ci := NewCandidateIndex(g, 2000, zap.NewNop())
	point := geo.NewCoordinate(deg(3), deg(50))

	autoOnly := func(e *datastructure.DirectedEdge) bool {
		return e.GetAccess()&pkg.AUTO_ACCESS != 0
	}
	require.Empty(t, ci.Query(point, 50*50, autoOnly))

	walk := func(e *datastructure.DirectedEdge) bool {
		return e.GetAccess()&pkg.PEDESTRIAN_ACCESS != 0
	}
	require.Len(t, ci.Query(point, 50*50, walk), 1)
}

func TestIndexCellCacheAndClear(t *testing.T) {
	g, _, _ := buildIndexedGraph()
	ci := NewCandidateIndex(g, 2000, zap.NewNop())
	require.Equal(t, 0, ci.Size())

	ci.Query(geo.NewCoordinate(deg(3), deg(50)), 50*50, nil)
	require.Greater(t, ci.Size(), 0)

	ci.Clear()
	require.Equal(t, 0, ci.Size())
}

func TestQuerySortedBySquaredDistance(t *testing.T) {
	g := datastructure.NewGraph()
	a := g.AddVertex(0, 0)
	b := g.AddVertex(0, deg(100))
	c := g.AddVertex(deg(30), 0)
	d := g.AddVertex(deg(30), deg(100))
	g.AddEdge(a, b, nil, pkg.ALL_ACCESS, false)
	g.AddEdge(c, d, nil, pkg.ALL_ACCESS, false)
	g.Freeze()

	ci := NewCandidateIndex(g, 2000, zap.NewNop())

	// 10m above the first edge, 20m below the second
	results := ci.Query(geo.NewCoordinate(deg(10), deg(50)), 50*50, nil)
	require.Len(t, results, 2)
	require.LessOrEqual(t, results[0].SqDistance(), results[1].SqDistance())
	require.InDelta(t, 100.0, results[0].SqDistance(), 20.0)
}
