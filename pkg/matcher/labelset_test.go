package matcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lintang-b-s/tracematch/pkg"
	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/spatialindex"
)

func candidates(cs ...*spatialindex.Candidate) []*spatialindex.Candidate {
	return cs
}

func TestFindShortestPathSameEdge(t *testing.T) {
	g, fwd, rev := buildStraightGraph()

	origin := edgeCandidate(g, fwd, rev, 0.2, 0)
	dest := edgeCandidate(g, fwd, rev, 0.7, 0)

	ls := NewLabelSet(1000)
	results := FindShortestPath(g, candidates(origin, dest), 0, ls,
		autoCosting(), datastructure.INVALID_INDEX, zeroTurnTable())

	require.Contains(t, results, 1)
	label := ls.Label(results[1])
	require.InDelta(t, 50.0, label.GetCost(), 0.5)
	require.Equal(t, fwd, label.GetEdgeID())
	require.InDelta(t, 0.2, label.GetSource(), 1e-6)
	require.InDelta(t, 0.7, label.GetTarget(), 1e-6)
	require.Equal(t, 0.0, label.GetTurnCost())

	// chain is the destination label plus the origin dummy
	root := ls.Label(uint32(label.GetPredecessor()))
	require.Equal(t, datastructure.INVALID_INDEX, root.GetEdgeID())
	require.Equal(t, INVALID_LABEL, root.GetPredecessor())
}

func TestFindShortestPathAcrossNodes(t *testing.T) {
	g, edgeA, edgeB := buildCornerGraph()

	origin := edgeCandidate(g, edgeA, g.GetDirectedEdge(edgeA).GetOpposing(), 0.5, 0)
	dest := edgeCandidate(g, edgeB, g.GetDirectedEdge(edgeB).GetOpposing(), 0.5, 0)

	ls := NewLabelSet(1000)
	results := FindShortestPath(g, candidates(origin, dest), 0, ls,
		autoCosting(), datastructure.INVALID_INDEX, zeroTurnTable())

	require.Contains(t, results, 1)
	label := ls.Label(results[1])
	require.InDelta(t, 100.0, label.GetCost(), 1.0)
	require.Equal(t, edgeB, label.GetEdgeID())

	// chain: dest on B <- node at A's end <- dummy
	node := ls.Label(uint32(label.GetPredecessor()))
	require.Equal(t, edgeA, node.GetEdgeID())
	require.Equal(t, g.GetEndNode(edgeA), node.GetNodeID())
}

func TestFindShortestPathBudgetOmitsFarDestination(t *testing.T) {
	g, edgeA, edgeB := buildCornerGraph()

	origin := edgeCandidate(g, edgeA, g.GetDirectedEdge(edgeA).GetOpposing(), 0.1, 0)
	near := edgeCandidate(g, edgeA, g.GetDirectedEdge(edgeA).GetOpposing(), 0.3, 0)
	far := edgeCandidate(g, edgeB, g.GetDirectedEdge(edgeB).GetOpposing(), 0.9, 0)

	ls := NewLabelSet(50)
	results := FindShortestPath(g, candidates(origin, near, far), 0, ls,
		autoCosting(), datastructure.INVALID_INDEX, zeroTurnTable())

	require.Contains(t, results, 1)
	require.NotContains(t, results, 2)
}

func TestFindShortestPathTurnCost(t *testing.T) {
	g, edgeA, edgeB := buildCornerGraph()

	table := make([]float64, len(zeroTurnTable()))
	for i := range table {
		table[i] = math.Exp(-float64(i) / 45.0)
	}

	origin := edgeCandidate(g, edgeA, g.GetDirectedEdge(edgeA).GetOpposing(), 0.9, 0)
	dest := edgeCandidate(g, edgeB, g.GetDirectedEdge(edgeB).GetOpposing(), 0.1, 0)

	ls := NewLabelSet(1000)
	results := FindShortestPath(g, candidates(origin, dest), 0, ls,
		autoCosting(), datastructure.INVALID_INDEX, table)

	require.Contains(t, results, 1)
	label := ls.Label(results[1])
	require.InDelta(t, 20.0, label.GetCost(), 0.5)
	// one 90 degree bend at the corner node
	require.InDelta(t, math.Exp(-2.0), label.GetTurnCost(), 1e-3)
}

func TestFindShortestPathUnreachable(t *testing.T) {
	g := datastructure.NewGraph()
	a := g.AddVertex(0, 0)
	b := g.AddVertex(0, deg(100))
	c := g.AddVertex(deg(500), deg(500))
	d := g.AddVertex(deg(500), deg(600))
	edgeA, revA := g.AddEdge(a, b, nil, pkg.ALL_ACCESS, false)
	edgeC, revC := g.AddEdge(c, d, nil, pkg.ALL_ACCESS, false)
	g.Freeze()

	origin := edgeCandidate(g, edgeA, revA, 0.5, 0)
	dest := edgeCandidate(g, edgeC, revC, 0.5, 0)

	ls := NewLabelSet(1e6)
	results := FindShortestPath(g, candidates(origin, dest), 0, ls,
		autoCosting(), datastructure.INVALID_INDEX, zeroTurnTable())

	require.NotContains(t, results, 1)
}
