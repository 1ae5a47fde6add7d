package matcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lintang-b-s/tracematch/pkg/datastructure"
)

func offlineConfig() Config {
	cfg := DefaultConfig()
	cfg.SigmaZ = 5
	cfg.Beta = 3
	cfg.BreakageDistance = 2000
	cfg.MaxRouteDistanceFactor = 3
	cfg.TurnPenaltyFactor = 0
	cfg.SearchRadius = 50
	cfg.MaxSearchRadius = 100
	cfg.InterpolationDistance = 10
	return cfg
}

func TestOfflineMatchEmptyInput(t *testing.T) {
	g, _, _ := buildStraightGraph()
	m, err := testMatcher(offlineConfig(), g)
	require.NoError(t, err)

	results := m.OfflineMatch(nil)
	require.Empty(t, results)
}

func TestOfflineMatchStraightEdge(t *testing.T) {
	g, fwd, _ := buildStraightGraph()
	m, err := testMatcher(offlineConfig(), g)
	require.NoError(t, err)

	// three points along the edge, 2m off to the side
	trace := traceAlongLon(2, 10, 50, 90)
	results := m.OfflineMatch(trace)

	require.Len(t, results, len(trace))
	for _, res := range results {
		require.Equal(t, GRAPH_EDGE, res.GraphType())
		require.Equal(t, fwd, res.GraphID())
		require.InDelta(t, 2.0, res.Distance(), 0.5)
	}

	// monotonic longitudes along the edge
	require.Less(t, results[0].LngLat().Lon, results[1].LngLat().Lon)
	require.Less(t, results[1].LngLat().Lon, results[2].LngLat().Lon)
}

func TestOfflineMatchDeterministic(t *testing.T) {
	g, _, _ := buildStraightGraph()
	m, err := testMatcher(offlineConfig(), g)
	require.NoError(t, err)

	trace := traceAlongLon(2, 10, 40, 70, 90)
	first := m.OfflineMatch(trace)
	second := m.OfflineMatch(trace)

	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].GraphID(), second[i].GraphID())
		require.Equal(t, first[i].GraphType(), second[i].GraphType())
		require.Equal(t, first[i].LngLat(), second[i].LngLat())
	}
}

func TestOfflineMatchInterpolatesProximateMeasurement(t *testing.T) {
	g, fwd, _ := buildStraightGraph()
	cfg := offlineConfig()
	cfg.InterpolationDistance = 20
	m, err := testMatcher(cfg, g)
	require.NoError(t, err)

	// the 18m point sits within interpolation distance of the 10m one
	trace := traceAlongLon(0, 10, 18, 60)
	results := m.OfflineMatch(trace)

	require.Len(t, results, 3)
	require.Equal(t, GRAPH_EDGE, results[1].GraphType())
	require.Equal(t, fwd, results[1].GraphID())
	// interpolated against the pairwise graph set, no lattice state attached
	require.Nil(t, results[1].State())
	require.NotNil(t, results[0].State())
	require.NotNil(t, results[2].State())
}

func TestOfflineMatchHugeInterpolationDistance(t *testing.T) {
	g, _, _ := buildStraightGraph()
	cfg := offlineConfig()
	cfg.InterpolationDistance = 1e6
	m, err := testMatcher(cfg, g)
	require.NoError(t, err)

	trace := traceAlongLon(0, 10, 30, 50, 90)
	results := m.OfflineMatch(trace)

	// only the first and the last build columns
	require.Equal(t, 2, m.MapMatching().Size())
	require.Len(t, results, 4)
	for _, res := range results {
		require.Equal(t, GRAPH_EDGE, res.GraphType())
	}
	require.Nil(t, results[1].State())
	require.Nil(t, results[2].State())
}

func TestOfflineMatchSingleMeasurement(t *testing.T) {
	g, fwd, _ := buildStraightGraph()
	m, err := testMatcher(offlineConfig(), g)
	require.NoError(t, err)

	trace := traceAlongLon(2, 30)
	results := m.OfflineMatch(trace)

	require.Len(t, results, 1)
	require.Equal(t, GRAPH_EDGE, results[0].GraphType())
	require.Equal(t, fwd, results[0].GraphID())
	require.InDelta(t, 2.0, results[0].Distance(), 0.5)
}

func TestOfflineMatchNoCandidates(t *testing.T) {
	g, _, _ := buildStraightGraph()
	m, err := testMatcher(offlineConfig(), g)
	require.NoError(t, err)

	// 5km away from the only edge, far beyond the search radius
	trace := []datastructure.Measurement{
		datastructure.NewMeasurement(deg(5000), 0),
		datastructure.NewMeasurement(deg(5000), deg(50)),
		datastructure.NewMeasurement(deg(5000), deg(100)),
	}
	results := m.OfflineMatch(trace)

	require.Len(t, results, 3)
	for i, res := range results {
		require.Equal(t, GRAPH_UNKNOWN, res.GraphType())
		require.Equal(t, trace[i].LngLat(), res.LngLat())
	}
}

func TestOfflineMatchRouteBudgetInvariant(t *testing.T) {
	g, _, _ := buildStraightGraph()
	cfg := offlineConfig()
	m, err := testMatcher(cfg, g)
	require.NoError(t, err)

	trace := traceAlongLon(0, 10, 50, 90)
	results := m.OfflineMatch(trace)
	require.Len(t, results, 3)

	for t1 := 1; t1 < len(results); t1++ {
		left := results[t1-1].State()
		right := results[t1].State()
		require.NotNil(t, left)
		require.NotNil(t, right)

		label := left.LastLabel(right)
		require.NotNil(t, label)

		gcDist := greatCircle(trace[t1-1], trace[t1])
		budgetOK := gcDist*cfg.MaxRouteDistanceFactor >= label.GetCost() ||
			cfg.BreakageDistance >= label.GetCost()
		require.True(t, budgetOK)
	}
}

func TestOfflineMatchCornerWithTurnPenalty(t *testing.T) {
	g, edgeA, edgeB := buildCornerGraph()
	cfg := offlineConfig()
	cfg.TurnPenaltyFactor = 1.0
	m, err := testMatcher(cfg, g)
	require.NoError(t, err)

	// two points on A, then two going north on B
	trace := []datastructure.Measurement{
		datastructure.NewMeasurement(0, deg(50)),
		datastructure.NewMeasurement(0, deg(90)),
		datastructure.NewMeasurement(deg(10), deg(100)),
		datastructure.NewMeasurement(deg(50), deg(100)),
	}
	results := m.OfflineMatch(trace)
	require.Len(t, results, 4)

	require.Equal(t, edgeA, results[0].GraphID())
	require.Equal(t, edgeA, results[1].GraphID())
	require.Equal(t, edgeB, results[2].GraphID())
	require.Equal(t, edgeB, results[3].GraphID())

	// the corner hop carries one 90 degree turn penalty
	label := results[1].State().LastLabel(results[2].State())
	require.NotNil(t, label)
	require.InDelta(t, math.Exp(-2.0), label.GetTurnCost(), 1e-3)

	route, err := m.ConstructRoute(results)
	require.NoError(t, err)
	require.Len(t, route, 2)
	require.Equal(t, edgeA, route[0].GetEdgeID())
	require.Equal(t, edgeB, route[1].GetEdgeID())
	require.InDelta(t, 1.0, route[0].GetTarget(), 1e-6)
	require.InDelta(t, 0.0, route[1].GetSource(), 1e-6)
}
