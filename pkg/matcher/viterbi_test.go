package matcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lintang-b-s/tracematch/pkg/spatialindex"
)

// stubModel drives the DP from fixed emission and transition tables keyed by
// StateID, no routing involved.
type stubModel struct {
	emission   map[StateID]float64
	transition map[[2]StateID]float64
	forbidden  map[[2]StateID]bool
}

func newStubModel() *stubModel {
	return &stubModel{
		emission:   make(map[StateID]float64),
		transition: make(map[[2]StateID]float64),
		forbidden:  make(map[[2]StateID]bool),
	}
}

func (m *stubModel) EmissionCost(s *State) float64 {
	return m.emission[s.ID()]
}

func (m *stubModel) TransitionCost(left, right *State) (float64, bool) {
	key := [2]StateID{left.ID(), right.ID()}
	if m.forbidden[key] {
		return 0, false
	}
	return m.transition[key], true
}

func (m *stubModel) CostSofar(prev, transitionCost, emissionCost float64) float64 {
	return prev + transitionCost + emissionCost
}

func appendStubColumn(vs *ViterbiSearch, size int) []*State {
	time := vs.AppendColumn(make([]*spatialindex.Candidate, size))
	return vs.Column(time)
}

func TestViterbiPicksMinimalPath(t *testing.T) {
	vs := NewViterbiSearch()
	model := newStubModel()
	vs.SetModel(model)

	col0 := appendStubColumn(vs, 2)
	col1 := appendStubColumn(vs, 2)

	model.emission[col0[0].ID()] = 1
	model.emission[col0[1].ID()] = 5
	model.emission[col1[0].ID()] = 1
	model.emission[col1[1].ID()] = 1

	model.transition[[2]StateID{col0[0].ID(), col1[0].ID()}] = 10
	model.transition[[2]StateID{col0[0].ID(), col1[1].ID()}] = 1
	model.transition[[2]StateID{col0[1].ID(), col1[0].ID()}] = 1
	model.transition[[2]StateID{col0[1].ID(), col1[1].ID()}] = 10

	path := vs.SearchPath(1)
	require.Len(t, path, 2)
	require.Equal(t, col0[0].ID(), path[0].ID())
	require.Equal(t, col1[1].ID(), path[1].ID())
	// 1 + 1 + 1
	require.InDelta(t, 3.0, vs.CostSofar(path[1].ID()), 1e-9)
}

func TestViterbiTieBreaksTowardLowerStateID(t *testing.T) {
	vs := NewViterbiSearch()
	model := newStubModel()
	vs.SetModel(model)

	col0 := appendStubColumn(vs, 2)
	col1 := appendStubColumn(vs, 1)

	// both lefts tie exactly
	model.transition[[2]StateID{col0[0].ID(), col1[0].ID()}] = 2
	model.transition[[2]StateID{col0[1].ID(), col1[0].ID()}] = 2

	path := vs.SearchPath(1)
	require.Equal(t, col0[0].ID(), vs.Predecessor(path[1].ID()))
}

func TestViterbiForbiddenTransitionPrunes(t *testing.T) {
	vs := NewViterbiSearch()
	model := newStubModel()
	vs.SetModel(model)

	col0 := appendStubColumn(vs, 1)
	col1 := appendStubColumn(vs, 2)

	// no left can reach col1[1]
	model.forbidden[[2]StateID{col0[0].ID(), col1[1].ID()}] = true
	model.transition[[2]StateID{col0[0].ID(), col1[0].ID()}] = 1

	path := vs.SearchPath(1)
	require.Equal(t, col1[0].ID(), path[1].ID())

	unreached := vs.Unreached(1)
	require.Len(t, unreached, 1)
	require.Equal(t, col1[0].ID(), unreached[0].ID())
}

func TestViterbiEmptyColumnBreaksChain(t *testing.T) {
	vs := NewViterbiSearch()
	model := newStubModel()
	vs.SetModel(model)

	col0 := appendStubColumn(vs, 1)
	appendStubColumn(vs, 0)
	col2 := appendStubColumn(vs, 1)

	path := vs.SearchPath(2)
	require.Len(t, path, 3)
	require.Equal(t, col0[0].ID(), path[0].ID())
	require.Nil(t, path[1])
	require.Equal(t, col2[0].ID(), path[2].ID())

	// the new chain restarts with no back-pointer
	require.Equal(t, INVALID_STATE_ID, vs.Predecessor(col2[0].ID()))
}

func TestViterbiFullyInfeasibleColumnRestartsChain(t *testing.T) {
	vs := NewViterbiSearch()
	model := newStubModel()
	vs.SetModel(model)

	col0 := appendStubColumn(vs, 1)
	col1 := appendStubColumn(vs, 2)

	model.forbidden[[2]StateID{col0[0].ID(), col1[0].ID()}] = true
	model.forbidden[[2]StateID{col0[0].ID(), col1[1].ID()}] = true
	model.emission[col1[0].ID()] = 7
	model.emission[col1[1].ID()] = 3

	path := vs.SearchPath(1)
	require.Equal(t, col1[1].ID(), path[1].ID())
	require.Equal(t, INVALID_STATE_ID, vs.Predecessor(col1[1].ID()))
	require.InDelta(t, 3.0, vs.CostSofar(col1[1].ID()), 1e-9)

	// the previous chain still owns its column
	require.Equal(t, col0[0].ID(), path[0].ID())
}
