package matcher

import (
	"github.com/lintang-b-s/tracematch/pkg"
	"github.com/lintang-b-s/tracematch/pkg/spatialindex"
)

// CostModel the hooks a concrete model supplies to the column DP. the DP
// itself knows nothing about emission/transition semantics.
type CostModel interface {
	EmissionCost(s *State) float64

	// TransitionCost cost of pairing left (column t-1) with right (column t).
	// second result false marks the pairing as infeasible.
	TransitionCost(left, right *State) (float64, bool)

	CostSofar(prev, transitionCost, emissionCost float64) float64
}

// ViterbiSearch column-by-column dynamic programming over lattice states
// with lazily evaluated transitions. states live in a flat arena indexed by
// StateID; back-pointers and costs are parallel arrays over that arena,
// winners hold one entry per column.
type ViterbiSearch struct {
	model CostModel

	states  []*State
	columns [][]*State

	// per column, the targets still viable at that time. transitions prune
	// entries that no left state can reach.
	unreached [][]*State

	costSofar   []float64
	predecessor []StateID

	// best state per processed column, INVALID_STATE_ID when the column is
	// empty. a fully infeasible column restarts as a chain root and so has
	// a winner
	winner []StateID

	searchedTime int
}

func NewViterbiSearch() *ViterbiSearch {
	return &ViterbiSearch{searchedTime: -1}
}

func (vs *ViterbiSearch) SetModel(model CostModel) {
	vs.model = model
}

// AppendColumn allocate one state per candidate and append them as the next
// column. returns the new column's time whether or not the column is empty;
// an empty column breaks the chain at that point.
func (vs *ViterbiSearch) AppendColumn(candidates []*spatialindex.Candidate) Time {
	time := Time(len(vs.columns))

	column := make([]*State, 0, len(candidates))
	for _, candidate := range candidates {
		id := StateID(len(vs.states))
		state := NewState(id, time, candidate)
		vs.states = append(vs.states, state)
		vs.costSofar = append(vs.costSofar, pkg.INF_WEIGHT)
		vs.predecessor = append(vs.predecessor, INVALID_STATE_ID)
		column = append(column, state)
	}

	frontier := make([]*State, len(column))
	copy(frontier, column)

	vs.columns = append(vs.columns, column)
	vs.unreached = append(vs.unreached, frontier)
	vs.winner = append(vs.winner, INVALID_STATE_ID)

	return time
}

func (vs *ViterbiSearch) NumColumns() int {
	return len(vs.columns)
}

func (vs *ViterbiSearch) Column(time Time) []*State {
	return vs.columns[time]
}

// Unreached the still-viable targets of the column, the routing target set
// of any left state transitioning into it.
func (vs *ViterbiSearch) Unreached(time Time) []*State {
	return vs.unreached[time]
}

func (vs *ViterbiSearch) GetState(id StateID) *State {
	return vs.states[id]
}

// Predecessor the chosen back-pointer of the state, INVALID_STATE_ID for
// chain roots and unprocessed states.
func (vs *ViterbiSearch) Predecessor(id StateID) StateID {
	return vs.predecessor[id]
}

func (vs *ViterbiSearch) CostSofar(id StateID) float64 {
	return vs.costSofar[id]
}

func (vs *ViterbiSearch) Clear() {
	vs.states = nil
	vs.columns = nil
	vs.unreached = nil
	vs.costSofar = nil
	vs.predecessor = nil
	vs.winner = nil
	vs.searchedTime = -1
}

func (vs *ViterbiSearch) pruneUnreached(time Time, state *State) {
	frontier := vs.unreached[time]
	for i, s := range frontier {
		if s.id == state.id {
			vs.unreached[time] = append(frontier[:i], frontier[i+1:]...)
			return
		}
	}
}

// processColumn run the DP step for column t. column 0 and columns following
// a broken chain become roots scored by emission alone. ties break toward
// the lower StateID.
func (vs *ViterbiSearch) processColumn(t int) {
	column := vs.columns[t]

	asRoots := func() {
		for _, state := range column {
			vs.costSofar[state.id] = vs.model.EmissionCost(state)
			vs.predecessor[state.id] = INVALID_STATE_ID
		}
		// everything is viable again on a fresh chain
		frontier := make([]*State, len(column))
		copy(frontier, column)
		vs.unreached[t] = frontier
	}

	if t == 0 {
		asRoots()
	} else {
		feasibleLeft := false
		for _, left := range vs.columns[t-1] {
			if vs.costSofar[left.id] < pkg.INF_WEIGHT {
				feasibleLeft = true
				break
			}
		}

		if !feasibleLeft {
			asRoots()
		} else {
			anyReached := false
			snapshot := make([]*State, len(vs.unreached[t]))
			copy(snapshot, vs.unreached[t])

			for _, right := range snapshot {
				emission := vs.model.EmissionCost(right)

				best := pkg.INF_WEIGHT
				bestPred := INVALID_STATE_ID
				for _, left := range vs.columns[t-1] {
					if vs.costSofar[left.id] >= pkg.INF_WEIGHT {
						continue
					}
					transition, ok := vs.model.TransitionCost(left, right)
					if !ok {
						continue
					}
					cost := vs.model.CostSofar(vs.costSofar[left.id], transition, emission)
					if cost < best {
						best = cost
						bestPred = left.id
					}
				}

				if bestPred != INVALID_STATE_ID {
					vs.costSofar[right.id] = best
					vs.predecessor[right.id] = bestPred
					anyReached = true
				} else {
					vs.costSofar[right.id] = pkg.INF_WEIGHT
					vs.pruneUnreached(Time(t), right)
				}
			}

			if !anyReached {
				// chain broken, restart at this column
				asRoots()
			}
		}
	}

	winner := INVALID_STATE_ID
	best := pkg.INF_WEIGHT
	for _, state := range column {
		if vs.costSofar[state.id] < best {
			best = vs.costSofar[state.id]
			winner = state.id
		}
	}
	vs.winner[t] = winner
	vs.searchedTime = t
}

// SearchPath the chosen state per column from 0 through endTime,
// chronological. a nil entry marks an empty column. when a chain breaks
// mid-trace the walk continues from the
// winner of the previous (independent) chain.
func (vs *ViterbiSearch) SearchPath(endTime Time) []*State {
	for t := vs.searchedTime + 1; t <= int(endTime); t++ {
		vs.processColumn(t)
	}

	path := make([]*State, int(endTime)+1)

	cur := vs.winner[endTime]
	for t := int(endTime); t >= 0; t-- {
		if cur != INVALID_STATE_ID {
			path[t] = vs.states[cur]
			cur = vs.predecessor[cur]
		}
		if cur == INVALID_STATE_ID && t > 0 {
			cur = vs.winner[t-1]
		}
	}

	return path
}
