package matcher

import (
	"math"

	"github.com/lintang-b-s/tracematch/pkg/costing"
	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/spatialindex"
)

// Time column index of the lattice
type Time = uint32

type StateID uint32

const INVALID_STATE_ID = StateID(math.MaxUint32)

// State one candidate elevated to a lattice node. the routing cache
// (labelset + labelIdx) starts empty and is populated at most once, by the
// first transition evaluated out of this state.
type State struct {
	id        StateID
	time      Time
	candidate *spatialindex.Candidate

	labelset *LabelSet
	labelIdx map[StateID]uint32
}

func NewState(id StateID, time Time, candidate *spatialindex.Candidate) *State {
	return &State{
		id:        id,
		time:      time,
		candidate: candidate,
	}
}

func (s *State) ID() StateID {
	return s.id
}

func (s *State) Time() Time {
	return s.time
}

func (s *State) Candidate() *spatialindex.Candidate {
	return s.candidate
}

func (s *State) Routed() bool {
	return s.labelset != nil
}

// Route one-shot population of the routing cache with the shortest paths to
// targets, bounded by maxRouteDistance. targets is the unreached frontier of
// the next column, so pruned states are never routed to.
func (s *State) Route(targets []*State, graph *datastructure.Graph, maxRouteDistance float64,
	c costing.Costing, seedEdge datastructure.Index, turnCostTable []float64) {

	locations := make([]*spatialindex.Candidate, 0, 1+len(targets))
	locations = append(locations, s.candidate)
	for _, target := range targets {
		locations = append(locations, target.candidate)
	}

	s.labelset = NewLabelSet(math.Ceil(maxRouteDistance))
	results := FindShortestPath(graph, locations, 0, s.labelset, c, seedEdge, turnCostTable)

	s.labelIdx = make(map[StateID]uint32, len(results))
	for i, target := range targets {
		if labelIdx, ok := results[i+1]; ok {
			s.labelIdx[target.id] = labelIdx
		}
	}
}

// LastLabel the cached destination label for target, nil when target was not
// reached within budget.
func (s *State) LastLabel(target *State) *Label {
	idx, ok := s.labelIdx[target.id]
	if !ok {
		return nil
	}
	return s.labelset.Label(idx)
}

// RoutePath labels from target back to this state's origin dummy label.
// empty iteration when target was unreachable.
func (s *State) RoutePath(target *State) *RoutePathIterator {
	idx, ok := s.labelIdx[target.id]
	if !ok {
		return NewEmptyRoutePathIterator(s.labelset)
	}
	return NewRoutePathIterator(s.labelset, int32(idx))
}
