package matcher

import (
	"math"

	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/geo"
	"github.com/lintang-b-s/tracematch/pkg/spatialindex"
)

// enum of graph_type
type GraphType uint8

const (
	GRAPH_UNKNOWN GraphType = iota
	GRAPH_EDGE
	GRAPH_NODE
)

// MatchResult the per-measurement output. lngLat is the matched point, or
// the raw measurement when graphType is GRAPH_UNKNOWN. state, when non-nil,
// links back to the chosen lattice state and stays valid until the owning
// matcher is cleared.
type MatchResult struct {
	lngLat    geo.Coordinate
	distance  float64
	graphID   datastructure.Index
	graphType GraphType
	state     *State
}

func NewMatchResult(lngLat geo.Coordinate, distance float64, graphID datastructure.Index,
	graphType GraphType, state *State) MatchResult {
	return MatchResult{
		lngLat:    lngLat,
		distance:  distance,
		graphID:   graphID,
		graphType: graphType,
		state:     state,
	}
}

func NewUnmatchedResult(lngLat geo.Coordinate) MatchResult {
	return MatchResult{
		lngLat:    lngLat,
		graphID:   datastructure.INVALID_INDEX,
		graphType: GRAPH_UNKNOWN,
	}
}

func (r MatchResult) LngLat() geo.Coordinate {
	return r.lngLat
}

func (r MatchResult) Distance() float64 {
	return r.distance
}

func (r MatchResult) GraphID() datastructure.Index {
	return r.graphID
}

func (r MatchResult) GraphType() GraphType {
	return r.graphType
}

func (r MatchResult) State() *State {
	return r.state
}

func (r MatchResult) Matched() bool {
	return r.graphType != GRAPH_UNKNOWN
}

// OfflineMatch match a whole trace against the road graph. one MatchResult
// per input measurement, in input order. measurements closer than
// interpolationDistance to the last admitted one skip the lattice and are
// interpolated against the chosen path of their surrounding pair.
func OfflineMatch(mm *MapMatching, ci *spatialindex.CandidateIndex,
	measurements []datastructure.Measurement, maxSqSearchRadius,
	interpolationDistance float64) []MatchResult {

	mm.Clear()

	if len(measurements) == 0 {
		return []MatchResult{}
	}

	filter := mm.Costing().Filter
	sqInterpolationDistance := interpolationDistance * interpolationDistance
	proximate := make(map[Time][]int)

	time := Time(0)
	endIdx := len(measurements) - 1
	for idx, lastIdx := 0, 0; idx <= endIdx; idx++ {
		measurement := measurements[idx]
		sqDistance := geo.GreatCircleDistanceSquared(
			measurements[lastIdx].LngLat(), measurement.LngLat())

		// always match the first and the last measurement
		if sqInterpolationDistance <= sqDistance || idx == 0 || idx == endIdx {
			candidates := ci.Query(measurement.LngLat(), maxSqSearchRadius, filter)
			time = mm.AppendState(measurement, candidates)
			lastIdx = idx
		} else {
			proximate[time] = append(proximate[time], idx)
		}
	}

	path := mm.SearchPath(time)

	results := make([]MatchResult, 0, len(measurements))

	// a single-column trace has no pair to walk, attach the winner directly
	if mm.Size() == 1 {
		if state := path[0]; state != nil {
			c := state.Candidate()
			graphID, graphType := candidateAttachment(c)
			results = append(results, NewMatchResult(c.Vertex(), c.Distance(), graphID, graphType, state))
		} else {
			results = append(results, NewUnmatchedResult(measurements[0].LngLat()))
		}
		return results
	}

	results = append(results, NewUnmatchedResult(measurements[0].LngLat()))

	for t := Time(1); int(t) < mm.Size(); t++ {
		source := path[t-1]
		target := path[t]

		if !results[len(results)-1].Matched() {
			results = results[:len(results)-1]
			results = append(results,
				guessSourceResult(source, target, measurements[len(results)]))
		}

		if skipped, ok := proximate[t-1]; ok {
			graphset := collectGraphset(mm.Graph(), source, target)
			for _, idx := range skipped {
				candidates := ci.Query(measurements[idx].LngLat(), maxSqSearchRadius, filter)
				results = append(results,
					interpolate(mm.Graph(), graphset, candidates, measurements[idx]))
			}
		}

		results = append(results,
			guessTargetResult(source, target, measurements[len(results)]))
	}

	return results
}

// guessSourceResult attach the source state of a chosen pair to the graph.
// the attachment is the last label along the target->source chain carrying a
// valid node or edge id, the one nearest the source.
func guessSourceResult(source, target *State, sourceMeasurement datastructure.Measurement) MatchResult {
	if source != nil && target != nil {
		lastValidID := datastructure.INVALID_INDEX
		lastValidType := GRAPH_UNKNOWN

		it := source.RoutePath(target)
		for label, ok := it.Next(); ok; label, ok = it.Next() {
			if label.GetNodeID() != datastructure.INVALID_INDEX {
				lastValidID = label.GetNodeID()
				lastValidType = GRAPH_NODE
			} else if label.GetEdgeID() != datastructure.INVALID_INDEX {
				lastValidID = label.GetEdgeID()
				lastValidType = GRAPH_EDGE
			}
		}

		if lastValidType == GRAPH_UNKNOWN {
			// no route between the pair, keep the raw measurement
			return NewMatchResult(sourceMeasurement.LngLat(), 0,
				datastructure.INVALID_INDEX, GRAPH_UNKNOWN, source)
		}
		c := source.Candidate()
		return NewMatchResult(c.Vertex(), c.Distance(), lastValidID, lastValidType, source)
	} else if source != nil {
		return NewMatchResult(sourceMeasurement.LngLat(), 0,
			datastructure.INVALID_INDEX, GRAPH_UNKNOWN, source)
	}

	return NewUnmatchedResult(sourceMeasurement.LngLat())
}

// guessTargetResult symmetric to guessSourceResult, using the first label
// along the chain, the one nearest the target.
func guessTargetResult(source, target *State, targetMeasurement datastructure.Measurement) MatchResult {
	if source != nil && target != nil {
		graphID := datastructure.INVALID_INDEX
		graphType := GRAPH_UNKNOWN

		it := source.RoutePath(target)
		if label, ok := it.Next(); ok {
			if label.GetNodeID() != datastructure.INVALID_INDEX {
				graphID = label.GetNodeID()
				graphType = GRAPH_NODE
			} else if label.GetEdgeID() != datastructure.INVALID_INDEX {
				graphID = label.GetEdgeID()
				graphType = GRAPH_EDGE
			}
		}

		if graphType == GRAPH_UNKNOWN {
			// no route between the pair, keep the raw measurement
			return NewMatchResult(targetMeasurement.LngLat(), 0,
				datastructure.INVALID_INDEX, GRAPH_UNKNOWN, target)
		}
		c := target.Candidate()
		return NewMatchResult(c.Vertex(), c.Distance(), graphID, graphType, target)
	} else if target != nil {
		return NewMatchResult(targetMeasurement.LngLat(), 0,
			datastructure.INVALID_INDEX, GRAPH_UNKNOWN, target)
	}

	return NewUnmatchedResult(targetMeasurement.LngLat())
}

// candidateAttachment the graph id a lone candidate stands for: the node for
// node candidates, the first edge projection otherwise.
func candidateAttachment(c *spatialindex.Candidate) (datastructure.Index, GraphType) {
	if c.IsNode() {
		return c.NodeID(), GRAPH_NODE
	}
	if len(c.Edges()) > 0 {
		return c.Edges()[0].GetEdgeID(), GRAPH_EDGE
	}
	return datastructure.INVALID_INDEX, GRAPH_UNKNOWN
}

// collectNodes node ids a node-candidate touches: the end node of the
// opposing edge for projections at offset 0, the end node of the edge itself
// for projections at offset 1.
func collectNodes(graph *datastructure.Graph, candidate *spatialindex.Candidate) map[datastructure.Index]struct{} {
	results := make(map[datastructure.Index]struct{})

	for _, ep := range candidate.Edges() {
		if !graph.IsValidEdge(ep.GetEdgeID()) {
			continue
		}
		if ep.GetDist() == 0.0 {
			if opp := graph.GetOpposingEdge(ep.GetEdgeID()); opp != nil {
				results[opp.GetEndNode()] = struct{}{}
			}
		} else if ep.GetDist() == 1.0 {
			results[graph.GetEndNode(ep.GetEdgeID())] = struct{}{}
		}
	}

	return results
}

// collectGraphset edge and node ids along the chosen chain between the pair,
// falling back to the source candidate's own ids when there is no target
// state. a pair with both states but no route between them gives an empty
// set.
func collectGraphset(graph *datastructure.Graph, source, target *State) map[datastructure.Index]struct{} {
	graphset := make(map[datastructure.Index]struct{})

	if source != nil && target != nil {
		it := source.RoutePath(target)
		for label, ok := it.Next(); ok; label, ok = it.Next() {
			if label.GetEdgeID() != datastructure.INVALID_INDEX {
				graphset[label.GetEdgeID()] = struct{}{}
			}
			if label.GetNodeID() != datastructure.INVALID_INDEX {
				graphset[label.GetNodeID()] = struct{}{}
			}
		}
	} else if source != nil {
		candidate := source.Candidate()
		if !candidate.IsNode() {
			for _, ep := range candidate.Edges() {
				if graph.IsValidEdge(ep.GetEdgeID()) {
					graphset[ep.GetEdgeID()] = struct{}{}
				}
			}
		} else {
			for nodeID := range collectNodes(graph, candidate) {
				graphset[nodeID] = struct{}{}
			}
		}
	}

	return graphset
}

// interpolate match a skipped measurement against the graph set of its
// surrounding pair: the closest candidate touching the set wins, otherwise
// the raw measurement comes back unmatched.
func interpolate(graph *datastructure.Graph, graphset map[datastructure.Index]struct{},
	candidates []*spatialindex.Candidate, measurement datastructure.Measurement) MatchResult {

	var closest *spatialindex.Candidate
	closestSqDistance := math.Inf(1)
	closestGraphID := datastructure.INVALID_INDEX
	closestGraphType := GRAPH_UNKNOWN

	for _, candidate := range candidates {
		if candidate.SqDistance() >= closestSqDistance {
			continue
		}
		if !candidate.IsNode() {
			for _, ep := range candidate.Edges() {
				if _, ok := graphset[ep.GetEdgeID()]; ok {
					closest = candidate
					closestSqDistance = candidate.SqDistance()
					closestGraphID = ep.GetEdgeID()
					closestGraphType = GRAPH_EDGE
				}
			}
		} else {
			for nodeID := range collectNodes(graph, candidate) {
				if _, ok := graphset[nodeID]; ok {
					closest = candidate
					closestSqDistance = candidate.SqDistance()
					closestGraphID = nodeID
					closestGraphType = GRAPH_NODE
				}
			}
		}
	}

	if closest != nil {
		return NewMatchResult(closest.Vertex(), closest.Distance(),
			closestGraphID, closestGraphType, nil)
	}

	return NewUnmatchedResult(measurement.LngLat())
}
