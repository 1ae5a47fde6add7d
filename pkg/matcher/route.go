package matcher

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/geo"
	"github.com/lintang-b-s/tracematch/pkg/util"
)

// EdgeSegment a contiguous sub-arc of one directed edge, arc-length
// fractions source <= target. the dummy segment (INVALID_INDEX, 0, 0) opens
// every per-pair chain.
type EdgeSegment struct {
	edgeID datastructure.Index
	source float64
	target float64
}

func NewEdgeSegment(edgeID datastructure.Index, source, target float64) (EdgeSegment, error) {
	source = datastructure.Clamp(source, 0.0, 1.0)
	target = datastructure.Clamp(target, 0.0, 1.0)
	if source > target {
		return EdgeSegment{}, util.WrapErrorf(nil, util.ErrBadParamInput,
			"expect source <= target, got source = %v and target = %v", source, target)
	}
	return EdgeSegment{edgeID: edgeID, source: source, target: target}, nil
}

func NewDummySegment() EdgeSegment {
	return EdgeSegment{edgeID: datastructure.INVALID_INDEX}
}

func (s EdgeSegment) GetEdgeID() datastructure.Index {
	return s.edgeID
}

func (s EdgeSegment) GetSource() float64 {
	return s.source
}

func (s EdgeSegment) GetTarget() float64 {
	return s.target
}

func (s EdgeSegment) IsDummy() bool {
	return s.edgeID == datastructure.INVALID_INDEX
}

// Shape the clipped shape of the segment, oriented along the directed edge.
func (s EdgeSegment) Shape(graph *datastructure.Graph) []geo.Coordinate {
	if s.IsDummy() {
		return nil
	}
	return graph.EdgeShapeClipped(s.edgeID, s.source, s.target)
}

// Adjoined true if other continues this segment: same edge meeting at the
// shared offset, or the next edge starting at this edge's end node.
func (s EdgeSegment) Adjoined(graph *datastructure.Graph, other EdgeSegment) bool {
	if s.edgeID != other.edgeID {
		if s.target == 1.0 && other.source == 0.0 {
			return graph.GetEndNode(s.edgeID) == graph.GetStartNode(other.edgeID)
		}
		return false
	}
	return s.target == other.source
}

// RouteToString debug rendering of a segment chain, node ids at full-edge
// boundaries and raw offsets elsewhere.
func RouteToString(graph *datastructure.Graph, segments []EdgeSegment) string {
	var sb strings.Builder

	for i, segment := range segments {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if segment.IsDummy() {
			sb.WriteString("[dummy]")
			continue
		}

		sb.WriteByte('[')
		if segment.source == 0.0 {
			fmt.Fprintf(&sb, "%d", graph.GetStartNode(segment.edgeID))
		} else {
			fmt.Fprintf(&sb, "%v", segment.source)
		}
		fmt.Fprintf(&sb, " %d ", segment.edgeID)
		if segment.target == 1.0 {
			fmt.Fprintf(&sb, "%d", graph.GetEndNode(segment.edgeID))
		} else {
			fmt.Fprintf(&sb, "%v", segment.target)
		}
		sb.WriteByte(']')
	}

	return sb.String()
}

// RouteValidator checks that per-pair segment chains are connected. the
// self-loop pathology (an edge starting and ending at the same node showing
// up consecutively with mismatched offsets) is tolerated only when
// tolerateLoops is set.
type RouteValidator struct {
	graph         *datastructure.Graph
	log           *zap.Logger
	tolerateLoops bool
}

func NewRouteValidator(graph *datastructure.Graph, log *zap.Logger, tolerateLoops bool) *RouteValidator {
	return &RouteValidator{
		graph:         graph,
		log:           log,
		tolerateLoops: tolerateLoops,
	}
}

// Validate segments in chronological order. the first segment must be the
// dummy, everything after it a valid, adjoined edge segment.
func (rv *RouteValidator) Validate(segments []EdgeSegment) error {
	if len(segments) == 0 {
		return nil
	}

	first := segments[0]
	if !first.IsDummy() || first.source != 0.0 || first.target != 0.0 {
		rv.log.Error("first segment is not dummy",
			zap.String("route", RouteToString(rv.graph, segments)))
		return util.WrapErrorf(nil, util.ErrInvalidRoute, "first segment is not dummy")
	}

	for i := 1; i < len(segments); i++ {
		segment := segments[i]
		if segment.IsDummy() {
			rv.log.Error("invalid edge id in route",
				zap.Int("segment", i),
				zap.String("route", RouteToString(rv.graph, segments)))
			return util.WrapErrorf(nil, util.ErrInvalidRoute, "invalid edge id at segment %d", i)
		}

		// the first non-dummy segment has nothing to adjoin
		if i == 1 {
			continue
		}

		prev := segments[i-1]
		if prev.edgeID == segment.edgeID {
			if prev.target != segment.source {
				endNode := rv.graph.GetEndNode(prev.edgeID)
				startNode := rv.graph.GetStartNode(segment.edgeID)
				if rv.tolerateLoops && endNode == startNode {
					rv.log.Warn("self-loop edge with mismatched offsets, tolerated",
						zap.Uint32("edge", uint32(segment.edgeID)),
						zap.String("route", RouteToString(rv.graph, segments)))
					return nil
				}
				rv.log.Error("disconnected segments",
					zap.Int("segment", i),
					zap.String("route", RouteToString(rv.graph, segments)))
				return util.WrapErrorf(nil, util.ErrInvalidRoute, "disconnected segments at %d", i)
			}
		} else {
			endNode := rv.graph.GetEndNode(prev.edgeID)
			startNode := rv.graph.GetStartNode(segment.edgeID)
			if !(prev.target == 1.0 && segment.source == 0.0 && endNode == startNode) {
				rv.log.Error("disconnected segments",
					zap.Int("segment", i),
					zap.String("route", RouteToString(rv.graph, segments)))
				return util.WrapErrorf(nil, util.ErrInvalidRoute, "disconnected segments at %d", i)
			}
		}
	}

	return nil
}

// MergeRoute concatenate a validated chain onto route. adjacent entries on
// the same edge collapse into one segment covering up to the farthest
// target. the leading dummy is dropped.
func MergeRoute(route, segments []EdgeSegment) []EdgeSegment {
	for i := 1; i < len(segments); i++ {
		segment := segments[i]
		if len(route) > 0 {
			last := &route[len(route)-1]
			if last.edgeID == segment.edgeID {
				last.target = math.Max(last.target, segment.target)
				continue
			}
		}
		route = append(route, segment)
	}
	return route
}

// ConstructRoute stitch the per-pair label chains of matched results into a
// single connected edge segment sequence.
func ConstructRoute(validator *RouteValidator, matches []MatchResult) ([]EdgeSegment, error) {
	route := make([]EdgeSegment, 0)

	var previous *State
	for _, match := range matches {
		if match.State() == nil {
			continue
		}
		if previous != nil {
			segments := make([]EdgeSegment, 0, 8)
			it := previous.RoutePath(match.State())
			for label, ok := it.Next(); ok; label, ok = it.Next() {
				segment, err := NewEdgeSegment(label.GetEdgeID(), label.GetSource(), label.GetTarget())
				if err != nil {
					return nil, err
				}
				segments = append(segments, segment)
			}

			// the chain runs target back to source, flip it chronological
			for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
				segments[i], segments[j] = segments[j], segments[i]
			}

			if err := validator.Validate(segments); err != nil {
				return nil, err
			}
			route = MergeRoute(route, segments)
		}
		previous = match.State()
	}

	return route, nil
}
