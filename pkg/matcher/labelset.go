package matcher

import (
	"math"

	"github.com/lintang-b-s/tracematch/pkg/costing"
	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/geo"
	"github.com/lintang-b-s/tracematch/pkg/spatialindex"
)

const INVALID_LABEL = int32(-1)

// Label one settled step of the label-setting search. labels reference their
// predecessor by position inside the owning LabelSet; walking predecessors
// from a destination label yields the route back to the origin dummy label.
type Label struct {
	predecessor int32

	// cumulative road distance from the origin in meter
	cost float64

	// accumulated turn penalty along the path
	turnCost float64

	nodeID datastructure.Index
	edgeID datastructure.Index

	// arc-length fractions of the traversed part of edgeID
	source float64
	target float64

	// last directed edge taken, seeds turn continuity of downstream routing
	lastEdge datastructure.Index
}

func (l *Label) GetPredecessor() int32 {
	return l.predecessor
}

func (l *Label) GetCost() float64 {
	return l.cost
}

func (l *Label) GetTurnCost() float64 {
	return l.turnCost
}

func (l *Label) GetNodeID() datastructure.Index {
	return l.nodeID
}

func (l *Label) GetEdgeID() datastructure.Index {
	return l.edgeID
}

func (l *Label) GetSource() float64 {
	return l.source
}

func (l *Label) GetTarget() float64 {
	return l.target
}

func (l *Label) GetLastEdge() datastructure.Index {
	return l.lastEdge
}

func (l *Label) sortCost() float64 {
	return l.cost + l.turnCost
}

// queueKey either a graph node reached by the search or a destination index
// of the location list.
type queueKey struct {
	dest bool
	id   datastructure.Index
}

type labelStatus struct {
	labelIdx  uint32
	permanent bool
	heapNode  *datastructure.PriorityQueueNode[queueKey]
}

// LabelSet append-only label arena of one origin state plus the working state
// of its label-setting search. costLimit bounds the road distance of any
// label kept.
type LabelSet struct {
	costLimit float64

	labels []Label

	queue      *datastructure.MinHeap[queueKey]
	nodeStatus map[datastructure.Index]*labelStatus
	destStatus map[datastructure.Index]*labelStatus
}

func NewLabelSet(costLimit float64) *LabelSet {
	ls := &LabelSet{
		costLimit:  costLimit,
		labels:     make([]Label, 0, 64),
		queue:      datastructure.NewFourAryHeap[queueKey](),
		nodeStatus: make(map[datastructure.Index]*labelStatus),
		destStatus: make(map[datastructure.Index]*labelStatus),
	}

	// the origin dummy label, root of every predecessor chain
	ls.labels = append(ls.labels, Label{
		predecessor: INVALID_LABEL,
		nodeID:      datastructure.INVALID_INDEX,
		edgeID:      datastructure.INVALID_INDEX,
		lastEdge:    datastructure.INVALID_INDEX,
	})

	return ls
}

func (ls *LabelSet) Label(idx uint32) *Label {
	return &ls.labels[idx]
}

func (ls *LabelSet) CostLimit() float64 {
	return ls.costLimit
}

func (ls *LabelSet) put(key queueKey, label Label) {
	var statuses map[datastructure.Index]*labelStatus
	if key.dest {
		statuses = ls.destStatus
	} else {
		statuses = ls.nodeStatus
	}

	status, ok := statuses[key.id]
	if !ok {
		idx := uint32(len(ls.labels))
		ls.labels = append(ls.labels, label)
		heapNode := datastructure.NewPriorityQueueNode(label.sortCost(), key)
		ls.queue.Insert(heapNode)
		statuses[key.id] = &labelStatus{labelIdx: idx, heapNode: heapNode}
		return
	}

	if status.permanent {
		return
	}
	if label.sortCost() >= ls.labels[status.labelIdx].sortCost() {
		return
	}

	idx := uint32(len(ls.labels))
	ls.labels = append(ls.labels, label)
	status.labelIdx = idx
	ls.queue.DecreaseKey(status.heapNode, label.sortCost())
}

// pop settle the cheapest queued key. second result false when the queue is
// drained.
func (ls *LabelSet) pop() (queueKey, uint32, bool) {
	heapNode, err := ls.queue.ExtractMin()
	if err != nil {
		return queueKey{}, 0, false
	}
	key := heapNode.GetItem()

	var status *labelStatus
	if key.dest {
		status = ls.destStatus[key.id]
	} else {
		status = ls.nodeStatus[key.id]
	}
	status.permanent = true
	return key, status.labelIdx, true
}

type destProjection struct {
	destIdx int
	dist    float64
}

// FindShortestPath one-to-many label-setting shortest path over the directed
// edge graph, from locations[originIdx] to every other location. edge costs
// are road distance in meter plus the tabulated turn penalty of the bend
// angle at every node traversal. destinations farther than the labelset cost
// limit are left out of the result.
//
// seedEdge, when valid, is the directed edge on which the origin was entered
// and prices the very first turn. turnCostTable must have 181 entries.
func FindShortestPath(graph *datastructure.Graph, locations []*spatialindex.Candidate,
	originIdx int, ls *LabelSet, c costing.Costing, seedEdge datastructure.Index,
	turnCostTable []float64) map[int]uint32 {

	destEdges := make(map[datastructure.Index][]destProjection)
	destRemaining := 0
	for j, loc := range locations {
		if j == originIdx || loc == nil {
			continue
		}
		destRemaining++
		for _, ep := range loc.Edges() {
			destEdges[ep.GetEdgeID()] = append(destEdges[ep.GetEdgeID()],
				destProjection{destIdx: j, dist: ep.GetDist()})
		}
	}

	turnCost := func(inbound, outbound datastructure.Index, inboundOffset, outboundOffset float64) float64 {
		if inbound == datastructure.INVALID_INDEX || inbound == outbound {
			return 0
		}
		theta := geo.BendAngle(
			graph.EdgeBearingAt(inbound, inboundOffset),
			graph.EdgeBearingAt(outbound, outboundOffset))
		return turnCostTable[int(math.Round(theta))]
	}

	origin := locations[originIdx]
	for _, ep := range origin.Edges() {
		e := graph.GetDirectedEdge(ep.GetEdgeID())
		if c != nil && !c.Filter(e) {
			continue
		}

		entryTurn := turnCost(seedEdge, ep.GetEdgeID(), 1.0, ep.GetDist())

		for _, d := range destEdges[ep.GetEdgeID()] {
			if d.dist < ep.GetDist() {
				continue
			}
			cost := e.GetLength() * (d.dist - ep.GetDist())
			if cost > ls.costLimit {
				continue
			}
			ls.put(queueKey{dest: true, id: datastructure.Index(d.destIdx)}, Label{
				predecessor: 0,
				cost:        cost,
				turnCost:    entryTurn,
				nodeID:      datastructure.INVALID_INDEX,
				edgeID:      ep.GetEdgeID(),
				source:      ep.GetDist(),
				target:      d.dist,
				lastEdge:    ep.GetEdgeID(),
			})
		}

		cost := e.GetLength() * (1.0 - ep.GetDist())
		if cost > ls.costLimit {
			continue
		}
		ls.put(queueKey{id: e.GetEndNode()}, Label{
			predecessor: 0,
			cost:        cost,
			turnCost:    entryTurn,
			nodeID:      e.GetEndNode(),
			edgeID:      ep.GetEdgeID(),
			source:      ep.GetDist(),
			target:      1.0,
			lastEdge:    ep.GetEdgeID(),
		})
	}

	for destRemaining > 0 {
		key, labelIdx, ok := ls.pop()
		if !ok {
			break
		}
		if key.dest {
			destRemaining--
			continue
		}

		label := ls.Label(labelIdx)
		inbound := label.lastEdge
		baseCost := label.cost
		baseTurn := label.turnCost

		graph.ForOutEdgesOf(key.id, func(oe *datastructure.DirectedEdge) {
			if c != nil && !c.Filter(oe) {
				return
			}

			newTurn := baseTurn + turnCost(inbound, oe.GetID(), 1.0, 0.0)

			for _, d := range destEdges[oe.GetID()] {
				cost := baseCost + oe.GetLength()*d.dist
				if cost > ls.costLimit {
					continue
				}
				ls.put(queueKey{dest: true, id: datastructure.Index(d.destIdx)}, Label{
					predecessor: int32(labelIdx),
					cost:        cost,
					turnCost:    newTurn,
					nodeID:      datastructure.INVALID_INDEX,
					edgeID:      oe.GetID(),
					source:      0.0,
					target:      d.dist,
					lastEdge:    oe.GetID(),
				})
			}

			cost := baseCost + oe.GetLength()
			if cost > ls.costLimit {
				return
			}
			ls.put(queueKey{id: oe.GetEndNode()}, Label{
				predecessor: int32(labelIdx),
				cost:        cost,
				turnCost:    newTurn,
				nodeID:      oe.GetEndNode(),
				edgeID:      oe.GetID(),
				source:      0.0,
				target:      1.0,
				lastEdge:    oe.GetID(),
			})
		})
	}

	results := make(map[int]uint32, len(ls.destStatus))
	for destIdx, status := range ls.destStatus {
		results[int(destIdx)] = status.labelIdx
	}
	return results
}

// RoutePathIterator walks labels from a destination back to the origin dummy
// label.
type RoutePathIterator struct {
	ls  *LabelSet
	cur int32
}

func NewRoutePathIterator(ls *LabelSet, startIdx int32) *RoutePathIterator {
	return &RoutePathIterator{ls: ls, cur: startIdx}
}

func NewEmptyRoutePathIterator(ls *LabelSet) *RoutePathIterator {
	return &RoutePathIterator{ls: ls, cur: INVALID_LABEL}
}

func (it *RoutePathIterator) Next() (*Label, bool) {
	if it.cur == INVALID_LABEL {
		return nil, false
	}
	label := it.ls.Label(uint32(it.cur))
	it.cur = label.predecessor
	return label, true
}
