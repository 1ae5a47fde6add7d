package spatialindex

import (
	"math"

	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/geo"
)

// EdgeProjection a point along one directed edge, dist is the arc-length
// fraction in [0,1] from the edge start.
type EdgeProjection struct {
	edgeID datastructure.Index
	dist   float64
}

func NewEdgeProjection(edgeID datastructure.Index, dist float64) EdgeProjection {
	return EdgeProjection{edgeID: edgeID, dist: dist}
}

func (ep EdgeProjection) GetEdgeID() datastructure.Index {
	return ep.edgeID
}

func (ep EdgeProjection) GetDist() float64 {
	return ep.dist
}

// Candidate projection of a measurement onto the road graph. immutable once
// built by the index.
type Candidate struct {
	vertex     geo.Coordinate
	sqDistance float64 // meter^2 from the measurement to vertex
	isNode     bool
	nodeID     datastructure.Index // valid only when isNode
	edges      []EdgeProjection    // non-empty
}

func NewCandidate(vertex geo.Coordinate, sqDistance float64, isNode bool,
	nodeID datastructure.Index, edges []EdgeProjection) *Candidate {
	return &Candidate{
		vertex:     vertex,
		sqDistance: sqDistance,
		isNode:     isNode,
		nodeID:     nodeID,
		edges:      edges,
	}
}

func (c *Candidate) Vertex() geo.Coordinate {
	return c.vertex
}

func (c *Candidate) SqDistance() float64 {
	return c.sqDistance
}

func (c *Candidate) Distance() float64 {
	return math.Sqrt(c.sqDistance)
}

func (c *Candidate) IsNode() bool {
	return c.isNode
}

func (c *Candidate) NodeID() datastructure.Index {
	return c.nodeID
}

func (c *Candidate) Edges() []EdgeProjection {
	return c.edges
}
