package spatialindex

import (
	"math"
	"sort"

	"github.com/lintang-b-s/tracematch/pkg/costing"
	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/geo"
	"github.com/tidwall/rtree"
	"go.uber.org/zap"
)

// CandidateIndex radius-bounded spatial query over the road graph. the space
// is cut into square grid cells; each cell gets its own r-tree over the edge
// bounding boxes touching it, built lazily on the first query that reaches
// the cell and kept until Clear.
type CandidateIndex struct {
	graph *datastructure.Graph
	log   *zap.Logger

	cellSize float64 // degree

	edgeBoxes [][4]float64 // min lon, min lat, max lon, max lat per edge pair
	cells     map[int64]*rtree.RTreeG[datastructure.Index]
}

func NewCandidateIndex(graph *datastructure.Graph, gridSize int, log *zap.Logger) *CandidateIndex {
	if gridSize <= 0 {
		gridSize = 500
	}
	return &CandidateIndex{
		graph:    graph,
		log:      log,
		cellSize: 1.0 / float64(gridSize),
		cells:    make(map[int64]*rtree.RTreeG[datastructure.Index]),
	}
}

// Size number of grid cells currently cached.
func (ci *CandidateIndex) Size() int {
	return len(ci.cells)
}

// Clear drop all cached cells and edge boxes.
func (ci *CandidateIndex) Clear() {
	ci.cells = make(map[int64]*rtree.RTreeG[datastructure.Index])
	ci.edgeBoxes = nil
}

func (ci *CandidateIndex) buildEdgeBoxes() {
	numEdges := ci.graph.NumberOfEdges()
	ci.edgeBoxes = make([][4]float64, numEdges)
	for eid := datastructure.Index(0); int(eid) < numEdges; eid++ {
		e := ci.graph.GetDirectedEdge(eid)
		if !e.IsForward() {
			// the opposing edge shares this geometry, index it once
			ci.edgeBoxes[eid] = [4]float64{1, 1, -1, -1}
			continue
		}
		shape := ci.graph.EdgeShape(eid)
		minLon, minLat := math.Inf(1), math.Inf(1)
		maxLon, maxLat := math.Inf(-1), math.Inf(-1)
		for _, c := range shape {
			minLon = math.Min(minLon, c.Lon)
			minLat = math.Min(minLat, c.Lat)
			maxLon = math.Max(maxLon, c.Lon)
			maxLat = math.Max(maxLat, c.Lat)
		}
		ci.edgeBoxes[eid] = [4]float64{minLon, minLat, maxLon, maxLat}
	}
}

func (ci *CandidateIndex) cellKey(cx, cy int32) int64 {
	return int64(cx)<<32 | int64(uint32(cy))
}

func (ci *CandidateIndex) cell(cx, cy int32) *rtree.RTreeG[datastructure.Index] {
	key := ci.cellKey(cx, cy)
	if tr, ok := ci.cells[key]; ok {
		return tr
	}

	if ci.edgeBoxes == nil {
		ci.buildEdgeBoxes()
	}

	cellMinLon := float64(cx) * ci.cellSize
	cellMinLat := float64(cy) * ci.cellSize
	cellMaxLon := cellMinLon + ci.cellSize
	cellMaxLat := cellMinLat + ci.cellSize

	var tr rtree.RTreeG[datastructure.Index]
	for eid, box := range ci.edgeBoxes {
		if box[0] > box[2] {
			continue
		}
		if box[0] > cellMaxLon || box[2] < cellMinLon ||
			box[1] > cellMaxLat || box[3] < cellMinLat {
			continue
		}
		tr.Insert([2]float64{box[0], box[1]}, [2]float64{box[2], box[3]}, datastructure.Index(eid))
	}

	ci.cells[key] = &tr
	return &tr
}

// Query candidates within sqrt(maxSqSearchRadius) meter of the point,
// admissible under filter, sorted by squared distance.
func (ci *CandidateIndex) Query(point geo.Coordinate, maxSqSearchRadius float64,
	filter costing.EdgeFilter) []*Candidate {

	radiusKM := math.Sqrt(maxSqSearchRadius) / 1000.0
	lowerLat, lowerLon := geo.GetDestinationPoint(point.Lat, point.Lon, 225, radiusKM)
	upperLat, upperLon := geo.GetDestinationPoint(point.Lat, point.Lon, 45, radiusKM)

	seen := make(map[datastructure.Index]struct{})

	minCx := int32(math.Floor(lowerLon / ci.cellSize))
	maxCx := int32(math.Floor(upperLon / ci.cellSize))
	minCy := int32(math.Floor(lowerLat / ci.cellSize))
	maxCy := int32(math.Floor(upperLat / ci.cellSize))

	edgeIDs := make([]datastructure.Index, 0, 16)
	for cx := minCx; cx <= maxCx; cx++ {
		for cy := minCy; cy <= maxCy; cy++ {
			tr := ci.cell(cx, cy)
			tr.Search([2]float64{lowerLon, lowerLat}, [2]float64{upperLon, upperLat},
				func(min, max [2]float64, eid datastructure.Index) bool {
					if _, ok := seen[eid]; !ok {
						seen[eid] = struct{}{}
						edgeIDs = append(edgeIDs, eid)
					}
					return true
				})
		}
	}

	candidates := make([]*Candidate, 0, len(edgeIDs))
	nodeSeen := make(map[datastructure.Index]struct{})
	for _, eid := range edgeIDs {
		cand := ci.project(point, eid, maxSqSearchRadius, filter, nodeSeen)
		if cand != nil {
			candidates = append(candidates, cand)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sqDistance < candidates[j].sqDistance
	})

	return candidates
}

// project the point onto the edge pair eid, returning nil when out of radius
// or inadmissible for the filter.
func (ci *CandidateIndex) project(point geo.Coordinate, eid datastructure.Index,
	maxSqRadius float64, filter costing.EdgeFilter, nodeSeen map[datastructure.Index]struct{}) *Candidate {

	e := ci.graph.GetDirectedEdge(eid)
	shape := ci.graph.EdgeShape(eid)
	if len(shape) < 2 || e.GetLength() <= 0 {
		return nil
	}

	bestSq := math.Inf(1)
	bestPoint := shape[0]
	bestOffset := 0.0

	walked := 0.0
	for i := 0; i+1 < len(shape); i++ {
		segLen := geo.GreatCircleDistance(shape[i], shape[i+1])
		proj := geo.ProjectPointToLineCoord(shape[i], shape[i+1], point)
		d := geo.CalculateEuclidianDistanceEquirectangularProj(
			point.Lat, point.Lon, proj.Lat, proj.Lon) * 1000.0
		if d*d < bestSq {
			bestSq = d * d
			bestPoint = proj
			along := geo.GreatCircleDistance(shape[i], proj)
			bestOffset = datastructure.Clamp((walked+along)/e.GetLength(), 0.0, 1.0)
		}
		walked += segLen
	}

	if bestSq > maxSqRadius {
		return nil
	}

	// snapped onto a node, the candidate is the node with all its edges
	if datastructure.Eq(bestOffset, 0.0) || datastructure.Eq(bestOffset, 1.0) {
		nodeID := e.GetStartNode()
		if datastructure.Eq(bestOffset, 1.0) {
			nodeID = e.GetEndNode()
		}
		if _, ok := nodeSeen[nodeID]; ok {
			return nil
		}
		nodeSeen[nodeID] = struct{}{}
		return ci.nodeCandidate(point, nodeID, filter)
	}

	edges := make([]EdgeProjection, 0, 2)
	if filter == nil || filter(e) {
		edges = append(edges, NewEdgeProjection(eid, bestOffset))
	}
	if opp := ci.graph.GetOpposingEdge(eid); opp != nil && (filter == nil || filter(opp)) {
		edges = append(edges, NewEdgeProjection(opp.GetID(), 1.0-bestOffset))
	}
	if len(edges) == 0 {
		return nil
	}

	return NewCandidate(bestPoint, bestSq, false, datastructure.INVALID_INDEX, edges)
}

func (ci *CandidateIndex) nodeCandidate(point geo.Coordinate, nodeID datastructure.Index,
	filter costing.EdgeFilter) *Candidate {

	lat, lon := ci.graph.GetVertexCoordinates(nodeID)
	vertex := geo.NewCoordinate(lat, lon)
	d := geo.CalculateEuclidianDistanceEquirectangularProj(
		point.Lat, point.Lon, lat, lon) * 1000.0

	edges := make([]EdgeProjection, 0, 4)
	ci.graph.ForOutEdgesOf(nodeID, func(oe *datastructure.DirectedEdge) {
		if filter == nil || filter(oe) {
			edges = append(edges, NewEdgeProjection(oe.GetID(), 0.0))
		}
		if opp := ci.graph.GetOpposingEdge(oe.GetID()); opp != nil && (filter == nil || filter(opp)) {
			edges = append(edges, NewEdgeProjection(opp.GetID(), 1.0))
		}
	})
	if len(edges) == 0 {
		return nil
	}

	return NewCandidate(vertex, d*d, true, nodeID, edges)
}
