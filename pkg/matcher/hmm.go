package matcher

import (
	"math"

	"go.uber.org/zap"

	"github.com/lintang-b-s/tracematch/pkg"
	"github.com/lintang-b-s/tracematch/pkg/costing"
	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/geo"
	"github.com/lintang-b-s/tracematch/pkg/spatialindex"
)

/*
MapMatching the hidden markov model over the candidate lattice.

emission cost of a state is the squared candidate distance scaled by
1/(2 sigma_z^2); transition cost between two states is the accumulated turn
penalty plus the gap between routed road distance and great-circle distance,
scaled by 1/beta (Newson & Krumm, "Hidden Markov Map Matching Through Noise
and Sparseness", extended with a turn penalty surcharge).

routing between columns happens lazily: a state routes at the moment the
first transition out of it is evaluated, at most once per lifetime.
*/
type MapMatching struct {
	vs *ViterbiSearch

	graph   *datastructure.Graph
	costing costing.Costing
	log     *zap.Logger

	measurements []datastructure.Measurement

	sigmaZ             float64
	invDoubleSqSigmaZ  float64
	beta               float64
	invBeta            float64
	breakageDistance   float64
	maxRouteDistFactor float64
	turnPenaltyFactor  float64

	turnCostTable [pkg.TURN_COST_TABLE_SIZE]float64
}

func NewMapMatching(graph *datastructure.Graph, c costing.Costing, cfg Config,
	log *zap.Logger) (*MapMatching, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mm := &MapMatching{
		vs:                 NewViterbiSearch(),
		graph:              graph,
		costing:            c,
		log:                log,
		sigmaZ:             cfg.SigmaZ,
		invDoubleSqSigmaZ:  1.0 / (cfg.SigmaZ * cfg.SigmaZ * 2.0),
		beta:               cfg.Beta,
		invBeta:            1.0 / cfg.Beta,
		breakageDistance:   cfg.BreakageDistance,
		maxRouteDistFactor: cfg.MaxRouteDistanceFactor,
		turnPenaltyFactor:  cfg.TurnPenaltyFactor,
	}
	mm.vs.SetModel(mm)

	if mm.turnPenaltyFactor > 0 {
		for i := 0; i < pkg.TURN_COST_TABLE_SIZE; i++ {
			mm.turnCostTable[i] = mm.turnPenaltyFactor *
				math.Exp(-float64(i)/pkg.TURN_PENALTY_DECAY_DEGREE)
		}
	}

	return mm, nil
}

func (mm *MapMatching) Clear() {
	mm.measurements = nil
	mm.vs.Clear()
}

// AppendState allocate one state per candidate for the measurement and
// append the column. returns the column time also for an empty candidate
// list, where viterbi will later break its chain.
func (mm *MapMatching) AppendState(measurement datastructure.Measurement,
	candidates []*spatialindex.Candidate) Time {
	mm.measurements = append(mm.measurements, measurement)
	return mm.vs.AppendColumn(candidates)
}

func (mm *MapMatching) Size() int {
	return len(mm.measurements)
}

func (mm *MapMatching) Measurement(time Time) datastructure.Measurement {
	return mm.measurements[time]
}

func (mm *MapMatching) StateMeasurement(s *State) datastructure.Measurement {
	return mm.measurements[s.Time()]
}

func (mm *MapMatching) Graph() *datastructure.Graph {
	return mm.graph
}

func (mm *MapMatching) Costing() costing.Costing {
	return mm.costing
}

func (mm *MapMatching) SearchPath(endTime Time) []*State {
	return mm.vs.SearchPath(endTime)
}

// MaxRouteDistance routing budget of the pair, the great-circle distance
// with slack, capped by the breakage distance.
func (mm *MapMatching) MaxRouteDistance(left, right *State) float64 {
	gc := geo.GreatCircleDistance(
		mm.StateMeasurement(left).LngLat(), mm.StateMeasurement(right).LngLat())
	return math.Min(gc*mm.maxRouteDistFactor, mm.breakageDistance)
}

func (mm *MapMatching) EmissionCost(s *State) float64 {
	return s.Candidate().SqDistance() * mm.invDoubleSqSigmaZ
}

func (mm *MapMatching) TransitionCost(left, right *State) (float64, bool) {
	if !left.Routed() {
		seedEdge := datastructure.INVALID_INDEX
		if prevID := mm.vs.Predecessor(left.ID()); prevID != INVALID_STATE_ID {
			prev := mm.vs.GetState(prevID)
			if label := prev.LastLabel(left); label != nil {
				seedEdge = label.GetLastEdge()
			}
		}

		left.Route(mm.vs.Unreached(right.Time()), mm.graph,
			mm.MaxRouteDistance(left, right), mm.costing, seedEdge, mm.turnCostTable[:])
	}

	label := left.LastLabel(right)
	if label == nil {
		return 0, false
	}

	gc := geo.GreatCircleDistance(
		mm.StateMeasurement(left).LngLat(), mm.StateMeasurement(right).LngLat())
	return (label.GetTurnCost() + math.Abs(label.GetCost()-gc)) * mm.invBeta, true
}

func (mm *MapMatching) CostSofar(prev, transitionCost, emissionCost float64) float64 {
	return prev + transitionCost + emissionCost
}
