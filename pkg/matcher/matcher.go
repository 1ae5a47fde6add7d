package matcher

import (
	"math"

	"go.uber.org/zap"

	"github.com/lintang-b-s/tracematch/pkg"
	"github.com/lintang-b-s/tracematch/pkg/costing"
	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/spatialindex"
)

// MapMatcher facade tying one matching session together: config, graph
// reader view, candidate index, costing and the hmm engine. not safe for
// concurrent use, run one matcher per session.
type MapMatcher struct {
	cfg       Config
	graph     *datastructure.Graph
	index     *spatialindex.CandidateIndex
	costing   costing.Costing
	mm        *MapMatching
	validator *RouteValidator
	log       *zap.Logger
}

func NewMapMatcher(cfg Config, graph *datastructure.Graph, index *spatialindex.CandidateIndex,
	c costing.Costing, log *zap.Logger) (*MapMatcher, error) {

	mm, err := NewMapMatching(graph, c, cfg, log)
	if err != nil {
		return nil, err
	}

	return &MapMatcher{
		cfg:       cfg,
		graph:     graph,
		index:     index,
		costing:   c,
		mm:        mm,
		validator: NewRouteValidator(graph, log, true),
		log:       log,
	}, nil
}

func (m *MapMatcher) Config() Config {
	return m.cfg
}

func (m *MapMatcher) Graph() *datastructure.Graph {
	return m.graph
}

func (m *MapMatcher) CandidateIndex() *spatialindex.CandidateIndex {
	return m.index
}

func (m *MapMatcher) TravelMode() pkg.TravelMode {
	return m.costing.TravelMode()
}

func (m *MapMatcher) MapMatching() *MapMatching {
	return m.mm
}

// OfflineMatch match a whole trace. results are valid until the next
// OfflineMatch or Clear on this matcher.
func (m *MapMatcher) OfflineMatch(measurements []datastructure.Measurement) []MatchResult {
	searchRadius := math.Min(m.cfg.SearchRadius, m.cfg.MaxSearchRadius)
	return OfflineMatch(m.mm, m.index, measurements,
		searchRadius*searchRadius, m.cfg.InterpolationDistance)
}

// ConstructRoute the merged edge segment route of the last match.
func (m *MapMatcher) ConstructRoute(matches []MatchResult) ([]EdgeSegment, error) {
	return ConstructRoute(m.validator, matches)
}

func (m *MapMatcher) Clear() {
	m.mm.Clear()
}
