package matcher

import (
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lintang-b-s/tracematch/pkg"
	"github.com/lintang-b-s/tracematch/pkg/concurrent"
	"github.com/lintang-b-s/tracematch/pkg/costing"
	"github.com/lintang-b-s/tracematch/pkg/datastructure"
	"github.com/lintang-b-s/tracematch/pkg/spatialindex"
	"github.com/lintang-b-s/tracematch/pkg/util"
)

// MapMatcherFactory owns the long-lived pieces: the graph reader, the shared
// candidate index and the registered costings. Create hands out one isolated
// matcher per request with the layered config resolved and validated.
type MapMatcherFactory struct {
	v     *viper.Viper
	graph *datastructure.Graph
	index *spatialindex.CandidateIndex
	log   *zap.Logger

	costings  [pkg.TRAVEL_MODE_COUNT]costing.Costing
	modeNames [pkg.TRAVEL_MODE_COUNT]string

	gridSize         int
	maxGridCacheSize float64
}

func NewMapMatcherFactory(v *viper.Viper, graph *datastructure.Graph,
	log *zap.Logger) (*MapMatcherFactory, error) {

	if v == nil {
		v = viper.New()
	}
	v.SetDefault("grid.size", 500)
	v.SetDefault("grid.cache_size", 100.0)

	f := &MapMatcherFactory{
		v:                v,
		graph:            graph,
		log:              log,
		gridSize:         v.GetInt("grid.size"),
		maxGridCacheSize: v.GetFloat64("grid.cache_size"),
	}
	f.index = spatialindex.NewCandidateIndex(graph, f.gridSize, log)

	if err := f.registerCosting("auto", costing.NewAutoCost); err != nil {
		return nil, err
	}
	if err := f.registerCosting("bicycle", costing.NewBicycleCost); err != nil {
		return nil, err
	}
	if err := f.registerCosting("pedestrian", costing.NewPedestrianCost); err != nil {
		return nil, err
	}
	if err := f.registerCosting("multimodal", costing.NewUniversalCost); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *MapMatcherFactory) registerCosting(name string, factory costing.FactoryFunc) error {
	options := f.v.GetStringMap("costing_options." + name)
	c := factory(options)
	idx := int(c.TravelMode())
	if idx >= pkg.TRAVEL_MODE_COUNT {
		return util.WrapErrorf(nil, util.ErrInvalidConfig, "travel mode index out of bounds for %s", name)
	}
	if f.costings[idx] != nil {
		return util.WrapErrorf(nil, util.ErrInvalidConfig, "duplicate travel mode %s", name)
	}
	f.costings[idx] = c
	f.modeNames[idx] = name
	return nil
}

func (f *MapMatcherFactory) Graph() *datastructure.Graph {
	return f.graph
}

func (f *MapMatcherFactory) CandidateIndex() *spatialindex.CandidateIndex {
	return f.index
}

func (f *MapMatcherFactory) NameToTravelMode(name string) (pkg.TravelMode, error) {
	for idx, modeName := range f.modeNames {
		if name != "" && modeName == name {
			return pkg.TravelMode(idx), nil
		}
	}
	return 0, util.WrapErrorf(nil, util.ErrUnknownMode, "invalid costing name %q", name)
}

func (f *MapMatcherFactory) TravelModeToName(mode pkg.TravelMode) (string, error) {
	idx := int(mode)
	if idx < pkg.TRAVEL_MODE_COUNT && f.modeNames[idx] != "" {
		return f.modeNames[idx], nil
	}
	return "", util.WrapErrorf(nil, util.ErrUnknownMode, "invalid travel mode code %d", idx)
}

// MergeConfig layer the travel-mode block over the default block, and the
// per-call preferences over both.
func (f *MapMatcherFactory) MergeConfig(name string, preferences map[string]interface{}) (Config, error) {
	merged := viper.New()

	defaults := DefaultConfig()
	merged.SetDefault("sigma_z", defaults.SigmaZ)
	merged.SetDefault("beta", defaults.Beta)
	merged.SetDefault("breakage_distance", defaults.BreakageDistance)
	merged.SetDefault("max_route_distance_factor", defaults.MaxRouteDistanceFactor)
	merged.SetDefault("turn_penalty_factor", defaults.TurnPenaltyFactor)
	merged.SetDefault("search_radius", defaults.SearchRadius)
	merged.SetDefault("max_search_radius", defaults.MaxSearchRadius)
	merged.SetDefault("interpolation_distance", defaults.InterpolationDistance)
	merged.SetDefault("mode", defaults.Mode)

	if err := merged.MergeConfigMap(f.v.GetStringMap("default")); err != nil {
		return Config{}, util.WrapErrorf(err, util.ErrInvalidConfig, "merge default block")
	}
	if err := merged.MergeConfigMap(f.v.GetStringMap(name)); err != nil {
		return Config{}, util.WrapErrorf(err, util.ErrInvalidConfig, "merge %s block", name)
	}
	if err := merged.MergeConfigMap(preferences); err != nil {
		return Config{}, util.WrapErrorf(err, util.ErrInvalidConfig, "merge preferences")
	}

	var cfg Config
	if err := merged.Unmarshal(&cfg); err != nil {
		return Config{}, util.WrapErrorf(err, util.ErrInvalidConfig, "unmarshal merged config")
	}
	cfg.Mode = name

	return cfg, nil
}

// Create matcher for the travel mode with the factory's config.
func (f *MapMatcherFactory) Create(mode pkg.TravelMode) (*MapMatcher, error) {
	return f.CreateWithPreferences(mode, nil)
}

func (f *MapMatcherFactory) CreateByName(name string) (*MapMatcher, error) {
	mode, err := f.NameToTravelMode(name)
	if err != nil {
		return nil, err
	}
	return f.CreateWithPreferences(mode, nil)
}

// CreateFromPreferences matcher for the mode named in preferences (falling
// back to the configured default mode), with preferences layered on top.
func (f *MapMatcherFactory) CreateFromPreferences(preferences map[string]interface{}) (*MapMatcher, error) {
	name := f.v.GetString("default.mode")
	if name == "" {
		name = DefaultConfig().Mode
	}
	if m, ok := preferences["mode"].(string); ok && m != "" {
		name = m
	}
	mode, err := f.NameToTravelMode(name)
	if err != nil {
		return nil, err
	}
	return f.CreateWithPreferences(mode, preferences)
}

func (f *MapMatcherFactory) CreateWithPreferences(mode pkg.TravelMode,
	preferences map[string]interface{}) (*MapMatcher, error) {

	name, err := f.TravelModeToName(mode)
	if err != nil {
		return nil, err
	}
	cfg, err := f.MergeConfig(name, preferences)
	if err != nil {
		return nil, err
	}
	return NewMapMatcher(cfg, f.graph, f.index, f.costings[int(mode)], f.log)
}

// ClearCacheIfPossible drop oversized caches only.
func (f *MapMatcherFactory) ClearCacheIfPossible() {
	if f.graph.OverCommitted() {
		f.graph.Clear()
	}
	if float64(f.index.Size()) > f.maxGridCacheSize {
		f.index.Clear()
	}
}

// ClearCache drop the graph shape cache and the candidate grid cache
// unconditionally.
func (f *MapMatcherFactory) ClearCache() {
	f.graph.Clear()
	f.index.Clear()
}

type traceJob struct {
	idx          int
	measurements []datastructure.Measurement
}

type traceResult struct {
	idx     int
	results []MatchResult
	err     error
}

// MatchAll match many traces concurrently. each worker owns an isolated
// matcher and candidate index view, per the one-matcher-per-session rule.
func (f *MapMatcherFactory) MatchAll(traces [][]datastructure.Measurement,
	preferences map[string]interface{}, numWorkers int) ([][]MatchResult, error) {

	if numWorkers <= 0 {
		numWorkers = 1
	}

	pool := concurrent.NewWorkerPool[traceJob, traceResult](numWorkers, len(traces))

	pool.Start(func(job traceJob) traceResult {
		index := spatialindex.NewCandidateIndex(f.graph, f.gridSize, f.log)
		mode := pkg.AUTO
		name := f.v.GetString("default.mode")
		if m, ok := preferences["mode"].(string); ok && m != "" {
			name = m
		}
		if name != "" {
			resolved, err := f.NameToTravelMode(name)
			if err != nil {
				return traceResult{idx: job.idx, err: err}
			}
			mode = resolved
		}
		modeName, err := f.TravelModeToName(mode)
		if err != nil {
			return traceResult{idx: job.idx, err: err}
		}
		cfg, err := f.MergeConfig(modeName, preferences)
		if err != nil {
			return traceResult{idx: job.idx, err: err}
		}
		m, err := NewMapMatcher(cfg, f.graph, index, f.costings[int(mode)], f.log)
		if err != nil {
			return traceResult{idx: job.idx, err: err}
		}
		return traceResult{idx: job.idx, results: m.OfflineMatch(job.measurements)}
	})

	for idx, trace := range traces {
		pool.AddJob(traceJob{idx: idx, measurements: trace})
	}
	pool.Close()
	pool.Wait()

	out := make([][]MatchResult, len(traces))
	var firstErr error
	for res := range pool.CollectResults() {
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		out[res.idx] = res.results
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
