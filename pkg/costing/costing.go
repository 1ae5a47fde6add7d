package costing

import (
	"github.com/lintang-b-s/tracematch/pkg"
	"github.com/lintang-b-s/tracematch/pkg/datastructure"
)

// Costing decides which directed edges a travel mode may traverse. the
// matcher engine only ever calls Filter and TravelMode, the rest of the
// costing surface lives with the routing engine that owns it.
type Costing interface {
	// Filter true if the edge is traversable with this travel mode
	Filter(e *datastructure.DirectedEdge) bool

	TravelMode() pkg.TravelMode
}

type EdgeFilter func(e *datastructure.DirectedEdge) bool

type modeCosting struct {
	mode   pkg.TravelMode
	access pkg.ModeAccess
}

func (c *modeCosting) Filter(e *datastructure.DirectedEdge) bool {
	return e.GetAccess()&c.access != 0
}

func (c *modeCosting) TravelMode() pkg.TravelMode {
	return c.mode
}

// FactoryFunc builds a costing from its per-mode option block.
type FactoryFunc func(options map[string]interface{}) Costing

func NewAutoCost(options map[string]interface{}) Costing {
	return &modeCosting{mode: pkg.AUTO, access: pkg.AUTO_ACCESS}
}

func NewBicycleCost(options map[string]interface{}) Costing {
	return &modeCosting{mode: pkg.BICYCLE, access: pkg.BICYCLE_ACCESS}
}

func NewPedestrianCost(options map[string]interface{}) Costing {
	return &modeCosting{mode: pkg.PEDESTRIAN, access: pkg.PEDESTRIAN_ACCESS}
}

// NewUniversalCost multimodal costing accepts any edge a single mode accepts.
func NewUniversalCost(options map[string]interface{}) Costing {
	return &modeCosting{mode: pkg.MULTIMODAL, access: pkg.ALL_ACCESS}
}
