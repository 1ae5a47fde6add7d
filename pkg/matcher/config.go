package matcher

import (
	"github.com/go-playground/validator/v10"

	"github.com/lintang-b-s/tracematch/pkg/util"
)

// Config the flat per-matcher parameter block, the merge of the default
// block, the travel-mode block and per-call preferences.
type Config struct {
	// gps noise standard deviation in meter
	SigmaZ float64 `mapstructure:"sigma_z" validate:"gt=0"`

	// transition cost scale
	Beta float64 `mapstructure:"beta" validate:"gt=0"`

	// upper bound on admissible inter-measurement road distance in meter
	BreakageDistance float64 `mapstructure:"breakage_distance" validate:"gt=0"`

	// slack ratio over great-circle distance for the routing budget
	MaxRouteDistanceFactor float64 `mapstructure:"max_route_distance_factor" validate:"gte=1"`

	// 0 disables turn penalties
	TurnPenaltyFactor float64 `mapstructure:"turn_penalty_factor" validate:"gte=0"`

	// candidate search radius in meter
	SearchRadius    float64 `mapstructure:"search_radius" validate:"gt=0"`
	MaxSearchRadius float64 `mapstructure:"max_search_radius" validate:"gt=0"`

	// measurements closer than this to the last admitted one are
	// interpolated instead of matched, meter
	InterpolationDistance float64 `mapstructure:"interpolation_distance" validate:"gte=0"`

	Mode string `mapstructure:"mode" validate:"required"`
}

func DefaultConfig() Config {
	return Config{
		SigmaZ:                 4.07,
		Beta:                   3.0,
		BreakageDistance:       2000.0,
		MaxRouteDistanceFactor: 3.0,
		TurnPenaltyFactor:      0.0,
		SearchRadius:           50.0,
		MaxSearchRadius:        100.0,
		InterpolationDistance:  10.0,
		Mode:                   "auto",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return util.WrapErrorf(err, util.ErrInvalidConfig, "matcher config")
	}
	return nil
}
