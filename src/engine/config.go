package engine

import (
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

// Config holds the position manager settings.
type Config struct {
	// MinOrderSize is the exchange minimum. Entries below it are rejected
	// before any exchange call.
	MinOrderSize float64 `envconfig:"ENGINE_MIN_ORDER_SIZE" default:"5.0"`

	// ExitPlanPrice is the near-certain limit-sell price placed right after
	// entry so a winning position auto-realizes.
	ExitPlanPrice float64 `envconfig:"ENGINE_EXIT_PLAN_PRICE" default:"0.99"`

	// ScaleInFraction sizes the scale-in order relative to the original stake.
	ScaleInFraction float64 `envconfig:"ENGINE_SCALE_IN_FRACTION" default:"0.5"`

	// DefaultScaleWindowSeconds opens the fallback scale-in window this many
	// seconds before window close when no early tier fired.
	DefaultScaleWindowSeconds int `envconfig:"ENGINE_DEFAULT_SCALE_WINDOW_SECONDS" default:"450"`

	// DefaultScaleMinConfidence gates the fallback scale-in window.
	DefaultScaleMinConfidence float64 `envconfig:"ENGINE_DEFAULT_SCALE_MIN_CONFIDENCE" default:"0.70"`

	// HedgeFraction sizes a hedge order relative to the position size.
	HedgeFraction float64 `envconfig:"ENGINE_HEDGE_FRACTION" default:"0.5"`

	// FeeRate is applied to the exit notional at settlement.
	FeeRate float64 `envconfig:"ENGINE_FEE_RATE" default:"0"`
}

// GetConfig reads the engine configuration from the environment.
func GetConfig() Config {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load engine config")
	}
	return config
}
