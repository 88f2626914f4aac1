package confidence

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// DrivingMethod selects which scoring method gates real trading
	// decisions. The other method is still computed and persisted for
	// offline comparison.
	DrivingMethod string `envconfig:"CONFIDENCE_DRIVING_METHOD" default:"additive"` // additive | bayesian

	// MinEdge is the minimum driving confidence required to enter.
	MinEdge float64 `envconfig:"CONFIDENCE_MIN_EDGE" default:"0.565"`

	// UnderdogMinConfidence applies when the chosen side trades below the
	// market's own 50% line: the edge over 50% must exceed 40% of that
	// line, i.e. confidence above 0.70.
	UnderdogMinConfidence float64 `envconfig:"CONFIDENCE_UNDERDOG_MIN" default:"0.70"`

	// MaxConfidence caps both methods to avoid false-certainty signals.
	MaxConfidence float64 `envconfig:"CONFIDENCE_MAX" default:"0.85"`

	// LLRScale scales every per-signal log-likelihood-ratio update.
	LLRScale float64 `envconfig:"CONFIDENCE_LLR_SCALE" default:"1.0"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
