package risk

import (
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

// Config holds the risk controller thresholds.
type Config struct {
	// HedgeMinAgeSeconds is how long a hedge must be open before a
	// stop-loss may fire. Gives the hedge time to recover the position.
	HedgeMinAgeSeconds int `envconfig:"RISK_HEDGE_MIN_AGE_SECONDS" default:"120"`

	// ReversalMinConfidence is the reversal-confidence floor for the
	// stop-loss triple check.
	ReversalMinConfidence float64 `envconfig:"RISK_REVERSAL_MIN_CONFIDENCE" default:"0.30"`

	// PriceFloor and MidpointFloor are the absolute price levels for the
	// stop-loss triple check. Either one breached satisfies the price leg.
	PriceFloor    float64 `envconfig:"RISK_PRICE_FLOOR" default:"0.15"`
	MidpointFloor float64 `envconfig:"RISK_MIDPOINT_FLOOR" default:"0.30"`

	// TakeProfitCeiling exits when price is effectively certain.
	TakeProfitCeiling float64 `envconfig:"RISK_TAKE_PROFIT_CEILING" default:"0.99"`

	// ReversalEntryThreshold is the opposite-side confidence required for a
	// full reversal. Matches the entry minimum edge.
	ReversalEntryThreshold float64 `envconfig:"RISK_REVERSAL_ENTRY_THRESHOLD" default:"0.565"`

	// Lookback windows for multi-timeframe price-move validation.
	ShortLookbackSeconds  int `envconfig:"RISK_SHORT_LOOKBACK_SECONDS" default:"30"`
	MediumLookbackSeconds int `envconfig:"RISK_MEDIUM_LOOKBACK_SECONDS" default:"120"`
}

// GetConfig reads the risk configuration from the environment.
func GetConfig() Config {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load risk config")
	}
	return config
}
