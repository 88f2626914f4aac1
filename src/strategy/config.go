package strategy

import (
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

// Config holds the signal builder weights and lookbacks.
type Config struct {
	// Lookback windows in minutes over the 1-minute spot candles.
	MomentumShortMinutes int `envconfig:"STRATEGY_MOMENTUM_SHORT_MINUTES" default:"5"`
	MomentumLongMinutes  int `envconfig:"STRATEGY_MOMENTUM_LONG_MINUTES" default:"15"`
	FlowMinutes          int `envconfig:"STRATEGY_FLOW_MINUTES" default:"10"`

	// Per-signal weights for the additive method.
	MomentumWeight   float64 `envconfig:"STRATEGY_MOMENTUM_WEIGHT" default:"0.12"`
	FlowWeight       float64 `envconfig:"STRATEGY_FLOW_WEIGHT" default:"0.08"`
	DivergenceWeight float64 `envconfig:"STRATEGY_DIVERGENCE_WEIGHT" default:"0.06"`
	ImbalanceWeight  float64 `envconfig:"STRATEGY_IMBALANCE_WEIGHT" default:"0.05"`
	LeadLagWeight    float64 `envconfig:"STRATEGY_LEAD_LAG_WEIGHT" default:"0.05"`

	// Per-signal quality factors for the Bayesian method.
	MomentumQuality   float64 `envconfig:"STRATEGY_MOMENTUM_QUALITY" default:"1.2"`
	FlowQuality       float64 `envconfig:"STRATEGY_FLOW_QUALITY" default:"1.0"`
	DivergenceQuality float64 `envconfig:"STRATEGY_DIVERGENCE_QUALITY" default:"0.8"`
	ImbalanceQuality  float64 `envconfig:"STRATEGY_IMBALANCE_QUALITY" default:"0.9"`
	LeadLagQuality    float64 `envconfig:"STRATEGY_LEAD_LAG_QUALITY" default:"1.1"`

	// MomentumScale converts a relative price move into a [-1, 1] score.
	// A move of 1/MomentumScale saturates the signal.
	MomentumScale float64 `envconfig:"STRATEGY_MOMENTUM_SCALE" default:"500"`
}

// GetConfig reads the strategy configuration from the environment.
func GetConfig() Config {
	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load strategy config")
	}
	return config
}
