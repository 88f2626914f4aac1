package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Symbols are the tracked assets, one trading window per symbol per slot.
	Symbols []string `envconfig:"ENGINE_SYMBOLS" default:"BTC"`

	// EvalPeriod drives the per-symbol signal and entry evaluation.
	EvalPeriod time.Duration `envconfig:"EVAL_LOOP_PERIOD" default:"5s"`

	// RiskPeriod drives the stop-loss/take-profit/reversal sweep over
	// active positions.
	RiskPeriod time.Duration `envconfig:"RISK_LOOP_PERIOD" default:"3s"`

	// ReconcilePeriod drives order reconciliation against the exchange.
	ReconcilePeriod time.Duration `envconfig:"RECONCILE_LOOP_PERIOD" default:"30s"`

	// SettlePeriod drives window resolution and position settlement.
	SettlePeriod time.Duration `envconfig:"SETTLE_LOOP_PERIOD" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
