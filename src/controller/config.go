package controller

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// BetPercent of the available quote balance staked per entry.
	BetPercent int `envconfig:"BET_PERCENT" default:"25"`

	// QuoteAsset is the collateral asset queried for balance checks.
	QuoteAsset string `envconfig:"QUOTE_ASSET" default:"USDC"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
