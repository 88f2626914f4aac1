package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	CLOBBaseURL string `envconfig:"CLOB_BASE_URL" default:"https://clob.polymarket.com"`
	CLOBWSURL   string `envconfig:"CLOB_WS_URL" default:"wss://ws-subscriptions-clob.polymarket.com/ws/user"`

	APIKey        string `envconfig:"CLOB_API_KEY"`
	APISecret     string `envconfig:"CLOB_API_SECRET"`
	APIPassphrase string `envconfig:"CLOB_API_PASSPHRASE"`

	RequestTimeout time.Duration `envconfig:"CLOB_REQUEST_TIMEOUT" default:"10s"`
	RetryAttempts  int           `envconfig:"CLOB_RETRY_ATTEMPTS" default:"5"`

	// Requests per second against the CLOB REST API.
	RatePerSec float64 `envconfig:"CLOB_RATE_PER_SEC" default:"8"`
	RateBurst  int     `envconfig:"CLOB_RATE_BURST" default:"16"`

	// BalanceGracePeriod bounds how long exit/settlement logic keeps
	// trusting the last good balance during a balance-API outage.
	BalanceGracePeriod time.Duration `envconfig:"BALANCE_GRACE_PERIOD" default:"3m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
