package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MarketDataBaseURL string `envconfig:"MARKET_DATA_BASE_URL" default:"http://localhost:8090"`
	MarketDataAPIKey  string `envconfig:"MARKET_DATA_API_KEY" default:""`

	PnLStreamURL string `envconfig:"PNL_STREAM_URL" default:"ws://localhost:8091/v1/pnl"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
