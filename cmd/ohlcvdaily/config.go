package ohlcvdaily

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StartDt  time.Time `envconfig:"START_DATE" default:"2025-01-01T00:00:00Z"`
	EndDt    time.Time `envconfig:"END_DATE" default:"2027-01-31T00:00:00Z"`
	AutoMode bool      `envconfig:"AUTO_MODE" default:"false"`
	Symbols  []string  `envconfig:"SYMBOLS" default:"BTC,ETH"`
	Quote    string    `envconfig:"QUOTE" default:"USDT"`
	Limit    int       `envconfig:"LIMIT" default:"1000"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
