package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod      time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`
	SignalBatchSize int           `envconfig:"SIGNAL_BATCH_SIZE" default:"100"`
	ReservationTTL  time.Duration `envconfig:"RESERVATION_TTL" default:"15m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
