package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config carries the bcrypt hash of the operator secret that guards manual
// kill-switch resets. When unset, resets over HTTP are disabled.
type Config struct {
	OperatorSecretHash string `envconfig:"OPERATOR_SECRET_HASH" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
