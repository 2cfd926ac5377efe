package test

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// IT_WAIT bounds how long the scenario waits for a broadcast to arrive.
	Wait time.Duration `envconfig:"IT_WAIT" default:"3s"`
	// IT_TICK is the polling interval for eventual assertions.
	Tick time.Duration `envconfig:"IT_TICK" default:"10ms"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
