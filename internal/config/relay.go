package config

import (
	"errors"
	"time"
)

type Relay struct {
	// Enabled runs the relay inside pc-standalone. Disable it when pc-relay
	// is deployed on its own.
	Enabled   bool          `env:"RELAY_ENABLED" envDefault:"true"`
	BatchSize uint32        `env:"RELAY_BATCH_SIZE" envDefault:"100"`
	Interval  time.Duration `env:"RELAY_INTERVAL" envDefault:"1s"`

	MetricsPort uint32 `env:"RELAY_METRICS_PORT" envDefault:"9091"`
}

func (r Relay) Validate() error {
	if r.BatchSize == 0 {
		return errors.New("RELAY_BATCH_SIZE must be positive")
	}
	if r.Interval <= 0 {
		return errors.New("RELAY_INTERVAL must be positive")
	}
	return nil
}
