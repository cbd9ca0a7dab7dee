package config

import (
	"errors"
	"time"
)

type Redis struct {
	Addr        string        `env:"REDIS_ADDR,required"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	Timeout     time.Duration `env:"REDIS_TIMEOUT" envDefault:"3s"`
	PingTimeout time.Duration `env:"REDIS_PING_TIMEOUT" envDefault:"5s"`

	// ListTTL is the lifetime of cached listing pages.
	ListTTL time.Duration `env:"REDIS_LIST_TTL" envDefault:"300s"`
}

func (r Redis) Validate() error {
	if r.PingTimeout <= 0 {
		return errors.New("REDIS_PING_TIMEOUT must be positive")
	}
	return nil
}
