package config

import (
	"errors"
	"time"
)

type Event struct {
	TopicOrderCreated   string `env:"EVENT_TOPIC_ORDER_CREATED" envDefault:"order.created"`
	TopicOrderCancelled string `env:"EVENT_TOPIC_ORDER_CANCELLED" envDefault:"order.cancelled"`

	// DedupTTL bounds how long processed event ids are remembered. Zero disables dedup.
	DedupTTL time.Duration `env:"EVENT_DEDUP_TTL" envDefault:"24h"`
}

func (e Event) Validate() error {
	switch {
	case e.TopicOrderCreated == "" || e.TopicOrderCancelled == "":
		return errors.New("order topics must not be empty")
	case e.TopicOrderCreated == e.TopicOrderCancelled:
		return errors.New("order created and cancelled topics must differ")
	case e.DedupTTL < 0:
		return errors.New("EVENT_DEDUP_TTL must not be negative")
	}
	return nil
}
