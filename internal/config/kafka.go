package config

import "time"

type Kafka struct {
	Addresses []string `env:"KAFKA_ADDRESSES,required" envSeparator:","`
	Group     string   `env:"KAFKA_GROUP,required"`
	ClientID  string   `env:"KAFKA_CLIENT_ID" envDefault:"product-service-consumer"`

	// DeliveryTimeout bounds how long the producer retries a single record.
	DeliveryTimeout time.Duration `env:"KAFKA_DELIVERY_TIMEOUT" envDefault:"30s"`
	PingTimeout     time.Duration `env:"KAFKA_PING_TIMEOUT" envDefault:"5s"`
}
