package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/product-catalog/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("Should apply defaults", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("KAFKA_ADDRESSES", "k1:9092,k2:9092")
		t.Setenv("KAFKA_GROUP", "product-service-consumer-group")

		type Config struct {
			Log   config.Log
			Redis config.Redis
			Kafka config.Kafka
			Event config.Event
			HTTP  config.HTTP
		}
		cfg, err := config.New[Config]()
		require.NoError(t, err)

		assert.Equal(t, config.LogFormatJSON, cfg.Log.Format)
		assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
		assert.Equal(t, 300*time.Second, cfg.Redis.ListTTL)
		assert.Equal(t, 5*time.Second, cfg.Redis.PingTimeout)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Addresses)
		assert.Equal(t, "product-service-consumer", cfg.Kafka.ClientID)
		assert.Equal(t, "order.created", cfg.Event.TopicOrderCreated)
		assert.Equal(t, "order.cancelled", cfg.Event.TopicOrderCancelled)
		assert.Equal(t, 24*time.Hour, cfg.Event.DedupTTL)
		assert.Equal(t, uint32(3003), cfg.HTTP.Port)
	})

	t.Run("Should read the redis ping timeout", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("REDIS_PING_TIMEOUT", "250ms")

		type Config struct {
			Redis config.Redis
		}
		cfg, err := config.New[Config]()
		require.NoError(t, err)
		assert.Equal(t, 250*time.Millisecond, cfg.Redis.PingTimeout)
	})

	t.Run("Should fail when a required key is missing", func(t *testing.T) {
		type Config struct {
			Redis config.Redis
		}
		_, err := config.New[Config]()
		assert.Error(t, err)
	})

	t.Run("Should parse text log format", func(t *testing.T) {
		t.Setenv("LOG_FORMAT", "text")
		t.Setenv("LOG_LEVEL", "DEBUG")

		type Config struct {
			Log config.Log
		}
		cfg, err := config.New[Config]()
		require.NoError(t, err)
		assert.Equal(t, config.LogFormatText, cfg.Log.Format)
		assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	})
}

func TestValidate(t *testing.T) {
	type Config struct {
		Event config.Event
		Relay config.Relay
	}

	t.Run("Should refuse identical order topics", func(t *testing.T) {
		t.Setenv("EVENT_TOPIC_ORDER_CREATED", "orders")
		t.Setenv("EVENT_TOPIC_ORDER_CANCELLED", "orders")

		_, err := config.New[Config]()
		assert.ErrorContains(t, err, "must differ")
	})

	t.Run("Should refuse a negative dedup ttl", func(t *testing.T) {
		t.Setenv("EVENT_DEDUP_TTL", "-1m")

		_, err := config.New[Config]()
		assert.Error(t, err)
	})

	t.Run("Should refuse a zero redis ping timeout", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("REDIS_PING_TIMEOUT", "0s")

		_, err := config.New[struct{ Redis config.Redis }]()
		assert.ErrorContains(t, err, "REDIS_PING_TIMEOUT")
	})

	t.Run("Should refuse an empty relay batch", func(t *testing.T) {
		t.Setenv("RELAY_BATCH_SIZE", "0")

		_, err := config.New[Config]()
		assert.ErrorContains(t, err, "RELAY_BATCH_SIZE")
	})

	t.Run("Should accept defaults", func(t *testing.T) {
		cfg, err := config.New[Config]()
		require.NoError(t, err)
		assert.True(t, cfg.Relay.Enabled)
		assert.Equal(t, uint32(9091), cfg.Relay.MetricsPort)
	})
}

func TestLogFormat(t *testing.T) {
	assert.Equal(t, "JSON", config.LogFormatJSON.String())
	assert.Equal(t, "TEXT", config.LogFormatText.String())
	assert.Equal(t, "LogFormat(7)", config.LogFormat(7).String())
}
