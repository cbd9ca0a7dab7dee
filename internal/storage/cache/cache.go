package cache

import (
	"context"
	"time"
)

// ProductPrefix namespaces every key derived from product data. Invalidation
// removes everything under it.
const ProductPrefix = "product"

// DefaultTTL applies when Set is called with a zero ttl.
const DefaultTTL = 300 * time.Second

// Cache is a key-value store with TTL.
type Cache interface {
	// Get returns the value for key; ok is false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
	// DeleteKeys removes keys. It is a no-op for an empty slice.
	DeleteKeys(ctx context.Context, keys []string) error
}
