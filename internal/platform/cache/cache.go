package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// GetJSON loads key into dst. It reports false on a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key as JSON.
func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
