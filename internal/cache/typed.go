package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetAs fetches key and decodes its value into T.
func GetAs[T any](ctx context.Context, c *Local, key string) (T, error) {
	var zero T
	e, err := c.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(e.Value, &v); err != nil {
		// Undecodable entries are dropped so the next read misses cleanly.
		_ = c.Delete(ctx, key)
		return zero, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return v, nil
}

// SetAs encodes v and stores it under key.
func SetAs[T any](ctx context.Context, c *Local, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}
