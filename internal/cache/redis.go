package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror persists cache entries in Redis, suitable when several
// players on the same network want to share one warm tier. Entries carry
// their own expiry, and the Redis TTL is set to match so the server
// reclaims dead keys on its own.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

// RedisMirrorConfig holds configuration for the Redis mirror.
type RedisMirrorConfig struct {
	Addr      string // Redis address (e.g. "localhost:6379")
	Password  string // Redis password
	DB        int    // Redis database number
	KeyPrefix string // Key prefix for namespacing (default: "audioscape:l1:")
}

// NewRedisMirror creates a Redis-backed mirror.
func NewRedisMirror(cfg RedisMirrorConfig) *RedisMirror {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "audioscape:l1:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisMirror{
		client: client,
		prefix: prefix,
	}
}

// NewRedisMirrorFromClient creates a Redis mirror using an existing client.
func NewRedisMirrorFromClient(client *redis.Client, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = "audioscape:l1:"
	}
	return &RedisMirror{
		client: client,
		prefix: prefix,
	}
}

func (m *RedisMirror) key(k string) string {
	return m.prefix + k
}

// Get returns the persisted entry for key, or ErrNotFound.
func (m *RedisMirror) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := m.client.Get(ctx, m.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return &e, nil
}

// Put writes the entry under its key, bounded by the entry's own expiry.
func (m *RedisMirror) Put(ctx context.Context, e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", e.Key, err)
	}
	var ttl time.Duration
	if !e.ExpiresAt.IsZero() {
		ttl = time.Until(e.ExpiresAt)
		if ttl <= 0 {
			return m.Delete(ctx, e.Key)
		}
	}
	return m.client.Set(ctx, m.key(e.Key), raw, ttl).Err()
}

// Delete removes key. Deleting an absent key is not an error.
func (m *RedisMirror) Delete(ctx context.Context, key string) error {
	return m.client.Del(ctx, m.key(key)).Err()
}

// Load streams every persisted entry to fn. Entries that no longer decode
// are skipped rather than failing the whole scan.
func (m *RedisMirror) Load(ctx context.Context, fn func(*Entry) error) error {
	iter := m.client.Scan(ctx, 0, m.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := m.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return err
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		if err := fn(&e); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Clear drops every persisted entry under the mirror's prefix.
func (m *RedisMirror) Clear(ctx context.Context) error {
	iter := m.client.Scan(ctx, 0, m.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return m.client.Del(ctx, keys...).Err()
}

// Ping verifies the Redis connection.
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
