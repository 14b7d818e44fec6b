// Package cache implements the local cache tier: an in-memory LRU index of
// JSON-serialized entries, optionally mirrored to durable local storage
// (bbolt file or Redis) so the hot set survives process restarts. Mirror
// failures degrade the tier to memory-only behavior; they are never
// surfaced to callers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the cache or its
// entry has expired.
var ErrNotFound = errors.New("cache: key not found")

// Entry is the envelope every cached value is wrapped in before it is
// indexed or mirrored. Value holds the caller's JSON-encoded payload.
type Entry struct {
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at,omitempty"`
	LastAccessed time.Time       `json:"last_accessed"`
	AccessCount  int64           `json:"access_count"`
}

// Fresh reports whether the entry is still live at now. A zero expiry never
// goes stale.
func (e *Entry) Fresh(now time.Time) bool {
	return e.ExpiresAt.IsZero() || now.Before(e.ExpiresAt)
}

// clone returns a deep copy so callers can hold the entry without racing
// the cache's own mutation of access counters.
func (e *Entry) clone() *Entry {
	cp := *e
	cp.Value = make(json.RawMessage, len(e.Value))
	copy(cp.Value, e.Value)
	return &cp
}

// Mirror persists cache entries to durable local storage so the in-memory
// index can be rebuilt after a restart. Implementations must be safe for
// concurrent use.
type Mirror interface {
	// Get retrieves a persisted entry. Returns ErrNotFound when absent.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores or replaces a persisted entry.
	Put(ctx context.Context, e *Entry) error

	// Delete removes a persisted entry. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Load iterates all persisted entries. Iteration stops at the first
	// error returned by fn.
	Load(ctx context.Context, fn func(*Entry) error) error

	// Clear removes all persisted entries.
	Clear(ctx context.Context) error

	// Ping verifies the mirror backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the mirror.
	Close() error
}

// Stats is a point-in-time snapshot of cache effectiveness counters.
// DroppedWrites counts mirror writes skipped under backpressure.
type Stats struct {
	Entries       int     `json:"entries"`
	MaxItems      int     `json:"max_items"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Evictions     int64   `json:"evictions"`
	Expirations   int64   `json:"expirations"`
	Restores      int64   `json:"restores"`
	DroppedWrites int64   `json:"dropped_writes,omitempty"`
	HitRate       float64 `json:"hit_rate"`
}
