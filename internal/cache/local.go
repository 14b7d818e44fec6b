package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/logging"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// DefaultMaxItems bounds the in-memory index when no limit is configured.
	DefaultMaxItems = 500
	// DefaultEntryTTL applies to entries stored without an explicit TTL.
	DefaultEntryTTL = time.Hour

	persistQueueSize = 512
	mirrorOpTimeout  = 5 * time.Second
)

// Local is the process-local cache tier. Reads and writes go through an
// LRU-bounded in-memory index; a Mirror, when configured, persists entries
// asynchronously so the index can be restored on the next start. All
// methods are safe for concurrent use and never return mirror errors:
// a broken mirror degrades the tier to memory-only operation.
type Local struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, *Entry]
	mirror   Mirror
	closed   bool
	clearing bool

	maxItems   int
	defaultTTL time.Duration
	now        func() time.Time

	persistCh chan persistOp
	stopCh    chan struct{}
	wg        sync.WaitGroup

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
	restores    atomic.Int64
	dropped     atomic.Int64
}

// Config holds construction options for a Local cache.
type Config struct {
	MaxItems   int
	DefaultTTL time.Duration
	Mirror     Mirror // nil disables durable mirroring
}

type persistOp struct {
	entry     *Entry
	deleteKey string
	clear     bool
	flush     chan struct{}
}

// New creates a Local cache. When a mirror is configured, fresh persisted
// entries are loaded back into the index before the cache accepts traffic;
// a failing mirror is logged and the cache continues memory-only.
func New(cfg Config) (*Local, error) {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultEntryTTL
	}
	c := &Local{
		mirror:     cfg.Mirror,
		maxItems:   cfg.MaxItems,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
		persistCh:  make(chan persistOp, persistQueueSize),
		stopCh:     make(chan struct{}),
	}
	lru, err := simplelru.NewLRU[string, *Entry](cfg.MaxItems, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create lru index: %w", err)
	}
	c.lru = lru

	if c.mirror != nil {
		c.restore()
	}

	c.wg.Add(1)
	go c.persistLoop()
	return c, nil
}

// Get returns the entry for key, updating its recency and access counters.
// A key absent from the index falls through to the mirror; a fresh mirror
// entry is pulled back into the index. Expired entries are removed from
// both layers and reported as misses.
func (c *Local) Get(ctx context.Context, key string) (*Entry, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	now := c.now()
	if e, ok := c.lru.Get(key); ok {
		if !e.Fresh(now) {
			c.lru.Remove(key)
			c.mu.Unlock()
			c.expirations.Add(1)
			c.misses.Add(1)
			return nil, ErrNotFound
		}
		e.AccessCount++
		e.LastAccessed = now
		snap := e.clone()
		c.mu.Unlock()
		c.hits.Add(1)
		c.enqueue(persistOp{entry: snap})
		return snap, nil
	}
	mirror := c.mirror
	c.mu.Unlock()

	if mirror == nil {
		c.misses.Add(1)
		return nil, ErrNotFound
	}
	me, err := mirror.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.Op().Debug("cache mirror read failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, ErrNotFound
	}
	if !me.Fresh(now) {
		c.expirations.Add(1)
		c.misses.Add(1)
		c.enqueue(persistOp{deleteKey: key})
		return nil, ErrNotFound
	}
	me.AccessCount++
	me.LastAccessed = now
	c.mu.Lock()
	if !c.closed {
		c.add(key, me)
	}
	c.mu.Unlock()
	c.hits.Add(1)
	c.restores.Add(1)
	c.enqueue(persistOp{entry: me.clone()})
	return me.clone(), nil
}

// Set stores value under key with the given TTL (the default TTL when
// ttl <= 0). Inserting into a full index evicts the least-recently-touched
// entry first.
func (c *Local) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	now := c.now()
	e := &Entry{
		Key:          key,
		Value:        append(json.RawMessage(nil), value...),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
	}
	c.add(key, e)
	snap := e.clone()
	c.mu.Unlock()
	c.enqueue(persistOp{entry: snap})
	return nil
}

// SetMany stores each value under its key with a shared TTL.
func (c *Local) SetMany(ctx context.Context, values map[string]json.RawMessage, ttl time.Duration) error {
	for key, value := range values {
		if err := c.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether key holds a fresh entry without touching its recency.
func (c *Local) Has(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	e, ok := c.lru.Peek(key)
	if !ok {
		return false
	}
	if !e.Fresh(c.now()) {
		c.lru.Remove(key)
		c.expirations.Add(1)
		return false
	}
	return true
}

// Delete removes key from the index and the mirror.
func (c *Local) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.clearing = true
	c.lru.Remove(key)
	c.clearing = false
	c.mu.Unlock()
	c.enqueue(persistOp{deleteKey: key})
	return nil
}

// Clear drops every entry from the index and the mirror.
func (c *Local) Clear(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.clearing = true
	c.lru.Purge()
	c.clearing = false
	c.mu.Unlock()
	c.enqueue(persistOp{clear: true})
	return nil
}

// Len returns the number of entries currently indexed.
func (c *Local) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Local) Stats() Stats {
	entries := c.Len()
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{
		Entries:       entries,
		MaxItems:      c.maxItems,
		Hits:          hits,
		Misses:        misses,
		Evictions:     c.evictions.Load(),
		Expirations:   c.expirations.Load(),
		Restores:      c.restores.Load(),
		DroppedWrites: c.dropped.Load(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// MirrorEnabled reports whether a durable mirror is configured.
func (c *Local) MirrorEnabled() bool {
	return c.mirror != nil
}

// PingMirror verifies the mirror backend. It returns nil when no mirror is
// configured.
func (c *Local) PingMirror(ctx context.Context) error {
	if c.mirror == nil {
		return nil
	}
	return c.mirror.Ping(ctx)
}

// Flush blocks until every mirror write queued so far has been applied.
// Intended for tests and shutdown paths that need the mirror settled.
func (c *Local) Flush() {
	ack := make(chan struct{})
	select {
	case c.persistCh <- persistOp{flush: ack}:
	case <-c.stopCh:
		return
	}
	select {
	case <-ack:
	case <-c.stopCh:
	}
}

// Close drains pending mirror writes and releases the mirror. Subsequent
// operations are no-ops.
func (c *Local) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.clearing = true
	c.lru.Purge()
	c.clearing = false
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()
	if c.mirror != nil {
		return c.mirror.Close()
	}
	return nil
}

// add inserts under c.mu, counting the eviction a full index will perform.
func (c *Local) add(key string, e *Entry) {
	if !c.lru.Contains(key) && c.lru.Len() >= c.maxItems {
		c.evictions.Add(1)
	}
	c.lru.Add(key, e)
}

// onEvict keeps the mirror in sync when the index drops an entry. Explicit
// Delete/Clear/Close suppress it and handle the mirror themselves.
func (c *Local) onEvict(key string, _ *Entry) {
	if c.clearing {
		return
	}
	c.enqueue(persistOp{deleteKey: key})
}

func (c *Local) enqueue(op persistOp) {
	if c.mirror == nil {
		return
	}
	select {
	case c.persistCh <- op:
	default:
		c.dropped.Add(1)
	}
}

func (c *Local) persistLoop() {
	defer c.wg.Done()
	for {
		select {
		case op := <-c.persistCh:
			c.apply(op)
		case <-c.stopCh:
			for {
				select {
				case op := <-c.persistCh:
					c.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (c *Local) apply(op persistOp) {
	if op.flush != nil {
		close(op.flush)
		return
	}
	if c.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorOpTimeout)
	defer cancel()
	var err error
	switch {
	case op.clear:
		err = c.mirror.Clear(ctx)
	case op.deleteKey != "":
		err = c.mirror.Delete(ctx, op.deleteKey)
	case op.entry != nil:
		err = c.mirror.Put(ctx, op.entry)
	}
	if err != nil {
		logging.Op().Debug("cache mirror write failed", "error", err)
	}
}

// restore loads fresh mirror entries into the index, newest-touched last so
// LRU order reflects prior usage. Stale persisted entries are deleted.
func (c *Local) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := c.now()
	var entries []*Entry
	var stale []string
	err := c.mirror.Load(ctx, func(e *Entry) error {
		if !e.Fresh(now) {
			stale = append(stale, e.Key)
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		logging.Op().Warn("local cache restore failed, continuing memory-only", "error", err)
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessed.Before(entries[j].LastAccessed)
	})
	if len(entries) > c.maxItems {
		entries = entries[len(entries)-c.maxItems:]
	}
	for _, e := range entries {
		c.lru.Add(e.Key, e)
	}
	c.restores.Add(int64(len(entries)))

	for _, key := range stale {
		_ = c.mirror.Delete(ctx, key)
	}
	if len(entries) > 0 || len(stale) > 0 {
		logging.Op().Info("local cache restored", "entries", len(entries), "stale_dropped", len(stale))
	}
}
