// Package jobs runs the periodic maintenance loops: cache warming on
// startup, refreshing stream URLs that are about to lapse, and pruning
// tracks nobody has played in a long time.
package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/domain"
	"github.com/Phoenix-Boss/audioscape/internal/logging"
	"github.com/Phoenix-Boss/audioscape/internal/metrics"
	"github.com/Phoenix-Boss/audioscape/internal/resolver"
)

// Config configures the maintenance loops. Zero values fall back to the
// defaults below; a non-positive interval after defaulting disables that
// loop entirely.
type Config struct {
	WarmInterval    time.Duration
	WarmLimit       int
	RefreshInterval time.Duration
	RefreshWithin   time.Duration
	RefreshLimit    int
	PruneInterval   time.Duration
	StaleAfter      time.Duration
	PruneLimit      int
}

const (
	defaultWarmInterval    = 15 * time.Minute
	defaultWarmLimit       = 20
	defaultRefreshInterval = time.Hour
	defaultRefreshWithin   = 6 * time.Hour
	defaultRefreshLimit    = 50
	defaultPruneInterval   = 24 * time.Hour
	defaultStaleAfter      = 30 * 24 * time.Hour
	defaultPruneLimit      = 100

	// warmStartDelay gives the rest of the process a moment to come up
	// before the first warming pass.
	warmStartDelay = 10 * time.Second
	jobTimeout     = 2 * time.Minute
)

// Warmer replays popular searches into the local cache. Satisfied by
// *catalog.Manager.
type Warmer interface {
	WarmCache(ctx context.Context, limit int) (int, error)
}

// Store is the slice of the metadata store the maintenance loops use.
// store.MetadataStore satisfies it.
type Store interface {
	GetTrack(ctx context.Context, id string) (*domain.Track, error)
	SaveStream(ctx context.Context, stream *domain.Stream) (*domain.Stream, error)
	DeleteTrack(ctx context.Context, id string) error
	GetExpiringStreams(ctx context.Context, within time.Duration, limit int) ([]*domain.Stream, error)
	GetStaleTracks(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Track, error)
}

// StreamResolver re-resolves a query against the providers. Satisfied by
// *resolver.Resolver; nil disables the stream refresh loop.
type StreamResolver interface {
	Resolve(ctx context.Context, query string) (*resolver.Resolution, error)
}

// Runner owns the background maintenance goroutines.
type Runner struct {
	warmer   Warmer
	store    Store
	resolver StreamResolver
	cfg      Config

	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// New creates a Runner. The resolver may be nil when no provider
// credentials are configured; the refresh loop then skips itself.
func New(warmer Warmer, st Store, res StreamResolver, cfg Config) *Runner {
	if cfg.WarmInterval == 0 {
		cfg.WarmInterval = defaultWarmInterval
	}
	if cfg.WarmLimit <= 0 {
		cfg.WarmLimit = defaultWarmLimit
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.RefreshWithin <= 0 {
		cfg.RefreshWithin = defaultRefreshWithin
	}
	if cfg.RefreshLimit <= 0 {
		cfg.RefreshLimit = defaultRefreshLimit
	}
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = defaultPruneInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.PruneLimit <= 0 {
		cfg.PruneLimit = defaultPruneLimit
	}
	return &Runner{
		warmer:   warmer,
		store:    st,
		resolver: res,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the maintenance loops.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	if r.cfg.WarmInterval > 0 && r.warmer != nil {
		r.launch("warm-cache", warmStartDelay, r.cfg.WarmInterval, r.warmCache)
	}
	if r.cfg.RefreshInterval > 0 && r.resolver != nil {
		r.launch("refresh-streams", r.cfg.RefreshInterval, r.cfg.RefreshInterval, r.refreshStreams)
	}
	if r.cfg.PruneInterval > 0 {
		r.launch("prune-stale", r.cfg.PruneInterval, r.cfg.PruneInterval, r.pruneStale)
	}
	logging.Op().Info("maintenance jobs started",
		"warm_interval", r.cfg.WarmInterval,
		"refresh_interval", r.cfg.RefreshInterval,
		"prune_interval", r.cfg.PruneInterval)
}

// Stop gracefully shuts down all loops.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	logging.Op().Info("maintenance jobs stopped")
}

// launch runs fn after startDelay and then every interval until Stop.
func (r *Runner) launch(name string, startDelay, interval time.Duration, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		select {
		case <-r.stopCh:
			return
		case <-time.After(startDelay):
		}
		r.run(name, fn)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.run(name, fn)
			}
		}
	}()
}

func (r *Runner) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		metrics.RecordJobRun(name, "error")
		logging.Op().Error("maintenance job failed", "job", name, "error", err)
		return
	}
	metrics.RecordJobRun(name, "ok")
}

func (r *Runner) warmCache(ctx context.Context) error {
	warmed, err := r.warmer.WarmCache(ctx, r.cfg.WarmLimit)
	if err != nil {
		return err
	}
	logging.Op().Debug("warm cache pass done", "warmed", warmed)
	return nil
}

// refreshStreams re-resolves tracks whose stream URLs lapse soon so the
// next play does not pay the resolve latency. Per-stream failures are
// logged and skipped; a pass only fails when the expiring set cannot be
// listed at all.
func (r *Runner) refreshStreams(ctx context.Context) error {
	streams, err := r.store.GetExpiringStreams(ctx, r.cfg.RefreshWithin, r.cfg.RefreshLimit)
	if err != nil {
		return err
	}
	if len(streams) == 0 {
		return nil
	}

	refreshed := 0
	for _, stream := range streams {
		if err := r.refreshOne(ctx, stream); err != nil {
			logging.Op().Debug("stream refresh skipped",
				"stream_id", stream.ID, "track_id", stream.TrackID, "error", err)
			continue
		}
		refreshed++
	}
	logging.Op().Info("stream refresh pass done", "expiring", len(streams), "refreshed", refreshed)
	return nil
}

func (r *Runner) refreshOne(ctx context.Context, stream *domain.Stream) error {
	track, err := r.store.GetTrack(ctx, stream.TrackID)
	if err != nil {
		return err
	}
	query := strings.TrimSpace(track.Title + " " + track.Artist)
	resolution, err := r.resolver.Resolve(ctx, query)
	if err != nil {
		return err
	}
	if resolution.Stream == nil {
		return nil
	}
	_, err = r.store.SaveStream(ctx, resolution.Stream.ToStream(track.ID))
	return err
}

// pruneStale deletes tracks nobody has touched within StaleAfter. The
// store cascades streams, search records, and related links.
func (r *Runner) pruneStale(ctx context.Context) error {
	tracks, err := r.store.GetStaleTracks(ctx, r.cfg.StaleAfter, r.cfg.PruneLimit)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return nil
	}

	pruned := 0
	for _, track := range tracks {
		if err := r.store.DeleteTrack(ctx, track.ID); err != nil {
			logging.Op().Debug("prune skipped", "track_id", track.ID, "error", err)
			continue
		}
		pruned++
	}
	logging.Op().Info("prune pass done", "stale", len(tracks), "pruned", pruned)
	return nil
}
