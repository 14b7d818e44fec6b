// Package catalog coordinates the cache tiers and the durable store into
// one read/write surface: search lookups, track fetches, warm-up, and the
// async enrichment that runs after a successful resolve.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Phoenix-Boss/audioscape/internal/cache"
	"github.com/Phoenix-Boss/audioscape/internal/domain"
	"github.com/Phoenix-Boss/audioscape/internal/logging"
	"github.com/Phoenix-Boss/audioscape/internal/metrics"
	"github.com/Phoenix-Boss/audioscape/internal/observability"
	"github.com/Phoenix-Boss/audioscape/internal/resolver"
	"github.com/Phoenix-Boss/audioscape/internal/songkey"
	"github.com/Phoenix-Boss/audioscape/internal/store"
)

// ErrNotFound is returned when neither cache tier nor the store can
// answer. A resolve pass against the providers is the caller's next move.
var ErrNotFound = errors.New("not in catalog")

const (
	// DefaultSearchTTL bounds cached search results in the local tier.
	DefaultSearchTTL = time.Hour
	// DefaultTrackTTL bounds cached tracks and related lists.
	DefaultTrackTTL = time.Hour
	// DefaultArtistTTL is how long an artist snapshot stays fresh before a
	// lazy background refresh.
	DefaultArtistTTL = 7 * 24 * time.Hour
	// DefaultRelatedLimit caps related-track enrichment per save.
	DefaultRelatedLimit = 10

	// warmMinHits keeps one-off queries out of cache warming.
	warmMinHits = 2
	// warmConcurrency bounds parallel replays during warming.
	warmConcurrency = 4
	// backgroundTimeout bounds each spawned background task.
	backgroundTimeout = 15 * time.Second
)

// RelatedSource lists follow-up tracks for an artist. *resolver.Resolver
// satisfies it; a nil source disables enrichment.
type RelatedSource interface {
	RelatedTo(ctx context.Context, artist, excludeTitle string, limit int) ([]resolver.Related, error)
}

// Config holds construction options for a Manager.
type Config struct {
	Local        *cache.Local
	Store        store.MetadataStore
	Related      RelatedSource
	SearchTTL    time.Duration
	TrackTTL     time.Duration
	ArtistTTL    time.Duration
	RelatedLimit int
}

// Manager is the catalog facade the API and jobs talk to.
type Manager struct {
	local   *cache.Local
	store   store.MetadataStore
	related RelatedSource

	searchTTL    time.Duration
	trackTTL     time.Duration
	artistTTL    time.Duration
	relatedLimit int

	sf singleflight.Group
	bg sync.WaitGroup
}

// Stats combines the cache counters with store row counts.
type Stats struct {
	Local cache.Stats  `json:"local_cache"`
	Store *store.Stats `json:"store,omitempty"`
}

// New creates a Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Local == nil {
		return nil, fmt.Errorf("local cache is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = DefaultSearchTTL
	}
	if cfg.TrackTTL <= 0 {
		cfg.TrackTTL = DefaultTrackTTL
	}
	if cfg.ArtistTTL <= 0 {
		cfg.ArtistTTL = DefaultArtistTTL
	}
	if cfg.RelatedLimit <= 0 {
		cfg.RelatedLimit = DefaultRelatedLimit
	}
	return &Manager{
		local:        cfg.Local,
		store:        cfg.Store,
		related:      cfg.Related,
		searchTTL:    cfg.SearchTTL,
		trackTTL:     cfg.TrackTTL,
		artistTTL:    cfg.ArtistTTL,
		relatedLimit: cfg.RelatedLimit,
	}, nil
}

// GetSearch answers a search query from the local tier first and the
// store second; it never reaches out to the providers. A local hit counts
// the access on the underlying search record asynchronously. A store
// failure degrades to ErrNotFound so a broken database reads as a cold
// cache, not an outage.
func (m *Manager) GetSearch(ctx context.Context, rawQuery string) (*domain.SearchResult, error) {
	q := songkey.Normalize(rawQuery)
	if q == "" {
		return nil, fmt.Errorf("query is empty")
	}
	ctx, span := observability.StartSpan(ctx, "catalog.get_search", observability.AttrQuery.String(q))
	defer span.End()
	key := songkey.Search(q)

	if entry, err := m.local.Get(ctx, key); err == nil {
		var result domain.SearchResult
		if err := json.Unmarshal(entry.Value, &result); err == nil && result.Track != nil {
			// A cached result whose stream URL has lapsed is stale as a whole.
			if result.Stream == nil || !result.Stream.Expired(time.Now()) {
				metrics.RecordCacheRequest("l1", "hit")
				span.SetAttributes(observability.AttrCacheTier.String("l1"))
				result.Origin = domain.OriginDevice
				result.HitCount += entry.AccessCount
				m.spawn("touch-search", func(ctx context.Context) {
					if err := m.store.TouchSearch(ctx, q); err != nil && !errors.Is(err, store.ErrNotFound) {
						logging.Op().Debug("search touch failed", "query", q, "error", err)
					}
				})
				return &result, nil
			}
		}
		_ = m.local.Delete(ctx, key)
	}
	metrics.RecordCacheRequest("l1", "miss")

	track, rec, err := m.store.FindBySearch(ctx, q)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.RecordStoreOp("find_search", "error")
			logging.Op().Warn("search lookup degraded to miss", "query", q, "error", err)
		}
		metrics.RecordCacheRequest("l2", "miss")
		return nil, ErrNotFound
	}
	metrics.RecordCacheRequest("l2", "hit")
	span.SetAttributes(observability.AttrCacheTier.String("l2"))

	result := &domain.SearchResult{Track: track, HitCount: rec.HitCount, Origin: domain.OriginStore}
	if stream, err := m.store.GetBestStream(ctx, track.ID); err == nil {
		result.Stream = stream
	} else if !errors.Is(err, store.ErrNotFound) {
		logging.Op().Debug("best stream lookup failed", "track_id", track.ID, "error", err)
	}

	m.cacheSearchResult(ctx, q, result)
	m.cacheTrack(ctx, track)
	return result, nil
}

// SaveSearch records a resolved query: the track (merged by identity), its
// stream if one came back, and the query binding. Concurrent saves of the
// same song collapse onto one write. The saved result is cached locally
// and related-track enrichment runs in the background. A store failure
// degrades to serving the unpersisted result so playback never waits on
// the database.
func (m *Manager) SaveSearch(ctx context.Context, rawQuery string, meta *domain.TrackMetadata, streamMeta *domain.StreamMetadata) (*domain.SearchResult, error) {
	q := songkey.Normalize(rawQuery)
	if q == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if meta == nil || meta.Title == "" || meta.Artist == "" {
		return nil, fmt.Errorf("track metadata is required")
	}

	identity := songkey.Identity(meta.ISRC, meta.Title, meta.Artist)
	v, err, _ := m.sf.Do(identity+"|"+q, func() (any, error) {
		return m.saveSearch(ctx, q, meta, streamMeta)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SearchResult), nil
}

func (m *Manager) saveSearch(ctx context.Context, q string, meta *domain.TrackMetadata, streamMeta *domain.StreamMetadata) (*domain.SearchResult, error) {
	degraded := false
	track, err := m.store.SaveTrack(ctx, meta.ToTrack())
	if err != nil {
		metrics.RecordStoreOp("save_track", "error")
		logging.Op().Warn("track persist failed, serving unpersisted result", "query", q, "error", err)
		degraded = true
		track = meta.ToTrack()
		track.AccessCount = 1
	} else {
		metrics.RecordStoreOp("save_track", "ok")
	}

	result := &domain.SearchResult{Track: track, HitCount: 1, Origin: domain.OriginProvider}

	if streamMeta != nil && streamMeta.URL != "" {
		if degraded {
			result.Stream = streamMeta.ToStream(track.ID)
		} else if stream, err := m.store.SaveStream(ctx, streamMeta.ToStream(track.ID)); err != nil {
			logging.Op().Warn("stream persist failed", "track_id", track.ID, "error", err)
		} else {
			result.Stream = stream
		}
	}

	if !degraded {
		if rec, err := m.store.SaveSearch(ctx, q, track.ID); err != nil {
			logging.Op().Warn("search persist failed", "query", q, "error", err)
		} else {
			result.HitCount = rec.HitCount
		}
	}

	m.cacheSearchResult(ctx, q, result)
	m.cacheTrack(ctx, track)

	if !degraded {
		trackID, artist, title := track.ID, track.Artist, track.Title
		m.spawn("cache-related", func(ctx context.Context) {
			m.cacheRelated(ctx, trackID, artist, title)
		})
	}
	return result, nil
}

// GetTrack fetches a track by ID, local tier first. Every successful read
// counts an access on the stored record.
func (m *Manager) GetTrack(ctx context.Context, id string) (*domain.Track, error) {
	if id == "" {
		return nil, fmt.Errorf("track id is empty")
	}
	key := songkey.Track(id)

	if track, err := cache.GetAs[domain.Track](ctx, m.local, key); err == nil {
		metrics.RecordCacheRequest("l1", "hit")
		m.touchTrackAsync(id)
		return &track, nil
	}
	metrics.RecordCacheRequest("l1", "miss")

	track, err := m.store.GetTrack(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		metrics.RecordStoreOp("get_track", "error")
		logging.Op().Warn("track lookup degraded to miss", "track_id", id, "error", err)
		return nil, ErrNotFound
	}
	metrics.RecordStoreOp("get_track", "ok")

	m.cacheTrack(ctx, track)
	m.touchTrackAsync(id)
	return track, nil
}

// GetTrackWithStream fetches a track and its current best stream. A track
// with no playable stream returns a nil stream, not an error.
func (m *Manager) GetTrackWithStream(ctx context.Context, id string) (*domain.Track, *domain.Stream, error) {
	track, err := m.GetTrack(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	stream, err := m.store.GetBestStream(ctx, track.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Op().Debug("best stream lookup failed", "track_id", id, "error", err)
		}
		return track, nil, nil
	}
	return track, stream, nil
}

// GetRelatedTracks returns cached suggestions for a track, most relevant
// first. Store failures degrade to an empty list.
func (m *Manager) GetRelatedTracks(ctx context.Context, trackID string, limit int) ([]*domain.RelatedTrack, error) {
	if trackID == "" {
		return nil, fmt.Errorf("track id is empty")
	}
	if limit <= 0 {
		limit = m.relatedLimit
	}
	key := songkey.Related(trackID)

	if related, err := cache.GetAs[[]*domain.RelatedTrack](ctx, m.local, key); err == nil {
		metrics.RecordCacheRequest("l1", "hit")
		if len(related) > limit {
			related = related[:limit]
		}
		return related, nil
	}
	metrics.RecordCacheRequest("l1", "miss")

	related, err := m.store.GetRelatedTracks(ctx, trackID, limit)
	if err != nil {
		logging.Op().Warn("related lookup degraded to empty", "track_id", trackID, "error", err)
		return nil, nil
	}
	if len(related) > 0 {
		if err := cache.SetAs(ctx, m.local, key, related, m.trackTTL); err != nil {
			logging.Op().Debug("cache related failed", "track_id", trackID, "error", err)
		}
	}
	return related, nil
}

// CacheRelatedTracks runs related-track enrichment for a track now,
// synchronously. SaveSearch schedules the same work in the background.
func (m *Manager) CacheRelatedTracks(ctx context.Context, trackID string) error {
	track, err := m.store.GetTrack(ctx, trackID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("cache related tracks: %w", err)
	}
	m.cacheRelated(ctx, track.ID, track.Artist, track.Title)
	return nil
}

// ReportStreamFailure counts one playback failure against a stream and
// drops the cached copies that embed it. Store failures degrade to
// ErrNotFound, which tells the player to re-resolve either way.
func (m *Manager) ReportStreamFailure(ctx context.Context, streamID string) (*domain.Stream, error) {
	stream, err := m.store.ReportStreamFailure(ctx, streamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		logging.Op().Warn("stream failure report degraded to miss", "stream_id", streamID, "error", err)
		return nil, ErrNotFound
	}
	if !stream.IsActive {
		logging.Op().Info("stream deactivated",
			"stream_id", stream.ID, "track_id", stream.TrackID,
			"health", stream.HealthScore, "failures", stream.FailureCount)
	}
	_ = m.local.Delete(ctx, songkey.Track(stream.TrackID))
	return stream, nil
}

// GetArtist returns the cached snapshot for an artist. A stale snapshot
// is still served, with a background refresh kicked off from the related
// source.
func (m *Manager) GetArtist(ctx context.Context, name string) (*domain.ArtistInfo, error) {
	q := songkey.Normalize(name)
	if q == "" {
		return nil, fmt.Errorf("artist name is empty")
	}
	key := songkey.Artist(q)

	if info, err := cache.GetAs[domain.ArtistInfo](ctx, m.local, key); err == nil {
		metrics.RecordCacheRequest("l1", "hit")
		return &info, nil
	}
	metrics.RecordCacheRequest("l1", "miss")

	info, err := m.store.GetArtist(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		logging.Op().Warn("artist lookup degraded to miss", "artist", name, "error", err)
		return nil, ErrNotFound
	}
	if info.Stale(time.Now(), m.artistTTL) && m.related != nil {
		artist := info.Name
		m.spawn("refresh-artist", func(ctx context.Context) {
			related, err := m.related.RelatedTo(ctx, artist, "", m.relatedLimit)
			if err != nil || len(related) == 0 {
				return
			}
			m.snapshotArtist(ctx, artist, related)
		})
	}
	if err := cache.SetAs(ctx, m.local, key, info, m.searchTTL); err != nil {
		logging.Op().Debug("cache artist failed", "artist", name, "error", err)
	}
	return info, nil
}

// WarmCache replays the most popular persisted searches through the
// normal read path so the local tier starts each session hot. It returns
// how many queries landed in the cache.
func (m *Manager) WarmCache(ctx context.Context, limit int) (int, error) {
	records, err := m.store.GetPopularSearches(ctx, limit, warmMinHits)
	if err != nil {
		return 0, fmt.Errorf("warm cache: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var warmed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if _, err := m.GetSearch(ctx, rec.NormalizedQuery); err == nil {
				warmed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	logging.Op().Info("cache warmed", "replayed", len(records), "warmed", warmed.Load())
	return int(warmed.Load()), nil
}

// Stats returns a combined snapshot. A store failure leaves Store nil
// rather than failing the call.
func (m *Manager) Stats(ctx context.Context) *Stats {
	s := &Stats{Local: m.local.Stats()}
	metrics.SetCacheEntries(float64(s.Local.Entries))
	if st, err := m.store.Stats(ctx); err == nil {
		s.Store = st
	} else {
		logging.Op().Debug("store stats failed", "error", err)
	}
	return s
}

// ClearAll empties the local tier and its mirror. The durable store keeps
// its records; only cached copies are dropped.
func (m *Manager) ClearAll(ctx context.Context) error {
	return m.local.Clear(ctx)
}

// WaitBackground blocks until spawned background tasks have finished.
func (m *Manager) WaitBackground() {
	m.bg.Wait()
}

// Close waits for in-flight background work. The cache and store are
// owned by the caller and closed separately.
func (m *Manager) Close() error {
	m.bg.Wait()
	return nil
}

// ─── internal helpers ───────────────────────────────────────────────────

// cacheRelated resolves and persists follow-up tracks for one track, then
// refreshes the artist snapshot from what came back. Failures are logged
// and skipped; this path must never surface to the caller that triggered
// it.
func (m *Manager) cacheRelated(ctx context.Context, trackID, artist, title string) {
	if m.related == nil {
		return
	}
	related, err := m.related.RelatedTo(ctx, artist, title, m.relatedLimit)
	if err != nil {
		logging.Op().Debug("related resolve failed", "track_id", trackID, "error", err)
		return
	}
	if len(related) == 0 {
		return
	}

	linked := 0
	entries := make(map[string]json.RawMessage, len(related))
	for _, rel := range related {
		saved, err := m.store.SaveTrack(ctx, rel.Meta.ToTrack())
		if err != nil {
			logging.Op().Debug("related track persist failed", "title", rel.Meta.Title, "error", err)
			continue
		}
		if saved.ID == trackID {
			continue
		}
		if err := m.store.LinkRelated(ctx, trackID, saved.ID, rel.Relevance, rel.Reason); err != nil {
			logging.Op().Debug("related link failed", "track_id", trackID, "error", err)
			continue
		}
		linked++
		if buf, err := json.Marshal(saved); err == nil {
			entries[songkey.Track(saved.ID)] = buf
		}
	}
	m.snapshotArtist(ctx, artist, related)

	if len(entries) > 0 {
		if err := m.local.SetMany(ctx, entries, m.trackTTL); err != nil {
			logging.Op().Debug("related track cache failed", "track_id", trackID, "error", err)
		}
	}
	_ = m.local.Delete(ctx, songkey.Related(trackID))
	logging.Op().Debug("related tracks cached", "track_id", trackID, "linked", linked)
}

// snapshotArtist derives an artist snapshot from a related listing.
func (m *Manager) snapshotArtist(ctx context.Context, artist string, related []resolver.Related) {
	if artist == "" || len(related) == 0 {
		return
	}
	info := &domain.ArtistInfo{Name: artist, UpdatedAt: time.Now().UTC()}
	seenAlbum := make(map[string]bool)
	for _, rel := range related {
		meta := rel.Meta
		if len(info.TopTracks) < m.relatedLimit {
			info.TopTracks = append(info.TopTracks, domain.ArtistTrack{
				Title:           meta.Title,
				Album:           meta.Album,
				DurationSeconds: meta.DurationSeconds,
				ArtworkURL:      meta.ArtworkURL,
			})
		}
		if meta.Album != "" && !seenAlbum[meta.Album] {
			seenAlbum[meta.Album] = true
			info.Albums = append(info.Albums, meta.Album)
		}
	}
	if err := m.store.SaveArtist(ctx, info); err != nil {
		logging.Op().Debug("artist snapshot failed", "artist", artist, "error", err)
		return
	}
	_ = m.local.Delete(ctx, songkey.Artist(songkey.Normalize(artist)))
}

func (m *Manager) cacheSearchResult(ctx context.Context, q string, result *domain.SearchResult) {
	if err := cache.SetAs(ctx, m.local, songkey.Search(q), result, m.searchTTL); err != nil {
		logging.Op().Debug("cache search result failed", "query", q, "error", err)
	}
}

func (m *Manager) cacheTrack(ctx context.Context, track *domain.Track) {
	if err := cache.SetAs(ctx, m.local, songkey.Track(track.ID), track, m.trackTTL); err != nil {
		logging.Op().Debug("cache track failed", "track_id", track.ID, "error", err)
	}
}

func (m *Manager) touchTrackAsync(id string) {
	m.spawn("touch-track", func(ctx context.Context) {
		if err := m.store.TouchTrack(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			logging.Op().Debug("track touch failed", "track_id", id, "error", err)
		}
	})
}

// spawn runs fn on its own goroutine with a bounded context. Panics are
// contained so enrichment can never take a request down with it.
func (m *Manager) spawn(name string, fn func(context.Context)) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Op().Error("background task panicked", "task", name, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}
