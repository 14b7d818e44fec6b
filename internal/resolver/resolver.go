// Package resolver fans a query out to every configured metadata provider
// and settles on one answer.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/domain"
	"github.com/Phoenix-Boss/audioscape/internal/logging"
	"github.com/Phoenix-Boss/audioscape/internal/metrics"
	"github.com/Phoenix-Boss/audioscape/internal/observability"
	"github.com/Phoenix-Boss/audioscape/internal/provider"
	"github.com/Phoenix-Boss/audioscape/internal/songkey"
)

// ErrNoResult is returned when every provider missed, failed, or ran out
// of time.
var ErrNoResult = errors.New("no provider returned a result")

const (
	// DefaultTimeout bounds one whole resolve pass across all providers.
	DefaultTimeout = 6 * time.Second
	// DefaultStreamTTL applies to stream URLs whose source gave no expiry.
	DefaultStreamTTL = 6 * time.Hour
	// DefaultRelatedLimit caps related-track listings.
	DefaultRelatedLimit = 10
)

// Config holds construction options for a Resolver.
type Config struct {
	Providers    []provider.Provider // priority order, best first
	Timeout      time.Duration
	StreamTTL    time.Duration
	RelatedLimit int
}

// Resolver queries providers concurrently. The order providers were
// configured in fixes their priority when picking a winner.
type Resolver struct {
	providers    []provider.Provider
	timeout      time.Duration
	streamTTL    time.Duration
	relatedLimit int
}

// Resolution is the settled outcome of one resolve pass.
type Resolution struct {
	Query     string
	Provider  string
	Track     *domain.TrackMetadata
	Stream    *domain.StreamMetadata
	Elapsed   time.Duration
	Attempted int
}

// Related is one suggested follow-up track.
type Related struct {
	Meta      *domain.TrackMetadata
	Relevance float64
	Reason    string
}

// New creates a Resolver over the given providers.
func New(cfg Config) (*Resolver, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StreamTTL <= 0 {
		cfg.StreamTTL = DefaultStreamTTL
	}
	if cfg.RelatedLimit <= 0 {
		cfg.RelatedLimit = DefaultRelatedLimit
	}
	return &Resolver{
		providers:    cfg.Providers,
		timeout:      cfg.Timeout,
		streamTTL:    cfg.StreamTTL,
		relatedLimit: cfg.RelatedLimit,
	}, nil
}

// Resolve queries every provider concurrently, waits for all of them to
// answer (or the shared timeout to fire), and then picks the result from
// the highest-priority provider that had one. The winner is chosen by
// priority, not by speed: a fast answer from a source late in the order
// never beats a slower answer from a source earlier in it. Provider
// errors and misses are equivalent here; failures only surface as
// ErrNoResult when nobody answered.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Resolution, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	ctx, span := observability.StartSpan(ctx, "resolver.resolve", observability.AttrQuery.String(query))
	defer span.End()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make([]*provider.Result, len(r.providers))
	var wg sync.WaitGroup
	for i, p := range r.providers {
		wg.Add(1)
		go func(i int, p provider.Provider) {
			defer wg.Done()
			res, err := p.Search(ctx, query)
			if err != nil {
				metrics.RecordResolve(p.Name(), "error")
				logging.Op().Debug("provider search failed",
					"provider", p.Name(), "query", query, "error", err)
				return
			}
			if res == nil {
				metrics.RecordResolve(p.Name(), "miss")
				return
			}
			metrics.RecordResolve(p.Name(), "hit")
			results[i] = res
		}(i, p)
	}
	wg.Wait()

	elapsed := time.Since(start)
	metrics.ObserveResolveDuration(elapsed.Seconds())
	for i, res := range results {
		if res == nil {
			continue
		}
		name := r.providers[i].Name()
		span.SetAttributes(observability.AttrProvider.String(name))
		observability.SetSpanOK(span)
		logging.Op().Info("query resolved",
			"query", query, "provider", name, "elapsed_ms", elapsed.Milliseconds())
		return &Resolution{
			Query:     query,
			Provider:  name,
			Track:     r.trackMetadata(name, res),
			Stream:    r.streamMetadata(name, res),
			Elapsed:   elapsed,
			Attempted: len(r.providers),
		}, nil
	}
	observability.SetSpanError(span, ErrNoResult)
	logging.Op().Info("query unresolved",
		"query", query, "attempted", len(r.providers), "elapsed_ms", elapsed.Milliseconds())
	return nil, ErrNoResult
}

// RelatedTo asks providers that can list an artist's tracks for follow-up
// suggestions. Providers are tried in priority order and the first
// non-empty listing wins. Entries matching excludeTitle are dropped, and
// relevance decays with list position.
func (r *Resolver) RelatedTo(ctx context.Context, artist, excludeTitle string, limit int) ([]Related, error) {
	artist = strings.TrimSpace(artist)
	if artist == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = r.relatedLimit
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	exclude := songkey.Normalize(songkey.CleanTitle(excludeTitle))
	for _, p := range r.providers {
		lister, ok := p.(provider.RelatedLister)
		if !ok {
			continue
		}
		results, err := lister.Related(ctx, artist, limit+1)
		if err != nil {
			logging.Op().Debug("related lookup failed",
				"provider", p.Name(), "artist", artist, "error", err)
			continue
		}
		if len(results) == 0 {
			continue
		}
		related := make([]Related, 0, limit)
		for i, res := range results {
			if res == nil || res.Title == "" {
				continue
			}
			if exclude != "" && songkey.Normalize(songkey.CleanTitle(res.Title)) == exclude {
				continue
			}
			if len(related) >= limit {
				break
			}
			related = append(related, Related{
				Meta:      r.trackMetadata(p.Name(), res),
				Relevance: 1.0 - float64(i)/float64(len(results)),
				Reason:    "same-artist",
			})
		}
		if len(related) > 0 {
			return related, nil
		}
	}
	return nil, nil
}

// trackMetadata normalizes a raw provider result into storable metadata.
func (r *Resolver) trackMetadata(source string, res *provider.Result) *domain.TrackMetadata {
	m := &domain.TrackMetadata{
		Source:          source,
		SourceID:        res.SourceID,
		Title:           strings.TrimSpace(res.Title),
		Artist:          strings.TrimSpace(res.Artist),
		Album:           strings.TrimSpace(res.Album),
		DurationSeconds: res.DurationSeconds,
		ISRC:            strings.ToUpper(strings.TrimSpace(res.ISRC)),
		ArtworkURL:      res.ArtworkURL,
		ArtworkThumb:    res.ArtworkThumb,
		ReleaseDate:     res.ReleaseDate,
		Popularity:      res.Popularity,
		Explicit:        res.Explicit,
		PreviewURL:      res.PreviewURL,
	}
	if m.DurationSeconds < 0 {
		m.DurationSeconds = 0
	}
	if m.Popularity < 0 {
		m.Popularity = 0
	}
	if m.Popularity > 100 {
		m.Popularity = 100
	}
	if m.ArtworkThumb == "" {
		m.ArtworkThumb = m.ArtworkURL
	}
	return m
}

func (r *Resolver) streamMetadata(source string, res *provider.Result) *domain.StreamMetadata {
	if res.Stream == nil || res.Stream.URL == "" {
		return nil
	}
	ttl := res.Stream.ExpiresIn
	if ttl <= 0 {
		ttl = r.streamTTL
	}
	return &domain.StreamMetadata{
		Source:    source,
		URL:       res.Stream.URL,
		Quality:   res.Stream.Quality,
		Format:    res.Stream.Format,
		ExpiresAt: time.Now().Add(ttl),
	}
}
