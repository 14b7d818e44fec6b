package store

import (
	"context"
	"errors"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist. Callers
// treat it as a cache miss, not a failure.
var ErrNotFound = errors.New("record not found")

// MetadataStore is the durable catalog: tracks, their streams, the search
// index that maps normalized queries onto tracks, related-track links, and
// artist snapshots.
type MetadataStore interface {
	Close() error
	Ping(ctx context.Context) error

	// Tracks
	SaveTrack(ctx context.Context, track *domain.Track) (*domain.Track, error)
	GetTrack(ctx context.Context, id string) (*domain.Track, error)
	GetTrackByIdentity(ctx context.Context, identityKey string) (*domain.Track, error)
	TouchTrack(ctx context.Context, id string) error
	DeleteTrack(ctx context.Context, id string) error

	// Streams
	SaveStream(ctx context.Context, stream *domain.Stream) (*domain.Stream, error)
	GetBestStream(ctx context.Context, trackID string) (*domain.Stream, error)
	ReportStreamFailure(ctx context.Context, streamID string) (*domain.Stream, error)

	// Search index
	SaveSearch(ctx context.Context, normalizedQuery, trackID string) (*domain.SearchRecord, error)
	TouchSearch(ctx context.Context, normalizedQuery string) error
	FindBySearch(ctx context.Context, normalizedQuery string) (*domain.Track, *domain.SearchRecord, error)
	GetPopularSearches(ctx context.Context, limit, minHits int) ([]*domain.SearchRecord, error)

	// Related tracks
	LinkRelated(ctx context.Context, sourceTrackID, relatedTrackID string, relevance float64, reason string) error
	GetRelatedTracks(ctx context.Context, trackID string, limit int) ([]*domain.RelatedTrack, error)

	// Artist snapshots
	SaveArtist(ctx context.Context, info *domain.ArtistInfo) error
	GetArtist(ctx context.Context, name string) (*domain.ArtistInfo, error)

	// Maintenance
	GetExpiringStreams(ctx context.Context, within time.Duration, limit int) ([]*domain.Stream, error)
	GetStaleTracks(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Track, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Stats summarizes catalog row counts.
type Stats struct {
	Tracks        int64 `json:"tracks"`
	Streams       int64 `json:"streams"`
	ActiveStreams int64 `json:"active_streams"`
	Searches      int64 `json:"searches"`
	RelatedLinks  int64 `json:"related_links"`
	Artists       int64 `json:"artists"`
}
