package domain

import (
	"time"

	"github.com/google/uuid"
)

// Origin identifies which tier served a SearchResult.
type Origin string

const (
	// OriginDevice means the result came from the local in-process cache.
	OriginDevice Origin = "device"
	// OriginStore means the result came from the durable store.
	OriginStore Origin = "store"
	// OriginProvider means the result was just resolved from an external provider.
	OriginProvider Origin = "provider"
)

// TrackMetadata is the unified record every provider response is normalized
// into before it reaches the cache layer. Source names the provider that
// produced it; SourceID is the track's ID on that provider.
type TrackMetadata struct {
	Source          string `json:"source"`
	SourceID        string `json:"source_id,omitempty"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	Album           string `json:"album,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	ISRC            string `json:"isrc,omitempty"`
	ArtworkURL      string `json:"artwork_url,omitempty"`
	ArtworkThumb    string `json:"artwork_thumbnail,omitempty"`
	ReleaseDate     string `json:"release_date,omitempty"`
	Popularity      int    `json:"popularity"`
	Explicit        bool   `json:"explicit"`
	PreviewURL      string `json:"preview_url,omitempty"`
}

// ToTrack builds a new Track from the metadata. The caller persists it via
// the store, which may merge it into an existing row by identity.
func (m *TrackMetadata) ToTrack() *Track {
	providerIDs := map[string]string{}
	if m.Source != "" && m.SourceID != "" {
		providerIDs[m.Source] = m.SourceID
	}
	return &Track{
		ID:              uuid.NewString(),
		ISRC:            m.ISRC,
		Title:           m.Title,
		Artist:          m.Artist,
		Album:           m.Album,
		DurationSeconds: m.DurationSeconds,
		ArtworkURL:      m.ArtworkURL,
		ProviderIDs:     providerIDs,
	}
}

// StreamMetadata is the normalized stream half of a resolution, handed to
// the cache layer next to TrackMetadata when the winning provider exposes a
// playable or preview URL.
type StreamMetadata struct {
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Quality   string    `json:"quality,omitempty"`
	Format    string    `json:"format,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ToStream builds a fresh Stream for trackID at full health.
func (m *StreamMetadata) ToStream(trackID string) *Stream {
	return &Stream{
		ID:          uuid.NewString(),
		TrackID:     trackID,
		Source:      m.Source,
		URL:         m.URL,
		Quality:     m.Quality,
		Format:      m.Format,
		ExpiresAt:   m.ExpiresAt,
		IsActive:    true,
		HealthScore: StreamHealthMax,
	}
}

// SearchResult is what the cache layer hands to UI collaborators: the
// resolved track, its best stream when one is known, the durable hit count
// of the search, and which tier served the result.
type SearchResult struct {
	Track    *Track  `json:"track"`
	Stream   *Stream `json:"stream,omitempty"`
	HitCount int64   `json:"hit_count"`
	Origin   Origin  `json:"source"`
}
