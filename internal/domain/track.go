package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stream health scoring. A freshly saved or refreshed stream starts at
// StreamHealthMax; each reported playback failure subtracts
// StreamFailurePenalty. A stream is deactivated once its health reaches
// zero or it accumulates StreamMaxFailures failures, whichever first.
const (
	StreamHealthMax      = 100
	StreamFailurePenalty = 20
	StreamMaxFailures    = 3
)

// Track is the canonical metadata row for a song. Identity is the ISRC when
// one is known, otherwise the normalized (title, artist) pair; the store
// enforces uniqueness on that identity and merges concurrent saves into a
// single row.
type Track struct {
	ID              string            `json:"id"`
	ISRC            string            `json:"isrc,omitempty"`
	Title           string            `json:"title"`
	Artist          string            `json:"artist"`
	Album           string            `json:"album,omitempty"`
	DurationSeconds int               `json:"duration_seconds"`
	ArtworkURL      string            `json:"artwork_url,omitempty"`
	ProviderIDs     map[string]string `json:"provider_ids,omitempty"` // provider name -> track ID on that provider
	AccessCount     int64             `json:"access_count"`
	LastAccessedAt  time.Time         `json:"last_accessed_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Validate checks the minimum fields required to compute a track identity.
func (t *Track) Validate() error {
	if t.Title == "" || t.Artist == "" {
		return fmt.Errorf("track title and artist are required")
	}
	return nil
}

func (t *Track) MarshalBinary() ([]byte, error) {
	return json.Marshal(t)
}

func (t *Track) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, t)
}

// Stream is a playable source URL for a track. A track may hold one stream
// per source; reads pick the active stream with the highest health score.
type Stream struct {
	ID             string    `json:"id"`
	TrackID        string    `json:"track_id"`
	Source         string    `json:"source"`
	URL            string    `json:"url"`
	Quality        string    `json:"quality,omitempty"`
	Format         string    `json:"format,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"`
	IsActive       bool      `json:"is_active"`
	HealthScore    int       `json:"health_score"`
	FailureCount   int       `json:"failure_count"`
	LastVerifiedAt time.Time `json:"last_verified_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Expired reports whether the stream URL has passed its expiry. Streams
// without an expiry never expire.
func (s *Stream) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Playable reports whether the stream is active and not expired.
func (s *Stream) Playable(now time.Time) bool {
	return s.IsActive && !s.Expired(now)
}

// SearchRecord maps a normalized query string to the track it resolved to.
// The normalized query is unique; repeated resolutions bump HitCount and
// refresh LastHitAt instead of creating new rows.
type SearchRecord struct {
	NormalizedQuery string    `json:"normalized_query"`
	TrackID         string    `json:"track_id"`
	HitCount        int64     `json:"hit_count"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastHitAt       time.Time `json:"last_hit_at"`
}

// RelatedTrack is a directed edge between a source track and a track worth
// suggesting alongside it, with the joined track row when loaded.
type RelatedTrack struct {
	SourceTrackID  string    `json:"source_track_id"`
	RelatedTrackID string    `json:"related_track_id"`
	Relevance      float64   `json:"relevance"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Track          *Track    `json:"track,omitempty"`
}

// ArtistTrack is one entry of an artist's cached top-track list.
type ArtistTrack struct {
	Title           string `json:"title"`
	Album           string `json:"album,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	ArtworkURL      string `json:"artwork_url,omitempty"`
}

// ArtistInfo is a cached snapshot of artist-level metadata. Name is stored
// lowercased and unique. Snapshots go stale after a TTL and are regenerated
// lazily rather than refreshed in place.
type ArtistInfo struct {
	Name           string        `json:"name"`
	TopTracks      []ArtistTrack `json:"top_tracks,omitempty"`
	Albums         []string      `json:"albums,omitempty"`
	SimilarArtists []string      `json:"similar_artists,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Stale reports whether the snapshot is older than ttl.
func (a *ArtistInfo) Stale(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(a.UpdatedAt) >= ttl
}
