// Package provider defines the contract external metadata sources
// implement and the normalized result shape they return.
package provider

import (
	"context"
	"time"
)

// Result is one source's best match for a query, normalized to the fields
// the catalog stores. Providers leave fields they cannot supply zero.
type Result struct {
	SourceID        string
	Title           string
	Artist          string
	Album           string
	DurationSeconds int
	ISRC            string
	ArtworkURL      string
	ArtworkThumb    string
	ReleaseDate     string
	Popularity      int // 0-100
	Explicit        bool
	PreviewURL      string
	Stream          *StreamHint
}

// StreamHint carries a playable URL the source handed out alongside the
// metadata, with its advertised lifetime (zero when the source gives no
// expiry).
type StreamHint struct {
	URL       string
	Quality   string
	Format    string
	ExpiresIn time.Duration
}

// Provider resolves a free-text query against one external source. A
// (nil, nil) return is a clean miss: the source answered and had nothing.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) (*Result, error)
}

// RelatedLister is implemented by providers that can list more tracks by
// an artist.
type RelatedLister interface {
	Related(ctx context.Context, artist string, limit int) ([]*Result, error)
}
