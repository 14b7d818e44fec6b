// Package musicbrainz resolves tracks against the MusicBrainz web
// service. MusicBrainz asks clients to identify themselves and stay at or
// below one request per second, so every call goes through a rate limiter
// and carries a User-Agent.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Phoenix-Boss/audioscape/internal/provider"
)

const (
	defaultBaseURL   = "https://musicbrainz.org/ws/2"
	defaultUserAgent = "audioscape/1.0 (https://github.com/Phoenix-Boss/audioscape)"
)

// Client talks to the MusicBrainz web service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// New creates a MusicBrainz client. An empty userAgent falls back to the
// project default; rps <= 0 falls back to the service's 1 req/s limit.
func New(userAgent string, rps float64, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *Client) Name() string { return "musicbrainz" }

type searchResponse struct {
	Recordings []wireRecording `json:"recordings"`
}

type wireRecording struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	LengthMS     int      `json:"length"`
	Score        int      `json:"score"`
	ISRCs        []string `json:"isrcs"`
	ArtistCredit []struct {
		Name string `json:"name"`
	} `json:"artist-credit"`
	Releases []struct {
		Title string `json:"title"`
		Date  string `json:"date"`
	} `json:"releases"`
}

// Search returns the top recording match for query.
func (c *Client) Search(ctx context.Context, query string) (*provider.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("musicbrainz rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("fmt", "json")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/recording?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("musicbrainz search: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("musicbrainz search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("musicbrainz search: unexpected status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("musicbrainz search: decode: %w", err)
	}
	if len(decoded.Recordings) == 0 {
		return nil, nil
	}
	return toResult(&decoded.Recordings[0]), nil
}

func toResult(rec *wireRecording) *provider.Result {
	names := make([]string, 0, len(rec.ArtistCredit))
	for _, a := range rec.ArtistCredit {
		names = append(names, a.Name)
	}
	r := &provider.Result{
		SourceID:        rec.ID,
		Title:           rec.Title,
		Artist:          strings.Join(names, ", "),
		DurationSeconds: rec.LengthMS / 1000,
		Popularity:      rec.Score,
	}
	if len(rec.ISRCs) > 0 {
		r.ISRC = rec.ISRCs[0]
	}
	if len(rec.Releases) > 0 {
		r.Album = rec.Releases[0].Title
		r.ReleaseDate = rec.Releases[0].Date
	}
	return r
}
