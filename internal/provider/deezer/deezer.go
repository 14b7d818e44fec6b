// Package deezer resolves tracks against the public Deezer API, which
// needs no credentials.
package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/provider"
)

const defaultBaseURL = "https://api.deezer.com"

// Client talks to the Deezer API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a Deezer client.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{httpClient: httpClient, baseURL: defaultBaseURL}
}

func (c *Client) Name() string { return "deezer" }

type searchResponse struct {
	Data []wireTrack `json:"data"`
}

type wireTrack struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Duration       int    `json:"duration"`
	Rank           int    `json:"rank"`
	ExplicitLyrics bool   `json:"explicit_lyrics"`
	Preview        string `json:"preview"`
	Artist         struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title      string `json:"title"`
		CoverBig   string `json:"cover_big"`
		CoverSmall string `json:"cover_small"`
	} `json:"album"`
}

// Search returns the top track match for query.
func (c *Client) Search(ctx context.Context, query string) (*provider.Result, error) {
	items, err := c.search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return toResult(&items[0]), nil
}

// Related lists more tracks by the given artist using Deezer's fielded
// search syntax.
func (c *Client) Related(ctx context.Context, artist string, limit int) ([]*provider.Result, error) {
	items, err := c.search(ctx, fmt.Sprintf("artist:%q", artist), limit)
	if err != nil {
		return nil, err
	}
	results := make([]*provider.Result, 0, len(items))
	for i := range items {
		results = append(results, toResult(&items[i]))
	}
	return results, nil
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]wireTrack, error) {
	if limit <= 0 {
		limit = 1
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("deezer search: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deezer search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deezer search: unexpected status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("deezer search: decode: %w", err)
	}
	return decoded.Data, nil
}

func toResult(t *wireTrack) *provider.Result {
	// Rank runs to about a million; squeeze it onto the 0-100 scale.
	popularity := t.Rank / 10000
	if popularity > 100 {
		popularity = 100
	}
	r := &provider.Result{
		SourceID:        strconv.FormatInt(t.ID, 10),
		Title:           t.Title,
		Artist:          t.Artist.Name,
		Album:           t.Album.Title,
		DurationSeconds: t.Duration,
		ArtworkURL:      t.Album.CoverBig,
		ArtworkThumb:    t.Album.CoverSmall,
		Popularity:      popularity,
		Explicit:        t.ExplicitLyrics,
		PreviewURL:      t.Preview,
	}
	if t.Preview != "" {
		r.Stream = &provider.StreamHint{URL: t.Preview, Quality: "preview", Format: "mp3"}
	}
	return r
}
