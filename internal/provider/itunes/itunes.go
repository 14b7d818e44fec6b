// Package itunes resolves tracks against the iTunes Search API, which
// needs no credentials.
package itunes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/provider"
)

const defaultBaseURL = "https://itunes.apple.com"

// Client talks to the iTunes Search API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates an iTunes client.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{httpClient: httpClient, baseURL: defaultBaseURL}
}

func (c *Client) Name() string { return "itunes" }

type searchResponse struct {
	ResultCount int         `json:"resultCount"`
	Results     []wireTrack `json:"results"`
}

type wireTrack struct {
	TrackID           int64  `json:"trackId"`
	TrackName         string `json:"trackName"`
	ArtistName        string `json:"artistName"`
	CollectionName    string `json:"collectionName"`
	TrackTimeMillis   int    `json:"trackTimeMillis"`
	ArtworkURL100     string `json:"artworkUrl100"`
	ReleaseDate       string `json:"releaseDate"`
	TrackExplicitness string `json:"trackExplicitness"`
	PreviewURL        string `json:"previewUrl"`
}

// Search returns the top track match for query.
func (c *Client) Search(ctx context.Context, query string) (*provider.Result, error) {
	q := url.Values{}
	q.Set("term", query)
	q.Set("limit", "1")
	items, err := c.search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return toResult(&items[0]), nil
}

// Related lists more tracks matching the artist name.
func (c *Client) Related(ctx context.Context, artist string, limit int) ([]*provider.Result, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("term", artist)
	q.Set("attribute", "artistTerm")
	q.Set("limit", strconv.Itoa(limit))
	items, err := c.search(ctx, q)
	if err != nil {
		return nil, err
	}
	results := make([]*provider.Result, 0, len(items))
	for i := range items {
		results = append(results, toResult(&items[i]))
	}
	return results, nil
}

func (c *Client) search(ctx context.Context, q url.Values) ([]wireTrack, error) {
	q.Set("media", "music")
	q.Set("entity", "song")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("itunes search: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("itunes search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("itunes search: unexpected status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("itunes search: decode: %w", err)
	}
	return decoded.Results, nil
}

func toResult(t *wireTrack) *provider.Result {
	r := &provider.Result{
		SourceID:        strconv.FormatInt(t.TrackID, 10),
		Title:           t.TrackName,
		Artist:          t.ArtistName,
		Album:           t.CollectionName,
		DurationSeconds: t.TrackTimeMillis / 1000,
		ArtworkThumb:    t.ArtworkURL100,
		ReleaseDate:     t.ReleaseDate,
		Explicit:        t.TrackExplicitness == "explicit",
		PreviewURL:      t.PreviewURL,
	}
	// The API only serves 100x100; larger sizes exist at a predictable URL.
	if t.ArtworkURL100 != "" {
		r.ArtworkURL = strings.Replace(t.ArtworkURL100, "100x100", "600x600", 1)
	}
	if t.PreviewURL != "" {
		r.Stream = &provider.StreamHint{URL: t.PreviewURL, Quality: "preview", Format: "m4a"}
	}
	return r
}
