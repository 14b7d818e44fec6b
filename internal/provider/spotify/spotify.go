// Package spotify resolves tracks against the Spotify Web API using the
// client-credentials flow.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Phoenix-Boss/audioscape/internal/provider"
)

const (
	defaultBaseURL = "https://api.spotify.com/v1"
	tokenURL       = "https://accounts.spotify.com/api/token"
)

// Client talks to the Spotify Web API.
type Client struct {
	httpClient *http.Client
	ts         oauth2.TokenSource
	baseURL    string
}

// New creates a Spotify client with the given application credentials.
// Tokens are fetched and refreshed lazily through the token source.
func New(clientID, clientSecret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	return &Client{
		httpClient: httpClient,
		ts:         cfg.TokenSource(ctx),
		baseURL:    defaultBaseURL,
	}
}

func (c *Client) Name() string { return "spotify" }

type searchResponse struct {
	Tracks struct {
		Items []wireTrack `json:"items"`
	} `json:"tracks"`
}

type wireTrack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMS  int    `json:"duration_ms"`
	Explicit    bool   `json:"explicit"`
	Popularity  int    `json:"popularity"`
	PreviewURL  string `json:"preview_url"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
	Album struct {
		Name        string `json:"name"`
		ReleaseDate string `json:"release_date"`
		Images      []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"images"`
	} `json:"album"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

// Search returns the top track match for query.
func (c *Client) Search(ctx context.Context, query string) (*provider.Result, error) {
	token, err := c.ts.Token()
	if err != nil {
		return nil, fmt.Errorf("spotify token: %w", err)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("spotify search: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify search: unexpected status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("spotify search: decode: %w", err)
	}
	if len(decoded.Tracks.Items) == 0 {
		return nil, nil
	}
	return toResult(&decoded.Tracks.Items[0]), nil
}

func toResult(t *wireTrack) *provider.Result {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	r := &provider.Result{
		SourceID:        t.ID,
		Title:           t.Name,
		Artist:          strings.Join(names, ", "),
		Album:           t.Album.Name,
		DurationSeconds: t.DurationMS / 1000,
		ISRC:            t.ExternalIDs.ISRC,
		ReleaseDate:     t.Album.ReleaseDate,
		Popularity:      t.Popularity,
		Explicit:        t.Explicit,
		PreviewURL:      t.PreviewURL,
	}
	// Images come largest first.
	if n := len(t.Album.Images); n > 0 {
		r.ArtworkURL = t.Album.Images[0].URL
		r.ArtworkThumb = t.Album.Images[n-1].URL
	}
	if t.PreviewURL != "" {
		r.Stream = &provider.StreamHint{URL: t.PreviewURL, Quality: "preview", Format: "mp3"}
	}
	return r
}
