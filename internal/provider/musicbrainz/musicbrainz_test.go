package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

const searchBody = `{
	"recordings": [{
		"id": "f90e8b26-9047-4c6c-8a41-2f0b5d9aa4d9",
		"title": "City Boys",
		"length": 208306,
		"score": 100,
		"isrcs": ["USAT22404109"],
		"artist-credit": [{"name": "Burna Boy"}],
		"releases": [{"title": "I Told Them...", "date": "2023-08-25"}]
	}]
}`

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		httpClient: srv.Client(),
		baseURL:    srv.URL,
		userAgent:  "audioscape-test/1.0",
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestSearch(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		if got := r.URL.Query().Get("fmt"); got != "json" {
			t.Errorf("fmt = %q", got)
		}
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	res, err := newTestClient(srv).Search(context.Background(), "city boys burna boy")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotAgent != "audioscape-test/1.0" {
		t.Errorf("user agent = %q", gotAgent)
	}
	if res.Title != "City Boys" || res.Artist != "Burna Boy" {
		t.Errorf("mapped = %+v", res)
	}
	if res.ISRC != "USAT22404109" {
		t.Errorf("isrc = %q", res.ISRC)
	}
	if res.Album != "I Told Them..." || res.ReleaseDate != "2023-08-25" {
		t.Errorf("release = %q %q", res.Album, res.ReleaseDate)
	}
	if res.DurationSeconds != 208 {
		t.Errorf("duration = %d", res.DurationSeconds)
	}
	if res.Stream != nil {
		t.Errorf("musicbrainz should not hint streams, got %+v", res.Stream)
	}
}

func TestSearchMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"recordings": []}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv).Search(context.Background(), "xyzzy")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res != nil {
		t.Errorf("miss returned %+v, want nil", res)
	}
}

func TestSearchRateLimitCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.limiter = rate.NewLimiter(rate.Limit(0.001), 1)
	c.limiter.Allow() // burn the burst token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Search(ctx, "q"); err == nil {
		t.Fatal("expected rate limit wait to fail on canceled context")
	}
}
