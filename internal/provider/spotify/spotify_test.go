package spotify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

const searchBody = `{
	"tracks": {
		"items": [{
			"id": "2FzZsIPI4cayVDAfhzRzCC",
			"name": "City Boys",
			"duration_ms": 208306,
			"explicit": true,
			"popularity": 74,
			"preview_url": "https://p.scdn.co/mp3-preview/abc",
			"external_ids": {"isrc": "USAT22404109"},
			"album": {
				"name": "I Told Them...",
				"release_date": "2023-08-24",
				"images": [
					{"url": "https://i.scdn.co/image/large", "width": 640, "height": 640},
					{"url": "https://i.scdn.co/image/small", "width": 64, "height": 64}
				]
			},
			"artists": [{"name": "Burna Boy"}]
		}]
	}
}`

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		httpClient: srv.Client(),
		ts:         oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		baseURL:    srv.URL,
	}
}

func TestSearch(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	res, err := c.Search(context.Background(), "city boys burna boy")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotQuery != "city boys burna boy" {
		t.Errorf("query = %q", gotQuery)
	}

	if res.SourceID != "2FzZsIPI4cayVDAfhzRzCC" {
		t.Errorf("source id = %q", res.SourceID)
	}
	if res.Title != "City Boys" || res.Artist != "Burna Boy" {
		t.Errorf("title/artist = %q/%q", res.Title, res.Artist)
	}
	if res.ISRC != "USAT22404109" {
		t.Errorf("isrc = %q", res.ISRC)
	}
	if res.DurationSeconds != 208 {
		t.Errorf("duration = %d, want 208", res.DurationSeconds)
	}
	if res.ArtworkURL != "https://i.scdn.co/image/large" || res.ArtworkThumb != "https://i.scdn.co/image/small" {
		t.Errorf("artwork = %q/%q", res.ArtworkURL, res.ArtworkThumb)
	}
	if !res.Explicit || res.Popularity != 74 {
		t.Errorf("explicit/popularity = %v/%d", res.Explicit, res.Popularity)
	}
	if res.Stream == nil || res.Stream.URL != "https://p.scdn.co/mp3-preview/abc" {
		t.Errorf("stream hint = %+v", res.Stream)
	}
}

func TestSearchMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tracks": {"items": []}}`))
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

func TestSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).Search(context.Background(), "q"); err == nil {
		t.Fatal("expected error on 429")
	}
}
