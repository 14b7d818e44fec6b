package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Phoenix-Boss/audioscape/internal/cache"
	"github.com/Phoenix-Boss/audioscape/internal/catalog"
	"github.com/Phoenix-Boss/audioscape/internal/domain"
	"github.com/Phoenix-Boss/audioscape/internal/resolver"
)

type fakeCatalog struct {
	mu         sync.Mutex
	searches   map[string]*domain.SearchResult
	tracks     map[string]*domain.Track
	bestStream map[string]*domain.Stream
	related    map[string][]*domain.RelatedTrack
	artists    map[string]*domain.ArtistInfo
	failures   map[string]*domain.Stream
	saveCalls  int
	refreshed  []string
	warmed     int
	cleared    bool
}

func (f *fakeCatalog) GetSearch(ctx context.Context, q string) (*domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.searches[q]; ok {
		return r, nil
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeCatalog) SaveSearch(ctx context.Context, q string, meta *domain.TrackMetadata, streamMeta *domain.StreamMetadata) (*domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	result := &domain.SearchResult{Track: meta.ToTrack(), HitCount: 1, Origin: domain.OriginProvider}
	if streamMeta != nil {
		result.Stream = streamMeta.ToStream(result.Track.ID)
	}
	return result, nil
}

func (f *fakeCatalog) GetTrack(ctx context.Context, id string) (*domain.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tracks[id]; ok {
		return t, nil
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeCatalog) GetTrackWithStream(ctx context.Context, id string) (*domain.Track, *domain.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tracks[id]
	if !ok {
		return nil, nil, catalog.ErrNotFound
	}
	return t, f.bestStream[id], nil
}

func (f *fakeCatalog) GetRelatedTracks(ctx context.Context, trackID string, limit int) ([]*domain.RelatedTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.related[trackID], nil
}

func (f *fakeCatalog) CacheRelatedTracks(ctx context.Context, trackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tracks[trackID]; !ok {
		return catalog.ErrNotFound
	}
	f.refreshed = append(f.refreshed, trackID)
	return nil
}

func (f *fakeCatalog) ReportStreamFailure(ctx context.Context, streamID string) (*domain.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.failures[streamID]; ok {
		return s, nil
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeCatalog) GetArtist(ctx context.Context, name string) (*domain.ArtistInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.artists[name]; ok {
		return a, nil
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeCatalog) WarmCache(ctx context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warmed = limit
	return limit, nil
}

func (f *fakeCatalog) Stats(ctx context.Context) *catalog.Stats {
	return &catalog.Stats{Local: cache.Stats{Entries: 3, MaxItems: 64}}
}

func (f *fakeCatalog) ClearAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	return nil
}

type fakeQueryResolver struct {
	mu    sync.Mutex
	res   *resolver.Resolution
	err   error
	calls int
}

func (f *fakeQueryResolver) Resolve(ctx context.Context, query string) (*resolver.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeMirror struct {
	enabled bool
	err     error
}

func (f *fakeMirror) MirrorEnabled() bool                  { return f.enabled }
func (f *fakeMirror) PingMirror(ctx context.Context) error { return f.err }

func newTestMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func doRequest(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

func TestGetSearchEndpoint(t *testing.T) {
	fc := &fakeCatalog{searches: map[string]*domain.SearchResult{
		"city boys burna boy": {Track: &domain.Track{ID: "t1", Title: "City Boys"}, HitCount: 2, Origin: domain.OriginDevice},
	}}
	mux := newTestMux(&Handler{Catalog: fc, Store: &fakePinger{}})

	rec := doRequest(mux, http.MethodGet, "/v1/search?q=city+boys+burna+boy", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var result domain.SearchResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Origin != domain.OriginDevice || result.HitCount != 2 {
		t.Errorf("result = %+v", result)
	}

	if rec := doRequest(mux, http.MethodGet, "/v1/search", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", rec.Code)
	}
	if rec := doRequest(mux, http.MethodGet, "/v1/search?q=unknown", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown query status = %d, want 404", rec.Code)
	}
}

func TestResolveSearchResolvesOnMiss(t *testing.T) {
	fc := &fakeCatalog{searches: map[string]*domain.SearchResult{}}
	fr := &fakeQueryResolver{res: &resolver.Resolution{
		Provider: "spotify",
		Track:    &domain.TrackMetadata{Source: "spotify", Title: "City Boys", Artist: "Burna Boy"},
		Stream:   &domain.StreamMetadata{Source: "spotify", URL: "https://cdn/x.mp3"},
	}}
	mux := newTestMux(&Handler{Catalog: fc, Resolver: fr, Store: &fakePinger{}})

	rec := doRequest(mux, http.MethodPost, "/v1/search", `{"query":"city boys"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var result domain.SearchResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Origin != domain.OriginProvider || result.Stream == nil {
		t.Errorf("result = %+v", result)
	}
	if fr.calls != 1 || fc.saveCalls != 1 {
		t.Errorf("resolver calls = %d, saves = %d, want 1 and 1", fr.calls, fc.saveCalls)
	}
}

func TestResolveSearchServesCachedWithoutResolving(t *testing.T) {
	fc := &fakeCatalog{searches: map[string]*domain.SearchResult{
		"cached query": {Track: &domain.Track{ID: "t1"}, HitCount: 5, Origin: domain.OriginDevice},
	}}
	fr := &fakeQueryResolver{}
	mux := newTestMux(&Handler{Catalog: fc, Resolver: fr, Store: &fakePinger{}})

	rec := doRequest(mux, http.MethodPost, "/v1/search", `{"query":"cached query"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if fr.calls != 0 {
		t.Errorf("resolver calls = %d, want 0 for a cached query", fr.calls)
	}
}

func TestResolveSearchErrors(t *testing.T) {
	fc := &fakeCatalog{searches: map[string]*domain.SearchResult{}}

	mux := newTestMux(&Handler{Catalog: fc, Store: &fakePinger{}})
	if rec := doRequest(mux, http.MethodPost, "/v1/search", `{"query":"x"}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("nil resolver status = %d, want 503", rec.Code)
	}

	mux = newTestMux(&Handler{Catalog: fc, Resolver: &fakeQueryResolver{err: resolver.ErrNoResult}, Store: &fakePinger{}})
	if rec := doRequest(mux, http.MethodPost, "/v1/search", `{"query":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("no result status = %d, want 404", rec.Code)
	}

	mux = newTestMux(&Handler{Catalog: fc, Resolver: &fakeQueryResolver{err: errors.New("all providers timed out")}, Store: &fakePinger{}})
	if rec := doRequest(mux, http.MethodPost, "/v1/search", `{"query":"x"}`); rec.Code != http.StatusBadGateway {
		t.Errorf("provider failure status = %d, want 502", rec.Code)
	}

	if rec := doRequest(mux, http.MethodPost, "/v1/search", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
	if rec := doRequest(mux, http.MethodPost, "/v1/search", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d, want 400", rec.Code)
	}
}

func TestGetTrackEndpoint(t *testing.T) {
	fc := &fakeCatalog{
		tracks:     map[string]*domain.Track{"t1": {ID: "t1", Title: "City Boys", Artist: "Burna Boy"}},
		bestStream: map[string]*domain.Stream{"t1": {ID: "s1", TrackID: "t1", URL: "https://cdn/x.mp3", IsActive: true}},
	}
	mux := newTestMux(&Handler{Catalog: fc, Store: &fakePinger{}})

	rec := doRequest(mux, http.MethodGet, "/v1/tracks/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var track domain.Track
	if err := json.NewDecoder(rec.Body).Decode(&track); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if track.Title != "City Boys" {
		t.Errorf("track = %+v", track)
	}

	rec = doRequest(mux, http.MethodGet, "/v1/tracks/t1?stream=1", "")
	var withStream struct {
		Track  *domain.Track  `json:"track"`
		Stream *domain.Stream `json:"stream"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&withStream); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if withStream.Track == nil || withStream.Stream == nil || withStream.Stream.URL != "https://cdn/x.mp3" {
		t.Errorf("with stream = %+v", withStream)
	}

	if rec := doRequest(mux, http.MethodGet, "/v1/tracks/unknown", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown track status = %d, want 404", rec.Code)
	}
}

func TestRelatedEndpoints(t *testing.T) {
	fc := &fakeCatalog{
		tracks: map[string]*domain.Track{"t1": {ID: "t1"}},
		related: map[string][]*domain.RelatedTrack{
			"t1": {{SourceTrackID: "t1", RelatedTrackID: "t2", Relevance: 1.0}},
		},
	}
	mux := newTestMux(&Handler{Catalog: fc, Store: &fakePinger{}})

	rec := doRequest(mux, http.MethodGet, "/v1/tracks/t1/related", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var related []*domain.RelatedTrack
	if err := json.NewDecoder(rec.Body).Decode(&related); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(related) != 1 {
		t.Errorf("related = %+v", related)
	}

	// A track with no suggestions answers with an empty list, not null.
	rec = doRequest(mux, http.MethodGet, "/v1/tracks/t9/related", "")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty related body = %q, want []", body)
	}

	if rec := doRequest(mux, http.MethodPost, "/v1/tracks/t1/related/refresh", ""); rec.Code != http.StatusOK {
		t.Errorf("refresh status = %d", rec.Code)
	}
	if len(fc.refreshed) != 1 || fc.refreshed[0] != "t1" {
		t.Errorf("refreshed = %v", fc.refreshed)
	}
	if rec := doRequest(mux, http.MethodPost, "/v1/tracks/nope/related/refresh", ""); rec.Code != http.StatusNotFound {
		t.Errorf("refresh unknown status = %d, want 404", rec.Code)
	}
}

func TestStreamFailureEndpoint(t *testing.T) {
	fc := &fakeCatalog{failures: map[string]*domain.Stream{
		"s1": {ID: "s1", TrackID: "t1", HealthScore: 40, FailureCount: 3, IsActive: false},
	}}
	mux := newTestMux(&Handler{Catalog: fc, Store: &fakePinger{}})

	rec := doRequest(mux, http.MethodPost, "/v1/streams/s1/failure", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stream domain.Stream
	if err := json.NewDecoder(rec.Body).Decode(&stream); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stream.IsActive || stream.HealthScore != 40 {
		t.Errorf("stream = %+v", stream)
	}

	if rec := doRequest(mux, http.MethodPost, "/v1/streams/zz/failure", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown stream status = %d, want 404", rec.Code)
	}
}

func TestArtistEndpoint(t *testing.T) {
	fc := &fakeCatalog{artists: map[string]*domain.ArtistInfo{
		"Burna Boy": {Name: "Burna Boy", Albums: []string{"I Told Them..."}},
	}}
	mux := newTestMux(&Handler{Catalog: fc, Store: &fakePinger{}})

	rec := doRequest(mux, http.MethodGet, "/v1/artists/Burna%20Boy", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var info domain.ArtistInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Name != "Burna Boy" {
		t.Errorf("info = %+v", info)
	}

	if rec := doRequest(mux, http.MethodGet, "/v1/artists/nobody", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown artist status = %d, want 404", rec.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	fc := &fakeCatalog{}
	mux := newTestMux(&Handler{Catalog: fc, Store: &fakePinger{}})

	rec := doRequest(mux, http.MethodPost, "/v1/cache/warm?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("warm status = %d", rec.Code)
	}
	var warm map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&warm); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if warm["warmed"] != 5 {
		t.Errorf("warmed = %d, want 5", warm["warmed"])
	}

	if rec := doRequest(mux, http.MethodDelete, "/v1/cache", ""); rec.Code != http.StatusOK {
		t.Errorf("clear status = %d", rec.Code)
	}
	if !fc.cleared {
		t.Error("clear endpoint did not reach the catalog")
	}
}

func TestStatsEndpoint(t *testing.T) {
	mux := newTestMux(&Handler{Catalog: &fakeCatalog{}, Store: &fakePinger{}})

	rec := doRequest(mux, http.MethodGet, "/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats catalog.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Local.Entries != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHealthEndpoints(t *testing.T) {
	fc := &fakeCatalog{}

	mux := newTestMux(&Handler{Catalog: fc, Store: &fakePinger{}, Cache: &fakeMirror{enabled: true}})
	rec := doRequest(mux, http.MethodGet, "/health", "")
	var health struct {
		Status string `json:"status"`
	}
	json.NewDecoder(rec.Body).Decode(&health)
	if rec.Code != http.StatusOK || health.Status != "ok" {
		t.Errorf("healthy: status = %d %q", rec.Code, health.Status)
	}

	// A broken store degrades health but the endpoint stays 200: reads
	// keep working from the caches.
	mux = newTestMux(&Handler{Catalog: fc, Store: &fakePinger{err: errors.New("pg down")}, Cache: &fakeMirror{}})
	rec = doRequest(mux, http.MethodGet, "/health", "")
	json.NewDecoder(rec.Body).Decode(&health)
	if rec.Code != http.StatusOK || health.Status != "degraded" {
		t.Errorf("degraded: status = %d %q", rec.Code, health.Status)
	}

	// Readiness does gate on the store.
	if rec := doRequest(mux, http.MethodGet, "/health/ready", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with store down = %d, want 503", rec.Code)
	}
	if rec := doRequest(mux, http.MethodGet, "/health/live", ""); rec.Code != http.StatusOK {
		t.Errorf("live = %d, want 200", rec.Code)
	}

	// A mirror failure alone also reads as degraded.
	mux = newTestMux(&Handler{Catalog: fc, Store: &fakePinger{}, Cache: &fakeMirror{enabled: true, err: errors.New("redis down")}})
	rec = doRequest(mux, http.MethodGet, "/health", "")
	json.NewDecoder(rec.Body).Decode(&health)
	if health.Status != "degraded" {
		t.Errorf("mirror down: status = %q, want degraded", health.Status)
	}
}
