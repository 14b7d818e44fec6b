package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/catalog"
	"github.com/Phoenix-Boss/audioscape/internal/domain"
	"github.com/Phoenix-Boss/audioscape/internal/metrics"
	"github.com/Phoenix-Boss/audioscape/internal/resolver"
)

// Catalog is the slice of the catalog manager the handlers use.
// *catalog.Manager satisfies it.
type Catalog interface {
	GetSearch(ctx context.Context, rawQuery string) (*domain.SearchResult, error)
	SaveSearch(ctx context.Context, rawQuery string, meta *domain.TrackMetadata, streamMeta *domain.StreamMetadata) (*domain.SearchResult, error)
	GetTrack(ctx context.Context, id string) (*domain.Track, error)
	GetTrackWithStream(ctx context.Context, id string) (*domain.Track, *domain.Stream, error)
	GetRelatedTracks(ctx context.Context, trackID string, limit int) ([]*domain.RelatedTrack, error)
	CacheRelatedTracks(ctx context.Context, trackID string) error
	ReportStreamFailure(ctx context.Context, streamID string) (*domain.Stream, error)
	GetArtist(ctx context.Context, name string) (*domain.ArtistInfo, error)
	WarmCache(ctx context.Context, limit int) (int, error)
	Stats(ctx context.Context) *catalog.Stats
	ClearAll(ctx context.Context) error
}

// QueryResolver resolves a query against the providers. Satisfied by
// *resolver.Resolver; nil turns POST /v1/search into a cache-only call.
type QueryResolver interface {
	Resolve(ctx context.Context, query string) (*resolver.Resolution, error)
}

// Pinger reports durable store connectivity for the health probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MirrorStatus reports cache mirror connectivity for the health probes.
type MirrorStatus interface {
	MirrorEnabled() bool
	PingMirror(ctx context.Context) error
}

// Handler handles catalog HTTP requests.
type Handler struct {
	Catalog  Catalog
	Resolver QueryResolver
	Store    Pinger
	Cache    MirrorStatus
}

// RegisterRoutes registers all routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Search
	mux.HandleFunc("GET /v1/search", h.GetSearch)
	mux.HandleFunc("POST /v1/search", h.ResolveSearch)

	// Tracks
	mux.HandleFunc("GET /v1/tracks/{id}", h.GetTrack)
	mux.HandleFunc("GET /v1/tracks/{id}/related", h.GetRelatedTracks)
	mux.HandleFunc("POST /v1/tracks/{id}/related/refresh", h.RefreshRelated)

	// Streams
	mux.HandleFunc("POST /v1/streams/{id}/failure", h.ReportStreamFailure)

	// Artists
	mux.HandleFunc("GET /v1/artists/{name}", h.GetArtist)

	// Cache management
	mux.HandleFunc("POST /v1/cache/warm", h.WarmCache)
	mux.HandleFunc("DELETE /v1/cache", h.ClearCache)

	// Observability
	mux.HandleFunc("GET /v1/stats", h.Stats)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)
	mux.Handle("GET /metrics", metrics.PrometheusHandler())
}

// GetSearch handles GET /v1/search?q= - cache tiers only, never the
// providers. A miss tells the client to POST the query for a resolve.
func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	result, err := h.Catalog.GetSearch(r.Context(), query)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			http.Error(w, "not cached", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, result)
}

// ResolveSearch handles POST /v1/search - cache tiers first, then a
// provider resolve whose result is persisted before it is returned.
func (h *Handler) ResolveSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	result, err := h.Catalog.GetSearch(r.Context(), req.Query)
	if err == nil {
		writeJSON(w, result)
		return
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Resolver == nil {
		http.Error(w, "no providers configured", http.StatusServiceUnavailable)
		return
	}
	resolution, err := h.Resolver.Resolve(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, resolver.ErrNoResult) {
			http.Error(w, "no provider had a match", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	result, err = h.Catalog.SaveSearch(r.Context(), req.Query, resolution.Track, resolution.Stream)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

// GetTrack handles GET /v1/tracks/{id}. With ?stream=1 the response also
// carries the current best stream.
func (h *Handler) GetTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if wantStream(r) {
		track, stream, err := h.Catalog.GetTrackWithStream(r.Context(), id)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, struct {
			Track  *domain.Track  `json:"track"`
			Stream *domain.Stream `json:"stream,omitempty"`
		}{track, stream})
		return
	}

	track, err := h.Catalog.GetTrack(r.Context(), id)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, track)
}

// GetRelatedTracks handles GET /v1/tracks/{id}/related?limit=
func (h *Handler) GetRelatedTracks(w http.ResponseWriter, r *http.Request) {
	related, err := h.Catalog.GetRelatedTracks(r.Context(), r.PathValue("id"), queryInt(r, "limit"))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	if related == nil {
		related = []*domain.RelatedTrack{}
	}
	writeJSON(w, related)
}

// RefreshRelated handles POST /v1/tracks/{id}/related/refresh - runs
// related-track enrichment synchronously.
func (h *Handler) RefreshRelated(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.CacheRelatedTracks(r.Context(), r.PathValue("id")); err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "refreshed"})
}

// ReportStreamFailure handles POST /v1/streams/{id}/failure
func (h *Handler) ReportStreamFailure(w http.ResponseWriter, r *http.Request) {
	stream, err := h.Catalog.ReportStreamFailure(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, stream)
}

// GetArtist handles GET /v1/artists/{name}
func (h *Handler) GetArtist(w http.ResponseWriter, r *http.Request) {
	info, err := h.Catalog.GetArtist(r.Context(), r.PathValue("name"))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, info)
}

// WarmCache handles POST /v1/cache/warm?limit=
func (h *Handler) WarmCache(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit")
	if limit <= 0 {
		limit = 20
	}
	warmed, err := h.Catalog.WarmCache(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"warmed": warmed})
}

// ClearCache handles DELETE /v1/cache - drops local and mirrored entries,
// never durable rows.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.ClearAll(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "cleared"})
}

// Stats handles GET /v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Catalog.Stats(r.Context()))
}

// Health handles GET /health - detailed status. Always 200; a broken
// store or mirror reads as degraded because the cache tiers keep serving.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	storeOK := h.Store.Ping(ctx) == nil
	mirrorOK := true
	mirrorEnabled := h.Cache != nil && h.Cache.MirrorEnabled()
	if mirrorEnabled {
		mirrorOK = h.Cache.PingMirror(ctx) == nil
	}

	status := "ok"
	if !storeOK || !mirrorOK {
		status = "degraded"
	}
	writeJSON(w, map[string]interface{}{
		"status": status,
		"components": map[string]interface{}{
			"store":          storeOK,
			"mirror_enabled": mirrorEnabled,
			"mirror":         mirrorOK,
		},
	})
}

// HealthLive handles GET /health/live - liveness probe.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready - readiness probe. Not ready
// until the durable store answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "not_ready",
			"error":  "store unavailable: " + err.Error(),
		})
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeCatalogError maps catalog errors onto status codes: unknown IDs
// and names are 404, everything else is a bad request.
func writeCatalogError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func wantStream(r *http.Request) bool {
	switch r.URL.Query().Get("stream") {
	case "1", "true", "yes":
		return true
	}
	return false
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
