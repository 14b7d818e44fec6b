// Package api exposes the catalog over HTTP: search and resolve, track
// and artist lookups, stream failure reports, cache management, and the
// health and metrics endpoints.
package api

import (
	"net/http"

	"github.com/Phoenix-Boss/audioscape/internal/logging"
	"github.com/Phoenix-Boss/audioscape/internal/observability"
)

// StartHTTPServer creates and starts the HTTP server for the given
// handler. The caller owns shutdown.
func StartHTTPServer(addr string, h *Handler) *http.Server {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = observability.HTTPMiddleware(handler)

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return server
}
