// Package httpapi wires the search and ingest coordinators, and the
// manifest store, behind the wire routes of spec.md §6.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cascad/grepzilla/internal/ingest"
	"github.com/cascad/grepzilla/internal/manifest"
	"github.com/cascad/grepzilla/internal/obs"
	"github.com/cascad/grepzilla/internal/search"
)

// api bundles the dependencies every handler needs.
type api struct {
	search   *search.Coordinator
	ingest   *ingest.Coordinator
	manifest *manifest.Store
}

// NewRouter builds the chi router for the four documented routes.
// manifestStore may be nil, in which case GET /manifest/{shard} always
// 404s.
func NewRouter(searchCoord *search.Coordinator, ingestCoord *ingest.Coordinator, manifestStore *manifest.Store) http.Handler {
	a := &api{search: searchCoord, ingest: ingestCoord, manifest: manifestStore}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/search", a.handleSearch)
	r.Post("/ingest", a.handleIngest)
	r.Get("/manifest/{shard}", a.handleManifest)
	r.Get("/healthz", a.handleHealthz)

	return r
}

// requestLogger logs each request's method, path, status, and latency
// through the "httpapi" component logger.
func requestLogger(next http.Handler) http.Handler {
	logger := obs.New("httpapi")
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		logger.Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
