package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/recordsearch/pkg/health"
	"github.com/utafrali/recordsearch/pkg/middleware"

	"github.com/utafrali/recordsearch/internal/index"
	"github.com/utafrali/recordsearch/internal/service"
)

// NewRouter creates a chi router with all record search routes registered.
func NewRouter(
	searchService *service.Service,
	indexManager *index.Manager,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS)
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("recordsearch"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	searchHandler := NewSearchHandler(searchService, indexManager, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/query", searchHandler.Query)
			r.Put("/records", searchHandler.UpsertRecord)
			r.Delete("/records/{entityName}/{id}", searchHandler.DeleteRecord)
			r.Post("/indices/ensure", searchHandler.EnsureIndex)
			r.Post("/reindex", searchHandler.Reindex)
		})
	})

	return r
}
