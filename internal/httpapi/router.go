package httpapi

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hmaung/salesync/internal/sync"
)

// Server wires handlers and middleware using Chi.
type Server struct {
	svc   sync.Service
	store Store
	log   *slog.Logger
	rt    *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by request/response logging and panic recovery.
func New(svc sync.Service, store Store, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	r.Use(authFromEnv())

	s := &Server{
		svc:   svc,
		store: store,
		log:   logger,
		rt:    r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Sync (v1)
	s.rt.With(s.validateSync()).Post("/v1/sync", s.postSync)
	s.rt.Post("/v1/sync/all", s.postSyncAll)
	// Ledger reads (v1)
	s.rt.With(s.validateListEntries()).Get("/v1/entries", s.listEntries)
	s.rt.Get("/v1/orders/{external_id}/entries", s.orderEntries)
	s.rt.Get("/v1/orders/{external_id}/summary", s.orderSummary)
	// Manual splits (v1)
	s.rt.With(s.validatePostSplit()).Post("/v1/entries/{id}/split", s.postSplit)
	// Rules and categories (v1)
	s.rt.With(s.validatePostRule()).Post("/v1/rules", s.postRule)
	s.rt.Get("/v1/rules", s.listRules)
	s.rt.Get("/v1/categories", s.listCategories)
	s.rt.With(s.validatePostCategory()).Post("/v1/categories", s.postCategory)
	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())
}
