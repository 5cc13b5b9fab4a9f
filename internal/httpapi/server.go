// Package httpapi exposes the admission engine and its administrative
// collaborators over HTTP. Authentication is by per-tenant API key; the
// admission endpoints never leak another tenant's state because every
// operation is scoped to the tenant the key resolves to.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tenantgate/tenantgate/internal/store"
	"github.com/tenantgate/tenantgate/pkg/limiter"
)

// Config carries the boundary policies the engine deliberately does not own.
type Config struct {
	// FailOpen selects the availability-over-protection policy: when the
	// counter store is unreachable, check and status answer allowed instead
	// of 503. No counter is consumed in that case.
	FailOpen bool

	// AdminToken guards the tenant administration surface. When empty the
	// surface is open, which is only sensible for local development.
	AdminToken string
}

// Server holds the handler dependencies.
type Server struct {
	cfg    Config
	engine *limiter.Engine
	store  *store.Store
	logger *slog.Logger
}

// New builds a Server. logger may be nil.
func New(cfg Config, engine *limiter.Engine, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, engine: engine, store: st, logger: logger}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public surface.
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Tenant surface, authenticated by API key.
	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Route("/rate-limit", func(r chi.Router) {
			r.Post("/check", s.handleCheck)
			r.Get("/status", s.handleStatus)
			r.Post("/reset", s.handleReset)

			r.Post("/configs", s.handleCreateConfig)
			r.Get("/configs", s.handleListConfigs)
			r.Patch("/configs/{configID}", s.handleUpdateConfig)
			r.Delete("/configs/{configID}", s.handleDeleteConfig)
		})

		r.Get("/metrics/summary", s.handleMetricsSummary)
		r.Get("/metrics/top-resources", s.handleTopResources)
	})

	// Administrative surface.
	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)

		r.Route("/tenants", func(r chi.Router) {
			r.Post("/", s.handleCreateTenant)
			r.Get("/", s.handleListTenants)
			r.Get("/{tenantID}", s.handleGetTenant)
			r.Patch("/{tenantID}", s.handleUpdateTenant)
			r.Delete("/{tenantID}", s.handleDeleteTenant)
			r.Post("/{tenantID}/api-keys", s.handleCreateAPIKey)
			r.Get("/{tenantID}/api-keys", s.handleListAPIKeys)
		})
		r.Post("/api-keys/{keyID}/revoke", s.handleRevokeAPIKey)
		r.Post("/api-keys/{keyID}/activate", s.handleActivateAPIKey)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
