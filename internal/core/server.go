// Package core provides the API chassis for the satwallet backend. It
// creates the chi router and enforces cross-cutting concerns -- request
// identity, logging, panic recovery, auth, and telemetry -- before requests
// reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"satwallet/internal/config"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	RecordRequest(method, path string, status int, duration time.Duration)
}

// RouteRegistrar mounts a handler group on the authenticated /v1 subtree.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the HTTP API, allowing injection
// during testing.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   *Metrics

	// V1RouteRegistrars are mounted under /v1 behind bearer auth.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes the chassis. The caller appends V1RouteRegistrars
// and then calls MountRoutes; the separation lets tests customize route
// registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		Metrics:   NewMetrics(),
		router:    chi.NewRouter(),
	}, nil
}

// MountRoutes wires the middleware chain and all registered route groups.
// Health and metrics endpoints are unauthenticated; everything under /v1
// requires the API token.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestID)
	s.router.Use(s.RequestLogger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.BearerAuth)
		for _, register := range s.V1RouteRegistrars {
			register(r)
		}
	})
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server-owned resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
