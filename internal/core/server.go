// Package core provides the API chassis for the Bannerly platform.
// It creates a chi router served by the standard net/http server and enforces
// cross-cutting concerns -- logging, authentication, rate limiting, and error
// handling -- before requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bannerly/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
// Implementations record request latency and count to CloudWatch or
// equivalent backends.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates the shared dependencies of the Bannerly API, allowing
// injection during testing and distinct wiring per environment.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator  // Resolves tokens to Actors; injected for testability.
	RateLimits    RateLimitStore // Backing store for per-user rate limiting.
	HealthProbes  []HealthProbe

	// V1RouteRegistrars are populated by the application entry point. This
	// indirection avoids import cycles between core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// WebhookRegistrars mount signature-authenticated endpoints outside the
	// bearer-token surface.
	WebhookRegistrars []func(chi.Router)

	// InternalRouteRegistrars mount operational endpoints under /internal,
	// guarded by the admin API key instead of bearer tokens.
	InternalRouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. Routes are mounted separately (via MountRoutes)
// so tests can customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	return s, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs graceful termination of server-held resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if closer, ok := s.RateLimits.(interface{ Close() }); ok {
		closer.Close()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
