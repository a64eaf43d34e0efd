// Package core provides the HTTP chassis for the herald service. It owns
// the chi router, the cross-cutting middleware (request ids, recovery,
// request logging, bearer-secret auth), the response envelopes, and the
// health endpoint. Domain handlers mount themselves through route
// registrars so core never imports handler packages.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"herald/internal/auth"
	"herald/internal/config"
	"herald/internal/types"
)

// Authenticator resolves a presented secret to an identity. It decouples
// the HTTP layer from the credential index so middleware tests can script
// identities; *auth.Index satisfies it.
type Authenticator interface {
	Resolve(presented string) (*auth.Resolution, error)
}

// Server bundles the dependencies of the HTTP surface. Exported fields are
// wired by the entry point before MountRoutes.
type Server struct {
	Config *config.Config
	Ledger types.MessageLedger
	Logger *slog.Logger

	// Auth backs the bearer-secret middleware on the observability routes.
	Auth Authenticator

	// V1RouteRegistrars mount domain handlers under /v1. Populated by the
	// entry point to avoid an import cycle between core and handlers.
	V1RouteRegistrars []func(chi.Router)

	// HealthProbes are checked by GET /health.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer validates the required dependencies and prepares the router.
// Routes are mounted separately so the entry point can register handlers
// and probes first.
func NewServer(cfg *config.Config, ledger types.MessageLedger, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Ledger: ledger,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for the HTTP server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server-held resources. The ledger stores expose Close
// on their concrete types rather than on the MessageLedger contract, so the
// capability is probed here.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if closer, ok := s.Ledger.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.Logger.Error("error closing ledger store", "error", err)
			return fmt.Errorf("closing ledger store: %w", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
