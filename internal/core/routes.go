package core

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"herald/internal/types"
)

// MountRoutes registers the global middleware chain, the /v1 handler
// groups, and the top-level health endpoint.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", s.mountV1)
	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order: request ids
// first so every later stage logs with one, RealIP before logging so
// remote_addr reflects the client behind a proxy, the recoverer inside
// both so panics are logged with full request context.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(RequestIDMiddleware)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.Recoverer)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(SecurityHeaders)
}

// mountV1 runs the registrars the entry point installed. The indirection
// keeps core free of handler imports.
func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

// RequestIDMiddleware reuses an incoming X-Request-Id or mints a fresh
// UUID, stores it in the context, and echoes it on the response so clients
// can correlate.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
