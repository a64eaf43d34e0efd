package core

import (
	"net/http"
	"strings"

	"herald/internal/types"
)

// BearerSecret extracts the secret from an Authorization header of the
// form "Bearer <secret>" (scheme matched case-insensitively per RFC 7235).
// Returns the empty string for a missing or malformed header; the
// credential index turns that into auth_secret_missing.
func BearerSecret(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// RequireSecret resolves the presented bearer secret and stores the
// resulting actor in the request context. It guards the observability
// routes; the dispatch endpoint authenticates inside the pipeline, which
// also owns rate limiting.
func (s *Server) RequireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Auth == nil {
			// Fail closed: an unwired authenticator must not expose the ledger.
			Error(w, r, types.NewAppError(types.ErrCodeInternalConfig,
				"authentication is not configured", nil))
			return
		}

		res, err := s.Auth.Resolve(BearerSecret(r))
		if err != nil {
			Error(w, r, err)
			return
		}

		ctx := types.WithActor(r.Context(), res.Actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
