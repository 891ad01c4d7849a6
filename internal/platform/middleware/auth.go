package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"idregistry/pkg/platform/secrets"
	"idregistry/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns the acting principal.
type TokenValidator interface {
	ValidateToken(tokenString string) (subject string, err error)
}

// RequireAuth validates the Authorization bearer token and records the
// acting principal in context for audit fields.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			subject, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.WarnContext(r.Context(), "rejected bearer token",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err,
				)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			ctx := requestcontext.WithActor(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAPIKey verifies the X-Api-Key header against the configured bcrypt
// hash. An empty hash disables the check (dev only).
func RequireAPIKey(apiKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKeyHash != "" {
				if err := secrets.Verify(r.Header.Get("X-Api-Key"), apiKeyHash); err != nil {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
