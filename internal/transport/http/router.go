package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"idregistry/internal/platform/middleware"
)

// Health reports backend readiness for the health endpoint.
type Health func(r *http.Request) error

// NewRouter wires the registry's public surface. validator may be nil for
// unauthenticated deployments behind a trusted gateway; apiKeyHash may be
// empty to skip the service key check.
func NewRouter(h *Handler, logger *slog.Logger, validator middleware.TokenValidator, apiKeyHash string, health Health) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(req); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/identity", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		if validator != nil {
			r.Use(middleware.RequireAuth(validator, logger))
		}
		if apiKeyHash != "" {
			r.Use(middleware.RequireAPIKey(apiKeyHash))
		}
		r.Post("/", h.handleCreate)
		r.Patch("/", h.handleUpdate)
		r.Get("/{identifier}", h.handleRetrieve)
	})

	return r
}
