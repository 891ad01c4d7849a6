// Package httptransport is the registry's thin HTTP layer. Handlers decode,
// delegate to the identity service, and render; no reconciliation logic
// lives here.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idregistry/internal/identity"
	"idregistry/internal/identity/service"
	pkgerrors "idregistry/pkg/errors"
)

// Service is what the transport needs from the identity service.
type Service interface {
	Create(ctx context.Context, req identity.Request) (*service.View, error)
	Update(ctx context.Context, req identity.Request) (*service.View, error)
	Retrieve(ctx context.Context, identifier string) (*service.View, error)
}

type Handler struct {
	identity Service
	logger   *slog.Logger
}

func NewHandler(identity Service, logger *slog.Logger) *Handler {
	return &Handler{identity: identity, logger: logger}
}

// identityRequest is the wire form of a create or update submission. The
// identifier travels in the body, never in the URL.
type identityRequest struct {
	Identifier       string              `json:"identifier"`
	RegistrationID   string              `json:"registrationId"`
	Status           string              `json:"status,omitempty"`
	Identity         json.RawMessage     `json:"identity"`
	AnonymousProfile json.RawMessage     `json:"anonymousProfile,omitempty"`
	Documents        []identity.Document `json:"documents,omitempty"`
	Draft            bool                `json:"draft,omitempty"`
}

func (r identityRequest) toDomain() identity.Request {
	return identity.Request{
		Identifier:       r.Identifier,
		RegistrationID:   r.RegistrationID,
		Status:           r.Status,
		Identity:         r.Identity,
		AnonymousProfile: r.AnonymousProfile,
		Documents:        r.Documents,
		Draft:            r.Draft,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, "invalid request body", err))
		return
	}
	view, err := h.identity.Create(r.Context(), req.toDomain())
	if err != nil {
		h.logError(r, "create identity", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, "invalid request body", err))
		return
	}
	view, err := h.identity.Update(r.Context(), req.toDomain())
	if err != nil {
		h.logError(r, "update identity", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	view, err := h.identity.Retrieve(r.Context(), identifier)
	if err != nil {
		h.logError(r, "retrieve identity", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) logError(r *http.Request, op string, err error) {
	code := pkgerrors.CodeOf(err)
	if code == pkgerrors.CodeInternal || code == pkgerrors.CodeProcessingFailed {
		h.logger.ErrorContext(r.Context(), op, "error", err)
		return
	}
	h.logger.WarnContext(r.Context(), op, "error", err, "code", string(code))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorEnvelope is the JSON error contract. The path pinpoints the field or
// document index that caused an input rejection.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	code := pkgerrors.CodeOf(err)
	envelope := errorEnvelope{Error: string(code)}
	var re *pkgerrors.Error
	if errors.As(err, &re) {
		envelope.Message = re.Message
		envelope.Path = re.Path
	}
	writeJSON(w, pkgerrors.ToHTTPStatus(code), envelope)
}
