package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/service"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/pkg/httpx"
	"github.com/brightlock/identity/pkg/slogx"
)

// ApplicationsHandler serves the client application management API. Writes
// against existing records carry the concurrency stamp the caller last read;
// a stale stamp answers 409.
type ApplicationsHandler struct {
	Applications *service.ApplicationService
}

type claimPayload struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type redirectURIPayload struct {
	Value    string `json:"value"`
	IsLogout bool   `json:"is_logout,omitempty"`
}

type createApplicationRequest struct {
	Name         string               `json:"name"`
	Confidential bool                 `json:"confidential"`
	Scopes       []string             `json:"scopes"`
	Claims       []claimPayload       `json:"claims,omitempty"`
	RedirectURIs []redirectURIPayload `json:"redirect_uris,omitempty"`
}

type updateApplicationRequest struct {
	Name             string               `json:"name"`
	Enabled          bool                 `json:"enabled"`
	Scopes           []string             `json:"scopes"`
	Claims           []claimPayload       `json:"claims,omitempty"`
	RedirectURIs     []redirectURIPayload `json:"redirect_uris,omitempty"`
	ConcurrencyStamp string               `json:"concurrency_stamp"`
}

type applicationResponse struct {
	ID               string               `json:"id"`
	ClientID         string               `json:"client_id"`
	Name             string               `json:"name"`
	Confidential     bool                 `json:"confidential"`
	Enabled          bool                 `json:"enabled"`
	Scopes           []string             `json:"scopes"`
	Claims           []claimPayload       `json:"claims,omitempty"`
	RedirectURIs     []redirectURIPayload `json:"redirect_uris,omitempty"`
	ConcurrencyStamp string               `json:"concurrency_stamp"`
	CreatedAt        string               `json:"created_at"`

	// ClientSecret is present only on the response that created or
	// regenerated it.
	ClientSecret string `json:"client_secret,omitempty"`
}

// HandleCreate handles POST /v1/applications.
func (h *ApplicationsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "invalid JSON in request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeInvalidRequest(w, "name is required")
		return
	}

	app, secret, err := h.Applications.CreateApplication(ctx, service.CreateApplicationInput{
		Name:         req.Name,
		Confidential: req.Confidential,
		Scopes:       req.Scopes,
		Claims:       claimsFromPayload(req.Claims),
		RedirectURIs: redirectURIsFromPayload(req.RedirectURIs),
	})
	if err != nil {
		if errors.Is(err, service.ErrNameRequired) {
			writeInvalidRequest(w, "name is required")
			return
		}
		slogx.FromContext(ctx).Error("failed to create application", "error", err)
		writeServerError(w)
		return
	}

	resp := toApplicationResponse(app)
	resp.ClientSecret = secret
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// HandleList handles GET /v1/applications.
func (h *ApplicationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	apps, err := h.Applications.ListApplications(ctx)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list applications", "error", err)
		writeServerError(w)
		return
	}

	out := make([]applicationResponse, len(apps))
	for i, app := range apps {
		out[i] = toApplicationResponse(app)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"applications": out})
}

// HandleGet handles GET /v1/applications/{id}.
func (h *ApplicationsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	app, err := h.Applications.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

// HandleUpdate handles PUT /v1/applications/{id}. The body carries the
// concurrency stamp the caller read; losing the optimistic lock answers 409
// with the current record so the caller can reapply.
func (h *ApplicationsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req updateApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "invalid JSON in request body")
		return
	}
	if req.ConcurrencyStamp == "" {
		writeInvalidRequest(w, "concurrency_stamp is required")
		return
	}

	current, err := h.Applications.GetApplication(ctx, id)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}

	current.Name = req.Name
	current.Enabled = req.Enabled
	current.Scopes = req.Scopes
	current.Claims = claimsFromPayload(req.Claims)
	current.RedirectURIs = redirectURIsFromPayload(req.RedirectURIs)
	current.ConcurrencyStamp = req.ConcurrencyStamp

	updated, err := h.Applications.UpdateApplication(ctx, current)
	if err != nil {
		if errors.Is(err, service.ErrStaleRecord) {
			h.writeConflict(w, r, id)
			return
		}
		slogx.FromContext(ctx).Error("failed to update application", "error", err, "application_id", id)
		writeServerError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toApplicationResponse(updated))
}

// HandleDelete handles DELETE /v1/applications/{id}. The stamp travels in the
// If-Match header.
func (h *ApplicationsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	stamp := strings.TrimSpace(r.Header.Get("If-Match"))
	if stamp == "" {
		writeInvalidRequest(w, "If-Match header with the concurrency stamp is required")
		return
	}

	if err := h.Applications.DeleteApplication(ctx, id, stamp); err != nil {
		switch {
		case errors.Is(err, service.ErrStaleRecord):
			h.writeConflict(w, r, id)
		case errors.Is(err, store.ErrNotFound):
			h.writeLookupError(w, r, err)
		default:
			slogx.FromContext(ctx).Error("failed to delete application", "error", err, "application_id", id)
			writeServerError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRegenerateSecret handles POST /v1/applications/{id}/secret.
func (h *ApplicationsHandler) HandleRegenerateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	stamp := strings.TrimSpace(r.Header.Get("If-Match"))
	if stamp == "" {
		writeInvalidRequest(w, "If-Match header with the concurrency stamp is required")
		return
	}

	secret, err := h.Applications.RegenerateSecret(ctx, id, stamp)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStaleRecord):
			h.writeConflict(w, r, id)
		case errors.Is(err, store.ErrNotFound):
			h.writeLookupError(w, r, err)
		default:
			slogx.FromContext(ctx).Error("failed to regenerate secret", "error", err, "application_id", id)
			writeServerError(w)
		}
		return
	}

	app, err := h.Applications.GetApplication(ctx, id)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}

	resp := toApplicationResponse(app)
	resp.ClientSecret = secret
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// writeConflict answers 409 carrying the current record, so the caller can
// rebase onto the fresh stamp.
func (h *ApplicationsHandler) writeConflict(w http.ResponseWriter, r *http.Request, id string) {
	payload := map[string]any{
		"error":             "stale_record",
		"error_description": "the record was modified by another request; re-read and retry",
	}
	if current, err := h.Applications.GetApplication(r.Context(), id); err == nil {
		payload["current"] = toApplicationResponse(current)
	}
	httpx.WriteJSON(w, http.StatusConflict, payload)
}

func (h *ApplicationsHandler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error":             "not_found",
			"error_description": "no such application",
		})
		return
	}
	slogx.FromContext(r.Context()).Error("application lookup failed", "error", err)
	writeServerError(w)
}

func toApplicationResponse(app domain.Application) applicationResponse {
	resp := applicationResponse{
		ID:               app.ID,
		ClientID:         app.ClientID,
		Name:             app.Name,
		Confidential:     !app.IsPublic(),
		Enabled:          app.Enabled,
		Scopes:           app.Scopes,
		ConcurrencyStamp: app.ConcurrencyStamp,
		CreatedAt:        app.CreatedAt.Format(time.RFC3339),
	}
	for _, c := range app.Claims {
		resp.Claims = append(resp.Claims, claimPayload{Type: c.Type, Value: c.Value})
	}
	for _, u := range app.RedirectURIs {
		resp.RedirectURIs = append(resp.RedirectURIs, redirectURIPayload{Value: u.Value, IsLogout: u.IsLogout})
	}
	return resp
}

func claimsFromPayload(in []claimPayload) []domain.Claim {
	out := make([]domain.Claim, len(in))
	for i, c := range in {
		out[i] = domain.Claim{Type: c.Type, Value: c.Value}
	}
	return out
}

func redirectURIsFromPayload(in []redirectURIPayload) []domain.RedirectURI {
	out := make([]domain.RedirectURI, len(in))
	for i, u := range in {
		out[i] = domain.RedirectURI{Value: u.Value, IsLogout: u.IsLogout}
	}
	return out
}
