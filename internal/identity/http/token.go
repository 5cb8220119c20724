package http

import (
	"net/http"
	"strings"

	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/response"
	"github.com/brightlock/identity/internal/identity/service"
	"github.com/brightlock/identity/pkg/httpx"
	"github.com/brightlock/identity/pkg/slogx"
)

// TokenHandler serves the token endpoint for every supported grant type.
type TokenHandler struct {
	Exchange  *service.TokenExchangeService
	Responses response.TokenResponseFactory
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		writeInvalidRequest(w, "Content-Type must be application/x-www-form-urlencoded")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeInvalidRequest(w, "malformed form body")
		return
	}

	msg := protocol.ParseTokenMessage(r.Form)

	resp, perr, err := h.Exchange.Exchange(r.Context(), msg)
	if err != nil {
		slogx.FromContext(r.Context()).Error("token exchange failed",
			"error", err,
			"grant_type", msg.GrantType,
		)
		writeServerError(w)
		return
	}
	if perr != nil {
		body, status := h.Responses.Failure(perr)
		httpx.WriteJSON(w, status, body)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// RevokeHandler revokes a refresh token (RFC 7009). Per the RFC the endpoint
// answers 200 even for tokens it does not recognise.
type RevokeHandler struct {
	Exchange *service.TokenExchangeService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeInvalidRequest(w, "malformed form body")
		return
	}

	raw := strings.TrimSpace(r.Form.Get("token"))
	if raw == "" {
		writeInvalidRequest(w, "token is required")
		return
	}

	if err := h.Exchange.RevokeRefreshToken(r.Context(), raw); err != nil {
		slogx.FromContext(r.Context()).Debug("revocation ignored unknown token", "error", err)
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
}
