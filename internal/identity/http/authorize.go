package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/service"
	"github.com/brightlock/identity/internal/identity/session"
	"github.com/brightlock/identity/pkg/httpx"
	"github.com/brightlock/identity/pkg/jwtx"
	"github.com/brightlock/identity/pkg/slogx"
)

// AuthorizeHandler serves the authorization endpoint for both the silent
// (session-backed) and the interactive (credential-backed) paths.
type AuthorizeHandler struct {
	Authorize   *service.AuthorizationService
	Credentials *session.CredentialVerifier
	Cookies     *SessionCookies
	Verifier    jwtx.Verifier
}

// HandleGet processes GET requests to the authorization endpoint. With a
// verifiable session the request completes silently; otherwise the caller
// gets a login_required challenge echoing the request parameters.
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	msg := protocol.ParseAuthorizationMessage(r.URL.Query())
	userID := resolveUserID(r, h.Verifier)

	outcome, err := h.Authorize.Authorize(r.Context(), userID, msg)
	if err != nil {
		slogx.FromContext(r.Context()).Error("authorize request failed", "error", err)
		writeServerError(w)
		return
	}

	h.respond(w, r, msg, outcome, nil)
}

// HandlePost processes POST requests to the authorization endpoint, carrying
// credentials in the form body. Protocol parameters may travel in the form or
// the query string; the form wins on conflict.
func (h *AuthorizeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		writeInvalidRequest(w, "Content-Type must be application/x-www-form-urlencoded")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeInvalidRequest(w, "malformed form body")
		return
	}

	msg := protocol.ParseAuthorizationMessage(mergeValues(r.Form, r.URL.Query()))
	username := strings.TrimSpace(r.Form.Get("username"))

	// No credentials submitted: fall back to the session path, same as GET.
	if username == "" {
		userID := resolveUserID(r, h.Verifier)
		outcome, err := h.Authorize.Authorize(r.Context(), userID, msg)
		if err != nil {
			slogx.FromContext(r.Context()).Error("authorize request failed", "error", err)
			writeServerError(w)
			return
		}
		h.respond(w, r, msg, outcome, nil)
		return
	}

	user, err := h.Credentials.Verify(r.Context(), username, r.Form.Get("password"), r.Form.Get("totp_code"))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrMFARequired):
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error":             "mfa_required",
				"error_description": "a totp_code is required to complete authentication",
			})
		case errors.Is(err, session.ErrInvalidCredentials):
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error":             "invalid_grant",
				"error_description": "invalid username or password",
			})
		default:
			slogx.FromContext(r.Context()).Error("credential verification failed", "error", err)
			writeServerError(w)
		}
		return
	}

	outcome, err := h.Authorize.AuthorizeWithLogin(r.Context(), user, msg)
	if err != nil {
		slogx.FromContext(r.Context()).Error("authorize request failed", "error", err)
		writeServerError(w)
		return
	}

	cookie, err := h.Cookies.Issue(r.Context(), user.ID)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to issue session cookie", "error", err)
		writeServerError(w)
		return
	}

	h.respond(w, r, msg, outcome, cookie)
}

func (h *AuthorizeHandler) respond(
	w http.ResponseWriter,
	r *http.Request,
	msg protocol.Message,
	outcome service.AuthorizeOutcome,
	cookie *http.Cookie,
) {
	if cookie != nil {
		http.SetCookie(w, cookie)
	}

	switch {
	case outcome.RedirectURI != "":
		httpx.Redirect(w, r, outcome.RedirectURI)

	case outcome.LoginRequired:
		payload := map[string]any{
			"error":             "login_required",
			"error_description": "user authentication is required",
			"client_id":         msg.ClientID,
			"response_type":     msg.ResponseType,
		}
		if len(msg.Scope) > 0 {
			payload["scope"] = strings.Join(msg.Scope, " ")
		}
		if msg.State != "" {
			payload["state"] = msg.State
		}
		httpx.WriteJSON(w, http.StatusUnauthorized, payload)

	case outcome.Error != nil:
		writeProtocolError(w, outcome.Error)

	default:
		writeServerError(w)
	}
}

// mergeValues overlays primary on top of secondary, dropping empty values.
func mergeValues(primary, secondary url.Values) url.Values {
	merged := url.Values{}
	for key, vals := range secondary {
		merged[key] = vals
	}
	for key, vals := range primary {
		if len(vals) > 0 && vals[0] != "" {
			merged[key] = vals
		}
	}
	return merged
}

// writeProtocolError renders a protocol error locally, for requests that must
// not be delivered through the client's redirect URI.
func writeProtocolError(w http.ResponseWriter, perr *protocol.Error) {
	status := http.StatusBadRequest
	switch perr.Code {
	case protocol.CodeInvalidClient, protocol.CodeLoginRequired:
		status = http.StatusUnauthorized
	case protocol.CodeServerError:
		status = http.StatusInternalServerError
	}

	payload := map[string]string{"error": perr.Code}
	if perr.Description != "" {
		payload["error_description"] = perr.Description
	}
	httpx.WriteJSON(w, status, payload)
}

func writeInvalidRequest(w http.ResponseWriter, description string) {
	httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
		"error":             "invalid_request",
		"error_description": description,
	})
}

func writeServerError(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error":             "server_error",
		"error_description": "the request could not be processed",
	})
}
