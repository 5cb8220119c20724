package http

import (
	"net/http"
	"net/url"

	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/session"
	"github.com/brightlock/identity/pkg/httpx"
	"github.com/brightlock/identity/pkg/jwtx"
	"github.com/brightlock/identity/pkg/slogx"
)

// LogoutHandler serves the end-session endpoint. The browser session cookie
// is always cleared; the grant removal and redirect depend on the validated
// request.
type LogoutHandler struct {
	Sessions *session.Manager
	Validate *protocol.LogoutValidator
	Cookies  *SessionCookies
	Verifier jwtx.Verifier
}

func (h *LogoutHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var params url.Values
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			writeInvalidRequest(w, "malformed form body")
			return
		}
		params = mergeValues(r.Form, r.URL.Query())
	} else {
		params = r.URL.Query()
	}

	msg := protocol.ParseLogoutMessage(params)

	req, err := h.Validate.Validate(r.Context(), msg)
	if err != nil {
		slogx.FromContext(r.Context()).Error("logout validation failed", "error", err)
		writeServerError(w)
		return
	}
	if !req.IsValid() {
		writeProtocolError(w, req.Err())
		return
	}

	userID := resolveUserID(r, h.Verifier)

	result, err := h.Sessions.LogOut(r.Context(), userID, req)
	if err != nil {
		slogx.FromContext(r.Context()).Error("logout failed", "error", err)
		writeServerError(w)
		return
	}

	http.SetCookie(w, h.Cookies.Clear())

	if result.RedirectURI != "" {
		httpx.Redirect(w, r, result.RedirectURI)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "you have been signed out",
	})
}
