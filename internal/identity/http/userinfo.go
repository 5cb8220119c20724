package http

import (
	"errors"
	"net/http"

	"github.com/brightlock/identity/internal/identity/service"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/pkg/httpx"
	"github.com/brightlock/identity/pkg/slogx"
)

// UserInfoHandler serves the OIDC userinfo endpoint. The subject comes from
// the verified bearer token on the request context.
type UserInfoHandler struct {
	Users *service.UserService
}

func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "invalid_token",
			"error_description": "the token carries no subject",
		})
		return
	}

	user, err := h.Users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{
				"error":             "invalid_token",
				"error_description": "the token's subject no longer exists",
			})
			return
		}
		slogx.FromContext(ctx).Error("userinfo lookup failed", "error", err)
		writeServerError(w)
		return
	}

	claims := map[string]any{
		"sub": user.ID,
	}
	if user.PreferredName != "" {
		claims["name"] = user.PreferredName
	}
	if user.Username != "" {
		claims["preferred_username"] = user.Username
	}
	for _, c := range user.Claims {
		claims[c.Type] = c.Value
	}

	httpx.WriteJSON(w, http.StatusOK, claims)
}
