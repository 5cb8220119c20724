package http

import (
	"net/http"

	"github.com/brightlock/identity/internal/identity/discovery"
	"github.com/brightlock/identity/pkg/httpx"
	"github.com/brightlock/identity/pkg/slogx"
)

// DiscoveryHandler publishes the OpenID Connect provider metadata. A provider
// without signing keys answers 503 rather than advertising endpoints it
// cannot honour.
func DiscoveryHandler(svc *discovery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := svc.Metadata()
		if err != nil {
			slogx.FromContext(r.Context()).Error("discovery metadata unavailable", "error", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error":             "temporarily_unavailable",
				"error_description": "provider configuration is not ready",
			})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, doc)
	}
}

// JWKSHandler exposes the public JSON Web Key Set.
func JWKSHandler(svc *discovery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, svc.JWKS())
	}
}
