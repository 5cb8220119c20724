// Package http exposes the identity server over HTTP: the OAuth2/OIDC
// endpoints, the management API, discovery, and health probes.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/brightlock/identity/internal/identity/discovery"
	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/service"
	"github.com/brightlock/identity/internal/identity/session"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/pkg/httpx"
	"github.com/brightlock/identity/pkg/jwtx"
	"github.com/brightlock/identity/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	AuthorizeService   *service.AuthorizationService
	ExchangeService    *service.TokenExchangeService
	ApplicationService *service.ApplicationService
	UserService        *service.UserService
	SessionManager     *session.Manager
	CredentialVerifier *session.CredentialVerifier
	DiscoveryService   *discovery.Service
	LogoutValidator    *protocol.LogoutValidator
	SessionCookies     *SessionCookies
}

func NewRouter(
	verifier jwtx.Verifier,
	issuer, buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerWellKnown()
	r.registerUserinfo()
	r.registerApplications()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	authorizeHandler := &AuthorizeHandler{
		Authorize:   r.AuthorizeService,
		Credentials: r.CredentialVerifier,
		Cookies:     r.SessionCookies,
		Verifier:    r.verifier,
	}

	// GET /authorize mostly redirects or renders the login prompt.
	r.Mux.Handle("GET /v1/oauth2/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandleGet),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /authorize carries credentials; keyed by IP plus username so one
	// address cannot spray attempts across many accounts.
	r.Mux.Handle("POST /v1/oauth2/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandlePost),
			httpx.RateLimit(httpx.StrictLimit, httpx.FormFieldKeyExtractor("username")),
		),
	)

	tokenHandler := &TokenHandler{Exchange: r.ExchangeService}
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	revokeHandler := &RevokeHandler{Exchange: r.ExchangeService}
	r.Mux.Handle("POST /v1/oauth2/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	logoutHandler := &LogoutHandler{
		Sessions: r.SessionManager,
		Validate: r.LogoutValidator,
		Cookies:  r.SessionCookies,
		Verifier: r.verifier,
	}
	r.Mux.Handle("GET /v1/oauth2/logout",
		httpx.Chain(http.HandlerFunc(logoutHandler.Handle),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /v1/oauth2/logout",
		httpx.Chain(http.HandlerFunc(logoutHandler.Handle),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerWellKnown() {
	r.Mux.Handle("GET /.well-known/openid-configuration",
		httpx.Chain(DiscoveryHandler(r.DiscoveryService),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.DiscoveryService),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerUserinfo() {
	h := &UserInfoHandler{Users: r.UserService}

	secured := httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope("openid", "profile"),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /v1/oauth2/userinfo", secured)
}

func (r *Router) registerApplications() {
	h := &ApplicationsHandler{Applications: r.ApplicationService}

	write := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope("applications:write"),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}
	read := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope("applications:read", "applications:write"),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/applications", write(http.HandlerFunc(h.HandleCreate)))
	r.Mux.Handle("GET /v1/applications", read(http.HandlerFunc(h.HandleList)))
	r.Mux.Handle("GET /v1/applications/{id}", read(http.HandlerFunc(h.HandleGet)))
	r.Mux.Handle("PUT /v1/applications/{id}", write(http.HandlerFunc(h.HandleUpdate)))
	r.Mux.Handle("DELETE /v1/applications/{id}", write(http.HandlerFunc(h.HandleDelete)))
	r.Mux.Handle("POST /v1/applications/{id}/secret", write(http.HandlerFunc(h.HandleRegenerateSecret)))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.DiscoveryService),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
