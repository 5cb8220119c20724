package protocol

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/pkg/cryptox"
)

// ClientValidator resolves and authenticates client applications. The found
// flag separates "no such client" from infrastructure failures.
type ClientValidator interface {
	ValidateClientID(ctx context.Context, clientID string) (domain.Application, bool, error)

	// ValidateCredentials authenticates a confidential client. found is
	// false when the client is unknown OR the secret does not match; callers
	// must not distinguish the two.
	ValidateCredentials(ctx context.Context, clientID, clientSecret string) (domain.Application, bool, error)
}

// ScopeResolver decides which requested scopes are grantable for a client.
type ScopeResolver interface {
	// Resolve returns the granted scopes, or ok=false when a requested scope
	// cannot be resolved for this client.
	Resolve(ctx context.Context, app domain.Application, requested []string) (scopes []string, ok bool, err error)
}

// StoreClientValidator is the store-backed ClientValidator.
type StoreClientValidator struct {
	Store store.Store
}

func (v *StoreClientValidator) ValidateClientID(ctx context.Context, clientID string) (domain.Application, bool, error) {
	app, err := v.Store.Applications().GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Application{}, false, nil
		}
		return domain.Application{}, false, err
	}
	return app, true, nil
}

func (v *StoreClientValidator) ValidateCredentials(ctx context.Context, clientID, clientSecret string) (domain.Application, bool, error) {
	app, found, err := v.ValidateClientID(ctx, clientID)
	if err != nil || !found {
		return domain.Application{}, false, err
	}

	if app.SecretHash == "" {
		// Public clients have no credential to check.
		return app, true, nil
	}
	if clientSecret == "" || cryptox.VerifySecret(clientSecret, app.SecretHash) != nil {
		return domain.Application{}, false, nil
	}
	return app, true, nil
}

// DefaultScopeResolver grants a requested scope when the client registered it.
// The openid and offline_access protocol scopes are always resolvable.
type DefaultScopeResolver struct{}

func (DefaultScopeResolver) Resolve(_ context.Context, app domain.Application, requested []string) ([]string, bool, error) {
	if len(requested) == 0 {
		return slices.Clone(app.Scopes), true, nil
	}

	granted := make([]string, 0, len(requested))
	for _, s := range requested {
		if slices.Contains(granted, s) {
			continue
		}
		if s == ScopeOpenID || s == ScopeOfflineAccess || slices.Contains(app.Scopes, s) {
			granted = append(granted, s)
			continue
		}
		return nil, false, nil
	}
	return granted, true, nil
}

// AuthorizationValidator validates authorize endpoint messages.
type AuthorizationValidator struct {
	Clients ClientValidator
	Scopes  ScopeResolver
}

// Validate turns a raw message into an AuthorizationRequest. Protocol
// failures come back inside an invalid request; the error return is for
// infrastructure failures only.
func (v *AuthorizationValidator) Validate(ctx context.Context, msg Message) (AuthorizationRequest, error) {
	if msg.ClientID == "" {
		return InvalidAuthorizationRequest(msg, InvalidRedirectURI("client_id is required")), nil
	}

	app, found, err := v.Clients.ValidateClientID(ctx, msg.ClientID)
	if err != nil {
		return AuthorizationRequest{}, err
	}
	if !found {
		return InvalidAuthorizationRequest(msg, InvalidClient("unknown client")), nil
	}
	if !app.Enabled {
		return InvalidAuthorizationRequest(msg, InvalidClient("client is disabled")), nil
	}

	// The redirect URI must exactly match a registered authorization URI
	// before any error may be delivered through it.
	if msg.RedirectURI == "" {
		return InvalidAuthorizationRequest(msg, InvalidRedirectURI("redirect_uri is required")), nil
	}
	if !slices.Contains(app.AuthorizationRedirectURIs(), msg.RedirectURI) {
		return InvalidAuthorizationRequest(msg, InvalidRedirectURI("redirect_uri is not registered for this client")), nil
	}

	responseTypes, rtErr := validateResponseTypes(msg)
	if rtErr != nil {
		return InvalidAuthorizationRequest(msg, rtErr), nil
	}

	if pErr := validatePrompt(msg.Prompt); pErr != nil {
		return InvalidAuthorizationRequest(msg, pErr), nil
	}

	responseMode, rmErr := resolveResponseMode(msg, responseTypes)
	if rmErr != nil {
		return InvalidAuthorizationRequest(msg, rmErr), nil
	}

	scopes, ok, err := v.Scopes.Resolve(ctx, app, msg.Scope)
	if err != nil {
		return AuthorizationRequest{}, err
	}
	if !ok || len(scopes) == 0 {
		return InvalidAuthorizationRequest(msg, InvalidScope("requested scopes cannot be granted to this client")), nil
	}

	if slices.Contains(responseTypes, ResponseTypeIDToken) {
		if !slices.Contains(scopes, ScopeOpenID) {
			return InvalidAuthorizationRequest(msg, InvalidScope("id_token requires the openid scope")), nil
		}
		if msg.Nonce == "" && !slices.Contains(responseTypes, ResponseTypeCode) {
			return InvalidAuthorizationRequest(msg, InvalidRequest("nonce is required for implicit id_token requests")), nil
		}
	}

	return ValidAuthorizationRequest(msg, RequestGrants{
		RedirectURI:   msg.RedirectURI,
		ResponseTypes: responseTypes,
		ResponseMode:  responseMode,
		Scopes:        scopes,
		Nonce:         msg.Nonce,
	}), nil
}

// TokenValidator validates token endpoint messages: grant type, client
// authentication, and parameter shape. Redeeming the code or refresh token
// itself is the exchange service's job.
type TokenValidator struct {
	Clients ClientValidator
	Scopes  ScopeResolver
}

func (v *TokenValidator) Validate(ctx context.Context, msg Message) (TokenRequest, error) {
	switch msg.GrantType {
	case GrantAuthorizationCode, GrantRefreshToken, GrantClientCredentials:
	case "":
		return InvalidTokenRequest(msg, InvalidRequest("grant_type is required")), nil
	default:
		return InvalidTokenRequest(msg, UnsupportedGrantType(msg.GrantType)), nil
	}

	if msg.ClientID == "" {
		return InvalidTokenRequest(msg, InvalidClient("client_id is required")), nil
	}

	app, found, err := v.Clients.ValidateClientID(ctx, msg.ClientID)
	if err != nil {
		return TokenRequest{}, err
	}
	if !found || !app.Enabled {
		return InvalidTokenRequest(msg, InvalidClient("unknown client")), nil
	}

	// Confidential clients authenticate on every token request.
	if !app.IsPublic() {
		_, ok, err := v.Clients.ValidateCredentials(ctx, msg.ClientID, msg.ClientSecret)
		if err != nil {
			return TokenRequest{}, err
		}
		if !ok {
			return InvalidTokenRequest(msg, InvalidClient("client authentication failed")), nil
		}
	}

	grants := RequestGrants{GrantType: msg.GrantType}

	switch msg.GrantType {
	case GrantAuthorizationCode:
		if msg.Code == "" || msg.RedirectURI == "" {
			return InvalidTokenRequest(msg, InvalidRequest("code and redirect_uri are required")), nil
		}

	case GrantRefreshToken:
		if msg.RefreshToken == "" {
			return InvalidTokenRequest(msg, InvalidRequest("refresh_token is required")), nil
		}

	case GrantClientCredentials:
		if app.IsPublic() {
			return InvalidTokenRequest(msg, InvalidClient("client_credentials requires a confidential client")), nil
		}
		scopes, ok, err := v.Scopes.Resolve(ctx, app, msg.Scope)
		if err != nil {
			return TokenRequest{}, err
		}
		if !ok {
			return InvalidTokenRequest(msg, InvalidScope("requested scopes cannot be granted to this client")), nil
		}
		grants.Scopes = scopes
	}

	return ValidTokenRequest(msg, grants), nil
}

// LogoutValidator validates end-session messages. A request without client
// context is valid but carries no redirect: the caller shows a local
// confirmation instead.
type LogoutValidator struct {
	Clients ClientValidator
}

func (v *LogoutValidator) Validate(ctx context.Context, msg Message) (LogoutRequest, error) {
	if msg.PostLogoutRedirectURI == "" {
		return ValidLogoutRequest(msg, ""), nil
	}

	if msg.ClientID == "" {
		return InvalidLogoutRequest(msg, InvalidRedirectURI("client_id is required to use post_logout_redirect_uri")), nil
	}

	app, found, err := v.Clients.ValidateClientID(ctx, msg.ClientID)
	if err != nil {
		return LogoutRequest{}, err
	}
	if !found {
		return InvalidLogoutRequest(msg, InvalidClient("unknown client")), nil
	}

	if !slices.Contains(app.LogoutRedirectURIs(), msg.PostLogoutRedirectURI) {
		return InvalidLogoutRequest(msg, InvalidRedirectURI("post_logout_redirect_uri is not registered for this client")), nil
	}

	return ValidLogoutRequest(msg, msg.PostLogoutRedirectURI), nil
}

func validateResponseTypes(msg Message) ([]string, *Error) {
	types := msg.ResponseTypes()
	if len(types) == 0 {
		return nil, InvalidRequest("response_type is required")
	}

	seen := make([]string, 0, len(types))
	for _, t := range types {
		switch t {
		case ResponseTypeCode, ResponseTypeToken, ResponseTypeIDToken:
		default:
			return nil, UnsupportedResponseType(msg.ResponseType)
		}
		if slices.Contains(seen, t) {
			return nil, InvalidRequest("duplicate response_type value")
		}
		seen = append(seen, t)
	}
	return seen, nil
}

func validatePrompt(prompt string) *Error {
	if prompt == "" {
		return nil
	}

	values := strings.Fields(prompt)
	for _, p := range values {
		switch p {
		case PromptNone, PromptLogin, PromptConsent:
		default:
			return InvalidRequest("unsupported prompt value")
		}
	}
	if len(values) > 1 && slices.Contains(values, PromptNone) {
		return InvalidRequest("prompt=none cannot be combined with other prompt values")
	}
	return nil
}

// resolveResponseMode picks query for pure code responses and fragment as
// soon as a token travels in the redirect. An explicit query mode with
// tokens in the response is rejected outright.
func resolveResponseMode(msg Message, responseTypes []string) (string, *Error) {
	tokensInRedirect := slices.Contains(responseTypes, ResponseTypeToken) ||
		slices.Contains(responseTypes, ResponseTypeIDToken)

	switch msg.ResponseMode {
	case "":
		if tokensInRedirect {
			return ResponseModeFragment, nil
		}
		return ResponseModeQuery, nil
	case ResponseModeQuery:
		if tokensInRedirect {
			return "", InvalidRequest("response_mode=query cannot carry tokens")
		}
		return ResponseModeQuery, nil
	case ResponseModeFragment:
		return ResponseModeFragment, nil
	default:
		return "", InvalidRequest("unsupported response_mode value")
	}
}
