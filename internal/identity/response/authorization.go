// Package response turns issued tokens and protocol errors into the wire
// shapes the endpoints return: redirect URLs for the authorize and logout
// endpoints, JSON bodies for the token endpoint.
package response

import (
	"net/url"
	"strconv"

	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/token"
)

// AuthorizationResponseFactory builds the authorize endpoint's redirect
// responses. Success parameters ride the query string for code-only flows
// and the fragment whenever a token is delivered directly, unless the
// request pinned a response_mode.
type AuthorizationResponseFactory struct{}

// SuccessRedirect assembles the redirect URL delivering the issued tokens to
// the client's validated redirect URI.
func (AuthorizationResponseFactory) SuccessRedirect(grants protocol.RequestGrants, state string, tgc *token.GeneratingContext) (string, error) {
	params := url.Values{}

	if code, ok := tgc.IssuedToken(token.KindAuthorizationCode); ok {
		params.Set("code", code.Serialized)
	}
	if access, ok := tgc.IssuedToken(token.KindAccessToken); ok {
		params.Set("access_token", access.Serialized)
		params.Set("token_type", "Bearer")
		if lifetime, ok := remainingLifetime(access.Token); ok {
			params.Set("expires_in", strconv.FormatInt(lifetime, 10))
		}
	}
	if id, ok := tgc.IssuedToken(token.KindIDToken); ok {
		params.Set("id_token", id.Serialized)
	}
	if state != "" {
		params.Set("state", state)
	}

	return buildRedirect(grants.RedirectURI, params, fragmentMode(grants))
}

// ErrorRedirect assembles the error redirect for a failed authorize request.
// The second return is false when the error must not travel to the redirect
// URI and has to be rendered locally instead.
func (AuthorizationResponseFactory) ErrorRedirect(redirectURI string, grants protocol.RequestGrants, perr *protocol.Error) (string, bool) {
	if perr.NoRedirect || redirectURI == "" {
		return "", false
	}

	params := url.Values{}
	params.Set("error", perr.Code)
	if perr.Description != "" {
		params.Set("error_description", perr.Description)
	}
	if perr.State != "" {
		params.Set("state", perr.State)
	}

	u, err := buildRedirect(redirectURI, params, fragmentMode(grants))
	if err != nil {
		return "", false
	}
	return u, true
}

// fragmentMode decides where response parameters go. An explicit
// response_mode wins; otherwise any flow that hands out a token or ID token
// at the front channel uses the fragment.
func fragmentMode(grants protocol.RequestGrants) bool {
	switch grants.ResponseMode {
	case protocol.ResponseModeQuery:
		return false
	case protocol.ResponseModeFragment:
		return true
	}
	return grants.HasResponseType(protocol.ResponseTypeToken) ||
		grants.HasResponseType(protocol.ResponseTypeIDToken)
}

func buildRedirect(redirectURI string, params url.Values, fragment bool) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}

	if fragment {
		u.Fragment = params.Encode()
		u.RawFragment = u.Fragment
		return u.String(), nil
	}

	query := u.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// remainingLifetime derives expires_in seconds from a token's own exp and
// iat claims, so the wire value always matches what was signed.
func remainingLifetime(t token.Token) (int64, bool) {
	expStr, ok := t.Claim(token.ClaimExpiry)
	if !ok {
		return 0, false
	}
	iatStr, ok := t.Claim(token.ClaimIssuedAt)
	if !ok {
		return 0, false
	}

	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return 0, false
	}
	iat, err := strconv.ParseInt(iatStr, 10, 64)
	if err != nil {
		return 0, false
	}
	if exp <= iat {
		return 0, false
	}
	return exp - iat, true
}
