package protocol

import "slices"

// RequestGrants is the resolved, validated outcome of request validation:
// which redirect URI applies, which response/grant types were asked for, and
// which scopes survived resolution. The token manager derives the set of
// token kinds to issue from it.
type RequestGrants struct {
	RedirectURI   string
	ResponseTypes []string
	ResponseMode  string
	GrantType     string
	Scopes        []string
	Nonce         string

	// SessionID and Subject are populated when the grants were derived from
	// a redeemed authorization code or refresh token, carrying the original
	// session forward into the new tokens.
	SessionID string
	Subject   string
}

// HasResponseType reports whether rt was requested.
func (g RequestGrants) HasResponseType(rt string) bool {
	return slices.Contains(g.ResponseTypes, rt)
}

// HasScope reports whether scope survived resolution.
func (g RequestGrants) HasScope(scope string) bool {
	return slices.Contains(g.Scopes, scope)
}

// IsOpenID reports whether an ID token is in play.
func (g RequestGrants) IsOpenID() bool {
	return g.HasScope(ScopeOpenID)
}
