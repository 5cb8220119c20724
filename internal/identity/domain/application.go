// Package domain holds the plain data structures persisted by the identity
// service. No behaviour lives here beyond trivial accessors; services own the
// rules.
package domain

import "time"

// Claim is a typed attribute asserted about a user or application. Claims
// attached to an Application or User are folded into every token issued on
// their behalf.
type Claim struct {
	Type  string
	Value string
}

// RedirectURI is a registered return location for a client application.
// IsLogout distinguishes post-logout redirect targets from authorization
// callbacks; the two sets never validate against each other.
type RedirectURI struct {
	Value    string
	IsLogout bool
}

// Application is a registered relying party (OAuth2 client).
//
// ConcurrencyStamp is an opaque version token rotated on every successful
// write. Updates and deletes must present the stamp they read; a stale stamp
// loses with ErrConcurrency rather than silently overwriting.
type Application struct {
	ID               string
	ClientID         string
	Name             string
	SecretHash       string // empty for public clients
	ConcurrencyStamp string
	Enabled          bool
	Scopes           []string
	Claims           []Claim
	RedirectURIs     []RedirectURI
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsPublic reports whether the client has no credential and therefore must
// use PKCE on the authorization code flow.
func (a Application) IsPublic() bool { return a.SecretHash == "" }

// AuthorizationRedirectURIs returns the registered non-logout redirect URIs.
func (a Application) AuthorizationRedirectURIs() []string {
	return a.redirectURIs(false)
}

// LogoutRedirectURIs returns the registered post-logout redirect URIs.
func (a Application) LogoutRedirectURIs() []string {
	return a.redirectURIs(true)
}

func (a Application) redirectURIs(logout bool) []string {
	var uris []string
	for _, u := range a.RedirectURIs {
		if u.IsLogout == logout {
			uris = append(uris, u.Value)
		}
	}
	return uris
}
