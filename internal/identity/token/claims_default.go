package token

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/brightlock/identity/internal/identity/protocol"
)

// Lifetimes holds the per-kind validity windows.
type Lifetimes struct {
	AuthorizationCode time.Duration
	AccessToken       time.Duration
	RefreshToken      time.Duration
	IDToken           time.Duration
}

// DefaultLifetimes mirror common authorization-server defaults.
var DefaultLifetimes = Lifetimes{
	AuthorizationCode: 5 * time.Minute,
	AccessToken:       time.Hour,
	RefreshToken:      14 * 24 * time.Hour,
	IDToken:           20 * time.Minute,
}

// For returns the lifetime of the given kind.
func (l Lifetimes) For(kind Kind) time.Duration {
	switch kind {
	case KindAuthorizationCode:
		return l.AuthorizationCode
	case KindAccessToken:
		return l.AccessToken
	case KindRefreshToken:
		return l.RefreshToken
	case KindIDToken:
		return l.IDToken
	default:
		return 0
	}
}

// DefaultClaimsProvider stamps the identity and lifetime claims every token
// carries, plus the kind-specific protocol claims: redirect and PKCE material
// on codes, scope and azp on access tokens, audience and profile claims on ID
// tokens.
type DefaultClaimsProvider struct {
	Issuer    string
	Lifetimes Lifetimes

	// Clock is overridable in tests. Nil means time.Now.
	Clock func() time.Time
}

func (p DefaultClaimsProvider) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

func (p DefaultClaimsProvider) ProvideClaims(_ context.Context, tgc *GeneratingContext) error {
	kind, ok := tgc.CurrentKind()
	if !ok {
		return ErrNoCurrentToken
	}

	now := p.now()
	exp := now.Add(p.Lifetimes.For(kind))

	claims := []Claim{
		{Type: ClaimID, Value: NewJTI()},
		{Type: ClaimIssuedAt, Value: strconv.FormatInt(now.Unix(), 10)},
		{Type: ClaimNotBefore, Value: strconv.FormatInt(now.Unix(), 10)},
		{Type: ClaimExpiry, Value: strconv.FormatInt(exp.Unix(), 10)},
		{Type: ClaimIssuer, Value: p.Issuer},
		{Type: ClaimSubject, Value: p.subject(tgc)},
	}

	grants := tgc.Grants
	app := tgc.Application

	switch kind {
	case KindAuthorizationCode:
		claims = append(claims,
			Claim{Type: ClaimClientID, Value: app.ClientID},
			Claim{Type: ClaimRedirectURI, Value: grants.RedirectURI},
			Claim{Type: ClaimScope, Value: joinScopes(grants.Scopes)},
		)
		if grants.Nonce != "" {
			claims = append(claims, Claim{Type: ClaimNonce, Value: grants.Nonce})
		}
		if tgc.Message.CodeChallenge != "" {
			claims = append(claims,
				Claim{Type: ClaimCodeChall, Value: tgc.Message.CodeChallenge},
				Claim{Type: ClaimCodeChallMth, Value: tgc.Message.CodeChallengeMethod},
			)
		}

	case KindAccessToken:
		claims = append(claims,
			Claim{Type: ClaimClientID, Value: app.ClientID},
			Claim{Type: ClaimAuthorized, Value: app.ClientID},
			Claim{Type: ClaimScope, Value: joinScopes(grants.Scopes)},
		)

	case KindRefreshToken:
		claims = append(claims,
			Claim{Type: ClaimClientID, Value: app.ClientID},
			Claim{Type: ClaimScope, Value: joinScopes(grants.Scopes)},
		)
		if grants.Nonce != "" {
			claims = append(claims, Claim{Type: ClaimNonce, Value: grants.Nonce})
		}

	case KindIDToken:
		claims = append(claims,
			Claim{Type: ClaimAudience, Value: app.ClientID},
			Claim{Type: ClaimAuthorized, Value: app.ClientID},
		)
		if grants.Nonce != "" {
			claims = append(claims, Claim{Type: ClaimNonce, Value: grants.Nonce})
		}
		if tgc.User.PreferredName != "" {
			claims = append(claims, Claim{Type: ClaimName, Value: tgc.User.PreferredName})
		}
		if tgc.User.Username != "" {
			claims = append(claims, Claim{Type: ClaimUsername, Value: tgc.User.Username})
		}
		for _, uc := range tgc.User.Claims {
			claims = append(claims, Claim{Type: uc.Type, Value: uc.Value})
		}
	}

	if grants.SessionID != "" {
		claims = append(claims, Claim{Type: ClaimSessionID, Value: grants.SessionID})
	}
	for _, ac := range app.Claims {
		claims = append(claims, Claim{Type: ac.Type, Value: ac.Value})
	}

	return tgc.AddClaims(claims...)
}

// subject resolves the sub claim. Machine flows act as the application
// itself; user flows carry the subject captured when the code or refresh
// token was minted, falling back to the authenticated user.
func (p DefaultClaimsProvider) subject(tgc *GeneratingContext) string {
	if tgc.Grants.GrantType == protocol.GrantClientCredentials {
		return tgc.Application.ClientID
	}
	if tgc.Grants.Subject != "" {
		return tgc.Grants.Subject
	}
	return tgc.User.ID
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
