// Package token implements the token-issuance core: the immutable token
// model, the per-request generating context, the ordered claims providers,
// and the manager that drives them to produce every token a flow requires.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"slices"
)

// Kind identifies one of the four token kinds the service issues.
type Kind int

const (
	KindAuthorizationCode Kind = iota
	KindAccessToken
	KindRefreshToken
	KindIDToken
)

func (k Kind) String() string {
	switch k {
	case KindAuthorizationCode:
		return "authorization_code"
	case KindAccessToken:
		return "access_token"
	case KindRefreshToken:
		return "refresh_token"
	case KindIDToken:
		return "id_token"
	default:
		return fmt.Sprintf("token.Kind(%d)", int(k))
	}
}

// issueOrder is the fixed dependency order tokens are generated in. The ID
// token comes last because its hash claims need the code and access token to
// exist already.
var issueOrder = []Kind{KindAuthorizationCode, KindAccessToken, KindRefreshToken, KindIDToken}

// Claim names used across the token pipeline.
const (
	ClaimID           = "jti"
	ClaimIssuedAt     = "iat"
	ClaimNotBefore    = "nbf"
	ClaimExpiry       = "exp"
	ClaimIssuer       = "iss"
	ClaimSubject      = "sub"
	ClaimAudience     = "aud"
	ClaimAuthorized   = "azp"
	ClaimNonce        = "nonce"
	ClaimScope        = "scope"
	ClaimClientID     = "client_id"
	ClaimRedirectURI  = "redirect_uri"
	ClaimSessionID    = "sid"
	ClaimName         = "name"
	ClaimUsername     = "preferred_username"
	ClaimAccessHash   = "at_hash"
	ClaimCodeHash     = "c_hash"
	ClaimCodeChall    = "code_challenge"
	ClaimCodeChallMth = "code_challenge_method"
)

// lifetimeClaims must be present on every finalized token.
var lifetimeClaims = []string{ClaimID, ClaimIssuedAt, ClaimNotBefore, ClaimExpiry}

// Claim is one (type, value) pair inside a token. Values are kept as strings;
// serialization converts the registered numeric claims.
type Claim struct {
	Type  string
	Value string
}

// Token is an immutable, finalized claim set of a given kind. Construct only
// via NewToken, which enforces the lifetime-claims invariant.
type Token struct {
	kind   Kind
	claims []Claim
}

// NewToken finalizes a claim set into a Token. It fails when any of the
// identity/lifetime claims (jti, iat, nbf, exp) is absent or empty.
func NewToken(kind Kind, claims []Claim) (Token, error) {
	for _, required := range lifetimeClaims {
		found := false
		for _, c := range claims {
			if c.Type == required && c.Value != "" {
				found = true
				break
			}
		}
		if !found {
			return Token{}, fmt.Errorf("token: %s is missing required claim %q", kind, required)
		}
	}
	return Token{kind: kind, claims: slices.Clone(claims)}, nil
}

// Kind returns the token kind.
func (t Token) Kind() Kind { return t.kind }

// Claims returns a copy of the ordered claim set.
func (t Token) Claims() []Claim { return slices.Clone(t.claims) }

// Claim returns the first claim value of the given type.
func (t Token) Claim(claimType string) (string, bool) {
	for _, c := range t.claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// ClaimValues returns every value of the given claim type, for multi-valued
// claims such as aud.
func (t Token) ClaimValues(claimType string) []string {
	var values []string
	for _, c := range t.claims {
		if c.Type == claimType {
			values = append(values, c.Value)
		}
	}
	return values
}

// TokenResult pairs a finalized token with its serialized wire form.
type TokenResult struct {
	Token      Token
	Serialized string
}

// NewJTI returns a URL-safe random identifier for the jti claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
