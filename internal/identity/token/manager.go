package token

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/pkg/jwtx"
)

// SigningCredentialsSource hands out the signer used for the current request.
// An implementation that cannot produce a signer must return
// jwtx.ErrNoSigningKey so callers fail closed rather than issue unsigned
// tokens.
type SigningCredentialsSource interface {
	Signer(ctx context.Context) (jwtx.Signer, error)
}

// Manager drives token generation for a request: it works out which kinds
// the validated grants call for, runs every registered provider for each
// kind in the fixed issue order, and signs the resulting claim sets.
type Manager struct {
	Providers   []Provider
	Credentials SigningCredentialsSource
}

// NewManager wires the standard provider chain in front of any extras.
func NewManager(creds SigningCredentialsSource, issuer string, lifetimes Lifetimes, extra ...Provider) *Manager {
	providers := []Provider{
		DefaultClaimsProvider{Issuer: issuer, Lifetimes: lifetimes},
		AmbientClaimsProvider{},
		TokenHashProvider{Hasher: JOSEHasher{}},
	}
	providers = append(providers, extra...)

	return &Manager{
		Providers:   providers,
		Credentials: creds,
	}
}

// KindsFor maps validated grants onto the token kinds to issue, in issue
// order. Authorization requests derive kinds from response_type; token
// requests derive them from grant_type.
func KindsFor(grants protocol.RequestGrants) []Kind {
	wanted := map[Kind]bool{}

	switch grants.GrantType {
	case protocol.GrantClientCredentials:
		wanted[KindAccessToken] = true

	case protocol.GrantAuthorizationCode, protocol.GrantRefreshToken:
		wanted[KindAccessToken] = true
		wanted[KindRefreshToken] = true
		if grants.IsOpenID() {
			wanted[KindIDToken] = true
		}

	default:
		// Authorization endpoint: response_type drives the kinds.
		if grants.HasResponseType(protocol.ResponseTypeCode) {
			wanted[KindAuthorizationCode] = true
		}
		if grants.HasResponseType(protocol.ResponseTypeToken) {
			wanted[KindAccessToken] = true
		}
		if grants.HasResponseType(protocol.ResponseTypeIDToken) {
			wanted[KindIDToken] = true
		}
	}

	var kinds []Kind
	for _, k := range issueOrder {
		if wanted[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// IssueTokens generates and signs every token the context's grants call for.
// Results accumulate on the context; earlier kinds are visible to later
// providers, which is what lets the ID token hash the access token and code.
func (m *Manager) IssueTokens(ctx context.Context, tgc *GeneratingContext) error {
	signer, err := m.Credentials.Signer(ctx)
	if err != nil {
		return err
	}
	tgc.SigningAlgorithm = signer.Alg()

	for _, kind := range KindsFor(tgc.Grants) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := tgc.InitializeForToken(kind); err != nil {
			return err
		}
		for _, p := range m.Providers {
			if err := p.ProvideClaims(ctx, tgc); err != nil {
				return fmt.Errorf("token: provider failed for %s: %w", kind, err)
			}
		}

		tok, err := NewToken(kind, tgc.CurrentClaims())
		if err != nil {
			return err
		}

		serialized, err := signer.Sign(jwtClaims(tok))
		if err != nil {
			return fmt.Errorf("token: signing %s: %w", kind, err)
		}

		if err := tgc.AddToken(TokenResult{Token: tok, Serialized: serialized}); err != nil {
			return err
		}
	}

	return nil
}

// jwtClaims flattens a token's claim list into a JWT claim map, converting
// the registered numeric timestamps and collecting repeated claim types into
// arrays.
func jwtClaims(t Token) jwt.MapClaims {
	claims := jwt.MapClaims{}
	for _, c := range t.Claims() {
		var value any = c.Value
		switch c.Type {
		case ClaimIssuedAt, ClaimNotBefore, ClaimExpiry:
			if n, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
				value = n
			}
		}

		existing, ok := claims[c.Type]
		if !ok {
			claims[c.Type] = value
			continue
		}
		switch prev := existing.(type) {
		case []any:
			claims[c.Type] = append(prev, value)
		default:
			claims[c.Type] = []any{prev, value}
		}
	}
	return claims
}
