package jwtx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrInvalidToken = errors.New("jwtx: invalid token")
)

// AccessClaims are the claims the bearer middleware cares about when
// verifying an access token issued by this service.
type AccessClaims struct {
	jwt.RegisteredClaims

	ClientID string `json:"client_id,omitempty"`
	Scope    string `json:"scope,omitempty"`
	SID      string `json:"sid,omitempty"`
}

// Scopes splits the space-delimited scope claim.
func (c AccessClaims) Scopes() []string {
	if strings.TrimSpace(c.Scope) == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// Verifier validates a serialized JWT and returns its claims.
type Verifier interface {
	Verify(raw string) (AccessClaims, error)
}

// KeySetVerifier verifies tokens against a KeySet, resolving the key by the
// kid header and enforcing the expected issuer.
type KeySetVerifier struct {
	Keys   *KeySet
	Issuer string
}

func (v *KeySetVerifier) Verify(raw string) (AccessClaims, error) {
	var claims AccessClaims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmRS256, AlgorithmES256, AlgorithmEdDSA}),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrInvalidToken)
		}
		return v.Keys.Get(kid)
	})
	if err != nil {
		return AccessClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if v.Issuer != "" && claims.Issuer != v.Issuer {
		return AccessClaims{}, ErrIssuer
	}

	return claims, nil
}
