// Package jwtx wraps github.com/golang-jwt/jwt/v5 with the pieces an
// authorization server needs: signers keyed by kid, a public KeySet for JWKS
// publishing, verification, and an in-memory key manager.
package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// ErrNoSigningKey is returned when signing is requested but no key is
// configured. Callers treat this as a fatal configuration error, never as a
// reason to issue an unsigned token.
var ErrNoSigningKey = errors.New("jwtx: no signing key configured")

// Signer signs arbitrary JWT claim sets under a stable key id.
type Signer interface {
	Alg() string
	KID() string
	Sign(claims jwt.Claims) (string, error)
	PublicJWK() JWK
}
