package jwtx

import (
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type rs256Signer struct {
	kid string
	key *rsa.PrivateKey
}

// NewSignerRS256 creates an RS256 signer from an RSA private key.
func NewSignerRS256(kid string, key *rsa.PrivateKey) (Signer, error) {
	if key == nil {
		return nil, errors.New("jwtx: nil RSA key")
	}
	if key.N.BitLen() < 2048 {
		return nil, errors.New("jwtx: RSA key below 2048 bits")
	}
	return &rs256Signer{kid: kid, key: key}, nil
}

func (s *rs256Signer) Alg() string { return AlgorithmRS256 }
func (s *rs256Signer) KID() string { return s.kid }

func (s *rs256Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

func (s *rs256Signer) PublicJWK() JWK {
	return NewRSAJWK(s.kid, "sig", AlgorithmRS256, &s.key.PublicKey)
}
