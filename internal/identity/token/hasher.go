package token

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"
)

// Hasher computes the OIDC token-hash value (at_hash / c_hash) for a
// serialized token under a given JWS signing algorithm.
type Hasher interface {
	HashToken(serialized, alg string) (string, error)
}

// JOSEHasher implements the OIDC Core hash rule: hash the ASCII serialized
// token with the SHA-2 function matching the signing algorithm's bit size,
// keep the left half, and base64url-encode it without padding.
type JOSEHasher struct{}

func (JOSEHasher) HashToken(serialized, alg string) (string, error) {
	h, err := digestFor(alg)
	if err != nil {
		return "", err
	}

	h.Write([]byte(serialized))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2]), nil
}

func digestFor(alg string) (hash.Hash, error) {
	switch {
	case strings.HasSuffix(alg, "256"):
		return sha256.New(), nil
	case strings.HasSuffix(alg, "384"):
		return sha512.New384(), nil
	case strings.HasSuffix(alg, "512"), alg == "EdDSA":
		// Ed25519 signatures are built on SHA-512.
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("token: no hash digest for algorithm %q", alg)
	}
}
