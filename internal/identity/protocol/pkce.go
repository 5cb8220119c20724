package protocol

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// ValidatePKCE normalizes the code_challenge parameters at authorize time.
// Public clients must present a challenge; confidential clients may omit it.
// The method defaults to S256 when a challenge is present without one.
func ValidatePKCE(challenge, method string, public bool) (string, string, *Error) {
	challenge = strings.TrimSpace(challenge)
	method = strings.TrimSpace(method)

	if challenge == "" {
		if public {
			return "", "", InvalidRequest("code_challenge is required for public clients")
		}
		return "", "", nil
	}

	switch {
	case method == "" || strings.EqualFold(method, "S256"):
		return challenge, "S256", nil
	case strings.EqualFold(method, "plain"):
		return challenge, "plain", nil
	default:
		return "", "", InvalidRequest("unsupported code_challenge_method")
	}
}

// VerifyCodeVerifier checks a token-endpoint code_verifier against the
// challenge captured at authorize time. An empty stored challenge means PKCE
// was not in play and any verifier is accepted.
func VerifyCodeVerifier(challenge, method, verifier string) bool {
	if challenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}

	switch method {
	case "plain":
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	case "S256", "":
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
	default:
		return false
	}
}
