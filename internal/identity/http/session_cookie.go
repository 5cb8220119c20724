package http

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brightlock/identity/internal/identity/token"
	"github.com/brightlock/identity/pkg/idx"
	"github.com/brightlock/identity/pkg/jwtx"
)

const (
	sessionCookieName = "identity_session"
	sessionLifetime   = 12 * time.Hour
)

// SessionCookies mints and clears the signed browser session cookie. The
// cookie value is a JWT whose subject is the user id, verified with the same
// key set as every other token.
type SessionCookies struct {
	Credentials token.SigningCredentialsSource
	Issuer      string
	Secure      bool
}

// Issue signs a fresh session cookie for the user.
func (c *SessionCookies) Issue(ctx context.Context, userID string) (*http.Cookie, error) {
	signer, err := c.Credentials.Signer(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	raw, err := signer.Sign(jwt.RegisteredClaims{
		ID:        idx.New().String(),
		Issuer:    c.Issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionLifetime)),
	})
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    raw,
		Path:     "/",
		MaxAge:   int(sessionLifetime.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Clear returns an expired cookie that removes the session from the browser.
func (c *SessionCookies) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// resolveUserID reads the browser's identity from the session cookie or a
// bearer token, returning empty when neither verifies.
func resolveUserID(r *http.Request, v jwtx.Verifier) string {
	raw := bearerToken(r)
	if raw == "" {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			raw = cookie.Value
		}
	}
	if raw == "" {
		return ""
	}

	claims, err := v.Verify(raw)
	if err != nil {
		return ""
	}
	return claims.Subject
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	authz := r.Header.Get("Authorization")
	if len(authz) > len(prefix) && authz[:len(prefix)] == prefix {
		return authz[len(prefix):]
	}
	return ""
}
