package token

import (
	"context"

	"github.com/brightlock/identity/pkg/jwtx"
)

// KeyManagerSource adapts the in-memory key manager to the
// SigningCredentialsSource the token manager consumes.
type KeyManagerSource struct {
	Keys *jwtx.KeyManager
}

func (s KeyManagerSource) Signer(context.Context) (jwtx.Signer, error) {
	return s.Keys.Signer()
}
