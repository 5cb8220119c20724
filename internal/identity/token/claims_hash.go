package token

import "context"

// TokenHashProvider adds the OIDC at_hash and c_hash claims to the ID token.
// It contributes nothing while any other kind is current, and only hashes
// tokens the context has already finalized, which is why the ID token sits
// last in the issue order.
type TokenHashProvider struct {
	Hasher Hasher
}

func (p TokenHashProvider) ProvideClaims(_ context.Context, tgc *GeneratingContext) error {
	kind, ok := tgc.CurrentKind()
	if !ok {
		return ErrNoCurrentToken
	}
	if kind != KindIDToken {
		return nil
	}

	if access, issued := tgc.IssuedToken(KindAccessToken); issued {
		h, err := p.Hasher.HashToken(access.Serialized, tgc.SigningAlgorithm)
		if err != nil {
			return err
		}
		if err := tgc.AddClaims(Claim{Type: ClaimAccessHash, Value: h}); err != nil {
			return err
		}
	}

	if code, issued := tgc.IssuedToken(KindAuthorizationCode); issued {
		h, err := p.Hasher.HashToken(code.Serialized, tgc.SigningAlgorithm)
		if err != nil {
			return err
		}
		if err := tgc.AddClaims(Claim{Type: ClaimCodeHash, Value: h}); err != nil {
			return err
		}
	}

	return nil
}
