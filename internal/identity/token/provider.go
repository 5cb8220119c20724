package token

import "context"

// Provider contributes claims to the token kind currently being generated.
// Providers run once per kind, in registration order, after
// InitializeForToken. The contract is narrow: read-only access to the
// already-issued results, write-only access to the current claim set.
type Provider interface {
	ProvideClaims(ctx context.Context, tgc *GeneratingContext) error
}

// AmbientClaimsProvider copies the context's ambient claims (tenant id,
// policy name, and whatever else the host registered) into every token kind.
type AmbientClaimsProvider struct{}

func (AmbientClaimsProvider) ProvideClaims(_ context.Context, tgc *GeneratingContext) error {
	return tgc.AddClaims(tgc.AmbientClaims()...)
}
