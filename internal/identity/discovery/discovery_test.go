package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlock/identity/pkg/jwtx"
)

func TestMetadata(t *testing.T) {
	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		NumKeys:   2,
	})
	require.NoError(t, err)

	svc := &Service{
		Issuer:      "https://id.example.com",
		Keys:        keys,
		ExtraScopes: []string{"profile"},
	}

	doc, err := svc.Metadata()
	require.NoError(t, err)

	assert.Equal(t, "https://id.example.com", doc.Issuer)
	assert.Equal(t, "https://id.example.com/v1/oauth2/authorize", doc.AuthorizationEndpoint)
	assert.Equal(t, "https://id.example.com/v1/oauth2/token", doc.TokenEndpoint)
	assert.Equal(t, "https://id.example.com/.well-known/jwks.json", doc.JWKSURI)
	assert.Equal(t, []string{jwtx.AlgorithmEdDSA}, doc.IDTokenSigningAlgValuesSupported)
	assert.Contains(t, doc.ScopesSupported, "openid")
	assert.Contains(t, doc.ScopesSupported, "profile")
	assert.Contains(t, doc.GrantTypesSupported, "client_credentials")
	assert.Contains(t, doc.CodeChallengeMethodsSupported, "S256")

	jwks := svc.JWKS()
	assert.Len(t, jwks.Keys, 2)
}

func TestMetadataWithoutKeysFails(t *testing.T) {
	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		NumKeys:   2,
	})
	require.NoError(t, err)

	for _, kid := range keys.KIDs() {
		keys.KeySet.Remove(kid)
	}

	svc := &Service{Issuer: "https://id.example.com", Keys: keys}
	_, err = svc.Metadata()
	require.ErrorIs(t, err, jwtx.ErrNoSigningKey)
}
