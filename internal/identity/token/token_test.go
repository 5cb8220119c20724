package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseClaims() []Claim {
	return []Claim{
		{Type: ClaimID, Value: NewJTI()},
		{Type: ClaimIssuedAt, Value: "1700000000"},
		{Type: ClaimNotBefore, Value: "1700000000"},
		{Type: ClaimExpiry, Value: "1700003600"},
	}
}

func TestNewToken(t *testing.T) {
	t.Run("requires lifetime claims", func(t *testing.T) {
		for _, missing := range []string{ClaimID, ClaimIssuedAt, ClaimNotBefore, ClaimExpiry} {
			var claims []Claim
			for _, c := range baseClaims() {
				if c.Type != missing {
					claims = append(claims, c)
				}
			}

			_, err := NewToken(KindAccessToken, claims)
			require.Error(t, err, "missing %s should fail", missing)
			assert.Contains(t, err.Error(), missing)
		}
	})

	t.Run("rejects empty lifetime claim values", func(t *testing.T) {
		claims := baseClaims()
		claims[3].Value = ""

		_, err := NewToken(KindAccessToken, claims)
		require.Error(t, err)
	})

	t.Run("accepts complete claim set", func(t *testing.T) {
		claims := append(baseClaims(), Claim{Type: ClaimSubject, Value: "user-1"})

		tok, err := NewToken(KindIDToken, claims)
		require.NoError(t, err)
		assert.Equal(t, KindIDToken, tok.Kind())

		sub, ok := tok.Claim(ClaimSubject)
		require.True(t, ok)
		assert.Equal(t, "user-1", sub)
	})

	t.Run("claims are copied on construction and read", func(t *testing.T) {
		claims := baseClaims()
		tok, err := NewToken(KindAccessToken, claims)
		require.NoError(t, err)

		claims[0].Value = "mutated"
		got := tok.Claims()
		assert.NotEqual(t, "mutated", got[0].Value)

		got[1].Value = "mutated"
		again := tok.Claims()
		assert.NotEqual(t, "mutated", again[1].Value)
	})
}

func TestTokenClaimValues(t *testing.T) {
	claims := append(baseClaims(),
		Claim{Type: ClaimAudience, Value: "api"},
		Claim{Type: ClaimAudience, Value: "web"},
	)
	tok, err := NewToken(KindAccessToken, claims)
	require.NoError(t, err)

	assert.Equal(t, []string{"api", "web"}, tok.ClaimValues(ClaimAudience))
	assert.Empty(t, tok.ClaimValues(ClaimNonce))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "authorization_code", KindAuthorizationCode.String())
	assert.Equal(t, "access_token", KindAccessToken.String())
	assert.Equal(t, "refresh_token", KindRefreshToken.String())
	assert.Equal(t, "id_token", KindIDToken.String())
}
