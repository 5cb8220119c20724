package token

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/pkg/jwtx"
)

type staticCredentials struct {
	signer jwtx.Signer
}

func (s staticCredentials) Signer(context.Context) (jwtx.Signer, error) {
	if s.signer == nil {
		return nil, jwtx.ErrNoSigningKey
	}
	return s.signer, nil
}

func newTestManager(t *testing.T) (*Manager, ed25519.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signer, err := jwtx.NewSignerEdDSA("test-key", priv)
	require.NoError(t, err)

	return NewManager(staticCredentials{signer: signer}, "https://id.example.com", DefaultLifetimes), pub
}

func parseToken(t *testing.T, serialized string, pub ed25519.PublicKey) jwt.MapClaims {
	t.Helper()

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(serialized, claims, func(*jwt.Token) (any, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{jwtx.AlgorithmEdDSA}))
	require.NoError(t, err)
	return claims
}

func TestManagerIssueTokens(t *testing.T) {
	user := domain.User{ID: "user-1", Username: "alice", PreferredName: "Alice"}
	app := domain.Application{ID: "app-1", ClientID: "client-1", Scopes: []string{"openid", "profile"}}

	t.Run("code flow issues only an authorization code", func(t *testing.T) {
		mgr, pub := newTestManager(t)
		tgc := NewGeneratingContext(user, app, protocol.Message{
			CodeChallenge:       "challenge",
			CodeChallengeMethod: "S256",
		}, protocol.RequestGrants{
			RedirectURI:   "https://app.example.com/cb",
			ResponseTypes: []string{protocol.ResponseTypeCode},
			Scopes:        []string{"openid"},
			Nonce:         "n-1",
			SessionID:     "sess-1",
		})

		require.NoError(t, mgr.IssueTokens(t.Context(), tgc))

		results := tgc.Results()
		require.Len(t, results, 1)
		require.Equal(t, KindAuthorizationCode, results[0].Token.Kind())

		claims := parseToken(t, results[0].Serialized, pub)
		assert.Equal(t, "client-1", claims[ClaimClientID])
		assert.Equal(t, "https://app.example.com/cb", claims[ClaimRedirectURI])
		assert.Equal(t, "challenge", claims[ClaimCodeChall])
		assert.Equal(t, "S256", claims[ClaimCodeChallMth])
		assert.Equal(t, "sess-1", claims[ClaimSessionID])
		assert.Equal(t, "user-1", claims[ClaimSubject])
	})

	t.Run("code redemption issues access, refresh and id tokens", func(t *testing.T) {
		mgr, pub := newTestManager(t)
		tgc := NewGeneratingContext(user, app, protocol.Message{}, protocol.RequestGrants{
			GrantType: protocol.GrantAuthorizationCode,
			Scopes:    []string{"openid", "profile"},
			Nonce:     "n-2",
			SessionID: "sess-2",
			Subject:   "user-1",
		})

		require.NoError(t, mgr.IssueTokens(t.Context(), tgc))

		results := tgc.Results()
		require.Len(t, results, 3)
		assert.Equal(t, KindAccessToken, results[0].Token.Kind())
		assert.Equal(t, KindRefreshToken, results[1].Token.Kind())
		assert.Equal(t, KindIDToken, results[2].Token.Kind())

		idClaims := parseToken(t, results[2].Serialized, pub)
		assert.Equal(t, "client-1", idClaims[ClaimAudience])
		assert.Equal(t, "n-2", idClaims[ClaimNonce])
		assert.Equal(t, "Alice", idClaims[ClaimName])
		assert.Equal(t, "alice", idClaims[ClaimUsername])
		assert.NotEmpty(t, idClaims[ClaimAccessHash], "id token must hash the access token")
		assert.Empty(t, idClaims[ClaimCodeHash], "no code was issued in this exchange")
	})

	t.Run("client credentials issue an access token as the client", func(t *testing.T) {
		mgr, pub := newTestManager(t)
		tgc := NewGeneratingContext(domain.User{}, app, protocol.Message{}, protocol.RequestGrants{
			GrantType: protocol.GrantClientCredentials,
			Scopes:    []string{"profile"},
		})

		require.NoError(t, mgr.IssueTokens(t.Context(), tgc))

		results := tgc.Results()
		require.Len(t, results, 1)
		require.Equal(t, KindAccessToken, results[0].Token.Kind())

		claims := parseToken(t, results[0].Serialized, pub)
		assert.Equal(t, "client-1", claims[ClaimSubject])
		assert.Equal(t, "profile", claims[ClaimScope])
	})

	t.Run("every issued token carries the lifetime claims", func(t *testing.T) {
		mgr, pub := newTestManager(t)
		tgc := NewGeneratingContext(user, app, protocol.Message{}, protocol.RequestGrants{
			GrantType: protocol.GrantRefreshToken,
			Scopes:    []string{"openid"},
			Subject:   "user-1",
			SessionID: "sess-3",
		})

		require.NoError(t, mgr.IssueTokens(t.Context(), tgc))
		require.NotEmpty(t, tgc.Results())

		for _, r := range tgc.Results() {
			claims := parseToken(t, r.Serialized, pub)
			for _, name := range []string{ClaimID, ClaimIssuedAt, ClaimNotBefore, ClaimExpiry} {
				assert.NotEmpty(t, claims[name], "%s missing %s", r.Token.Kind(), name)
			}
		}
	})

	t.Run("ambient claims land on every kind", func(t *testing.T) {
		mgr, pub := newTestManager(t)
		tgc := NewGeneratingContext(user, app, protocol.Message{}, protocol.RequestGrants{
			GrantType: protocol.GrantAuthorizationCode,
			Scopes:    []string{"openid"},
			Subject:   "user-1",
		})
		tgc.AddAmbientClaims(Claim{Type: "tenant", Value: "acme"})

		require.NoError(t, mgr.IssueTokens(t.Context(), tgc))

		for _, r := range tgc.Results() {
			claims := parseToken(t, r.Serialized, pub)
			assert.Equal(t, "acme", claims["tenant"], "%s missing ambient claim", r.Token.Kind())
		}
	})

	t.Run("missing signing key fails closed", func(t *testing.T) {
		mgr := NewManager(staticCredentials{}, "https://id.example.com", DefaultLifetimes)
		tgc := NewGeneratingContext(user, app, protocol.Message{}, protocol.RequestGrants{
			ResponseTypes: []string{protocol.ResponseTypeCode},
		})

		err := mgr.IssueTokens(t.Context(), tgc)
		require.ErrorIs(t, err, jwtx.ErrNoSigningKey)
		assert.Empty(t, tgc.Results())
	})
}

func TestKindsFor(t *testing.T) {
	t.Run("hybrid authorize request", func(t *testing.T) {
		kinds := KindsFor(protocol.RequestGrants{
			ResponseTypes: []string{protocol.ResponseTypeIDToken, protocol.ResponseTypeCode},
		})
		assert.Equal(t, []Kind{KindAuthorizationCode, KindIDToken}, kinds)
	})

	t.Run("refresh without openid skips the id token", func(t *testing.T) {
		kinds := KindsFor(protocol.RequestGrants{
			GrantType: protocol.GrantRefreshToken,
			Scopes:    []string{"profile"},
		})
		assert.Equal(t, []Kind{KindAccessToken, KindRefreshToken}, kinds)
	})

	t.Run("client credentials", func(t *testing.T) {
		kinds := KindsFor(protocol.RequestGrants{GrantType: protocol.GrantClientCredentials})
		assert.Equal(t, []Kind{KindAccessToken}, kinds)
	})
}

func TestDefaultClaimsProviderClock(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := DefaultClaimsProvider{
		Issuer:    "https://id.example.com",
		Lifetimes: Lifetimes{AccessToken: time.Hour},
		Clock:     func() time.Time { return fixed },
	}

	tgc := NewGeneratingContext(domain.User{ID: "user-1"}, domain.Application{ClientID: "client-1"},
		protocol.Message{}, protocol.RequestGrants{Scopes: []string{"openid"}})
	require.NoError(t, tgc.InitializeForToken(KindAccessToken))
	require.NoError(t, p.ProvideClaims(t.Context(), tgc))

	tok, err := NewToken(KindAccessToken, tgc.CurrentClaims())
	require.NoError(t, err)

	iat, _ := tok.Claim(ClaimIssuedAt)
	exp, _ := tok.Claim(ClaimExpiry)
	assert.Equal(t, "1748779200", iat)
	assert.Equal(t, "1748782800", exp)
}
