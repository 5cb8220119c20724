package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/session"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/internal/identity/store/drivers/sqlite"
	"github.com/brightlock/identity/internal/identity/token"
	"github.com/brightlock/identity/pkg/cryptox"
	"github.com/brightlock/identity/pkg/idx"
	"github.com/brightlock/identity/pkg/jwtx"
)

type fixture struct {
	store     store.Store
	authorize *AuthorizationService
	exchange  *TokenExchangeService
	sessions  *session.Manager
	user      domain.User
	app       domain.Application
}

func newFixture(t *testing.T, confidential bool) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		NumKeys:   1,
	})
	require.NoError(t, err)

	user := domain.User{
		ID:               idx.New().String(),
		Username:         "alice",
		PreferredName:    "Alice",
		PasswordHash:     "hash",
		ConcurrencyStamp: idx.New().String(),
	}
	require.NoError(t, st.Users().Create(ctx, user))

	secretHash := ""
	if confidential {
		secretHash, err = cryptox.HashSecret("client-secret")
		require.NoError(t, err)
	}
	app := domain.Application{
		ID:               idx.New().String(),
		ClientID:         idx.New().String(),
		Name:             "web-app",
		SecretHash:       secretHash,
		ConcurrencyStamp: idx.New().String(),
		Enabled:          true,
		Scopes:           []string{"openid", "profile"},
		RedirectURIs: []domain.RedirectURI{
			{Value: "https://app.example.com/cb"},
			{Value: "https://www.example.com/logout", IsLogout: true},
		},
	}
	require.NoError(t, st.Applications().Create(ctx, app))

	clients := &protocol.StoreClientValidator{Store: st}
	mgr := token.NewManager(token.KeyManagerSource{Keys: keys}, "https://id.example.com", token.DefaultLifetimes)
	sessions := session.NewManager(st)

	return &fixture{
		store: st,
		authorize: &AuthorizationService{
			Store:     st,
			Validator: &protocol.AuthorizationValidator{Clients: clients, Scopes: protocol.DefaultScopeResolver{}},
			Sessions:  sessions,
			Tokens:    mgr,
		},
		exchange: &TokenExchangeService{
			Store:     st,
			Validator: &protocol.TokenValidator{Clients: clients, Scopes: protocol.DefaultScopeResolver{}},
			Tokens:    mgr,
		},
		sessions: sessions,
		user:     user,
		app:      app,
	}
}

func pkcePair() (verifier, challenge string) {
	verifier = "example-code-verifier-0123456789abcdef"
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

// obtainCode runs the full authorize flow for a signed-in user with an
// existing grant and extracts the code from the redirect.
func obtainCode(t *testing.T, f *fixture, challenge string) string {
	t.Helper()

	_, err := f.sessions.LogIn(t.Context(), f.user, f.app, protocol.RequestGrants{Scopes: []string{"openid", "profile"}})
	require.NoError(t, err)

	msg := protocol.Message{
		ClientID:      f.app.ClientID,
		RedirectURI:   "https://app.example.com/cb",
		ResponseType:  "code",
		Scope:         []string{"openid", "profile"},
		State:         "xyz",
		Nonce:         "n-1",
		CodeChallenge: challenge,
	}

	outcome, err := f.authorize.Authorize(t.Context(), f.user.ID, msg)
	require.NoError(t, err)
	require.Empty(t, outcome.Error)
	require.False(t, outcome.LoginRequired)
	require.NotEmpty(t, outcome.RedirectURI)

	u, err := url.Parse(outcome.RedirectURI)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.NotEmpty(t, code)
	require.Equal(t, "xyz", u.Query().Get("state"))
	return code
}

func TestAuthorizeLoginStates(t *testing.T) {
	f := newFixture(t, false)
	_, challenge := pkcePair()

	msg := protocol.Message{
		ClientID:      f.app.ClientID,
		RedirectURI:   "https://app.example.com/cb",
		ResponseType:  "code",
		Scope:         []string{"openid"},
		State:         "abc",
		CodeChallenge: challenge,
	}

	t.Run("anonymous request requires login", func(t *testing.T) {
		outcome, err := f.authorize.Authorize(t.Context(), "", msg)
		require.NoError(t, err)
		assert.True(t, outcome.LoginRequired)
	})

	t.Run("prompt none redirects the login_required error", func(t *testing.T) {
		m := msg
		m.Prompt = protocol.PromptNone

		outcome, err := f.authorize.Authorize(t.Context(), "", m)
		require.NoError(t, err)
		require.NotEmpty(t, outcome.RedirectURI)

		u, err := url.Parse(outcome.RedirectURI)
		require.NoError(t, err)
		assert.Equal(t, protocol.CodeLoginRequired, u.Query().Get("error"))
		assert.Equal(t, "abc", u.Query().Get("state"))
	})

	t.Run("unknown client renders locally", func(t *testing.T) {
		m := msg
		m.ClientID = "unknown"

		outcome, err := f.authorize.Authorize(t.Context(), "", m)
		require.NoError(t, err)
		assert.Empty(t, outcome.RedirectURI)
		require.NotNil(t, outcome.Error)
		assert.Equal(t, protocol.CodeInvalidClient, outcome.Error.Code)
	})

	t.Run("public client without pkce is rejected", func(t *testing.T) {
		m := msg
		m.CodeChallenge = ""

		outcome, err := f.authorize.Authorize(t.Context(), "", m)
		require.NoError(t, err)
		require.NotEmpty(t, outcome.RedirectURI)

		u, err := url.Parse(outcome.RedirectURI)
		require.NoError(t, err)
		assert.Equal(t, protocol.CodeInvalidRequest, u.Query().Get("error"))
	})
}

func TestExchangeAuthorizationCode(t *testing.T) {
	f := newFixture(t, false)
	verifier, challenge := pkcePair()
	code := obtainCode(t, f, challenge)

	exchangeMsg := protocol.Message{
		ClientID:     f.app.ClientID,
		GrantType:    protocol.GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		CodeVerifier: verifier,
	}

	resp, perr, err := f.exchange.Exchange(t.Context(), exchangeMsg)
	require.NoError(t, err)
	require.Nil(t, perr)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.NotEmpty(t, resp.IDToken, "openid scope must yield an id token")
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "openid profile", resp.Scope)

	t.Run("second redemption fails", func(t *testing.T) {
		_, perr, err := f.exchange.Exchange(t.Context(), exchangeMsg)
		require.NoError(t, err)
		require.NotNil(t, perr)
		assert.Equal(t, protocol.CodeInvalidGrant, perr.Code)
	})

	t.Run("wrong verifier fails", func(t *testing.T) {
		code := obtainCode(t, f, challenge)
		m := exchangeMsg
		m.Code = code
		m.CodeVerifier = "not-the-right-verifier"

		_, perr, err := f.exchange.Exchange(t.Context(), m)
		require.NoError(t, err)
		require.NotNil(t, perr)
		assert.Equal(t, protocol.CodeInvalidGrant, perr.Code)
	})

	t.Run("wrong redirect uri fails", func(t *testing.T) {
		code := obtainCode(t, f, challenge)
		m := exchangeMsg
		m.Code = code
		m.RedirectURI = "https://evil.example.com/cb"

		_, perr, err := f.exchange.Exchange(t.Context(), m)
		require.NoError(t, err)
		require.NotNil(t, perr)
		assert.Equal(t, protocol.CodeInvalidGrant, perr.Code)
	})
}

func TestExchangeRefreshToken(t *testing.T) {
	f := newFixture(t, false)
	verifier, challenge := pkcePair()
	code := obtainCode(t, f, challenge)

	resp, perr, err := f.exchange.Exchange(t.Context(), protocol.Message{
		ClientID:     f.app.ClientID,
		GrantType:    protocol.GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		CodeVerifier: verifier,
	})
	require.NoError(t, err)
	require.Nil(t, perr)

	refreshMsg := protocol.Message{
		ClientID:     f.app.ClientID,
		GrantType:    protocol.GrantRefreshToken,
		RefreshToken: resp.RefreshToken,
	}

	rotated, perr, err := f.exchange.Exchange(t.Context(), refreshMsg)
	require.NoError(t, err)
	require.Nil(t, perr)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEmpty(t, rotated.RefreshToken)
	assert.NotEqual(t, resp.RefreshToken, rotated.RefreshToken, "rotation must mint a new refresh token")

	t.Run("old refresh token is revoked by rotation", func(t *testing.T) {
		_, perr, err := f.exchange.Exchange(t.Context(), refreshMsg)
		require.NoError(t, err)
		require.NotNil(t, perr)
		assert.Equal(t, protocol.CodeInvalidGrant, perr.Code)
	})

	t.Run("scopes can narrow but never widen", func(t *testing.T) {
		m := protocol.Message{
			ClientID:     f.app.ClientID,
			GrantType:    protocol.GrantRefreshToken,
			RefreshToken: rotated.RefreshToken,
			Scope:        []string{"openid"},
		}
		narrowed, perr, err := f.exchange.Exchange(t.Context(), m)
		require.NoError(t, err)
		require.Nil(t, perr)
		assert.Equal(t, "openid", narrowed.Scope)

		m.RefreshToken = narrowed.RefreshToken
		m.Scope = []string{"openid", "profile", "admin"}
		_, perr, err = f.exchange.Exchange(t.Context(), m)
		require.NoError(t, err)
		require.NotNil(t, perr)
		assert.Equal(t, protocol.CodeInvalidScope, perr.Code)
	})
}

func TestExchangeClientCredentials(t *testing.T) {
	f := newFixture(t, true)

	t.Run("confidential client gets an access token only", func(t *testing.T) {
		resp, perr, err := f.exchange.Exchange(t.Context(), protocol.Message{
			ClientID:     f.app.ClientID,
			ClientSecret: "client-secret",
			GrantType:    protocol.GrantClientCredentials,
			Scope:        []string{"profile"},
		})
		require.NoError(t, err)
		require.Nil(t, perr)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Empty(t, resp.RefreshToken, "client_credentials never issues a refresh token")
		assert.Empty(t, resp.IDToken)
	})

	t.Run("wrong secret is invalid_client", func(t *testing.T) {
		_, perr, err := f.exchange.Exchange(t.Context(), protocol.Message{
			ClientID:     f.app.ClientID,
			ClientSecret: "wrong",
			GrantType:    protocol.GrantClientCredentials,
		})
		require.NoError(t, err)
		require.NotNil(t, perr)
		assert.Equal(t, protocol.CodeInvalidClient, perr.Code)
	})
}

func TestExpiredCodeIsRejected(t *testing.T) {
	f := newFixture(t, false)

	record := domain.AuthorizationCode{
		ID:          idx.New().String(),
		UserID:      f.user.ID,
		ClientID:    f.app.ClientID,
		CodeHash:    cryptox.FingerprintToken("stale-code"),
		RedirectURI: "https://app.example.com/cb",
		Scopes:      []string{"openid"},
		ExpiresAt:   time.Now().Add(-time.Minute),
	}
	require.NoError(t, f.store.AuthorizationCodes().Create(t.Context(), record))

	_, perr, err := f.exchange.Exchange(t.Context(), protocol.Message{
		ClientID:    f.app.ClientID,
		GrantType:   protocol.GrantAuthorizationCode,
		Code:        "stale-code",
		RedirectURI: "https://app.example.com/cb",
	})
	require.NoError(t, err)
	require.NotNil(t, perr)
	assert.Equal(t, protocol.CodeInvalidGrant, perr.Code)
}
