package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestApplication() domain.Application {
	return domain.Application{
		ID:               idx.New().String(),
		ClientID:         idx.New().String(),
		Name:             "web-app",
		SecretHash:       "",
		ConcurrencyStamp: idx.New().String(),
		Enabled:          true,
		Scopes:           []string{"openid", "profile"},
		Claims:           []domain.Claim{{Type: "tier", Value: "standard"}},
		RedirectURIs: []domain.RedirectURI{
			{Value: "https://app.example.com/cb"},
			{Value: "https://app.example.com/logged-out", IsLogout: true},
		},
	}
}

func newTestUser(username string) domain.User {
	return domain.User{
		ID:               idx.New().String(),
		Username:         username,
		PreferredName:    "Test User",
		PasswordHash:     "hash",
		ConcurrencyStamp: idx.New().String(),
	}
}

func TestApplicationsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	app := newTestApplication()
	require.NoError(t, st.Applications().Create(ctx, app))

	got, err := st.Applications().GetByClientID(ctx, app.ClientID)
	require.NoError(t, err)
	assert.Equal(t, app.Name, got.Name)
	assert.Equal(t, app.Scopes, got.Scopes)
	assert.Equal(t, app.Claims, got.Claims)
	assert.ElementsMatch(t, app.RedirectURIs, got.RedirectURIs)
	assert.Equal(t, []string{"https://app.example.com/cb"}, got.AuthorizationRedirectURIs())
	assert.Equal(t, []string{"https://app.example.com/logged-out"}, got.LogoutRedirectURIs())

	t.Run("duplicate client id is rejected", func(t *testing.T) {
		dup := newTestApplication()
		dup.ClientID = app.ClientID
		err := st.Applications().Create(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("unknown id yields not found", func(t *testing.T) {
		_, err := st.Applications().GetByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestApplicationsOptimisticConcurrency(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t.Run("stale stamp loses the update", func(t *testing.T) {
		app := newTestApplication()
		require.NoError(t, st.Applications().Create(ctx, app))

		first := app
		first.Name = "renamed-by-first"
		require.NoError(t, st.Applications().Update(ctx, first, idx.New().String()))

		second := app // still carries the original stamp
		second.Name = "renamed-by-second"
		err := st.Applications().Update(ctx, second, idx.New().String())
		require.ErrorIs(t, err, store.ErrConcurrency)

		got, err := st.Applications().GetByID(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed-by-first", got.Name)
	})

	t.Run("stale stamp loses the delete", func(t *testing.T) {
		app := newTestApplication()
		require.NoError(t, st.Applications().Create(ctx, app))

		updated := app
		require.NoError(t, st.Applications().Update(ctx, updated, idx.New().String()))

		err := st.Applications().Delete(ctx, app.ID, app.ConcurrencyStamp)
		require.ErrorIs(t, err, store.ErrConcurrency)

		_, err = st.Applications().GetByID(ctx, app.ID)
		require.NoError(t, err, "the row must survive a lost delete")
	})

	t.Run("matching stamp wins the delete", func(t *testing.T) {
		app := newTestApplication()
		require.NoError(t, st.Applications().Create(ctx, app))

		require.NoError(t, st.Applications().Delete(ctx, app.ID, app.ConcurrencyStamp))

		_, err := st.Applications().GetByID(ctx, app.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update on a deleted row yields not found", func(t *testing.T) {
		app := newTestApplication()
		err := st.Applications().Update(ctx, app, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestUsersRepo(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := newTestUser("alice")
	user.Claims = []domain.Claim{{Type: "department", Value: "engineering"}}
	require.NoError(t, st.Users().Create(ctx, user))

	got, err := st.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Claims, got.Claims)
	assert.Nil(t, got.MFAEnabled)

	t.Run("mfa enable and disable", func(t *testing.T) {
		require.NoError(t, st.Users().EnableMFA(ctx, user.ID, "JBSWY3DPEHPK3PXP"))

		got, err := st.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, got.MFAEnabled)
		require.NotNil(t, got.MFASecret)
		assert.Equal(t, "JBSWY3DPEHPK3PXP", *got.MFASecret)

		require.NoError(t, st.Users().DisableMFA(ctx, user.ID))
		got, err = st.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, got.MFAEnabled)
		assert.Nil(t, got.MFASecret)
	})

	t.Run("password update", func(t *testing.T) {
		require.NoError(t, st.Users().UpdatePasswordHash(ctx, user.ID, "new-hash"))
		got, err := st.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)
	})

	t.Run("unknown user updates yield not found", func(t *testing.T) {
		require.ErrorIs(t, st.Users().UpdatePasswordHash(ctx, "missing", "x"), store.ErrNotFound)
		require.ErrorIs(t, st.Users().EnableMFA(ctx, "missing", "x"), store.ErrNotFound)
	})
}

func TestGrantsRepo(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := newTestUser("bob")
	require.NoError(t, st.Users().Create(ctx, user))

	grant := domain.Grant{
		ID:                idx.New().String(),
		UserID:            user.ID,
		ClientID:          "client-1",
		SessionID:         idx.New().String(),
		LogoutRedirectURI: "https://app.example.com/logged-out",
		Scopes:            []string{"openid"},
	}
	require.NoError(t, st.Grants().Create(ctx, grant))

	t.Run("lookup is exact on user and client", func(t *testing.T) {
		got, err := st.Grants().GetByUserAndClient(ctx, user.ID, "client-1")
		require.NoError(t, err)
		assert.Equal(t, grant.SessionID, got.SessionID)
		assert.Equal(t, grant.LogoutRedirectURI, got.LogoutRedirectURI)

		_, err = st.Grants().GetByUserAndClient(ctx, user.ID, "client-2")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = st.Grants().GetByUserAndClient(ctx, "other-user", "client-1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("one grant per user and client pair", func(t *testing.T) {
		dup := grant
		dup.ID = idx.New().String()
		require.ErrorIs(t, st.Grants().Create(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("delete removes the pair only", func(t *testing.T) {
		other := domain.Grant{
			ID:        idx.New().String(),
			UserID:    user.ID,
			ClientID:  "client-2",
			SessionID: idx.New().String(),
		}
		require.NoError(t, st.Grants().Create(ctx, other))

		require.NoError(t, st.Grants().DeleteByUserAndClient(ctx, user.ID, "client-1"))

		_, err := st.Grants().GetByUserAndClient(ctx, user.ID, "client-1")
		require.ErrorIs(t, err, store.ErrNotFound)

		remaining, err := st.Grants().ListByUser(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, "client-2", remaining[0].ClientID)
	})
}

func TestAuthorizationCodesRepo(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := newTestUser("carol")
	require.NoError(t, st.Users().Create(ctx, user))

	code := domain.AuthorizationCode{
		ID:                  idx.New().String(),
		UserID:              user.ID,
		ClientID:            "client-1",
		CodeHash:            "hash-1",
		RedirectURI:         "https://app.example.com/cb",
		Scopes:              []string{"openid", "profile"},
		Nonce:               "n-1",
		SessionID:           "sess-1",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		ExpiresAt:           time.Now().Add(5 * time.Minute),
	}
	require.NoError(t, st.AuthorizationCodes().Create(ctx, code))

	got, err := st.AuthorizationCodes().GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, code.Scopes, got.Scopes)
	assert.Equal(t, "S256", got.CodeChallengeMethod)
	assert.Nil(t, got.UsedAt)

	t.Run("mark used consumes exactly once", func(t *testing.T) {
		require.NoError(t, st.AuthorizationCodes().MarkUsed(ctx, code.ID))

		got, err := st.AuthorizationCodes().GetByHash(ctx, "hash-1")
		require.NoError(t, err)
		require.NotNil(t, got.UsedAt)

		require.ErrorIs(t, st.AuthorizationCodes().MarkUsed(ctx, code.ID), store.ErrNotFound)
	})

	t.Run("delete expired sweeps old codes", func(t *testing.T) {
		expired := code
		expired.ID = idx.New().String()
		expired.CodeHash = "hash-expired"
		expired.ExpiresAt = time.Now().Add(-time.Minute)
		require.NoError(t, st.AuthorizationCodes().Create(ctx, expired))

		require.NoError(t, st.AuthorizationCodes().DeleteExpired(ctx))

		_, err := st.AuthorizationCodes().GetByHash(ctx, "hash-expired")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = st.AuthorizationCodes().GetByHash(ctx, "hash-1")
		require.NoError(t, err, "unexpired codes survive the sweep")
	})
}

func TestRefreshTokensRepo(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tok := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    "user-1",
		ClientID:  "client-1",
		TokenHash: "rt-hash-1",
		SessionID: "sess-1",
		Scopes:    []string{"openid", "offline_access"},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, st.RefreshTokens().Create(ctx, tok))

	t.Run("revoke is one-shot", func(t *testing.T) {
		require.NoError(t, st.RefreshTokens().Revoke(ctx, "rt-hash-1"))

		got, err := st.RefreshTokens().GetByHash(ctx, "rt-hash-1")
		require.NoError(t, err)
		assert.True(t, got.Revoked)

		require.ErrorIs(t, st.RefreshTokens().Revoke(ctx, "rt-hash-1"), store.ErrNotFound)
	})

	t.Run("revoke all for user and client", func(t *testing.T) {
		for _, hash := range []string{"rt-a", "rt-b"} {
			rt := tok
			rt.ID = idx.New().String()
			rt.TokenHash = hash
			require.NoError(t, st.RefreshTokens().Create(ctx, rt))
		}

		require.NoError(t, st.RefreshTokens().RevokeAllForUserClient(ctx, "user-1", "client-1"))

		for _, hash := range []string{"rt-a", "rt-b"} {
			got, err := st.RefreshTokens().GetByHash(ctx, hash)
			require.NoError(t, err)
			assert.True(t, got.Revoked, "%s should be revoked", hash)
		}
	})
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := newTestUser("dave")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = st.Users().GetByID(ctx, user.ID)
	require.ErrorIs(t, err, store.ErrNotFound, "rollback must discard the insert")
}
