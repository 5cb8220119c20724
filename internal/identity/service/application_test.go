package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/internal/identity/store/drivers/sqlite"
	"github.com/brightlock/identity/pkg/cryptox"
)

func newServiceStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func TestApplicationServiceLifecycle(t *testing.T) {
	svc := &ApplicationService{Store: newServiceStore(t)}

	app, secret, err := svc.CreateApplication(t.Context(), CreateApplicationInput{
		Name:         "dashboard",
		Confidential: true,
		Scopes:       []string{"openid", "profile"},
		RedirectURIs: []domain.RedirectURI{{Value: "https://dash.example.com/cb"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotEmpty(t, app.ClientID)
	require.NotEmpty(t, app.ConcurrencyStamp)
	assert.NoError(t, cryptox.VerifySecret(secret, app.SecretHash), "returned secret must match the stored hash")

	t.Run("public clients get no secret", func(t *testing.T) {
		pub, secret, err := svc.CreateApplication(t.Context(), CreateApplicationInput{Name: "spa"})
		require.NoError(t, err)
		assert.Empty(t, secret)
		assert.True(t, pub.IsPublic())
	})

	t.Run("name is required", func(t *testing.T) {
		_, _, err := svc.CreateApplication(t.Context(), CreateApplicationInput{})
		require.ErrorIs(t, err, ErrNameRequired)
	})

	t.Run("update rotates the stamp", func(t *testing.T) {
		updated := app
		updated.Name = "dashboard-v2"

		got, err := svc.UpdateApplication(t.Context(), updated)
		require.NoError(t, err)
		assert.NotEqual(t, app.ConcurrencyStamp, got.ConcurrencyStamp)
		assert.Equal(t, "dashboard-v2", got.Name)

		app = got
	})

	t.Run("concurrent update with a stale stamp loses", func(t *testing.T) {
		first := app
		first.Name = "winner"
		won, err := svc.UpdateApplication(t.Context(), first)
		require.NoError(t, err)

		second := app // stale stamp
		second.Name = "loser"
		_, err = svc.UpdateApplication(t.Context(), second)
		require.ErrorIs(t, err, ErrStaleRecord)

		app = won
	})

	t.Run("stale delete loses, fresh delete wins", func(t *testing.T) {
		stale := "not-the-current-stamp"
		require.ErrorIs(t, svc.DeleteApplication(t.Context(), app.ID, stale), ErrStaleRecord)

		require.NoError(t, svc.DeleteApplication(t.Context(), app.ID, app.ConcurrencyStamp))

		_, err := svc.GetApplication(t.Context(), app.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestUserServiceLifecycle(t *testing.T) {
	st := newServiceStore(t)
	svc := &UserService{Store: st, Issuer: "id.example.com"}

	user, err := svc.CreateUser(t.Context(), "alice", "Alice", "correct horse battery staple", nil)
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	t.Run("short passwords are rejected", func(t *testing.T) {
		_, err := svc.CreateUser(t.Context(), "bob", "Bob", "short", nil)
		require.ErrorIs(t, err, ErrWeakPassword)
	})

	t.Run("password change revokes refresh tokens", func(t *testing.T) {
		grant := domain.Grant{ID: "g-1", UserID: user.ID, ClientID: "client-1", SessionID: "s-1"}
		require.NoError(t, st.Grants().Create(t.Context(), grant))

		rt := domain.RefreshToken{
			ID: "rt-1", UserID: user.ID, ClientID: "client-1",
			TokenHash: "hash-1", ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, st.RefreshTokens().Create(t.Context(), rt))

		require.NoError(t, svc.SetPassword(t.Context(), user.ID, "an even longer password"))

		got, err := st.RefreshTokens().GetByHash(t.Context(), "hash-1")
		require.NoError(t, err)
		assert.True(t, got.Revoked)
	})

	t.Run("mfa enrolment round trip", func(t *testing.T) {
		secret, url, err := svc.EnrollMFA(t.Context(), user.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, secret)
		assert.Contains(t, url, "otpauth://totp/")

		got, err := svc.GetUser(t.Context(), user.ID)
		require.NoError(t, err)
		require.NotNil(t, got.MFAEnabled)

		require.NoError(t, svc.DisableMFA(t.Context(), user.ID))
		require.ErrorIs(t, svc.DisableMFA(t.Context(), user.ID), ErrMFANotEnrolled)
	})
}
