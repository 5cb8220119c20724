package session

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/pkg/cryptox"
	"github.com/brightlock/identity/pkg/idx"
)

func TestCredentialVerifier(t *testing.T) {
	st := newTestStore(t)
	verifier := &CredentialVerifier{Store: st}

	hash, err := cryptox.HashSecret("correct horse battery staple")
	require.NoError(t, err)

	user := domain.User{
		ID:               idx.New().String(),
		Username:         "alice",
		PasswordHash:     hash,
		ConcurrencyStamp: idx.New().String(),
	}
	require.NoError(t, st.Users().Create(t.Context(), user))

	t.Run("valid password authenticates", func(t *testing.T) {
		got, err := verifier.Verify(t.Context(), "alice", "correct horse battery staple", "")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("wrong password is invalid credentials", func(t *testing.T) {
		_, err := verifier.Verify(t.Context(), "alice", "wrong", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user is indistinguishable from wrong password", func(t *testing.T) {
		_, err := verifier.Verify(t.Context(), "nobody", "whatever", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("mfa enrolled account", func(t *testing.T) {
		key, err := totp.Generate(totp.GenerateOpts{Issuer: "identity", AccountName: "alice"})
		require.NoError(t, err)
		require.NoError(t, st.Users().EnableMFA(t.Context(), user.ID, key.Secret()))

		_, err = verifier.Verify(t.Context(), "alice", "correct horse battery staple", "")
		require.ErrorIs(t, err, ErrMFARequired)

		_, err = verifier.Verify(t.Context(), "alice", "correct horse battery staple", "000000")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		code, err := totp.GenerateCode(key.Secret(), time.Now())
		require.NoError(t, err)
		got, err := verifier.Verify(t.Context(), "alice", "correct horse battery staple", code)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})
}
