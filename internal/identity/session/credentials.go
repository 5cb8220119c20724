package session

import (
	"context"
	"errors"

	"github.com/pquerna/otp/totp"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/pkg/cryptox"
)

var (
	// ErrInvalidCredentials covers unknown username, wrong password, and
	// wrong TOTP code alike; callers must not reveal which.
	ErrInvalidCredentials = errors.New("session: invalid credentials")

	// ErrMFARequired reports a correct password on an MFA-enrolled account
	// submitted without a TOTP code.
	ErrMFARequired = errors.New("session: mfa code required")
)

// CredentialVerifier authenticates interactive logins.
type CredentialVerifier struct {
	Store store.Store
}

// Verify checks a username, password, and optional TOTP code. It returns the
// authenticated user on success. Unknown users run a dummy hash comparison
// so response timing does not reveal account existence.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password, totpCode string) (domain.User, error) {
	user, err := v.Store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			cryptox.VerifyDummy(password)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if err := cryptox.VerifySecret(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrMismatch) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if user.MFAEnabled != nil && user.MFASecret != nil {
		if totpCode == "" {
			return domain.User{}, ErrMFARequired
		}
		if !totp.Validate(totpCode, *user.MFASecret) {
			return domain.User{}, ErrInvalidCredentials
		}
	}

	return user, nil
}
