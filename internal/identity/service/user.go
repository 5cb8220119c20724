package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pquerna/otp/totp"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/pkg/cryptox"
	"github.com/brightlock/identity/pkg/idx"
	"github.com/brightlock/identity/pkg/slogx"
)

var (
	ErrUsernameRequired = errors.New("username_required")
	ErrWeakPassword     = errors.New("weak_password")
	ErrMFANotEnrolled   = errors.New("mfa_not_enrolled")
)

const minPasswordLength = 12

// UserService manages user accounts and their MFA enrolment.
type UserService struct {
	Store  store.Store
	Issuer string
}

// CreateUser registers an account with an argon2id-hashed password.
func (s *UserService) CreateUser(ctx context.Context, username, preferredName, password string, claims []domain.Claim) (domain.User, error) {
	l := slogx.FromContext(ctx)

	if username == "" {
		return domain.User{}, ErrUsernameRequired
	}
	if len(password) < minPasswordLength {
		return domain.User{}, ErrWeakPassword
	}

	hash, err := cryptox.HashSecret(password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:               idx.New().String(),
		Username:         username,
		PreferredName:    preferredName,
		PasswordHash:     hash,
		ConcurrencyStamp: idx.New().String(),
		Claims:           claims,
	}

	if err := s.Store.Users().Create(ctx, user); err != nil {
		return domain.User{}, err
	}

	l.Info("user created", slog.String("user_id", user.ID), slog.String("username", username))
	return user, nil
}

// SetPassword replaces the password hash and cuts every refresh token the
// user holds, forcing re-authentication on all clients.
func (s *UserService) SetPassword(ctx context.Context, userID, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := cryptox.HashSecret(newPassword)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
			return err
		}

		grants, err := tx.Grants().ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, g := range grants {
			if err := tx.RefreshTokens().RevokeAllForUserClient(ctx, userID, g.ClientID); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnrollMFA generates a TOTP secret for the user and returns the otpauth
// provisioning URL to render as a QR code.
func (s *UserService) EnrollMFA(ctx context.Context, userID string) (secret, url string, err error) {
	user, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return "", "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Username,
	})
	if err != nil {
		return "", "", err
	}

	if err := s.Store.Users().EnableMFA(ctx, userID, key.Secret()); err != nil {
		return "", "", err
	}

	slogx.FromContext(ctx).Info("mfa enrolled", slog.String("user_id", userID))
	return key.Secret(), key.URL(), nil
}

// DisableMFA removes the user's TOTP enrolment.
func (s *UserService) DisableMFA(ctx context.Context, userID string) error {
	user, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabled == nil {
		return ErrMFANotEnrolled
	}
	return s.Store.Users().DisableMFA(ctx, userID)
}

// DeleteUser removes the account; grants and codes cascade in the store.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	return s.Store.Users().Delete(ctx, userID)
}

func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetByID(ctx, userID)
}
