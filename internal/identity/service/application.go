// Package service implements the identity server's use cases on top of the
// store, the protocol validators, the session manager, and the token
// pipeline.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/pkg/cryptox"
	"github.com/brightlock/identity/pkg/idx"
	"github.com/brightlock/identity/pkg/slogx"
)

var (
	ErrNameRequired = errors.New("name_required")
	ErrStaleRecord  = errors.New("stale_record")
)

// ApplicationService manages relying-party registrations. Every write runs
// under optimistic concurrency: the caller presents the stamp it read, and a
// stale stamp surfaces as ErrStaleRecord.
type ApplicationService struct {
	Store store.Store
}

// CreateApplicationInput describes a new registration.
type CreateApplicationInput struct {
	Name         string
	Confidential bool
	Scopes       []string
	Claims       []domain.Claim
	RedirectURIs []domain.RedirectURI
}

// CreateApplication registers a new client. For confidential clients the
// plaintext secret is returned exactly once; only its hash is stored.
func (s *ApplicationService) CreateApplication(ctx context.Context, in CreateApplicationInput) (domain.Application, string, error) {
	l := slogx.FromContext(ctx)

	if in.Name == "" {
		return domain.Application{}, "", ErrNameRequired
	}

	clientID, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.Application{}, "", err
	}

	var secret, secretHash string
	if in.Confidential {
		secret, err = cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return domain.Application{}, "", err
		}
		secretHash, err = cryptox.HashSecret(secret)
		if err != nil {
			return domain.Application{}, "", err
		}
	}

	app := domain.Application{
		ID:               idx.New().String(),
		ClientID:         clientID,
		Name:             in.Name,
		SecretHash:       secretHash,
		ConcurrencyStamp: idx.New().String(),
		Enabled:          true,
		Scopes:           in.Scopes,
		Claims:           in.Claims,
		RedirectURIs:     in.RedirectURIs,
	}

	if err := s.Store.Applications().Create(ctx, app); err != nil {
		return domain.Application{}, "", err
	}

	l.Info("application registered",
		slog.String("application_id", app.ID),
		slog.String("name", app.Name),
		slog.Bool("confidential", in.Confidential),
	)
	return app, secret, nil
}

// UpdateApplication writes the mutable fields of app. The stamp carried by
// app must be the one the caller read; on success a fresh stamp is stored
// and returned on the record.
func (s *ApplicationService) UpdateApplication(ctx context.Context, app domain.Application) (domain.Application, error) {
	newStamp := idx.New().String()

	err := s.Store.Applications().Update(ctx, app, newStamp)
	if err != nil {
		if errors.Is(err, store.ErrConcurrency) {
			return domain.Application{}, ErrStaleRecord
		}
		return domain.Application{}, err
	}

	app.ConcurrencyStamp = newStamp
	return app, nil
}

// DeleteApplication removes a registration if the presented stamp is still
// current.
func (s *ApplicationService) DeleteApplication(ctx context.Context, id, concurrencyStamp string) error {
	err := s.Store.Applications().Delete(ctx, id, concurrencyStamp)
	if errors.Is(err, store.ErrConcurrency) {
		return ErrStaleRecord
	}
	return err
}

// RegenerateSecret issues a fresh secret for a confidential client, under
// the same optimistic concurrency rules as any other update.
func (s *ApplicationService) RegenerateSecret(ctx context.Context, id, concurrencyStamp string) (string, error) {
	app, err := s.Store.Applications().GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if app.ConcurrencyStamp != concurrencyStamp {
		return "", ErrStaleRecord
	}

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	app.SecretHash, err = cryptox.HashSecret(secret)
	if err != nil {
		return "", err
	}

	if _, err := s.UpdateApplication(ctx, app); err != nil {
		return "", err
	}
	return secret, nil
}

func (s *ApplicationService) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	return s.Store.Applications().GetByID(ctx, id)
}

func (s *ApplicationService) ListApplications(ctx context.Context) ([]domain.Application, error) {
	return s.Store.Applications().List(ctx)
}
