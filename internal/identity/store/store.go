// Package store defines the data access interfaces the identity core calls.
// Concrete drivers live under drivers/; the core never touches SQL directly.
package store

import (
	"context"
	"errors"

	"github.com/brightlock/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConcurrency reports an optimistic-lock loss: the concurrency stamp
	// presented for an update or delete no longer matches the stored row.
	// Callers recover by re-fetching and reapplying, never by retrying the
	// same write.
	ErrConcurrency = errors.New("store: concurrency stamp mismatch")
)

// Store is the root data access interface, exposing one sub-repository per
// aggregate plus transaction helpers.
type Store interface {
	Applications() Applications
	Users() Users
	Grants() Grants
	AuthorizationCodes() AuthorizationCodes
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST Commit or Rollback the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing on nil and rolling
	// back on error. Preferred over Tx for multi-step writes such as code
	// redemption.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Applications persists relying-party registrations.
//
// Update and Delete enforce optimistic concurrency on the stamp carried by
// the record: a mismatch yields ErrConcurrency.
type Applications interface {
	GetByID(ctx context.Context, id string) (domain.Application, error)
	GetByClientID(ctx context.Context, clientID string) (domain.Application, error)
	List(ctx context.Context) ([]domain.Application, error)

	// Create inserts a new application along with its scopes, claims, and
	// redirect URIs.
	Create(ctx context.Context, app domain.Application) error

	// Update replaces the mutable fields and child collections, comparing
	// app.ConcurrencyStamp against the stored row and rotating it to
	// newStamp on success.
	Update(ctx context.Context, app domain.Application, newStamp string) error

	// Delete removes the application if concurrencyStamp still matches.
	Delete(ctx context.Context, id, concurrencyStamp string) error

	IsEmpty(ctx context.Context) (bool, error)
}

type Users interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	Create(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// EnableMFA stores the TOTP secret and marks enrolment time.
	EnableMFA(ctx context.Context, userID, secret string) error
	DisableMFA(ctx context.Context, userID string) error

	Delete(ctx context.Context, userID string) error
	IsEmpty(ctx context.Context) (bool, error)
}

// Grants persists per-application session authorization records.
type Grants interface {
	Create(ctx context.Context, g domain.Grant) error

	// GetByUserAndClient is the login manager's session lookup; exact match
	// on both ids.
	GetByUserAndClient(ctx context.Context, userID, clientID string) (domain.Grant, error)

	ListByUser(ctx context.Context, userID string) ([]domain.Grant, error)
	DeleteByUserAndClient(ctx context.Context, userID, clientID string) error
	DeleteByUser(ctx context.Context, userID string) error
}

type AuthorizationCodes interface {
	Create(ctx context.Context, code domain.AuthorizationCode) error
	GetByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// MarkUsed consumes a code; a second redemption must fail.
	MarkUsed(ctx context.Context, id string) error

	DeleteExpired(ctx context.Context) error
}

type RefreshTokens interface {
	Create(ctx context.Context, t domain.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (domain.RefreshToken, error)
	Revoke(ctx context.Context, hash string) error
	RevokeAllForUserClient(ctx context.Context, userID, clientID string) error
	DeleteExpired(ctx context.Context) error
}
