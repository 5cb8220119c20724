package sqlite

import (
	"context"
	"time"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/store"
)

type grantsRepo struct {
	q querier
}

const grantColumns = `id, user_id, client_id, session_id, logout_redirect_uri, scopes, created_at`

func (r *grantsRepo) Create(ctx context.Context, g domain.Grant) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO grants (id, user_id, client_id, session_id, logout_redirect_uri, scopes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.ClientID, g.SessionID, g.LogoutRedirectURI,
		joinScopes(g.Scopes), time.Now().UTC())
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *grantsRepo) GetByUserAndClient(ctx context.Context, userID, clientID string) (domain.Grant, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM grants WHERE user_id = ? AND client_id = ?`,
		userID, clientID)

	var (
		g      domain.Grant
		scopes string
	)
	err := row.Scan(&g.ID, &g.UserID, &g.ClientID, &g.SessionID,
		&g.LogoutRedirectURI, &scopes, &g.CreatedAt)
	if err != nil {
		return domain.Grant{}, mapNotFound(err)
	}
	g.Scopes = splitScopes(scopes)
	return g, nil
}

func (r *grantsRepo) ListByUser(ctx context.Context, userID string) ([]domain.Grant, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM grants WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []domain.Grant
	for rows.Next() {
		var (
			g      domain.Grant
			scopes string
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.ClientID, &g.SessionID,
			&g.LogoutRedirectURI, &scopes, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Scopes = splitScopes(scopes)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *grantsRepo) DeleteByUserAndClient(ctx context.Context, userID, clientID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM grants WHERE user_id = ? AND client_id = ?`, userID, clientID)
	return err
}

func (r *grantsRepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM grants WHERE user_id = ?`, userID)
	return err
}
