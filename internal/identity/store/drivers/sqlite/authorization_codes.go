package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/store"
)

type authorizationCodesRepo struct {
	q querier
}

const authorizationCodeColumns = `id, user_id, client_id, code_hash, redirect_uri, scopes, nonce, session_id, code_challenge, code_challenge_method, expires_at, used_at, created_at`

func (r *authorizationCodesRepo) Create(ctx context.Context, code domain.AuthorizationCode) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO authorization_codes (id, user_id, client_id, code_hash, redirect_uri, scopes, nonce, session_id, code_challenge, code_challenge_method, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID, code.UserID, code.ClientID, code.CodeHash, code.RedirectURI,
		joinScopes(code.Scopes), code.Nonce, code.SessionID,
		code.CodeChallenge, code.CodeChallengeMethod, code.ExpiresAt.UTC(), time.Now().UTC())
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *authorizationCodesRepo) GetByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+authorizationCodeColumns+` FROM authorization_codes WHERE code_hash = ?`, hash)

	var (
		code   domain.AuthorizationCode
		scopes string
		usedAt sql.NullTime
	)
	err := row.Scan(&code.ID, &code.UserID, &code.ClientID, &code.CodeHash,
		&code.RedirectURI, &scopes, &code.Nonce, &code.SessionID,
		&code.CodeChallenge, &code.CodeChallengeMethod,
		&code.ExpiresAt, &usedAt, &code.CreatedAt)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	code.Scopes = splitScopes(scopes)
	code.UsedAt = mapNullTimePtr(usedAt)
	return code, nil
}

// MarkUsed consumes a code. The used_at IS NULL guard makes double redemption
// lose even when two exchanges race.
func (r *authorizationCodesRepo) MarkUsed(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE authorization_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *authorizationCodesRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM authorization_codes WHERE expires_at < ?`, time.Now().UTC())
	return err
}
