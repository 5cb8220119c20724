package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/store"
)

type usersRepo struct {
	q querier
}

const userColumns = `id, username, preferred_name, password_hash, concurrency_stamp, mfa_enabled, mfa_secret, created_at, updated_at`

func (r *usersRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanUser(ctx, row)
}

func (r *usersRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return r.scanUser(ctx, row)
}

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, username, preferred_name, password_hash, concurrency_stamp, mfa_enabled, mfa_secret, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PreferredName, u.PasswordHash, u.ConcurrencyStamp,
		mapOptionalTime(u.MFAEnabled), mapOptionalString(u.MFASecret), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return err
	}

	for _, c := range u.Claims {
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO user_claims (user_id, claim_type, claim_value) VALUES (?, ?, ?)`,
			u.ID, c.Type, c.Value); err != nil {
			return err
		}
	}
	return nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireUserAffected(res)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID, secret string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET mfa_enabled = ?, mfa_secret = ?, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), secret, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireUserAffected(res)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET mfa_enabled = NULL, mfa_secret = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireUserAffected(res)
}

func (r *usersRepo) Delete(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	return requireUserAffected(res)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func requireUserAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) scanUser(ctx context.Context, row *sql.Row) (domain.User, error) {
	var (
		u          domain.User
		mfaEnabled sql.NullTime
		mfaSecret  sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.PreferredName, &u.PasswordHash,
		&u.ConcurrencyStamp, &mfaEnabled, &mfaSecret, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.MFAEnabled = mapNullTimePtr(mfaEnabled)
	u.MFASecret = mapNullStringPtr(mfaSecret)

	claims, err := r.q.QueryContext(ctx,
		`SELECT claim_type, claim_value FROM user_claims WHERE user_id = ?`, u.ID)
	if err != nil {
		return domain.User{}, err
	}
	defer claims.Close()
	for claims.Next() {
		var c domain.Claim
		if err := claims.Scan(&c.Type, &c.Value); err != nil {
			return domain.User{}, err
		}
		u.Claims = append(u.Claims, c)
	}
	return u, claims.Err()
}
