package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/store"
)

type applicationsRepo struct {
	q querier
}

const applicationColumns = `id, client_id, name, secret_hash, concurrency_stamp, enabled, scopes, created_at, updated_at`

func (r *applicationsRepo) GetByID(ctx context.Context, id string) (domain.Application, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	return r.scanApplication(ctx, row)
}

func (r *applicationsRepo) GetByClientID(ctx context.Context, clientID string) (domain.Application, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE client_id = ?`, clientID)
	return r.scanApplication(ctx, row)
}

func (r *applicationsRepo) List(ctx context.Context) ([]domain.Application, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		app, err := scanApplicationRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range apps {
		if err := r.loadChildren(ctx, &apps[i]); err != nil {
			return nil, err
		}
	}
	return apps, nil
}

func (r *applicationsRepo) Create(ctx context.Context, app domain.Application) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO applications (id, client_id, name, secret_hash, concurrency_stamp, enabled, scopes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.ClientID, app.Name, mapStringNull(app.SecretHash),
		app.ConcurrencyStamp, app.Enabled, joinScopes(app.Scopes), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return err
	}

	return r.insertChildren(ctx, app)
}

// Update replaces the mutable fields and child collections. The WHERE clause
// carries the stamp the caller read; zero rows affected means either the row
// vanished or somebody else won the write.
func (r *applicationsRepo) Update(ctx context.Context, app domain.Application, newStamp string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE applications
		 SET name = ?, secret_hash = ?, enabled = ?, scopes = ?, concurrency_stamp = ?, updated_at = ?
		 WHERE id = ? AND concurrency_stamp = ?`,
		app.Name, mapStringNull(app.SecretHash), app.Enabled, joinScopes(app.Scopes),
		newStamp, time.Now().UTC(), app.ID, app.ConcurrencyStamp)
	if err != nil {
		return err
	}
	if err := r.requireAffected(ctx, res, app.ID); err != nil {
		return err
	}

	if err := r.deleteChildren(ctx, app.ID); err != nil {
		return err
	}
	return r.insertChildren(ctx, app)
}

func (r *applicationsRepo) Delete(ctx context.Context, id, concurrencyStamp string) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM applications WHERE id = ? AND concurrency_stamp = ?`,
		id, concurrencyStamp)
	if err != nil {
		return err
	}
	return r.requireAffected(ctx, res, id)
}

func (r *applicationsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// requireAffected distinguishes a lost optimistic lock from a missing row
// after a stamped write touched nothing.
func (r *applicationsRepo) requireAffected(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = r.q.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE id = ?`, id).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case err != nil:
		return err
	default:
		return store.ErrConcurrency
	}
}

func (r *applicationsRepo) scanApplication(ctx context.Context, row *sql.Row) (domain.Application, error) {
	app, err := scanApplicationRow(row.Scan)
	if err != nil {
		return domain.Application{}, mapNotFound(err)
	}
	if err := r.loadChildren(ctx, &app); err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

func scanApplicationRow(scan func(...any) error) (domain.Application, error) {
	var (
		app        domain.Application
		secretHash sql.NullString
		scopes     string
	)
	err := scan(&app.ID, &app.ClientID, &app.Name, &secretHash, &app.ConcurrencyStamp,
		&app.Enabled, &scopes, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return domain.Application{}, err
	}
	app.SecretHash = mapNullString(secretHash)
	app.Scopes = splitScopes(scopes)
	return app, nil
}

func (r *applicationsRepo) loadChildren(ctx context.Context, app *domain.Application) error {
	claims, err := r.q.QueryContext(ctx,
		`SELECT claim_type, claim_value FROM application_claims WHERE application_id = ?`, app.ID)
	if err != nil {
		return err
	}
	defer claims.Close()
	for claims.Next() {
		var c domain.Claim
		if err := claims.Scan(&c.Type, &c.Value); err != nil {
			return err
		}
		app.Claims = append(app.Claims, c)
	}
	if err := claims.Err(); err != nil {
		return err
	}

	uris, err := r.q.QueryContext(ctx,
		`SELECT uri, is_logout FROM application_redirect_uris WHERE application_id = ?`, app.ID)
	if err != nil {
		return err
	}
	defer uris.Close()
	for uris.Next() {
		var u domain.RedirectURI
		if err := uris.Scan(&u.Value, &u.IsLogout); err != nil {
			return err
		}
		app.RedirectURIs = append(app.RedirectURIs, u)
	}
	return uris.Err()
}

func (r *applicationsRepo) insertChildren(ctx context.Context, app domain.Application) error {
	for _, c := range app.Claims {
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO application_claims (application_id, claim_type, claim_value) VALUES (?, ?, ?)`,
			app.ID, c.Type, c.Value); err != nil {
			return err
		}
	}
	for _, u := range app.RedirectURIs {
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO application_redirect_uris (application_id, uri, is_logout) VALUES (?, ?, ?)`,
			app.ID, u.Value, u.IsLogout); err != nil {
			return err
		}
	}
	return nil
}

func (r *applicationsRepo) deleteChildren(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM application_claims WHERE application_id = ?`, id); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM application_redirect_uris WHERE application_id = ?`, id)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
