// Package postgresrepo provides a Postgres-backed principal repository.
package postgresrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shelfward/shelfward-server/principals"
)

var _ principals.Repo = (*Store)(nil)

// Store implements principals.Repo on top of database/sql with the lib/pq driver.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS principals (
	id            TEXT PRIMARY KEY,
	email         TEXT UNIQUE NOT NULL,
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	blocked       BOOLEAN NOT NULL DEFAULT FALSE,
	mfa_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
	session_id    TEXT,
	otp_code      TEXT,
	api_key       TEXT,
	date_joined   TIMESTAMPTZ NOT NULL,
	last_login    TIMESTAMPTZ
)`

// New returns a Repo backed by the given database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres with the given DSN and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[postgresrepo.Open] sql.Open")
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "[postgresrepo.Open] ping")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Wrap(err, "[postgresrepo.Open] ensuring schema")
	}
	return New(db), nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const principalColumns = `id, email, role, password_hash, blocked, mfa_enabled, session_id, otp_code, api_key, date_joined, last_login`

func (s *Store) Upsert(ctx context.Context, p *principals.Principal) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.DateJoined.IsZero() {
		p.DateJoined = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (`+principalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			password_hash = EXCLUDED.password_hash,
			blocked = EXCLUDED.blocked,
			mfa_enabled = EXCLUDED.mfa_enabled,
			session_id = EXCLUDED.session_id,
			otp_code = EXCLUDED.otp_code,
			api_key = EXCLUDED.api_key`,
		p.ID, p.Email, p.Role, p.PasswordHash, p.Blocked, p.MFAEnabled,
		p.SessionID, p.OTPCode, p.APIKey, p.DateJoined, nullableTime(p.LastLogin))
	return errors.Wrap(err, "[Store.Upsert] exec")
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "[Store.Delete] exec")
	}
	return noneAffectedIsNotFound(res)
}

func (s *Store) GetByID(ctx context.Context, id string) (*principals.Principal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return scanPrincipal(row)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*principals.Principal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE email = $1`, email)
	return scanPrincipal(row)
}

func (s *Store) List(ctx context.Context, offset, limit int) ([]*principals.Principal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+principalColumns+` FROM principals ORDER BY id OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.List] query")
	}
	defer rows.Close()

	var list []*principals.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, errors.Wrap(rows.Err(), "[Store.List] rows")
}

func (s *Store) SetSession(ctx context.Context, id, sessionID string) error {
	return s.exec(ctx, `UPDATE principals SET session_id = $2 WHERE id = $1`, id, sessionID)
}

func (s *Store) SetAPIKey(ctx context.Context, id, apiKey string) error {
	return s.exec(ctx, `UPDATE principals SET api_key = $2, last_login = NOW() WHERE id = $1`, id, apiKey)
}

func (s *Store) SetOTP(ctx context.Context, id, code string) error {
	return s.exec(ctx, `UPDATE principals SET otp_code = $2 WHERE id = $1`, id, code)
}

func (s *Store) ClearOTP(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE principals SET otp_code = NULL WHERE id = $1`, id)
}

func (s *Store) ClearSession(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE principals SET session_id = NULL, api_key = NULL, otp_code = NULL WHERE id = $1`, id)
}

func (s *Store) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return s.exec(ctx, `UPDATE principals SET blocked = $2 WHERE id = $1`, id, blocked)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "[Store.exec] update")
	}
	return noneAffectedIsNotFound(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*principals.Principal, error) {
	var (
		p         principals.Principal
		lastLogin sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Email, &p.Role, &p.PasswordHash, &p.Blocked, &p.MFAEnabled,
		&p.SessionID, &p.OTPCode, &p.APIKey, &p.DateJoined, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, principals.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[scanPrincipal] scan")
	}
	if lastLogin.Valid {
		p.LastLogin = lastLogin.Time
	}
	return &p, nil
}

func noneAffectedIsNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[noneAffectedIsNotFound] rows affected")
	}
	if n == 0 {
		return principals.ErrNotFound
	}
	return nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
