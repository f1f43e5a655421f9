package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-capital/atlas-portal/internal/platform/db"
	"github.com/atlas-capital/atlas-portal/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindBySession(ctx context.Context, sessionID string, now time.Time) (*Account, error)
	CreateAccount(ctx context.Context, input NewAccount) (*Account, error)
	CreateSession(ctx context.Context, record SessionRecord) error
	DeleteSession(ctx context.Context, id string) error
	// UpdatePassword stores the new hash and revokes every session of the
	// user, returning the revoked session IDs.
	UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) ([]string, error)
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `u.id, u.email, u.password_hash, u.is_active, COALESCE(p.full_name, ''), COALESCE(p.role, ''), u.created_at, u.updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.IsActive, &a.FullName, &a.Role, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindByEmail fetches an account by case-insensitive email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+`
FROM users u LEFT JOIN profiles p ON p.id = u.id
WHERE LOWER(u.email) = LOWER($1)`, strings.TrimSpace(email))
	return scanAccount(row)
}

// FindByID fetches an account by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+`
FROM users u LEFT JOIN profiles p ON p.id = u.id
WHERE u.id = $1`, id)
	return scanAccount(row)
}

// FindBySession resolves the account bound to an unexpired session.
func (r *PGRepository) FindBySession(ctx context.Context, sessionID string, now time.Time) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+`
FROM auth_sessions s
JOIN users u ON u.id = s.user_id
LEFT JOIN profiles p ON p.id = u.id
WHERE s.id = $1 AND s.expires_at > $2 AND u.is_active`, sessionID, now.UTC())
	return scanAccount(row)
}

// CreateAccount inserts the user and its client profile in one transaction.
func (r *PGRepository) CreateAccount(ctx context.Context, input NewAccount) (*Account, error) {
	var account Account
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO users (email, password_hash)
VALUES ($1, $2)
RETURNING id, email, password_hash, is_active, created_at, updated_at`, strings.TrimSpace(input.Email), input.PasswordHash)
		if err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.IsActive, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO profiles (id, email, full_name, role) VALUES ($1, $2, $3, 'client')`,
			account.ID, account.Email, strings.TrimSpace(input.FullName))
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.ErrDuplicate
		}
		return nil, err
	}
	account.FullName = strings.TrimSpace(input.FullName)
	account.Role = "client"
	return &account, nil
}

// CreateSession binds a browser session to an account, replacing any
// previous binding for the same session.
func (r *PGRepository) CreateSession(ctx context.Context, record SessionRecord) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO auth_sessions (id, user_id, created_at, expires_at, ip, ua)
VALUES ($1, $2, NOW(), $3, NULLIF($4, ''), NULLIF($5, ''))
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, created_at = NOW(), expires_at = EXCLUDED.expires_at, ip = EXCLUDED.ip, ua = EXCLUDED.ua`,
		record.ID, record.UserID, record.ExpiresAt.UTC(), record.IP, record.UA)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id)
	return err
}

// UpdatePassword replaces the password hash and revokes existing sessions.
func (r *PGRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) ([]string, error) {
	var revoked []string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, hash)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		rows, err := tx.Query(ctx, `DELETE FROM auth_sessions WHERE user_id = $1 RETURNING id`, userID)
		if err != nil {
			return err
		}
		revoked, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

// DeleteUserSessions removes every session of the user and returns their IDs.
func (r *PGRepository) DeleteUserSessions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `DELETE FROM auth_sessions WHERE user_id = $1 RETURNING id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// PurgeExpiredSessions deletes sessions that expired before the cutoff.
func (r *PGRepository) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
