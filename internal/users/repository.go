package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListClients returns every client profile with its active investment totals.
func (r *Repository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.email, COALESCE(p.full_name, ''), u.is_active,
	COUNT(i.id), COALESCE(SUM(i.amount), 0)::float8, u.created_at
FROM users u
JOIN profiles p ON p.id = u.id
LEFT JOIN investments i ON i.user_id = u.id AND i.status = 'active'
WHERE p.role = 'client'
GROUP BY u.id, u.email, p.full_name, u.is_active, u.created_at
ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Client, error) {
		var c Client
		err := row.Scan(&c.ID, &c.Email, &c.FullName, &c.IsActive, &c.Investments, &c.TotalAmount, &c.CreatedAt)
		return c, err
	})
}

// SetActive toggles whether the user may sign in.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
