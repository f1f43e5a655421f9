package support

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateTicket inserts t and returns it with its generated fields.
func (r *PGRepository) CreateTicket(ctx context.Context, t Ticket) (Ticket, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO support_tickets (user_id, subject, message, status, priority)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`, t.UserID, t.Subject, t.Message, t.Status, t.Priority).Scan(&t.ID, &t.CreatedAt)
	return t, err
}

var _ Repository = (*PGRepository)(nil)
