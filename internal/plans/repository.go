package plans

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads and updates the plan catalogue.
type Repository interface {
	ListPlans(ctx context.Context) ([]Plan, error)
	SetSoldOut(ctx context.Context, id uuid.UUID, soldOut bool) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListPlans returns every plan in display order.
func (r *PGRepository) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, price::float8, features, is_popular, sold_out, sort_order
FROM plans
ORDER BY sort_order, price`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Plan, error) {
		var p Plan
		err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Features, &p.Popular, &p.SoldOut, &p.SortOrder)
		return p, err
	})
}

// SetSoldOut flips the sold-out flag of a plan.
func (r *PGRepository) SetSoldOut(ctx context.Context, id uuid.UUID, soldOut bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE plans SET sold_out = $2, updated_at = NOW() WHERE id = $1`, id, soldOut)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
