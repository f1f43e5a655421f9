package dashboard

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository exposes the read queries behind both dashboards.
type Repository interface {
	ActiveInvestments(ctx context.Context, userID uuid.UUID) ([]Investment, error)
	// ActiveSubscription returns nil when the client has none.
	ActiveSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	RecentTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error)
	TransactionHistory(ctx context.Context, userID uuid.UUID) ([]Transaction, error)

	CountClients(ctx context.Context) (int, error)
	CompletedPaymentAmounts(ctx context.Context) ([]float64, error)
	CountActiveSubscriptions(ctx context.Context) (int, error)
	RecentActivity(ctx context.Context, limit int) ([]Transaction, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ActiveInvestments lists the client's active investments.
func (r *PGRepository) ActiveInvestments(ctx context.Context, userID uuid.UUID) ([]Investment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, amount::float8, projected_return::float8, start_date
FROM investments
WHERE user_id = $1 AND status = 'active'
ORDER BY start_date`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Investment
	for rows.Next() {
		var inv Investment
		if err := rows.Scan(&inv.ID, &inv.Amount, &inv.ProjectedReturn, &inv.StartDate); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ActiveSubscription returns the client's active subscription, if any.
func (r *PGRepository) ActiveSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	var sub Subscription
	err := r.pool.QueryRow(ctx, `SELECT s.id, p.name, s.status, s.current_period_end
FROM subscriptions s
JOIN plans p ON p.id = s.plan_id
WHERE s.user_id = $1 AND s.status = 'active'
ORDER BY s.current_period_end
LIMIT 1`, userID).Scan(&sub.ID, &sub.PlanName, &sub.Status, &sub.CurrentPeriodEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

const transactionColumns = `t.id, t.user_id, t.amount::float8, t.type, t.status, t.description, t.created_at`

func scanTransactions(rows pgx.Rows, withOwner bool) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var tx Transaction
		dest := []any{&tx.ID, &tx.UserID, &tx.Amount, &tx.Type, &tx.Status, &tx.Description, &tx.CreatedAt}
		if withOwner {
			dest = append(dest, &tx.OwnerName)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// RecentTransactions lists the client's newest transactions.
func (r *PGRepository) RecentTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+`
FROM transactions t
WHERE t.user_id = $1
ORDER BY t.created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows, false)
}

// TransactionHistory lists every transaction of the client, newest first.
func (r *PGRepository) TransactionHistory(ctx context.Context, userID uuid.UUID) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+`
FROM transactions t
WHERE t.user_id = $1
ORDER BY t.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows, false)
}

// CountClients counts profiles holding the client role.
func (r *PGRepository) CountClients(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE role = 'client'`).Scan(&n)
	return n, err
}

// CompletedPaymentAmounts lists the amounts of completed payments.
func (r *PGRepository) CompletedPaymentAmounts(ctx context.Context) ([]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT amount::float8 FROM transactions WHERE status = 'completed' AND type = 'payment'`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[float64])
}

// CountActiveSubscriptions counts active subscriptions across clients.
func (r *PGRepository) CountActiveSubscriptions(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE status = 'active'`).Scan(&n)
	return n, err
}

// RecentActivity lists the newest transactions with their owner's name.
func (r *PGRepository) RecentActivity(ctx context.Context, limit int) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+`, COALESCE(p.full_name, '')
FROM transactions t
LEFT JOIN profiles p ON p.id = t.user_id
ORDER BY t.created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows, true)
}

var _ Repository = (*PGRepository)(nil)
