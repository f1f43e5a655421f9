package dashboard

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const nextPaymentLayout = "02/01/2006"

// Recorder counts dashboards served with default figures.
type Recorder interface {
	ObserveDashboardDegraded(view string)
}

// ReduceClient folds the client's rows into a ClientSummary.
func ReduceClient(investments []Investment, sub *Subscription, recent []Transaction) ClientSummary {
	summary := ClientSummary{NextPayment: "N/A"}
	for _, inv := range investments {
		summary.TotalInvested += inv.Amount
		summary.ProjectedGains += inv.ProjectedReturn
	}
	summary.ActiveInvestments = len(investments)
	if sub != nil && !sub.CurrentPeriodEnd.IsZero() {
		summary.NextPayment = sub.CurrentPeriodEnd.Format(nextPaymentLayout)
	}
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	summary.RecentTransactions = recent
	return summary
}

// ReduceAdmin folds the global rows into an AdminSummary.
func ReduceAdmin(clients int, payments []float64, activeSubscriptions int, recent []Transaction) AdminSummary {
	summary := AdminSummary{TotalClients: clients, ActiveSubscriptions: activeSubscriptions}
	for _, amount := range payments {
		summary.TotalRevenue += amount
	}
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	summary.RecentActivity = recent
	return summary
}

// ClientAggregator loads the client dashboard figures.
type ClientAggregator struct {
	repo    Repository
	logger  *slog.Logger
	metrics Recorder
}

// NewClientAggregator constructs a ClientAggregator.
func NewClientAggregator(repo Repository, logger *slog.Logger, metrics Recorder) *ClientAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientAggregator{repo: repo, logger: logger, metrics: metrics}
}

// Summarize runs the client queries concurrently. A failing query degrades
// the summary to zero values; it never returns an error.
func (a *ClientAggregator) Summarize(ctx context.Context, userID uuid.UUID) ClientSummary {
	var (
		investments []Investment
		sub         *Subscription
		recent      []Transaction
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := a.repo.ActiveInvestments(ctx, userID)
		investments = rows
		return err
	})
	g.Go(func() error {
		row, err := a.repo.ActiveSubscription(ctx, userID)
		sub = row
		return err
	})
	g.Go(func() error {
		rows, err := a.repo.RecentTransactions(ctx, userID, RecentLimit)
		recent = rows
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.Error("load client dashboard", slog.String("user", userID.String()), slog.Any("error", err))
		if a.metrics != nil {
			a.metrics.ObserveDashboardDegraded("client")
		}
		return ClientSummary{NextPayment: "N/A", Degraded: true}
	}
	return ReduceClient(investments, sub, recent)
}

// AdminAggregator loads the admin dashboard figures.
type AdminAggregator struct {
	repo    Repository
	logger  *slog.Logger
	metrics Recorder
}

// NewAdminAggregator constructs an AdminAggregator.
func NewAdminAggregator(repo Repository, logger *slog.Logger, metrics Recorder) *AdminAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminAggregator{repo: repo, logger: logger, metrics: metrics}
}

// Summarize runs the admin queries concurrently with the same failure policy
// as ClientAggregator.Summarize.
func (a *AdminAggregator) Summarize(ctx context.Context) AdminSummary {
	var (
		clients  int
		payments []float64
		active   int
		recent   []Transaction
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.repo.CountClients(ctx)
		clients = n
		return err
	})
	g.Go(func() error {
		rows, err := a.repo.CompletedPaymentAmounts(ctx)
		payments = rows
		return err
	})
	g.Go(func() error {
		n, err := a.repo.CountActiveSubscriptions(ctx)
		active = n
		return err
	})
	g.Go(func() error {
		rows, err := a.repo.RecentActivity(ctx, RecentLimit)
		recent = rows
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.Error("load admin dashboard", slog.Any("error", err))
		if a.metrics != nil {
			a.metrics.ObserveDashboardDegraded("admin")
		}
		return AdminSummary{Degraded: true}
	}
	return ReduceAdmin(clients, payments, active, recent)
}
