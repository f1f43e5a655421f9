package perf

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atlas-capital/atlas-portal/internal/dashboard"
	"github.com/atlas-capital/atlas-portal/internal/guard"
	"github.com/atlas-capital/atlas-portal/internal/identity"
	"github.com/atlas-capital/atlas-portal/internal/nav"
	"github.com/atlas-capital/atlas-portal/internal/session"
	"github.com/atlas-capital/atlas-portal/internal/view"
)

type presentStore struct {
	id identity.Identity
}

func (s presentStore) CurrentSession(context.Context, string) (identity.State, error) {
	return identity.Present(s.id), nil
}

func (presentStore) Subscribe(string, func(identity.State)) func() { return func() {} }

func (presentStore) SignIn(context.Context, string, string, string) (identity.Identity, error) {
	return identity.Identity{}, errors.New("unused")
}

func (presentStore) SignUp(context.Context, string, string, string, string) (identity.Identity, error) {
	return identity.Identity{}, errors.New("unused")
}

func (presentStore) SignOut(context.Context, string) error { return nil }

func (presentStore) ResetPassword(context.Context, string) error { return nil }

type slowRepo struct {
	delay time.Duration
}

func (r slowRepo) wait(ctx context.Context) error {
	select {
	case <-time.After(r.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r slowRepo) ActiveInvestments(ctx context.Context, _ uuid.UUID) ([]dashboard.Investment, error) {
	return []dashboard.Investment{{Amount: 1000, ProjectedReturn: 100}}, r.wait(ctx)
}

func (r slowRepo) ActiveSubscription(ctx context.Context, _ uuid.UUID) (*dashboard.Subscription, error) {
	return nil, r.wait(ctx)
}

func (r slowRepo) RecentTransactions(ctx context.Context, _ uuid.UUID, _ int) ([]dashboard.Transaction, error) {
	return nil, r.wait(ctx)
}

func (r slowRepo) TransactionHistory(ctx context.Context, _ uuid.UUID) ([]dashboard.Transaction, error) {
	return nil, r.wait(ctx)
}

func (r slowRepo) CountClients(ctx context.Context) (int, error) { return 0, r.wait(ctx) }

func (r slowRepo) CompletedPaymentAmounts(ctx context.Context) ([]float64, error) {
	return nil, r.wait(ctx)
}

func (r slowRepo) CountActiveSubscriptions(ctx context.Context) (int, error) { return 0, r.wait(ctx) }

func (r slowRepo) RecentActivity(ctx context.Context, _ int) ([]dashboard.Transaction, error) {
	return nil, r.wait(ctx)
}

func newDashboardRouter(tb testing.TB, delay time.Duration) http.Handler {
	tb.Helper()
	engine, err := view.NewEngine()
	if err != nil {
		tb.Fatalf("templates: %v", err)
	}
	h := dashboard.NewHandler(nil, view.NewPages(engine, nil, nil), slowRepo{delay: delay}, nil, nil)
	mounter := session.NewMounter(presentStore{id: identity.Identity{ID: uuid.New(), DisplayName: "Ana", Role: identity.RoleClient}}, nil)
	r := chi.NewRouter()
	r.Use(mounter.Middleware(func(*http.Request) string { return "token" }))
	r.Route("/dashboard", func(r chi.Router) {
		r.Use(guard.Middleware{}.Require(guard.Authenticated))
		h.MountClientRoutes(r)
	})
	return r
}

// The three client queries run concurrently, so the page costs roughly one
// query round trip rather than three.
func TestClientDashboardQueriesRunConcurrently(t *testing.T) {
	const delay = 40 * time.Millisecond
	router := newDashboardRouter(t, delay)

	samples := make([]time.Duration, 0, 20)
	for i := 0; i < 20; i++ {
		start := time.Now()
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		samples = append(samples, time.Since(start))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	}
	if p95 := percentile95(samples); p95 >= 3*delay {
		t.Fatalf("dashboard latency regression: p95=%s threshold=%s", p95, 3*delay)
	}
}

func BenchmarkGuardDecide(b *testing.B) {
	state := identity.Present(identity.Identity{ID: uuid.New(), Role: identity.RoleClient})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = guard.Decide(state, guard.AdminOnly)
	}
}

func BenchmarkNavBuild(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = nav.Build(identity.RoleClient, "/dashboard/reports")
	}
}

func BenchmarkClientDashboard(b *testing.B) {
	router := newDashboardRouter(b, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
