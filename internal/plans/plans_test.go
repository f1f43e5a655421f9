package plans

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-capital/atlas-portal/internal/view"
)

type mockRepo struct {
	plans     []Plan
	listErr   error
	listCalls int
	soldOut   map[uuid.UUID]bool
}

func (m *mockRepo) ListPlans(context.Context) ([]Plan, error) {
	m.listCalls++
	return m.plans, m.listErr
}

func (m *mockRepo) SetSoldOut(_ context.Context, id uuid.UUID, soldOut bool) error {
	for i := range m.plans {
		if m.plans[i].ID == id {
			m.plans[i].SoldOut = soldOut
			if m.soldOut == nil {
				m.soldOut = map[uuid.UUID]bool{}
			}
			m.soldOut[id] = soldOut
			return nil
		}
	}
	return ErrPlanNotFound
}

func catalogue() []Plan {
	return []Plan{
		{ID: uuid.New(), Name: "Atlas Prime", Price: 1500, Features: []string{"Relatórios mensais"}},
		{ID: uuid.New(), Name: "Atlas Elite", Price: 3000, Popular: true},
		{ID: uuid.New(), Name: "Atlas Infinity", Price: 10000, SoldOut: true},
	}
}

func newTestService(t *testing.T, repo Repository) (*Service, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute, nil), nil), client
}

func TestCacheVersionAndKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute, nil)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	key, err := cache.BuildKey(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, "plans:list:1", key)

	require.NoError(t, cache.Bump(ctx))
	key, err = cache.BuildKey(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, "plans:list:2", key)
}

func TestNilCacheCallsLoader(t *testing.T) {
	var cache *Cache
	key, err := cache.BuildKey(context.Background(), "list")
	require.NoError(t, err)
	assert.Equal(t, "plans:list", key)

	var out []string
	err = cache.FetchJSON(context.Background(), key, &out, func(context.Context) (any, error) {
		return []string{"a"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out)
	assert.NoError(t, cache.Bump(context.Background()))
}

func TestServiceListCachesUntilRefresh(t *testing.T) {
	repo := &mockRepo{plans: catalogue()}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "Atlas Prime", first[0].Name)
	assert.True(t, first[1].Popular)
	assert.False(t, first[2].Available())

	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	require.NoError(t, svc.Refresh(ctx))
	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestServiceSetSoldOutInvalidates(t *testing.T) {
	repo := &mockRepo{plans: catalogue()}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.SetSoldOut(ctx, repo.plans[0].ID, true))

	plans, err := svc.List(ctx)
	require.NoError(t, err)
	assert.True(t, plans[0].SoldOut)
	assert.ErrorIs(t, svc.SetSoldOut(ctx, uuid.New(), true), ErrPlanNotFound)
}

func TestServiceListError(t *testing.T) {
	repo := &mockRepo{listErr: errors.New("db down")}
	svc, _ := newTestService(t, repo)
	_, err := svc.List(context.Background())
	assert.Error(t, err)
}

func TestServiceListEmptyCatalogue(t *testing.T) {
	svc, _ := newTestService(t, &mockRepo{})
	plans, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestListenForInvalidationAdoptsNewerVersion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, cache.ListenForInvalidation(ctx))
	require.NoError(t, client.Publish(ctx, BumpChannel, "7").Err())
	assert.Eventually(t, func() bool {
		ver, err := cache.Version(ctx)
		return err == nil && ver == 7
	}, time.Second, 10*time.Millisecond)
}

func newTestHandler(t *testing.T, repo Repository) *Handler {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	svc, _ := newTestService(t, repo)
	return NewHandler(nil, svc, view.NewPages(engine, nil, nil))
}

func TestInvestPageListsPlans(t *testing.T) {
	h := newTestHandler(t, &mockRepo{plans: catalogue()})
	r := chi.NewRouter()
	r.Route("/dashboard", h.MountClientRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard/invest", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Atlas Elite")
	assert.Contains(t, body, "R$ 10.000,00")
	assert.Contains(t, body, "Esgotado")
}

func TestAdminSetSoldOut(t *testing.T) {
	repo := &mockRepo{plans: catalogue()}
	h := newTestHandler(t, repo)
	r := chi.NewRouter()
	r.Route("/admin/plans", h.MountAdminRoutes)

	form := url.Values{"sold_out": {"true"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/plans/"+repo.plans[1].ID.String()+"/sold-out", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/plans", rec.Header().Get("Location"))
	assert.True(t, repo.soldOut[repo.plans[1].ID])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/plans/not-a-uuid/sold-out", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
