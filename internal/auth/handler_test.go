package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlas-capital/atlas-portal/internal/auth"
	"github.com/atlas-capital/atlas-portal/internal/session"
	"github.com/atlas-capital/atlas-portal/internal/shared"
	"github.com/atlas-capital/atlas-portal/internal/view"
	_ "github.com/atlas-capital/atlas-portal/testing"
)

type memRepo struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account
	sessions map[string]uuid.UUID
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: map[string]*auth.Account{}, sessions: map[string]uuid.UUID{}}
}

func (m *memRepo) add(t *testing.T, email, password, role string) *auth.Account {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	account := &auth.Account{ID: uuid.New(), Email: email, PasswordHash: string(hashed), IsActive: true, FullName: "Ana", Role: role}
	m.mu.Lock()
	m.accounts[strings.ToLower(email)] = account
	m.mu.Unlock()
	return account
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) FindByID(_ context.Context, id uuid.UUID) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRepo) FindBySession(ctx context.Context, id string, _ time.Time) (*auth.Account, error) {
	m.mu.Lock()
	userID, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m.FindByID(ctx, userID)
}

func (m *memRepo) CreateAccount(_ context.Context, input auth.NewAccount) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(input.Email)
	if _, ok := m.accounts[key]; ok {
		return nil, shared.ErrDuplicate
	}
	a := &auth.Account{ID: uuid.New(), Email: input.Email, PasswordHash: input.PasswordHash, IsActive: true, FullName: input.FullName, Role: "client"}
	m.accounts[key] = a
	cp := *a
	return &cp, nil
}

func (m *memRepo) CreateSession(_ context.Context, record auth.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[record.ID] = record.UserID
	return nil
}

func (m *memRepo) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memRepo) UpdatePassword(_ context.Context, userID uuid.UUID, hash string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ID == userID {
			a.PasswordHash = hash
		}
	}
	return m.dropSessionsLocked(userID), nil
}

func (m *memRepo) DeleteUserSessions(_ context.Context, userID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropSessionsLocked(userID), nil
}

func (m *memRepo) dropSessionsLocked(userID uuid.UUID) []string {
	var revoked []string
	for id, owner := range m.sessions {
		if owner == userID {
			revoked = append(revoked, id)
			delete(m.sessions, id)
		}
	}
	return revoked
}

func (m *memRepo) boundTo(id string) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.sessions[id]
	return owner, ok
}

func (m *memRepo) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type capturingMailer struct {
	mu    sync.Mutex
	links []string
}

func (c *capturingMailer) SendPasswordReset(_ context.Context, _, _, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links = append(c.links, link)
	return nil
}

type testEnv struct {
	router   http.Handler
	sessions *shared.SessionManager
	repo     *memRepo
	mailer   *capturingMailer
	service  *auth.Service
}

func newTestEnv(t *testing.T, repo *memRepo) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	mailer := &capturingMailer{}
	service := auth.NewService(repo, auth.ServiceOptions{
		Broadcaster:   auth.NewBroadcaster(nil, nil),
		ResetTokens:   auth.NewResetTokens("reset-secret", time.Hour),
		Mailer:        mailer,
		PublicBaseURL: "https://atlas.test/",
	})
	handler := auth.NewHandler(nil, service, view.NewPages(templates, csrfManager, nil), sessionManager)
	mounter := session.NewMounter(service, nil)

	r := chi.NewRouter()
	r.Use(mounter.Middleware(func(r *http.Request) string {
		return shared.SessionFromContext(r.Context()).Token()
	}))
	handler.MountRoutes(r, nil)
	return &testEnv{router: r, sessions: sessionManager, repo: repo, mailer: mailer, service: service}
}

// do serves req inside a loaded session and persists it afterwards. The
// returned session carries the ID to reuse as cookie.
func (e *testEnv) do(t *testing.T, req *http.Request, cookie string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: e.sessions.CookieName(), Value: cookie})
	}
	sess, err := e.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	if err := e.sessions.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPage(t *testing.T) {
	env := newTestEnv(t, newMemRepo())
	res, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/login", nil), "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected login form in body")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := newMemRepo()
	repo.add(t, "user@test.local", "correctpass", "client")
	env := newTestEnv(t, repo)

	res, _ := env.do(t, postForm("/login", url.Values{"email": {"user@test.local"}, "password": {"wrongpass"}}), "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Email ou senha inválidos") {
		t.Fatalf("expected error message in response")
	}
	if repo.sessionCount() != 0 {
		t.Fatalf("expected no session binding")
	}
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t, newMemRepo())
	res, _ := env.do(t, postForm("/login", url.Values{"email": {"not-an-email"}}), "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "Informe um email válido") || !strings.Contains(body, "Campo obrigatório") {
		t.Fatalf("expected field errors, got %s", body)
	}
}

func TestLoginBindsSessionAndLogoutClearsIt(t *testing.T) {
	repo := newMemRepo()
	repo.add(t, "user@test.local", "correctpass", "client")
	env := newTestEnv(t, repo)

	res, sess := env.do(t, postForm("/login", url.Values{"email": {"User@Test.local"}, "password": {"correctpass"}}), "")
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != auth.LandingPath {
		t.Fatalf("expected redirect to %s, got %s", auth.LandingPath, loc)
	}
	if repo.sessionCount() != 1 {
		t.Fatalf("expected session binding")
	}

	// A signed-in visitor is sent home instead of seeing the form again.
	res, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/login", nil), sess.ID)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect home, got %d %s", res.Code, res.Header().Get("Location"))
	}

	res, _ = env.do(t, httptest.NewRequest(http.MethodPost, "/logout", nil), sess.ID)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %s", res.Code, res.Header().Get("Location"))
	}
	if repo.sessionCount() != 0 {
		t.Fatalf("expected session binding removed")
	}
}

func TestLoginIssuesFreshSessionID(t *testing.T) {
	repo := newMemRepo()
	account := repo.add(t, "user@test.local", "correctpass", "client")
	env := newTestEnv(t, repo)

	_, anonymous := env.do(t, httptest.NewRequest(http.MethodGet, "/login", nil), "")
	preAuthID := anonymous.ID

	res, sess := env.do(t, postForm("/login", url.Values{"email": {"user@test.local"}, "password": {"correctpass"}}), preAuthID)
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if sess.ID == preAuthID {
		t.Fatalf("expected a new session id after login, kept %s", preAuthID)
	}
	var cookieID string
	// the session is committed after the handler wrote its headers
	for _, c := range (&http.Response{Header: res.Header()}).Cookies() {
		if c.Name == env.sessions.CookieName() {
			cookieID = c.Value
		}
	}
	if cookieID != sess.ID {
		t.Fatalf("expected cookie %s, got %q", sess.ID, cookieID)
	}
	if owner, ok := repo.boundTo(sess.ID); !ok || owner != account.ID {
		t.Fatalf("expected new id bound to the account")
	}
	if _, ok := repo.boundTo(preAuthID); ok {
		t.Fatalf("expected pre-auth id to stay unbound")
	}

	// the pre-auth id is gone, so presenting it again yields an anonymous visit
	res, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/login", nil), preAuthID)
	if res.Code != http.StatusOK {
		t.Fatalf("expected login form for the stale id, got %d", res.Code)
	}
}

func TestAdminLoginRedirectsToAdminHome(t *testing.T) {
	repo := newMemRepo()
	repo.add(t, "admin@test.local", "adminpass", "admin")
	env := newTestEnv(t, repo)

	_, sess := env.do(t, postForm("/login", url.Values{"email": {"admin@test.local"}, "password": {"adminpass"}}), "")
	res, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/register", nil), sess.ID)
	if res.Header().Get("Location") != "/admin" {
		t.Fatalf("expected /admin, got %s", res.Header().Get("Location"))
	}
}

func TestRegister(t *testing.T) {
	repo := newMemRepo()
	repo.add(t, "taken@test.local", "whatever", "client")
	env := newTestEnv(t, repo)

	cases := []struct {
		name   string
		form   url.Values
		status int
		want   string
	}{
		{
			name:   "mismatch",
			form:   url.Values{"name": {"Ana"}, "email": {"ana@test.local"}, "password": {"secret1"}, "confirm_password": {"secret2"}},
			status: http.StatusUnprocessableEntity,
			want:   "As senhas não coincidem",
		},
		{
			name:   "weak",
			form:   url.Values{"name": {"Ana"}, "email": {"ana@test.local"}, "password": {"abc"}, "confirm_password": {"abc"}},
			status: http.StatusUnprocessableEntity,
			want:   "A senha deve ter pelo menos 6 caracteres",
		},
		{
			name:   "duplicate",
			form:   url.Values{"name": {"Ana"}, "email": {"taken@test.local"}, "password": {"secret1"}, "confirm_password": {"secret1"}},
			status: http.StatusConflict,
			want:   "Já existe uma conta com este email",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, _ := env.do(t, postForm("/register", tc.form), "")
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
			if !strings.Contains(res.Body.String(), tc.want) {
				t.Fatalf("expected %q in body", tc.want)
			}
		})
	}

	res, sess := env.do(t, postForm("/register", url.Values{"name": {"Ana"}, "email": {"ana@test.local"}, "password": {"secret1"}, "confirm_password": {"secret1"}}), "")
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if repo.sessionCount() != 1 {
		t.Fatalf("expected new account to be signed in")
	}
	if _, ok := repo.boundTo(sess.ID); !ok {
		t.Fatalf("expected the rotated session id to carry the account")
	}
}

func TestForgotPasswordUnknownEmailStillSucceeds(t *testing.T) {
	env := newTestEnv(t, newMemRepo())
	res, _ := env.do(t, postForm("/forgot-password", url.Values{"email": {"ghost@test.local"}}), "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "você receberá um link") {
		t.Fatalf("expected confirmation message")
	}
	if len(env.mailer.links) != 0 {
		t.Fatalf("expected no email for unknown address")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	repo := newMemRepo()
	repo.add(t, "user@test.local", "oldpassword", "client")
	env := newTestEnv(t, repo)

	_, sess := env.do(t, postForm("/login", url.Values{"email": {"user@test.local"}, "password": {"oldpassword"}}), "")
	if repo.sessionCount() != 1 {
		t.Fatalf("expected signed in session")
	}

	env.do(t, postForm("/forgot-password", url.Values{"email": {"user@test.local"}}), "")
	if len(env.mailer.links) != 1 {
		t.Fatalf("expected one reset email, got %d", len(env.mailer.links))
	}
	link, err := url.Parse(env.mailer.links[0])
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if link.Host != "atlas.test" || link.Path != "/reset-password" {
		t.Fatalf("unexpected link %s", link)
	}
	token := link.Query().Get("token")

	res, _ := env.do(t, postForm("/reset-password", url.Values{"token": {token}, "password": {"newpassword"}, "confirm_password": {"newpassword"}}), "")
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %s", res.Code, res.Header().Get("Location"))
	}
	if repo.sessionCount() != 0 {
		t.Fatalf("expected existing sessions revoked")
	}

	// The old session no longer resolves.
	res, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/login", nil), sess.ID)
	if res.Code != http.StatusOK {
		t.Fatalf("expected login form for revoked session, got %d", res.Code)
	}

	// The token is bound to the old hash and cannot be replayed.
	res, _ = env.do(t, postForm("/reset-password", url.Values{"token": {token}, "password": {"another1"}, "confirm_password": {"another1"}}), "")
	if res.Code != http.StatusUnprocessableEntity || !strings.Contains(res.Body.String(), "Link de redefinição inválido ou expirado") {
		t.Fatalf("expected replay to be rejected, got %d", res.Code)
	}

	res, _ = env.do(t, postForm("/login", url.Values{"email": {"user@test.local"}, "password": {"newpassword"}}), "")
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected login with new password, got %d", res.Code)
	}
}

func TestResetPageWithoutToken(t *testing.T) {
	env := newTestEnv(t, newMemRepo())
	res, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/reset-password", nil), "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRevokeUserSignsOutEverySession(t *testing.T) {
	repo := newMemRepo()
	account := repo.add(t, "user@test.local", "password", "client")
	env := newTestEnv(t, repo)

	env.do(t, postForm("/login", url.Values{"email": {"user@test.local"}, "password": {"password"}}), "")
	env.do(t, postForm("/login", url.Values{"email": {"user@test.local"}, "password": {"password"}}), "")
	if repo.sessionCount() != 2 {
		t.Fatalf("expected two sessions, got %d", repo.sessionCount())
	}
	if err := env.service.RevokeUser(context.Background(), account.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if repo.sessionCount() != 0 {
		t.Fatalf("expected sessions revoked")
	}
}
