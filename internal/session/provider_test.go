package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-capital/atlas-portal/internal/identity"
)

type fakeStore struct {
	mu          sync.Mutex
	current     identity.State
	currentErr  error
	release     chan struct{}
	subscribers map[int]func(identity.State)
	nextSub     int

	signInCalls atomic.Int32
	signInGate  chan struct{}
	signInID    identity.Identity
	signInErr   error
	// password, when set, is the only password SignIn accepts.
	password    string
	boundTokens []string
	signOutErr  error
	signedOut   []string
	resetEmails []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{current: identity.Absent(), subscribers: map[int]func(identity.State){}}
}

func (f *fakeStore) CurrentSession(ctx context.Context, token string) (identity.State, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return identity.State{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.currentErr
}

func (f *fakeStore) Subscribe(token string, fn func(identity.State)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	id := f.nextSub
	f.subscribers[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
}

func (f *fakeStore) publish(state identity.State) {
	f.mu.Lock()
	fns := make([]func(identity.State), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (f *fakeStore) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

func (f *fakeStore) SignIn(ctx context.Context, token, email, password string) (identity.Identity, error) {
	f.signInCalls.Add(1)
	if f.signInGate != nil {
		<-f.signInGate
	}
	if f.signInErr != nil {
		return identity.Identity{}, f.signInErr
	}
	if f.password != "" && password != f.password {
		return identity.Identity{}, Fail(ReasonInvalidCredentials, nil)
	}
	f.mu.Lock()
	f.boundTokens = append(f.boundTokens, token)
	f.mu.Unlock()
	return f.signInID, nil
}

func (f *fakeStore) SignUp(ctx context.Context, token, email, password, name string) (identity.Identity, error) {
	if len(password) < 6 {
		return identity.Identity{}, Fail(ReasonWeakPassword, nil)
	}
	return identity.Identity{ID: uuid.New(), Email: email, DisplayName: name, Role: identity.RoleClient}, nil
}

func (f *fakeStore) SignOut(ctx context.Context, token string) error {
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, token)
	return nil
}

func (f *fakeStore) ResetPassword(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetEmails = append(f.resetEmails, email)
	return nil
}

func client() identity.Identity {
	return identity.Identity{ID: uuid.New(), Email: "ana@atlas.test", DisplayName: "Ana", Role: identity.RoleClient}
}

func waitResolved(t *testing.T, p *Provider) identity.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state := p.Wait(ctx)
	require.True(t, state.Resolved(), "provider did not resolve")
	return state
}

func TestProviderStartsUnresolved(t *testing.T) {
	store := newFakeStore()
	store.release = make(chan struct{})
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	defer p.Close()

	assert.Equal(t, identity.KindUnresolved, p.State().Kind())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, p.Wait(ctx).Resolved())

	store.current = identity.Present(client())
	close(store.release)
	assert.Equal(t, identity.KindPresent, waitResolved(t, p).Kind())
}

func TestProviderEmptyTokenResolvesAbsent(t *testing.T) {
	store := newFakeStore()
	p := NewMounter(store, nil).Provider("")
	p.Start(context.Background())
	defer p.Close()

	assert.Equal(t, identity.KindAbsent, waitResolved(t, p).Kind())
	assert.Zero(t, store.subscriberCount())
}

func TestProviderStoreErrorResolvesAbsent(t *testing.T) {
	store := newFakeStore()
	store.currentErr = errors.New("connection refused")
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	defer p.Close()

	assert.Equal(t, identity.KindAbsent, waitResolved(t, p).Kind())
}

func TestProviderSignInAndSignOut(t *testing.T) {
	store := newFakeStore()
	store.signInID = client()
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	defer p.Close()
	waitResolved(t, p)

	require.NoError(t, p.SignIn(context.Background(), "ana@atlas.test", "secret1"))
	id, ok := p.State().Identity()
	require.True(t, ok)
	assert.Equal(t, store.signInID.ID, id.ID)

	require.NoError(t, p.SignOut(context.Background()))
	assert.Equal(t, identity.KindAbsent, p.State().Kind())
}

func TestProviderSignInFailureKeepsState(t *testing.T) {
	store := newFakeStore()
	store.signInErr = Fail(ReasonInvalidCredentials, nil)
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	defer p.Close()
	waitResolved(t, p)

	err := p.SignIn(context.Background(), "ana@atlas.test", "wrong")
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, ReasonInvalidCredentials, failure.Reason)
	assert.Equal(t, identity.KindAbsent, p.State().Kind())
}

func TestProviderWrapsUntypedStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.signOutErr = errors.New("timeout")
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	defer p.Close()
	waitResolved(t, p)

	err := p.SignOut(context.Background())
	assert.Equal(t, ReasonUnavailable, ReasonOf(err))
}

func TestProviderSignUpWeakPassword(t *testing.T) {
	store := newFakeStore()
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	defer p.Close()
	waitResolved(t, p)

	assert.Equal(t, ReasonWeakPassword, ReasonOf(p.SignUp(context.Background(), "a@b.c", "123", "A")))
	require.NoError(t, p.SignUp(context.Background(), "a@b.c", "123456", "A"))
	assert.Equal(t, identity.KindPresent, p.State().Kind())
}

func TestProviderDedupesConcurrentSignIn(t *testing.T) {
	store := newFakeStore()
	store.signInID = client()
	store.signInGate = make(chan struct{})
	mounter := NewMounter(store, nil)
	first := mounter.Provider("tok")
	second := mounter.Provider("tok")
	for _, p := range []*Provider{first, second} {
		p.Start(context.Background())
		defer p.Close()
		waitResolved(t, p)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []*Provider{first, second} {
		wg.Add(1)
		go func(i int, p *Provider) {
			defer wg.Done()
			errs[i] = p.SignIn(context.Background(), "ana@atlas.test", "secret1")
		}(i, p)
	}
	// a third request from the same browser only renders the form
	bystander := mounter.Provider("tok")
	require.Eventually(t, func() bool {
		return first.InFlight() && second.InFlight() && store.signInCalls.Load() == 1
	}, time.Second, time.Millisecond)
	assert.True(t, bystander.InFlight())
	assert.False(t, mounter.Provider("other").InFlight())
	// let the second caller join the pending flight
	time.Sleep(20 * time.Millisecond)
	close(store.signInGate)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int32(1), store.signInCalls.Load())
	assert.False(t, first.InFlight())
	assert.False(t, bystander.InFlight())
	assert.Equal(t, identity.KindPresent, second.State().Kind())
	assert.Equal(t, first.Token(), second.Token(), "joined sign-ins share the issued token")
}

func TestProviderSignInDifferentPasswordsRunSeparately(t *testing.T) {
	store := newFakeStore()
	store.signInID = client()
	store.password = "secret1"
	store.signInGate = make(chan struct{})
	mounter := NewMounter(store, nil)
	good := mounter.Provider("tok")
	bad := mounter.Provider("tok")
	for _, p := range []*Provider{good, bad} {
		p.Start(context.Background())
		defer p.Close()
		waitResolved(t, p)
	}

	var wg sync.WaitGroup
	var goodErr, badErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		goodErr = good.SignIn(context.Background(), "ana@atlas.test", "secret1")
	}()
	go func() {
		defer wg.Done()
		badErr = bad.SignIn(context.Background(), "ana@atlas.test", "wrong-password")
	}()
	require.Eventually(t, func() bool {
		return store.signInCalls.Load() == 2
	}, time.Second, time.Millisecond)
	close(store.signInGate)
	wg.Wait()

	assert.NoError(t, goodErr)
	assert.Equal(t, ReasonInvalidCredentials, ReasonOf(badErr))
	assert.Equal(t, identity.KindPresent, good.State().Kind())
	assert.Equal(t, identity.KindAbsent, bad.State().Kind())
	assert.Equal(t, "tok", bad.Token())
}

func TestProviderSignInIssuesFreshToken(t *testing.T) {
	store := newFakeStore()
	store.signInID = client()
	store.current = identity.Present(client())
	mounter := NewMounter(store, nil)
	mounter.newToken = func() string { return "fresh" }
	p := mounter.Provider("planted")
	p.Start(context.Background())
	defer p.Close()
	waitResolved(t, p)

	require.NoError(t, p.SignIn(context.Background(), "ana@atlas.test", "secret1"))

	assert.Equal(t, "fresh", p.Token())
	store.mu.Lock()
	assert.Equal(t, []string{"fresh"}, store.boundTokens)
	// the identity that held the old token is released
	assert.Equal(t, []string{"planted"}, store.signedOut)
	store.mu.Unlock()
	assert.Equal(t, 1, store.subscriberCount())

	require.NoError(t, p.SignOut(context.Background()))
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []string{"planted", "fresh"}, store.signedOut)
}

func TestProviderSignUpIssuesFreshToken(t *testing.T) {
	store := newFakeStore()
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	defer p.Close()
	waitResolved(t, p)

	require.NoError(t, p.SignUp(context.Background(), "a@b.c", "123456", "A"))
	assert.NotEqual(t, "tok", p.Token())
	assert.NotEmpty(t, p.Token())
}

func TestProviderFollowsStoreChanges(t *testing.T) {
	store := newFakeStore()
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	defer p.Close()
	waitResolved(t, p)

	var seen []identity.Kind
	var mu sync.Mutex
	p.Subscribe(func(s identity.State) {
		mu.Lock()
		seen = append(seen, s.Kind())
		mu.Unlock()
	})

	store.publish(identity.Present(client()))
	assert.Equal(t, identity.KindPresent, p.State().Kind())
	store.publish(identity.Absent())
	assert.Equal(t, identity.KindAbsent, p.State().Kind())

	// Unresolved is never re-entered.
	store.publish(identity.Unresolved())
	assert.Equal(t, identity.KindAbsent, p.State().Kind())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []identity.Kind{identity.KindPresent, identity.KindAbsent}, seen)
}

func TestProviderDropsStaleResolution(t *testing.T) {
	store := newFakeStore()
	store.release = make(chan struct{})
	store.signInID = client()
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	defer p.Close()

	// Sign-in completes while the initial lookup is still pending; the
	// older lookup must not overwrite the newer state.
	require.NoError(t, p.SignIn(context.Background(), "ana@atlas.test", "secret1"))
	store.current = identity.Absent()
	close(store.release)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, identity.KindPresent, p.State().Kind())
}

func TestProviderIgnoresResponsesAfterClose(t *testing.T) {
	store := newFakeStore()
	store.release = make(chan struct{})
	store.current = identity.Present(client())
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	p.Close()
	close(store.release)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, identity.KindUnresolved, p.State().Kind())
	assert.Zero(t, store.subscriberCount())
}

func TestProviderNormalizesInvalidRole(t *testing.T) {
	store := newFakeStore()
	id := client()
	id.Role = 0
	store.current = identity.Present(id)
	p := NewMounter(store, nil).Provider("tok")
	p.Start(context.Background())
	defer p.Close()

	assert.Equal(t, identity.RoleClient, waitResolved(t, p).Role())
}

func TestMiddlewareMountsAndClosesProvider(t *testing.T) {
	store := newFakeStore()
	store.current = identity.Present(client())
	mounter := NewMounter(store, nil)

	var mounted *Provider
	handler := mounter.Middleware(func(r *http.Request) string { return "tok" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mounted = FromContext(r.Context())
		state := mounted.Wait(r.Context())
		assert.Equal(t, identity.KindPresent, state.Kind())
		assert.Equal(t, 1, store.subscriberCount())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, mounted)
	assert.Zero(t, store.subscriberCount())
}

func TestStateFromContextWithoutProvider(t *testing.T) {
	assert.Equal(t, identity.KindAbsent, StateFromContext(context.Background()).Kind())
}
