// Package session owns the per-request view of the browser session: a single
// writer container that resolves the identity behind a session token, follows
// changes published by the Store, and exposes the resulting state to
// read-only consumers.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/atlas-capital/atlas-portal/internal/identity"
)

// Mounter creates Providers. Providers of one Mounter share sign-in
// deduplication and the in-flight marker of each browser token.
type Mounter struct {
	store   Store
	logger  *slog.Logger
	flights *singleflight.Group

	// newToken issues the token an identity is bound to on sign-in and sign-up.
	newToken func() string

	mu      sync.Mutex
	pending map[string]int
}

// NewMounter constructs a Mounter around store.
func NewMounter(store Store, logger *slog.Logger) *Mounter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mounter{
		store:    store,
		logger:   logger,
		flights:  &singleflight.Group{},
		pending:  make(map[string]int),
		newToken: uuid.NewString,
	}
}

// Provider returns an unstarted Provider bound to token.
func (m *Mounter) Provider(token string) *Provider {
	return &Provider{
		mounter:   m,
		store:     m.store,
		logger:    m.logger,
		mounted:   token,
		token:     token,
		resolved:  make(chan struct{}),
		observers: make(map[uint64]func(identity.State)),
	}
}

// InFlight reports whether a sign-in submitted with token is outstanding on
// any request.
func (m *Mounter) InFlight(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[token] > 0
}

func (m *Mounter) begin(token string) (done func()) {
	m.mu.Lock()
	m.pending[token]++
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		if m.pending[token] <= 1 {
			delete(m.pending, token)
		} else {
			m.pending[token]--
		}
		m.mu.Unlock()
	}
}

// Provider holds the session state for one mounted request. It is the only
// writer of that state; every other component reads snapshots.
type Provider struct {
	mounter *Mounter
	store   Store
	logger  *slog.Logger
	// mounted is the token the request arrived with.
	mounted string

	mu          sync.Mutex
	token       string
	state       identity.State
	issued      uint64
	applied     uint64
	started     bool
	closed      bool
	unsubscribe func()
	observers   map[uint64]func(identity.State)
	nextObs     uint64

	resolved    chan struct{}
	resolveOnce sync.Once
}

// Token returns the session token the provider is bound to. It changes when
// a sign-in or sign-up issues a fresh token.
func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// Start resolves the current session in the background and follows changes
// published by the store. Calling Start more than once has no effect.
func (p *Provider) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	token := p.token
	seq := p.nextSeqLocked()
	p.mu.Unlock()

	if strings.TrimSpace(token) == "" {
		p.apply(seq, identity.Absent())
		return
	}

	p.follow(token)

	go func() {
		state, err := p.store.CurrentSession(ctx, token)
		if err != nil {
			p.logger.Warn("resolve session", slog.Any("error", err))
			state = identity.Absent()
		}
		p.apply(seq, state)
	}()
}

// State returns the latest snapshot.
func (p *Provider) State() identity.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Wait blocks until the session resolves or ctx ends and returns the latest
// snapshot, which is still Unresolved when ctx ended first.
func (p *Provider) Wait(ctx context.Context) identity.State {
	select {
	case <-p.resolved:
	case <-ctx.Done():
	}
	return p.State()
}

// Subscribe registers fn to receive every applied state.
func (p *Provider) Subscribe(fn func(identity.State)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return func() {}
	}
	p.nextObs++
	id := p.nextObs
	p.observers[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

// InFlight reports whether a sign-in for the token this request arrived
// with is outstanding, on this request or a concurrent one.
func (p *Provider) InFlight() bool {
	return p.mounter.InFlight(p.mounted)
}

type signInResult struct {
	id    identity.Identity
	token string
}

// SignIn authenticates the session under a freshly issued token, available
// from Token once SignIn returns. Duplicate submissions of the same
// credentials from the same browser token share one store call. The
// returned error is nil or a *Failure.
func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	done := p.mounter.begin(p.mounted)
	defer done()

	seq := p.nextSeq()
	signIn := func() (any, error) {
		token := p.mounter.newToken()
		id, err := p.store.SignIn(ctx, token, email, password)
		if err != nil {
			return nil, err
		}
		return signInResult{id: id, token: token}, nil
	}
	var (
		value any
		err   error
	)
	if strings.TrimSpace(p.mounted) == "" {
		// Requests without a browser token have nothing to dedupe on.
		value, err = signIn()
	} else {
		value, err, _ = p.mounter.flights.Do(flightKey(p.mounted, email, password), signIn)
	}
	if err != nil {
		return AsFailure(err)
	}
	res := value.(signInResult)
	p.rebind(ctx, seq, res.token, identity.Present(res.id))
	return nil
}

// SignUp registers a new account and attaches it to a freshly issued token.
func (p *Provider) SignUp(ctx context.Context, email, password, name string) error {
	seq := p.nextSeq()
	token := p.mounter.newToken()
	id, err := p.store.SignUp(ctx, token, email, password, name)
	if err != nil {
		return AsFailure(err)
	}
	p.rebind(ctx, seq, token, identity.Present(id))
	return nil
}

// SignOut detaches the identity. On success the state is Absent before
// SignOut returns; navigation is left to the caller.
func (p *Provider) SignOut(ctx context.Context) error {
	seq := p.nextSeq()
	if err := p.store.SignOut(ctx, p.Token()); err != nil {
		return AsFailure(err)
	}
	p.apply(seq, identity.Absent())
	return nil
}

// ResetPassword requests a password reset link for email.
func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	if err := p.store.ResetPassword(ctx, email); err != nil {
		return AsFailure(err)
	}
	return nil
}

// Close detaches the provider. Responses that arrive afterwards are dropped.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.observers = map[uint64]func(identity.State){}
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// rebind moves the provider to token and applies next. An identity still
// bound to the previous token is signed out there.
func (p *Provider) rebind(ctx context.Context, seq uint64, token string, next identity.State) {
	p.mu.Lock()
	previous := p.token
	_, signedIn := p.state.Identity()
	p.mu.Unlock()

	if token != previous {
		p.follow(token)
		if signedIn {
			if err := p.store.SignOut(ctx, previous); err != nil {
				p.logger.Warn("release previous session", slog.Any("error", err))
			}
		}
	}
	p.apply(seq, next)
}

// follow subscribes to changes for token, dropping the previous subscription.
func (p *Provider) follow(token string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.token = token
	previous := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()
	if previous != nil {
		previous()
	}

	unsubscribe := p.store.Subscribe(token, p.observe)
	p.mu.Lock()
	if p.closed || p.token != token || p.unsubscribe != nil {
		p.mu.Unlock()
		unsubscribe()
		return
	}
	p.unsubscribe = unsubscribe
	p.mu.Unlock()
}

func flightKey(token, email, password string) string {
	sum := sha256.Sum256([]byte(password))
	return token + "|" + strings.ToLower(strings.TrimSpace(email)) + "|" + hex.EncodeToString(sum[:])
}

func (p *Provider) observe(state identity.State) {
	p.apply(p.nextSeq(), state)
}

func (p *Provider) nextSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextSeqLocked()
}

func (p *Provider) nextSeqLocked() uint64 {
	p.issued++
	return p.issued
}

// apply installs next when it is the newest response seen so far. Unresolved
// is never re-entered.
func (p *Provider) apply(seq uint64, next identity.State) bool {
	if !next.Resolved() {
		return false
	}
	next = p.normalize(next)

	p.mu.Lock()
	if p.closed || seq <= p.applied {
		p.mu.Unlock()
		return false
	}
	p.applied = seq
	p.state = next
	observers := make([]func(identity.State), 0, len(p.observers))
	for _, fn := range p.observers {
		observers = append(observers, fn)
	}
	p.mu.Unlock()

	p.resolveOnce.Do(func() { close(p.resolved) })
	for _, fn := range observers {
		fn(next)
	}
	return true
}

func (p *Provider) normalize(state identity.State) identity.State {
	id, ok := state.Identity()
	if !ok || id.Role.Valid() {
		return state
	}
	p.logger.Warn("identity without valid role, defaulting to client", slog.String("identity", id.ID.String()))
	id.Role = identity.RoleClient
	return identity.Present(id)
}
