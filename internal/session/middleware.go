package session

import (
	"context"
	"net/http"
	"time"

	"github.com/atlas-capital/atlas-portal/internal/identity"
)

type providerContextKey struct{}

// WithProvider stores the provider in context.
func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, providerContextKey{}, p)
}

// FromContext extracts the provider from context.
func FromContext(ctx context.Context) *Provider {
	p, _ := ctx.Value(providerContextKey{}).(*Provider)
	return p
}

// StateFromContext returns the current snapshot, Absent when no provider is mounted.
func StateFromContext(ctx context.Context) identity.State {
	p := FromContext(ctx)
	if p == nil {
		return identity.Absent()
	}
	return p.State()
}

// WaitFromContext waits up to timeout for the mounted provider to resolve.
// Unguarded handlers use it before branching on the identity. The result is
// Absent when no provider is mounted and may be Unresolved on timeout.
func WaitFromContext(ctx context.Context, timeout time.Duration) identity.State {
	p := FromContext(ctx)
	if p == nil {
		return identity.Absent()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Wait(ctx)
}

// TokenFunc extracts the session token of a request.
type TokenFunc func(*http.Request) string

// Middleware mounts a Provider for every request and tears it down once the
// handler returns.
func (m *Mounter) Middleware(token TokenFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := m.Provider(token(r))
			p.Start(r.Context())
			defer p.Close()
			next.ServeHTTP(w, r.WithContext(WithProvider(r.Context(), p)))
		})
	}
}
