package guard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/atlas-capital/atlas-portal/internal/identity"
	"github.com/atlas-capital/atlas-portal/internal/session"
)

// DefaultResolveTimeout bounds how long a request waits for its session.
const DefaultResolveTimeout = 2 * time.Second

// PendingRenderer writes the placeholder shown while a session is unresolved.
type PendingRenderer interface {
	RenderPending(w http.ResponseWriter, r *http.Request)
}

// Recorder counts guard outcomes.
type Recorder interface {
	ObserveGuardDecision(route string, kind string)
}

// Middleware enforces route requirements against the request's session.
type Middleware struct {
	Logger         *slog.Logger
	Metrics        Recorder
	Pending        PendingRenderer
	ResolveTimeout time.Duration
}

// Require gates next behind req.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := Decide(m.state(r), req)
			if m.Metrics != nil {
				m.Metrics.ObserveGuardDecision(req.label(), decision.Kind.String())
			}
			switch decision.Kind {
			case Allow:
				ctx, release := m.follow(r, req)
				defer release()
				next.ServeHTTP(w, r.WithContext(ctx))
			case Pending:
				m.pending(w, r)
			default:
				if m.Logger != nil {
					m.Logger.Debug("guard redirect",
						slog.String("path", r.URL.Path),
						slog.String("decision", decision.Kind.String()),
						slog.String("location", decision.Location))
				}
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
			}
		})
	}
}

// state waits for the mounted provider to resolve, bounded by ResolveTimeout.
func (m Middleware) state(r *http.Request) identity.State {
	provider := session.FromContext(r.Context())
	if provider == nil {
		return identity.Absent()
	}
	timeout := m.ResolveTimeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	return provider.Wait(ctx)
}

// follow cancels the returned context when the session stops satisfying req
// while the request is served, e.g. a sign-out or revocation elsewhere.
func (m Middleware) follow(r *http.Request, req Requirement) (context.Context, func()) {
	provider := session.FromContext(r.Context())
	if !req.RequiresAuth || provider == nil {
		return r.Context(), func() {}
	}
	ctx, cancel := context.WithCancel(r.Context())
	stop := provider.Subscribe(func(state identity.State) {
		if Decide(state, req).Kind != Allow {
			cancel()
		}
	})
	return ctx, func() {
		stop()
		cancel()
	}
}

func (m Middleware) pending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Refresh", "1")
	if m.Pending != nil {
		m.Pending.RenderPending(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Carregando..."))
}

func (r Requirement) label() string {
	switch {
	case !r.RequiresAuth:
		return "public"
	case r.RequiresRole != 0:
		return r.RequiresRole.String()
	default:
		return "authenticated"
	}
}
