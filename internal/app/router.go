package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atlas-capital/atlas-portal/internal/auth"
	"github.com/atlas-capital/atlas-portal/internal/dashboard"
	"github.com/atlas-capital/atlas-portal/internal/export"
	"github.com/atlas-capital/atlas-portal/internal/guard"
	"github.com/atlas-capital/atlas-portal/internal/observability"
	"github.com/atlas-capital/atlas-portal/internal/pages"
	"github.com/atlas-capital/atlas-portal/internal/plans"
	"github.com/atlas-capital/atlas-portal/internal/platform/httpx"
	"github.com/atlas-capital/atlas-portal/internal/session"
	"github.com/atlas-capital/atlas-portal/internal/shared"
	"github.com/atlas-capital/atlas-portal/internal/support"
	"github.com/atlas-capital/atlas-portal/internal/users"
	"github.com/atlas-capital/atlas-portal/internal/view"
	"github.com/atlas-capital/atlas-portal/jobs"
	"github.com/atlas-capital/atlas-portal/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Pages          *view.Pages
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Mounter        *session.Mounter
	Metrics        *observability.Metrics

	AuthHandler      *auth.Handler
	PagesHandler     *pages.Handler
	SupportHandler   *support.Handler
	DashboardHandler *dashboard.Handler
	PlansHandler     *plans.Handler
	UsersHandler     *users.Handler
	ExportHandler    *export.Handler
	JobHandler       *jobs.Handler

	// AuthLimit throttles credential submissions. Defaults to AuthLimiter(10, time.Minute).
	AuthLimit func(http.Handler) http.Handler
}

// NewRouter constructs the chi.Router with the portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Mounter:        params.Mounter,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	guards := guard.Middleware{Logger: params.Logger}
	if params.Pages != nil {
		guards.Pending = params.Pages
	}
	if params.Metrics != nil {
		guards.Metrics = params.Metrics
	}
	if params.Config != nil {
		guards.ResolveTimeout = params.Config.SessionResolveTimeout
	}

	if params.PagesHandler != nil {
		params.PagesHandler.MountRoutes(r)
	}
	if params.SupportHandler != nil {
		params.SupportHandler.MountRoutes(r)
	}
	if params.AuthHandler != nil {
		limit := params.AuthLimit
		if limit == nil {
			limit = AuthLimiter(10, 0)
		}
		params.AuthHandler.MountRoutes(r, limit)
	}

	r.Route("/dashboard", func(r chi.Router) {
		r.Use(guards.Require(guard.Authenticated))
		if params.DashboardHandler != nil {
			params.DashboardHandler.MountClientRoutes(r)
		}
		if params.PlansHandler != nil {
			params.PlansHandler.MountClientRoutes(r)
		}
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(guards.Require(guard.AdminOnly))
		if params.DashboardHandler != nil {
			params.DashboardHandler.MountAdminRoutes(r)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.PlansHandler != nil {
			r.Route("/plans", params.PlansHandler.MountAdminRoutes)
		}
		if params.ExportHandler != nil {
			r.Route("/export", params.ExportHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
