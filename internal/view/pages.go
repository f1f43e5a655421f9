package view

import (
	"log/slog"
	"net/http"

	"github.com/atlas-capital/atlas-portal/internal/nav"
	"github.com/atlas-capital/atlas-portal/internal/session"
	"github.com/atlas-capital/atlas-portal/internal/shared"
)

// Pages renders full pages with the per-request chrome (CSRF token, flash,
// identity and navigation) filled in.
type Pages struct {
	Engine *Engine
	CSRF   *shared.CSRFManager
	Logger *slog.Logger
}

// NewPages constructs a Pages renderer.
func NewPages(engine *Engine, csrf *shared.CSRFManager, logger *slog.Logger) *Pages {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pages{Engine: engine, CSRF: csrf, Logger: logger}
}

// Data builds the TemplateData for r.
func (p *Pages) Data(r *http.Request, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	var csrfToken string
	if p.CSRF != nil && sess != nil {
		csrfToken, _ = p.CSRF.EnsureToken(r.Context(), sess)
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	td := TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if id, ok := session.StateFromContext(r.Context()).Identity(); ok {
		td.Identity = &id
		td.Nav = nav.Build(id.Role, r.URL.Path)
	}
	return td
}

// Render writes the named page with status.
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := p.Engine.RenderStatus(w, status, name, p.Data(r, title, data)); err != nil {
		p.Logger.Error("render template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// RenderPending writes the placeholder shown while the session resolves.
func (p *Pages) RenderPending(w http.ResponseWriter, r *http.Request) {
	p.Render(w, r, http.StatusOK, "pages/loading.html", "Carregando", nil)
}

// RedirectWithFlash queues a flash message and redirects with 303.
func (p *Pages) RedirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
