// Package pages serves the public marketing and legal pages.
package pages

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-capital/atlas-portal/internal/plans"
	"github.com/atlas-capital/atlas-portal/internal/view"
)

// PlanLister lists the plan catalogue.
type PlanLister interface {
	List(ctx context.Context) ([]plans.Plan, error)
}

// Handler serves the public pages.
type Handler struct {
	logger *slog.Logger
	pages  *view.Pages
	plans  PlanLister
}

// NewHandler builds Handler instance. plans may be nil.
func NewHandler(logger *slog.Logger, pages *view.Pages, plans PlanLister) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, pages: pages, plans: plans}
}

// MountRoutes registers the public pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.landing)
	r.Get("/terms-of-service", h.static("pages/terms.html", "Termos de Serviço"))
	r.Get("/privacy-policy", h.static("pages/privacy.html", "Política de Privacidade"))
}

type landingData struct {
	Plans []plans.Plan
}

func (h *Handler) landing(w http.ResponseWriter, r *http.Request) {
	var data landingData
	if h.plans != nil {
		list, err := h.plans.List(r.Context())
		if err != nil {
			// The landing page renders without the catalogue.
			h.logger.Warn("landing plans", slog.Any("error", err))
		}
		data.Plans = list
	}
	h.pages.Render(w, r, http.StatusOK, "pages/landing.html", "", data)
}

func (h *Handler) static(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.pages.Render(w, r, http.StatusOK, name, title, nil)
	}
}
