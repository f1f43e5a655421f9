package plans

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atlas-capital/atlas-portal/internal/view"
)

// Handler serves the invest page and the admin plan screens.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pages   *view.Pages
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pages *view.Pages) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, pages: pages}
}

// MountClientRoutes registers /dashboard/invest.
func (h *Handler) MountClientRoutes(r chi.Router) {
	r.Get("/invest", h.invest)
}

// MountAdminRoutes registers the routes under /admin/plans.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/", h.adminList)
	r.Post("/refresh", h.refresh)
	r.Post("/{id}/sold-out", h.setSoldOut)
}

type listPageData struct {
	Plans []Plan
	Error string
}

func (h *Handler) load(r *http.Request) listPageData {
	plans, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list plans failed", slog.Any("error", err))
		return listPageData{Error: "Não foi possível carregar os planos"}
	}
	return listPageData{Plans: plans}
}

func (h *Handler) invest(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "pages/invest.html", "Investir", h.load(r))
}

func (h *Handler) adminList(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "pages/admin_plans.html", "Planos", h.load(r))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		h.logger.Error("refresh plans cache", slog.Any("error", err))
		h.pages.RedirectWithFlash(w, r, "/admin/plans", "error", "Não foi possível atualizar o cache")
		return
	}
	h.pages.RedirectWithFlash(w, r, "/admin/plans", "success", "Catálogo atualizado")
}

func (h *Handler) setSoldOut(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	soldOut, _ := strconv.ParseBool(r.PostFormValue("sold_out"))
	if err := h.service.SetSoldOut(r.Context(), id, soldOut); err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("update plan", slog.String("plan", id.String()), slog.Any("error", err))
		h.pages.RedirectWithFlash(w, r, "/admin/plans", "error", "Não foi possível atualizar o plano")
		return
	}
	h.pages.RedirectWithFlash(w, r, "/admin/plans", "success", "Plano atualizado")
}
