package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atlas-capital/atlas-portal/internal/view"
)

// Handler manages user management endpoints.
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

// MountRoutes registers the routes under /admin/users.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listClients)
	r.Post("/{id}/active", h.setActive)
}

type listPageData struct {
	Clients []Client
	Error   string
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClients(r.Context())
	if err != nil {
		h.logger.Error("list clients failed", slog.Any("error", err))
		h.pages.Render(w, r, http.StatusInternalServerError, "pages/admin_users.html", "Usuários", listPageData{Error: "Não foi possível carregar os clientes"})
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/admin_users.html", "Usuários", listPageData{Clients: clients})
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	active, _ := strconv.ParseBool(r.PostFormValue("active"))
	if err := h.service.SetActive(r.Context(), id, active); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("update client", slog.String("user", id.String()), slog.Any("error", err))
		h.pages.RedirectWithFlash(w, r, "/admin/users", "error", "Não foi possível atualizar o cliente")
		return
	}
	message := "Cliente reativado"
	if !active {
		message = "Cliente desativado"
	}
	h.pages.RedirectWithFlash(w, r, "/admin/users", "success", message)
}
