package export

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-capital/atlas-portal/internal/platform/httpx"
)

// Handler exposes the export backend health for operators.
type Handler struct {
	client *Client
	logger *slog.Logger
}

// NewHandler creates an export handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: client, logger: logger}
}

// MountRoutes registers export routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		httpx.Unavailable(w, "gotenberg")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
