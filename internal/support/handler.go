package support

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atlas-capital/atlas-portal/internal/session"
	"github.com/atlas-capital/atlas-portal/internal/view"
)

const (
	msgSignInRequired = "Você precisa estar logado para enviar um ticket."
	msgSent           = "Seu ticket foi enviado com sucesso! Nossa equipe responderá em breve."
	msgFailed         = "Ocorreu um erro ao enviar seu ticket. Tente novamente."
)

const resolveWait = 2 * time.Second

// Handler serves the support page.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	pages     *view.Pages
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pages *view.Pages) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, pages: pages, validator: validator.New()}
}

// MountRoutes registers /support.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/support", h.show)
	r.Post("/support", h.submit)
}

type ticketForm struct {
	Subject string `validate:"required,min=5,max=200"`
	Message string `validate:"required,min=20,max=5000"`
}

type pageData struct {
	Form        ticketForm
	Errors      map[string]string
	Message     string
	MessageKind string
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "pages/support.html", "Suporte", pageData{})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := ticketForm{
		Subject: strings.TrimSpace(r.PostFormValue("subject")),
		Message: strings.TrimSpace(r.PostFormValue("message")),
	}
	if errs := h.validate(form); len(errs) > 0 {
		h.pages.Render(w, r, http.StatusUnprocessableEntity, "pages/support.html", "Suporte", pageData{Form: form, Errors: errs})
		return
	}

	var userID uuid.UUID
	if id, ok := session.WaitFromContext(r.Context(), resolveWait).Identity(); ok {
		userID = id.ID
	}
	if _, err := h.service.Open(r.Context(), userID, form.Subject, form.Message); err != nil {
		if errors.Is(err, ErrSignInRequired) {
			h.pages.Render(w, r, http.StatusUnauthorized, "pages/support.html", "Suporte", pageData{Form: form, Message: msgSignInRequired, MessageKind: "error"})
			return
		}
		h.logger.Error("open support ticket", slog.Any("error", err))
		h.pages.Render(w, r, http.StatusServiceUnavailable, "pages/support.html", "Suporte", pageData{Form: form, Message: msgFailed, MessageKind: "error"})
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/support.html", "Suporte", pageData{Message: msgSent, MessageKind: "success"})
}

func (h *Handler) validate(form ticketForm) map[string]string {
	errs := map[string]string{}
	err := h.validator.Struct(form)
	if err == nil {
		return errs
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs["general"] = "Verifique os dados informados"
		return errs
	}
	for _, fe := range fieldErrs {
		switch {
		case fe.Field() == "Subject" && fe.Tag() != "max":
			errs["Subject"] = "O assunto deve ter pelo menos 5 caracteres."
		case fe.Field() == "Message" && fe.Tag() != "max":
			errs["Message"] = "A mensagem deve ter pelo menos 20 caracteres."
		default:
			errs[fe.Field()] = "Texto muito longo"
		}
	}
	return errs
}
