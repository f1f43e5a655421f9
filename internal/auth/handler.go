package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-capital/atlas-portal/internal/session"
	"github.com/atlas-capital/atlas-portal/internal/shared"
	"github.com/atlas-capital/atlas-portal/internal/view"
)

// LandingPath is where a successful sign-in or sign-up lands. The dashboard
// index picks the view for the identity's role.
const LandingPath = "/dashboard"

// resolveWait bounds how long the public auth pages wait for the session
// before rendering as anonymous.
const resolveWait = 2 * time.Second

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	pages          *view.Pages
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pages *view.Pages, sessions *shared.SessionManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		pages:          pages,
		sessionManager: sessions,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router. limit wraps the
// form submissions, typically with a rate limiter.
func (h *Handler) MountRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r.Get("/login", h.showLogin)
	r.Get("/register", h.showRegister)
	r.Get("/forgot-password", h.showForgot)
	r.Get("/reset-password", h.showReset)
	r.Post("/logout", h.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Post("/login", h.handleLogin)
		r.Post("/register", h.handleRegister)
		r.Post("/forgot-password", h.handleForgot)
		r.Post("/reset-password", h.handleReset)
	})
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type registerForm struct {
	Name            string `validate:"required,max=120"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

type forgotForm struct {
	Email string `validate:"required,email"`
}

type resetForm struct {
	Token           string `validate:"required"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

type formPageData struct {
	Form   any
	Errors map[string]string
	Sent   bool
	// InFlight is set while a sign-in from this browser is still running.
	InFlight bool
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if h.redirectSignedIn(w, r) {
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/login.html", "Entrar", formPageData{
		Form:     loginForm{},
		InFlight: h.provider(r).InFlight(),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	errs := h.validate(form)
	if len(errs) == 0 {
		provider := h.provider(r)
		err := provider.SignIn(WithClientInfo(r.Context(), r.RemoteAddr, r.UserAgent()), form.Email, form.Password)
		if err == nil {
			h.adoptToken(r, provider)
			h.pages.RedirectWithFlash(w, r, LandingPath, "success", "Bem-vindo de volta")
			return
		}
		h.logFailure("sign in", err)
		errs["general"] = failureMessage(err)
		form.Password = ""
		h.pages.Render(w, r, failureStatus(err), "pages/login.html", "Entrar", formPageData{Form: form, Errors: errs})
		return
	}
	form.Password = ""
	h.pages.Render(w, r, http.StatusBadRequest, "pages/login.html", "Entrar", formPageData{Form: form, Errors: errs})
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	if h.redirectSignedIn(w, r) {
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/register.html", "Criar conta", formPageData{Form: registerForm{}})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := registerForm{
		Name:            strings.TrimSpace(r.PostFormValue("name")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	errs := h.validate(form)
	status := http.StatusUnprocessableEntity
	if len(errs) == 0 {
		provider := h.provider(r)
		err := provider.SignUp(WithClientInfo(r.Context(), r.RemoteAddr, r.UserAgent()), form.Email, form.Password, form.Name)
		if err == nil {
			h.adoptToken(r, provider)
			h.pages.RedirectWithFlash(w, r, LandingPath, "success", "Conta criada com sucesso")
			return
		}
		h.logFailure("sign up", err)
		errs["general"] = failureMessage(err)
		status = failureStatus(err)
	}
	form.Password, form.ConfirmPassword = "", ""
	h.pages.Render(w, r, status, "pages/register.html", "Criar conta", formPageData{Form: form, Errors: errs})
}

func (h *Handler) showForgot(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "pages/forgot_password.html", "Recuperar senha", formPageData{Form: forgotForm{}})
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forgotForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	errs := h.validate(form)
	if len(errs) == 0 {
		err := h.provider(r).ResetPassword(r.Context(), form.Email)
		if err == nil {
			h.pages.Render(w, r, http.StatusOK, "pages/forgot_password.html", "Recuperar senha", formPageData{Form: form, Sent: true})
			return
		}
		h.logFailure("reset password", err)
		errs["general"] = failureMessage(err)
		h.pages.Render(w, r, failureStatus(err), "pages/forgot_password.html", "Recuperar senha", formPageData{Form: form, Errors: errs})
		return
	}
	h.pages.Render(w, r, http.StatusUnprocessableEntity, "pages/forgot_password.html", "Recuperar senha", formPageData{Form: form, Errors: errs})
}

func (h *Handler) showReset(w http.ResponseWriter, r *http.Request) {
	form := resetForm{Token: r.URL.Query().Get("token")}
	errs := map[string]string{}
	status := http.StatusOK
	if form.Token == "" {
		errs["general"] = "Link de redefinição inválido ou expirado"
		status = http.StatusBadRequest
	}
	h.pages.Render(w, r, status, "pages/reset_password.html", "Nova senha", formPageData{Form: form, Errors: errs})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := resetForm{
		Token:           r.PostFormValue("token"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	errs := h.validate(form)
	status := http.StatusUnprocessableEntity
	if len(errs) == 0 {
		err := h.service.CompleteReset(r.Context(), form.Token, form.Password)
		if err == nil {
			h.pages.RedirectWithFlash(w, r, "/login", "success", "Senha redefinida. Entre com a nova senha")
			return
		}
		h.logFailure("complete reset", err)
		if session.ReasonOf(err) == session.ReasonInvalidInput {
			errs["general"] = "Link de redefinição inválido ou expirado"
		} else {
			errs["general"] = failureMessage(err)
		}
		status = failureStatus(err)
	}
	form.Password, form.ConfirmPassword = "", ""
	h.pages.Render(w, r, status, "pages/reset_password.html", "Nova senha", formPageData{Form: form, Errors: errs})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.provider(r).SignOut(r.Context()); err != nil {
		h.logFailure("sign out", err)
		h.pages.RedirectWithFlash(w, r, "/", "error", failureMessage(err))
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil && h.sessionManager != nil {
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// redirectSignedIn sends identities that are already signed in to their home.
func (h *Handler) redirectSignedIn(w http.ResponseWriter, r *http.Request) bool {
	id, ok := session.WaitFromContext(r.Context(), resolveWait).Identity()
	if !ok {
		return false
	}
	http.Redirect(w, r, id.Role.Home(), http.StatusSeeOther)
	return true
}

// provider returns the mounted provider, or a detached one bound to the
// cookie session when the request bypassed the session middleware.
func (h *Handler) provider(r *http.Request) *session.Provider {
	if p := session.FromContext(r.Context()); p != nil {
		return p
	}
	p := session.NewMounter(h.service, h.logger).Provider(shared.SessionFromContext(r.Context()).Token())
	return p
}

// adoptToken moves the cookie session to the token the identity was bound
// to, so the pre-authentication session ID never carries an identity.
func (h *Handler) adoptToken(r *http.Request, provider *session.Provider) {
	if h.sessionManager == nil {
		return
	}
	h.sessionManager.Rotate(shared.SessionFromContext(r.Context()), provider.Token())
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		} else {
			errs["general"] = "Verifique os dados informados"
		}
	}
	return errs
}

func (h *Handler) logFailure(op string, err error) {
	if session.ReasonOf(err) == session.ReasonUnavailable {
		h.logger.Error(op, slog.Any("error", err))
		return
	}
	h.logger.Info(op+" rejected", slog.String("reason", string(session.ReasonOf(err))))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Campo obrigatório"
	case "email":
		return "Informe um email válido"
	case "eqfield":
		return "As senhas não coincidem"
	case "max":
		return "Texto muito longo"
	case "min":
		return "Texto muito curto"
	default:
		return "Valor inválido"
	}
}

func failureMessage(err error) string {
	if f := session.AsFailure(err); f != nil {
		return f.Message()
	}
	return ""
}

func failureStatus(err error) int {
	switch session.ReasonOf(err) {
	case session.ReasonInvalidCredentials:
		return http.StatusBadRequest
	case session.ReasonDuplicateAccount:
		return http.StatusConflict
	case session.ReasonWeakPassword, session.ReasonInvalidInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}
