package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/atlas-capital/atlas-portal/internal/identity"
	"github.com/atlas-capital/atlas-portal/internal/nav"
	"github.com/atlas-capital/atlas-portal/internal/shared"
	"github.com/atlas-capital/atlas-portal/web"
)

// DateLayout is the day/month/year format used across the portal.
const DateLayout = "02/01/2006"

var moneyPrinter = message.NewPrinter(language.BrazilianPortuguese)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	// Identity is nil for anonymous visitors and while the session resolves.
	Identity *identity.Identity
	Nav      []nav.Link
	Data     any
}

// Greeting returns the welcome name for the signed-in identity.
func (d TemplateData) Greeting() string {
	if d.Identity == nil {
		return identity.Identity{}.Greeting()
	}
	return d.Identity.Greeting()
}

// IsAdmin reports whether the signed-in identity is an administrator.
func (d TemplateData) IsAdmin() bool {
	return d.Identity != nil && d.Identity.Role == identity.RoleAdmin
}

// FormatMoney renders v as Brazilian reais, e.g. "R$ 1.234,56".
func FormatMoney(v float64) string {
	return "R$ " + moneyPrinter.Sprintf("%.2f", v)
}

// FormatDate renders t as day/month/year, empty for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": FormatDate,
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},
		"formatMoney": FormatMoney,
		"title": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus buffers the template so a failed render never leaves a
// partial page behind, then writes it with status.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Execute writes a named template to w without HTTP framing.
func (e *Engine) Execute(w io.Writer, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}
