package dashboard

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-capital/atlas-portal/internal/export"
	"github.com/atlas-capital/atlas-portal/internal/identity"
	"github.com/atlas-capital/atlas-portal/internal/session"
	"github.com/atlas-capital/atlas-portal/internal/view"
)

// PDFRenderer converts a rendered page to PDF.
type PDFRenderer interface {
	Render(ctx context.Context, doc export.Document) ([]byte, error)
}

// Handler serves the dashboard pages.
type Handler struct {
	logger  *slog.Logger
	pages   *view.Pages
	repo    Repository
	clients *ClientAggregator
	admins  *AdminAggregator
	pdf     PDFRenderer
	now     func() time.Time
}

// NewHandler constructs the dashboard handler.
func NewHandler(logger *slog.Logger, pages *view.Pages, repo Repository, metrics Recorder, pdf PDFRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		pages:   pages,
		repo:    repo,
		clients: NewClientAggregator(repo, logger, metrics),
		admins:  NewAdminAggregator(repo, logger, metrics),
		pdf:     pdf,
		now:     time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// MountClientRoutes registers the pages under /dashboard. The router gates
// them behind a signed-in identity.
func (h *Handler) MountClientRoutes(r chi.Router) {
	r.Get("/", h.index)
	r.Get("/reports", h.reports)
	r.Get("/reports/transactions.csv", h.transactionsCSV)
	r.Get("/report.pdf", h.reportPDF)
	r.Get("/settings", h.settings)
}

// MountAdminRoutes registers the admin dashboard index.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/", h.adminIndex)
}

type clientPageData struct {
	Summary     ClientSummary
	GeneratedAt time.Time
}

type adminPageData struct {
	Summary AdminSummary
}

// index renders the dashboard matching the identity's role.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	switch SelectView(id.Role) {
	case AdminView:
		h.renderAdmin(w, r)
	default:
		h.renderClient(w, r, id)
	}
}

func (h *Handler) adminIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	h.renderAdmin(w, r)
}

func (h *Handler) renderClient(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	summary := h.clients.Summarize(r.Context(), id.ID)
	if r.Context().Err() != nil {
		return
	}
	h.pages.Render(w, r, http.StatusOK, ClientView.Template(), "Dashboard", clientPageData{Summary: summary, GeneratedAt: h.now()})
}

func (h *Handler) renderAdmin(w http.ResponseWriter, r *http.Request) {
	summary := h.admins.Summarize(r.Context())
	if r.Context().Err() != nil {
		return
	}
	h.pages.Render(w, r, http.StatusOK, AdminView.Template(), "Painel administrativo", adminPageData{Summary: summary})
}

type reportsPageData struct {
	Transactions []Transaction
	Degraded     bool
}

func (h *Handler) reports(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	data := reportsPageData{}
	history, err := h.repo.TransactionHistory(r.Context(), id.ID)
	if err != nil {
		h.logger.Error("load transaction history", slog.String("user", id.ID.String()), slog.Any("error", err))
		data.Degraded = true
	} else {
		data.Transactions = history
	}
	if r.Context().Err() != nil {
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/reports.html", "Relatórios", data)
}

func (h *Handler) transactionsCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	history, err := h.repo.TransactionHistory(r.Context(), id.ID)
	if err != nil {
		h.logger.Error("export transaction history", slog.String("user", id.ID.String()), slog.Any("error", err))
		h.pages.RedirectWithFlash(w, r, "/dashboard/reports", "error", "Não foi possível exportar as transações")
		return
	}
	rows := make([]export.TransactionRow, 0, len(history))
	for _, tx := range history {
		rows = append(rows, export.TransactionRow{
			Date:        tx.CreatedAt,
			Description: tx.Label(),
			Type:        tx.Type,
			Status:      tx.Status,
			Amount:      tx.Amount,
		})
	}
	var buf bytes.Buffer
	if err := export.WriteTransactionsCSV(&buf, rows); err != nil {
		h.logger.Error("write transactions csv", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transacoes-`+h.now().Format("2006-01-02")+`.csv"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func (h *Handler) reportPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	if h.pdf == nil {
		h.pages.RedirectWithFlash(w, r, "/dashboard", "error", "Exportação em PDF indisponível")
		return
	}
	summary := h.clients.Summarize(r.Context(), id.ID)
	var page bytes.Buffer
	td := h.pages.Data(r, "Relatório", clientPageData{Summary: summary, GeneratedAt: h.now()})
	if err := h.pages.Engine.Execute(&page, "pages/report_pdf.html", td); err != nil {
		h.logger.Error("render report html", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	doc := export.Document{Name: export.ReportName(h.now()), HTML: page.Bytes()}
	pdf, err := h.pdf.Render(r.Context(), doc)
	if err != nil {
		h.logger.Error("render report pdf", slog.Any("error", err))
		h.pages.RedirectWithFlash(w, r, "/dashboard", "error", "Não foi possível gerar o PDF")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename()+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/settings.html", "Configurações", nil)
}

// identity returns the signed-in identity. The route guard runs first, so a
// miss only happens when the handler is mounted without it.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := session.StateFromContext(r.Context()).Identity()
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
	return id, ok
}
