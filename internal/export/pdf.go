package export

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Document is a rendered page ready for conversion.
type Document struct {
	// Name is the download name without extension.
	Name string
	HTML []byte
}

// Filename returns the attachment name for the PDF.
func (d Document) Filename() string {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		name = "relatorio"
	}
	return name + ".pdf"
}

// ReportName builds the dated download name of a client report.
func ReportName(now time.Time) string {
	return "relatorio-atlas-capital-" + now.Format("2006-01-02")
}

// PDFExporter converts documents to PDF through Gotenberg.
type PDFExporter struct {
	Client *Client
}

// NewPDFExporter constructs a PDFExporter.
func NewPDFExporter(client *Client) *PDFExporter {
	return &PDFExporter{Client: client}
}

// Render returns the PDF bytes for doc.
func (p *PDFExporter) Render(ctx context.Context, doc Document) ([]byte, error) {
	if p == nil || p.Client == nil {
		return nil, fmt.Errorf("pdf exporter not initialised")
	}
	if len(doc.HTML) == 0 {
		return nil, fmt.Errorf("export: empty document")
	}
	pdf, err := p.Client.ConvertHTML(ctx, doc.HTML)
	if err != nil {
		return nil, fmt.Errorf("export: render %s: %w", doc.Filename(), err)
	}
	return pdf, nil
}
