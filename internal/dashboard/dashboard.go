// Package dashboard renders stored validation reports as a static HTML table.
package dashboard

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

//go:embed templates/dashboard.html.tmpl
var templateFS embed.FS

var page = template.Must(template.New("dashboard.html.tmpl").
	Funcs(template.FuncMap{"number": formatNumber}).
	ParseFS(templateFS, "templates/dashboard.html.tmpl"))

// StatusUnknown is shown for reports without a status field.
const StatusUnknown = "unknown"

// DefaultTitle heads the rendered page.
const DefaultTitle = "Data Quality Dashboard"

// Row is one rendered report.
type Row struct {
	Filename     string
	Completeness float64
	Threshold    float64
	Status       string
	Errors       []string
}

// Class returns the CSS class; anything but passed renders as failed.
func (r Row) Class() string {
	if r.Status == domain.StatusPassed {
		return domain.StatusPassed
	}
	return domain.StatusFailed
}

// StatusLabel capitalises the status for display.
func (r Row) StatusLabel() string {
	if r.Status == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(r.Status)
	return string(unicode.ToUpper(first)) + strings.ToLower(r.Status[size:])
}

// Renderer reads the report store and renders the dashboard.
type Renderer struct {
	store domain.ReportStore
	title string
}

// New creates a renderer over store.
func New(store domain.ReportStore) *Renderer {
	return &Renderer{store: store, title: DefaultTitle}
}

// Rows returns one row per parseable report, in store order.
// Missing fields default to zero values and status defaults to unknown.
func (r *Renderer) Rows(ctx context.Context) ([]Row, error) {
	stored, err := r.store.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan reports: %w", err)
	}

	rows := make([]Row, 0, len(stored))
	failed := 0
	for _, doc := range stored {
		report, err := domain.DecodeReport(doc.Data)
		if err != nil {
			slog.Debug("skipping corrupt report", "key", doc.Key, "error", err)
			continue
		}

		status := report.Status
		if status == "" {
			status = StatusUnknown
		}
		rows = append(rows, Row{
			Filename:     report.Filename,
			Completeness: report.Completeness,
			Threshold:    report.Threshold,
			Status:       status,
			Errors:       report.Errors,
		})
		if report.Failed() {
			failed++
		}
	}

	metrics.RecordScan("dashboard", len(stored), failed)
	return rows, nil
}

// Render produces the full HTML document.
func (r *Renderer) Render(ctx context.Context) ([]byte, error) {
	rows, err := r.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return RenderRows(r.title, rows)
}

// RenderRows executes the page template for rows.
func RenderRows(title string, rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	data := struct {
		Title string
		Rows  []Row
	}{Title: title, Rows: rows}

	if err := page.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render dashboard: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile overwrites path with the rendered dashboard.
func WriteFile(path string, html []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create dashboard directory: %w", err)
		}
	}
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return fmt.Errorf("failed to write dashboard: %w", err)
	}
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
