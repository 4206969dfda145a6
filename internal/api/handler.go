package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/alert"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/dashboard"
	"github.com/opensource-finance/kestrel/internal/dataset"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// Cache keys for rendered artifacts.
const (
	dashboardCacheKey = "artifact:dashboard"
	alertCacheKey     = "artifact:alert"
)

// artifactTTL bounds how stale a rendered artifact can be when reports are
// written by another process.
const artifactTTL = 10 * time.Second

// maxUploadBytes caps POST /validate bodies.
const maxUploadBytes = 32 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	store      domain.ReportStore
	cache      domain.Cache
	runner     *pipeline.Runner
	aggregator *alert.Aggregator
	renderer   *dashboard.Renderer
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		store:      deps.Store,
		cache:      deps.Cache,
		runner:     deps.Runner,
		aggregator: deps.Aggregator,
		renderer:   deps.Renderer,
		version:    deps.Version,
	}
}

// ReportSummary is one entry of GET /reports.
type ReportSummary struct {
	Key    string                   `json:"key"`
	Report *domain.ValidationReport `json:"report"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListReports returns every parseable stored report in store order.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	stored, err := h.store.Scan(r.Context())
	if err != nil {
		slog.Error("failed to scan reports", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to scan reports",
		})
		return
	}

	reports := make([]ReportSummary, 0, len(stored))
	failed := 0
	for _, doc := range stored {
		report, err := domain.DecodeReport(doc.Data)
		if err != nil {
			slog.Debug("skipping corrupt report", "key", doc.Key, "error", err)
			continue
		}
		if report.Failed() {
			failed++
		}
		reports = append(reports, ReportSummary{Key: doc.Key, Report: report})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
		"failed":  failed,
	})
}

// GetReport returns the stored document for one input filename as is.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	doc, err := h.store.Get(r.Context(), filename)
	switch {
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return
	case err != nil:
		slog.Error("failed to get report", "filename", filename, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get report",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Data)
}

// Dashboard serves the rendered HTML dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	page, err := cache.Remember(r.Context(), h.cache, dashboardCacheKey, artifactTTL, h.renderer.Render)
	if err != nil {
		slog.Error("failed to render dashboard", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to render dashboard",
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// Alerts serves the alert artifact, or 204 when no report failed.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	text, err := cache.Remember(r.Context(), h.cache, alertCacheKey, artifactTTL, func(ctx context.Context) ([]byte, error) {
		art, err := h.aggregator.Aggregate(ctx)
		if err != nil {
			return nil, err
		}
		if art == nil {
			return []byte{}, nil
		}
		return art.Render(), nil
	})
	if err != nil {
		slog.Error("failed to aggregate alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to aggregate alerts",
		})
		return
	}

	if len(text) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(text)
}

// Validate handles POST /validate?source=&filename= with the dataset as
// the request body. The body format follows the filename extension.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	source := q.Get("source")
	filename := q.Get("filename")
	if source == "" || filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "source and filename query parameters are required",
		})
		return
	}

	ov, err := parseOverrides(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	format, err := dataset.DetectFormat(filename)
	if err != nil {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{
			"error": err.Error(),
		})
		return
	}

	ds, err := readBody(http.MaxBytesReader(w, r.Body, maxUploadBytes), format)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, dataset.ErrUnsupportedFormat) {
			status = http.StatusUnsupportedMediaType
		}
		writeJSON(w, status, map[string]string{
			"error": err.Error(),
		})
		return
	}

	report, err := h.runner.ValidateDataset(ctx, ds, filename, domain.SourceType(source), ov)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to validate upload", "filename", filename, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to validate dataset",
		})
		return
	}

	h.invalidateArtifacts(ctx)

	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) invalidateArtifacts(ctx context.Context) {
	if h.cache == nil {
		return
	}
	for _, key := range []string{dashboardCacheKey, alertCacheKey} {
		if err := h.cache.Delete(ctx, key); err != nil {
			slog.Warn("failed to invalidate cached artifact", "key", key, "error", err)
		}
	}
}

func parseOverrides(q url.Values) (domain.Overrides, error) {
	var ov domain.Overrides

	if v := q.Get("threshold"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return ov, fmt.Errorf("invalid threshold %q", v)
		}
		ov.Threshold = &threshold
	}
	if v := q.Get("check_anomalies"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ov, fmt.Errorf("invalid check_anomalies %q", v)
		}
		ov.CheckAnomalies = b
	}
	if v := q.Get("skip_schema"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ov, fmt.Errorf("invalid skip_schema %q", v)
		}
		ov.SkipSchema = b
	}
	return ov, nil
}

func readBody(body io.Reader, format dataset.Format) (*domain.Dataset, error) {
	switch format {
	case dataset.FormatCSV:
		return dataset.ReadCSV(body)
	case dataset.FormatJSON:
		return dataset.ReadJSON(body)
	case dataset.FormatJSONL:
		return dataset.ReadJSONLines(body)
	default:
		return nil, fmt.Errorf("%w: %s uploads are not accepted", dataset.ErrUnsupportedFormat, format)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
