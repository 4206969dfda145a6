// Package metrics exposes Prometheus metrics for validation runs and
// report store scans.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	// validationsTotal counts produced reports.
	// Labels: source, status (passed, failed)
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Subsystem: "validation",
		Name:      "reports_total",
		Help:      "Total validation reports produced",
	}, []string{"source", "status"})

	// findingsTotal counts error entries across reports.
	// Labels: source
	findingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Subsystem: "validation",
		Name:      "findings_total",
		Help:      "Total validation findings recorded in reports",
	}, []string{"source"})

	// validationDuration measures load + validate + save per input.
	// Labels: source
	validationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kestrel",
		Subsystem: "validation",
		Name:      "duration_seconds",
		Help:      "Time to load, validate and persist one input",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"source"})

	// completeness tracks the last completeness score per source.
	// Labels: source
	completeness = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kestrel",
		Subsystem: "validation",
		Name:      "completeness_percent",
		Help:      "Completeness of the most recently validated input per source",
	}, []string{"source"})

	// preconditionFailures counts inputs rejected before validation.
	// Labels: reason (missing_input, unreadable_input, unsupported_format, malformed, store)
	preconditionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Subsystem: "validation",
		Name:      "precondition_failures_total",
		Help:      "Inputs rejected before a report could be produced",
	}, []string{"reason"})

	// scannedReports tracks the reports seen by the last scan.
	// Labels: consumer (alert, dashboard), state (total, failed)
	scannedReports = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kestrel",
		Subsystem: "store",
		Name:      "scanned_reports",
		Help:      "Reports seen by the most recent scan",
	}, []string{"consumer", "state"})
)

// RecordValidation records one produced report.
func RecordValidation(report *domain.ValidationReport, elapsed time.Duration) {
	source := string(report.Source)
	validationsTotal.WithLabelValues(source, report.Status).Inc()
	findingsTotal.WithLabelValues(source).Add(float64(len(report.Errors)))
	validationDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	completeness.WithLabelValues(source).Set(report.Completeness)
}

// RecordPreconditionFailure records an input rejected before validation.
func RecordPreconditionFailure(reason string) {
	preconditionFailures.WithLabelValues(reason).Inc()
}

// RecordScan records the outcome of a full store scan.
func RecordScan(consumer string, total, failed int) {
	scannedReports.WithLabelValues(consumer, "total").Set(float64(total))
	scannedReports.WithLabelValues(consumer, "failed").Set(float64(failed))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
