// Package alert aggregates failed validation reports into a single
// human-readable alert artifact.
package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// Exit codes signalled by an aggregation run.
const (
	ExitOK     = 0
	ExitFailed = 1
)

// Aggregator scans the report store and collects failed reports.
// Destination settings are fixed at construction.
type Aggregator struct {
	store domain.ReportStore
	cfg   domain.AlertConfig
	bus   domain.EventBus
	now   func() time.Time
}

// New creates an aggregator over store.
func New(store domain.ReportStore, cfg domain.AlertConfig) *Aggregator {
	if cfg.Topic == "" {
		cfg.Topic = domain.TopicAlert
	}
	return &Aggregator{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// WithBus makes Publish forward artifacts to bus.
func (a *Aggregator) WithBus(bus domain.EventBus) *Aggregator {
	a.bus = bus
	return a
}

// Failure is one failed report as listed in the artifact.
type Failure struct {
	Filename     string
	Completeness float64
	Threshold    float64
	Errors       []string
}

// Artifact is the rendered outcome of one aggregation run.
type Artifact struct {
	GeneratedAt time.Time
	Recipient   string
	Failures    []Failure
}

// Aggregate reads every report and returns an artifact listing the failed
// ones in store order. It returns nil when no report failed. Documents that
// do not parse are skipped.
func (a *Aggregator) Aggregate(ctx context.Context) (*Artifact, error) {
	stored, err := a.store.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan reports: %w", err)
	}

	var failures []Failure
	for _, doc := range stored {
		report, err := domain.DecodeReport(doc.Data)
		if err != nil {
			slog.Debug("skipping corrupt report", "key", doc.Key, "error", err)
			continue
		}
		if !report.Failed() {
			continue
		}
		failures = append(failures, Failure{
			Filename:     report.Filename,
			Completeness: report.Completeness,
			Threshold:    report.Threshold,
			Errors:       report.Errors,
		})
	}

	slog.Debug("alert aggregation complete", "reports", len(stored), "failed", len(failures))
	metrics.RecordScan("alert", len(stored), len(failures))

	if len(failures) == 0 {
		return nil, nil
	}

	return &Artifact{
		GeneratedAt: a.now(),
		Recipient:   a.cfg.Recipient,
		Failures:    failures,
	}, nil
}

// Render formats the artifact as plain text.
func (art *Artifact) Render() []byte {
	var b bytes.Buffer

	b.WriteString("QUALITY ALERT - FAILURE DETECTED\n")
	fmt.Fprintf(&b, "Date: %s\n", domain.FormatTimestamp(art.GeneratedAt))
	if art.Recipient != "" {
		fmt.Fprintf(&b, "Recipient: %s\n", art.Recipient)
	}
	b.WriteString("\n")

	for _, f := range art.Failures {
		fmt.Fprintf(&b, "[FAILED] %s\n", f.Filename)
		fmt.Fprintf(&b, "   - Completeness: %s%% (threshold: %s%%)\n", formatNumber(f.Completeness), formatNumber(f.Threshold))
		for _, e := range f.Errors {
			fmt.Fprintf(&b, "   - %s\n", e)
		}
		b.WriteString("\n")
	}

	return b.Bytes()
}

// ExitCode maps an aggregation result to the process exit signal.
func ExitCode(art *Artifact) int {
	if art != nil && len(art.Failures) > 0 {
		return ExitFailed
	}
	return ExitOK
}

// WriteFile overwrites path with the rendered artifact.
func WriteFile(path string, art *Artifact) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create alert directory: %w", err)
		}
	}
	if err := os.WriteFile(path, art.Render(), 0o644); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}

// RemoveFile deletes the alert artifact at path. A missing file is not an error.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove alert: %w", err)
	}
	return nil
}

// Publish sends the rendered artifact to the configured topic.
// It is a no-op without a bus.
func (a *Aggregator) Publish(ctx context.Context, art *Artifact) error {
	if a.bus == nil || art == nil {
		return nil
	}
	if err := a.bus.Publish(ctx, a.cfg.Topic, art.Render()); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	slog.Info("alert published", "topic", a.cfg.Topic, "failed", len(art.Failures))
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
