// Package pipeline runs the host job around the validation engine:
// load an input, validate it, persist the report and signal the outcome.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/dataset"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Process exit codes for validation runs.
const (
	ExitOK           = 0
	ExitFindings     = 1
	ExitPrecondition = 2
)

var (
	// ErrInputNotFound is returned when an input path does not exist.
	ErrInputNotFound = errors.New("input not found")

	// ErrDuplicateInput is returned when a batch names the same filename twice.
	ErrDuplicateInput = errors.New("duplicate input filename")
)

// Input is one file to validate.
type Input struct {
	Path      string
	Source    domain.SourceType
	Overrides domain.Overrides
}

// Result is the outcome of one input. Err is set on a precondition
// failure, in which case no report was written.
type Result struct {
	Path   string
	Report *domain.ValidationReport
	Err    error
}

// BatchResult collects the results of a batch in input order.
type BatchResult struct {
	Results []Result
}

// AllPassed reports whether every input produced a passed report.
func (b *BatchResult) AllPassed() bool {
	for _, r := range b.Results {
		if r.Err != nil || r.Report == nil || r.Report.Failed() {
			return false
		}
	}
	return true
}

// ExitCode maps the batch to a process exit code. Precondition failures
// take precedence over findings.
func (b *BatchResult) ExitCode() int {
	code := ExitOK
	for _, r := range b.Results {
		if r.Err != nil {
			return ExitPrecondition
		}
		if r.Report.Failed() {
			code = ExitFindings
		}
	}
	return code
}

// Runner wires the engine to a report store.
type Runner struct {
	engine *rules.Engine
	store  domain.ReportStore
	rules  *domain.RuleConfig
	bus    domain.EventBus
}

// NewRunner creates a runner. The rule configuration is shared read-only
// by every validation the runner performs.
func NewRunner(engine *rules.Engine, store domain.ReportStore, rc *domain.RuleConfig) *Runner {
	return &Runner{
		engine: engine,
		store:  store,
		rules:  rc,
	}
}

// WithBus announces every saved report on domain.TopicReportSaved.
func (r *Runner) WithBus(bus domain.EventBus) *Runner {
	r.bus = bus
	return r
}

// ValidateFile loads the input at path, validates it and saves the report
// under the input's base name.
func (r *Runner) ValidateFile(ctx context.Context, path string, source domain.SourceType, ov domain.Overrides) (*domain.ValidationReport, error) {
	start := time.Now()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.RecordPreconditionFailure("missing_input")
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		metrics.RecordPreconditionFailure("unreadable_input")
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}

	ds, err := dataset.Load(path)
	if err != nil {
		switch {
		case errors.Is(err, dataset.ErrUnsupportedFormat):
			metrics.RecordPreconditionFailure("unsupported_format")
		case errors.Is(err, dataset.ErrMalformed):
			metrics.RecordPreconditionFailure("malformed")
		default:
			metrics.RecordPreconditionFailure("unreadable_input")
		}
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	return r.validate(ctx, ds, filepath.Base(path), source, ov, start)
}

// ValidateDataset validates an already materialised dataset and saves
// the report under filename.
func (r *Runner) ValidateDataset(ctx context.Context, ds *domain.Dataset, filename string, source domain.SourceType, ov domain.Overrides) (*domain.ValidationReport, error) {
	return r.validate(ctx, ds, filename, source, ov, time.Now())
}

func (r *Runner) validate(ctx context.Context, ds *domain.Dataset, filename string, source domain.SourceType, ov domain.Overrides, start time.Time) (*domain.ValidationReport, error) {
	report := r.engine.Validate(ctx, ds, filename, source, r.rules, ov)

	if err := r.store.Save(ctx, report); err != nil {
		metrics.RecordPreconditionFailure("store")
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	metrics.RecordValidation(report, time.Since(start))

	slog.Info("validation complete",
		"filename", report.Filename,
		"source", report.Source,
		"status", report.Status,
		"completeness", report.Completeness,
		"errors", len(report.Errors),
	)

	r.announce(ctx, report)
	return report, nil
}

func (r *Runner) announce(ctx context.Context, report *domain.ValidationReport) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		slog.Warn("failed to encode report event", "filename", report.Filename, "error", err)
		return
	}
	if err := r.bus.Publish(ctx, domain.TopicReportSaved, payload); err != nil {
		slog.Warn("failed to publish report event", "filename", report.Filename, "error", err)
	}
}

// ValidateBatch validates independent inputs with at most limit running at
// once. A precondition failure on one input does not stop the others.
// Inputs sharing a base filename would overwrite each other's report, so
// the batch is rejected before anything runs.
func (r *Runner) ValidateBatch(ctx context.Context, inputs []Input, limit int) (*BatchResult, error) {
	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		name := filepath.Base(in.Path)
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %s (%s, %s)", ErrDuplicateInput, name, prev, in.Path)
		}
		seen[name] = in.Path
	}

	if limit <= 0 {
		limit = 1
	}

	results := make([]Result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report, err := r.ValidateFile(gctx, in.Path, in.Source, in.Overrides)
			results[i] = Result{Path: in.Path, Report: report, Err: err}
			if err != nil {
				slog.Error("validation aborted", "input", in.Path, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &BatchResult{Results: results}, nil
}
