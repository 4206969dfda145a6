// Package rules provides the validation engine that scores a dataset against
// its schema, business rules, anomaly heuristics and completeness threshold.
package rules

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var tracer = otel.Tracer("kestrel-rules")

// Engine evaluates datasets. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	anomalies []*compiledAnomaly
	now       func() time.Time
}

// NewEngine creates a validation engine and compiles the anomaly heuristics.
func NewEngine() (*Engine, error) {
	anomalies, err := compileAnomalies(defaultAnomalies)
	if err != nil {
		return nil, err
	}

	return &Engine{
		anomalies: anomalies,
		now:       time.Now,
	}, nil
}

// Validate runs every check against ds and returns the report.
// Checks never short-circuit: schema, business rules, anomalies and
// completeness all contribute to the same error list, in that order.
func (e *Engine) Validate(ctx context.Context, ds *domain.Dataset, filename string, source domain.SourceType, rc *domain.RuleConfig, ov domain.Overrides) *domain.ValidationReport {
	ctx, span := tracer.Start(ctx, "rules.Validate")
	defer span.End()

	if ds == nil {
		ds = &domain.Dataset{}
	}
	if rc == nil {
		rc = &domain.RuleConfig{Thresholds: domain.Thresholds{Global: domain.DefaultGlobalThreshold}}
	}

	var errs []string

	if !ov.SkipSchema {
		errs = append(errs, CheckSchema(ds, source, rc.Schemas)...)
	}

	errs = append(errs, CheckBusinessRules(ds, rc.Rules[source])...)

	if ov.CheckAnomalies {
		errs = append(errs, e.checkAnomalies(ctx, ds)...)
	}

	completeness := Completeness(ds)
	threshold := rc.EffectiveThreshold(ov)
	if completeness < threshold {
		errs = append(errs, fmt.Sprintf("insufficient completeness (%.2f%%) < threshold %s%%",
			completeness, formatNumber(threshold)))
	}

	status := domain.StatusPassed
	if len(errs) > 0 {
		status = domain.StatusFailed
	}

	span.SetAttributes(
		attribute.String("source", string(source)),
		attribute.Int("rows", ds.NumRows()),
		attribute.Int("errors", len(errs)),
	)

	return &domain.ValidationReport{
		Filename:      filename,
		Source:        source,
		Rows:          ds.NumRows(),
		Columns:       ds.NumColumns(),
		MissingValues: ds.MissingCells(),
		Completeness:  round2(completeness),
		Threshold:     threshold,
		Status:        status,
		ValidatedAt:   domain.FormatTimestamp(e.now()),
		Errors:        errs,
	}
}

// CheckSchema returns one error per required column missing from ds, in
// schema order, or a single error when the source has no schema.
func CheckSchema(ds *domain.Dataset, source domain.SourceType, schemas domain.SchemaDefinition) []string {
	schema, ok := schemas[source]
	if !ok {
		return []string{fmt.Sprintf("no schema defined for source: %s", source)}
	}

	var errs []string
	for _, col := range schema.RequiredColumns {
		if !ds.HasColumn(col) {
			errs = append(errs, fmt.Sprintf("missing required column (schema): %s", col))
		}
	}
	return errs
}

// CheckBusinessRules evaluates each constraint of each declared column that
// ds carries. Columns absent from ds are skipped.
func CheckBusinessRules(ds *domain.Dataset, rules []domain.ColumnRule) []string {
	var errs []string
	for _, rule := range rules {
		values, ok := ds.Column(rule.Column)
		if !ok {
			continue
		}
		for _, c := range rule.Constraints {
			if n := CountViolations(c, values); n > 0 {
				errs = append(errs, fmt.Sprintf("%d values violate %s for %s", n, c.Kind(), rule.Column))
			}
		}
	}
	return errs
}

// Completeness returns the unrounded percentage of non-null cells.
// A dataset with no cells is 100% complete.
func Completeness(ds *domain.Dataset) float64 {
	total := ds.NumRows() * ds.NumColumns()
	if total == 0 {
		return 100
	}
	return 100 * (1 - float64(ds.MissingCells())/float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// formatNumber prints 95 as "95" and 97.5 as "97.5".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
