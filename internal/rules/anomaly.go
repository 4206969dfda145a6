package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Anomaly is a fixed heuristic over one numeric column.
// Expression is a CEL program over `values` (list of double) that returns
// the number of flagged values.
type Anomaly struct {
	Name       string
	Column     string
	Expression string

	// Message renders the finding from the flagged count and the column values.
	Message func(flagged int64, values []float64) string
}

// Anomaly ceilings.
const (
	SessionDurationCeiling = 180.0
	SpendCeiling           = 10000.0
)

var defaultAnomalies = []Anomaly{
	{
		Name:       "long_sessions",
		Column:     "duration_min",
		Expression: fmt.Sprintf("values.filter(v, v > %.1f).size()", SessionDurationCeiling),
		Message: func(flagged int64, _ []float64) string {
			return fmt.Sprintf("%d sessions longer than 3h detected", flagged)
		},
	},
	{
		Name:       "high_spend",
		Column:     "total_spent",
		Expression: fmt.Sprintf("values.filter(v, v > %.1f).size()", SpendCeiling),
		Message: func(_ int64, values []float64) string {
			return "very high amount: " + formatNumber(maxOf(values))
		},
	},
}

// DefaultAnomalies returns the heuristics every engine runs.
func DefaultAnomalies() []Anomaly {
	out := make([]Anomaly, len(defaultAnomalies))
	copy(out, defaultAnomalies)
	return out
}

type compiledAnomaly struct {
	Anomaly
	program cel.Program
}

func compileAnomalies(anomalies []Anomaly) ([]*compiledAnomaly, error) {
	env, err := cel.NewEnv(
		cel.Variable("values", cel.ListType(cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	compiled := make([]*compiledAnomaly, 0, len(anomalies))
	for _, a := range anomalies {
		ast, issues := env.Compile(a.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile anomaly %s: %w", a.Name, issues.Err())
		}
		if ast.OutputType() != cel.IntType {
			return nil, fmt.Errorf("anomaly %s: expression must return int, got %s", a.Name, ast.OutputType())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for anomaly %s: %w", a.Name, err)
		}
		compiled = append(compiled, &compiledAnomaly{Anomaly: a, program: program})
	}
	return compiled, nil
}

// checkAnomalies runs each heuristic whose column ds carries.
func (e *Engine) checkAnomalies(ctx context.Context, ds *domain.Dataset) []string {
	var errs []string
	for _, a := range e.anomalies {
		cells, ok := ds.Column(a.Column)
		if !ok {
			continue
		}
		values := numericValues(cells)

		out, _, err := a.program.ContextEval(ctx, map[string]any{"values": values})
		if err != nil {
			slog.Warn("anomaly evaluation failed", "anomaly", a.Name, "error", err)
			continue
		}

		if flagged := toCount(out); flagged > 0 {
			errs = append(errs, a.Message(flagged, values))
		}
	}
	return errs
}

func toCount(val ref.Val) int64 {
	if v, ok := val.(types.Int); ok {
		return int64(v)
	}
	return 0
}

// numericValues keeps the non-null cells that read as numbers.
func numericValues(cells []any) []float64 {
	values := make([]float64, 0, len(cells))
	for _, c := range cells {
		if c == nil {
			continue
		}
		if f, ok := toNumber(c); ok {
			values = append(values, f)
		}
	}
	return values
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
