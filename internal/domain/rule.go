package domain

// SourceType selects which schema and business rules apply to a dataset.
type SourceType string

// Source types shipped with the default rule documents.
const (
	SourceLogs     SourceType = "logs"
	SourceSessions SourceType = "sessions"
	SourceProducts SourceType = "products"
	SourceUsers    SourceType = "users"
)

// Schema lists the columns a dataset of one source type must carry.
type Schema struct {
	// RequiredColumns is ordered and case-sensitive.
	RequiredColumns []string `json:"requiredColumns"`

	// ColumnTypes holds the declared type per column. Informational only.
	ColumnTypes map[string]string `json:"columnTypes,omitempty"`
}

// SchemaDefinition maps a source type to its schema.
type SchemaDefinition map[SourceType]Schema

// ConstraintKind names a business-rule constraint as written in the rules document.
type ConstraintKind string

const (
	KindAllowedRange     ConstraintKind = "allowed_range"
	KindMinValue         ConstraintKind = "min_value"
	KindMaxValue         ConstraintKind = "max_value"
	KindAllowedValues    ConstraintKind = "allowed_values"
	KindNotAllowedValues ConstraintKind = "not_allowed_values"
)

// Constraint is a closed set of per-column business rules.
// Only the variants declared in this package implement it.
type Constraint interface {
	Kind() ConstraintKind
	constraint()
}

// AllowedRange is violated by values outside [Min, Max].
type AllowedRange struct {
	Min float64
	Max float64
}

// MinValue is violated by values below Min.
type MinValue struct {
	Min float64
}

// MaxValue is violated by values above Max.
type MaxValue struct {
	Max float64
}

// AllowedValues is violated by values not in Values.
type AllowedValues struct {
	Values []any
}

// NotAllowedValues is violated by values in Values.
type NotAllowedValues struct {
	Values []any
}

func (AllowedRange) Kind() ConstraintKind     { return KindAllowedRange }
func (MinValue) Kind() ConstraintKind         { return KindMinValue }
func (MaxValue) Kind() ConstraintKind         { return KindMaxValue }
func (AllowedValues) Kind() ConstraintKind    { return KindAllowedValues }
func (NotAllowedValues) Kind() ConstraintKind { return KindNotAllowedValues }

func (AllowedRange) constraint()     {}
func (MinValue) constraint()         {}
func (MaxValue) constraint()         {}
func (AllowedValues) constraint()    {}
func (NotAllowedValues) constraint() {}

// ColumnRule holds the constraints declared for one column, in document order.
type ColumnRule struct {
	Column      string
	Constraints []Constraint
}

// BusinessRules maps a source type to its column rules.
type BusinessRules map[SourceType][]ColumnRule

// DefaultGlobalThreshold is used when the thresholds document omits global_threshold.
const DefaultGlobalThreshold = 95.0

// Thresholds is the parsed completeness threshold document.
type Thresholds struct {
	Global float64 `yaml:"global_threshold"`
}

// RuleConfig bundles the three rule documents for one run.
// It is loaded once and never mutated afterwards.
type RuleConfig struct {
	Schemas    SchemaDefinition
	Rules      BusinessRules
	Thresholds Thresholds
}

// Overrides are per-call adjustments supplied by the caller.
type Overrides struct {
	// Threshold replaces the global completeness threshold when non-nil.
	Threshold *float64

	// CheckAnomalies enables the fixed anomaly heuristics.
	CheckAnomalies bool

	// SkipSchema disables the required-column check.
	SkipSchema bool
}

// EffectiveThreshold returns the completeness threshold in force for a call.
func (c *RuleConfig) EffectiveThreshold(ov Overrides) float64 {
	if ov.Threshold != nil {
		return *ov.Threshold
	}
	return c.Thresholds.Global
}
