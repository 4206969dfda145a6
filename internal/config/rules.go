// Package config loads the rule documents and the application configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRules marks a rule document that cannot be applied.
var ErrInvalidRules = errors.New("invalid rule configuration")

// LoadRuleConfig reads and parses the schema, business-rule and threshold
// documents. Any failure is fatal for the run: rules are never applied partially.
func LoadRuleConfig(cfg domain.QualityConfig) (*domain.RuleConfig, error) {
	schemaData, err := os.ReadFile(cfg.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema document: %w", err)
	}
	schemas, err := ParseSchemas(schemaData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.SchemaFile, err)
	}

	rulesData, err := os.ReadFile(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read business rules document: %w", err)
	}
	rules, err := ParseBusinessRules(rulesData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.RulesFile, err)
	}

	thresholdData, err := os.ReadFile(cfg.ThresholdsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read thresholds document: %w", err)
	}
	thresholds, err := ParseThresholds(thresholdData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.ThresholdsFile, err)
	}

	return &domain.RuleConfig{
		Schemas:    schemas,
		Rules:      rules,
		Thresholds: thresholds,
	}, nil
}

// ParseSchemas parses the schema document. It is JSON, read through the YAML
// parser so that the order of required_columns keys survives.
//
//	{"products": {"required_columns": {"product_id": "string", "price": "float"}}}
//
// A source without required_columns is left out, which the engine reports
// as "no schema defined".
func ParseSchemas(data []byte) (domain.SchemaDefinition, error) {
	root, err := documentMapping(data)
	if err != nil {
		return nil, err
	}

	schemas := make(domain.SchemaDefinition)
	if root == nil {
		return schemas, nil
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		source := domain.SourceType(root.Content[i].Value)
		body := root.Content[i+1]
		if body.Kind != yaml.MappingNode {
			continue
		}

		required := mappingValue(body, "required_columns")
		if required == nil {
			continue
		}

		schema := domain.Schema{ColumnTypes: make(map[string]string)}
		seen := make(map[string]bool)
		add := func(col, typ string) error {
			if seen[col] {
				return fmt.Errorf("%w: duplicate required column %q for source %s", ErrInvalidRules, col, source)
			}
			seen[col] = true
			schema.RequiredColumns = append(schema.RequiredColumns, col)
			if typ != "" {
				schema.ColumnTypes[col] = typ
			}
			return nil
		}

		switch required.Kind {
		case yaml.MappingNode:
			for j := 0; j+1 < len(required.Content); j += 2 {
				if err := add(required.Content[j].Value, required.Content[j+1].Value); err != nil {
					return nil, err
				}
			}
		case yaml.SequenceNode:
			for _, item := range required.Content {
				if err := add(item.Value, ""); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("%w: required_columns for source %s must be an object or a list", ErrInvalidRules, source)
		}

		schemas[source] = schema
	}

	return schemas, nil
}

// ParseBusinessRules parses the business-rule document:
//
//	products:
//	  price:
//	    min_value: 0
//	  category:
//	    allowed_values: [books, games]
//
// Columns and constraints keep their document order.
func ParseBusinessRules(data []byte) (domain.BusinessRules, error) {
	root, err := documentMapping(data)
	if err != nil {
		return nil, err
	}

	rules := make(domain.BusinessRules)
	if root == nil {
		return rules, nil
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		source := domain.SourceType(root.Content[i].Value)
		columns := root.Content[i+1]
		if isNull(columns) {
			continue
		}
		if columns.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: rules for source %s must be a mapping", ErrInvalidRules, source)
		}

		var columnRules []domain.ColumnRule
		for j := 0; j+1 < len(columns.Content); j += 2 {
			column := columns.Content[j].Value
			constraints := columns.Content[j+1]
			if isNull(constraints) {
				continue
			}
			if constraints.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%w: constraints for %s.%s must be a mapping", ErrInvalidRules, source, column)
			}

			rule := domain.ColumnRule{Column: column}
			for k := 0; k+1 < len(constraints.Content); k += 2 {
				kind := domain.ConstraintKind(constraints.Content[k].Value)
				c, err := parseConstraint(kind, constraints.Content[k+1])
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", source, column, err)
				}
				rule.Constraints = append(rule.Constraints, c)
			}
			columnRules = append(columnRules, rule)
		}
		rules[source] = columnRules
	}

	return rules, nil
}

// ParseThresholds parses the threshold document. A missing global_threshold
// falls back to domain.DefaultGlobalThreshold.
func ParseThresholds(data []byte) (domain.Thresholds, error) {
	var doc struct {
		Global *float64 `yaml:"global_threshold"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.Thresholds{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	t := domain.Thresholds{Global: domain.DefaultGlobalThreshold}
	if doc.Global != nil {
		t.Global = *doc.Global
	}
	if t.Global < 0 || t.Global > 100 {
		return domain.Thresholds{}, fmt.Errorf("%w: global_threshold %v outside [0, 100]", ErrInvalidRules, t.Global)
	}
	return t, nil
}

func parseConstraint(kind domain.ConstraintKind, node *yaml.Node) (domain.Constraint, error) {
	switch kind {
	case domain.KindAllowedRange:
		bounds, err := decodeList(node)
		if err != nil || len(bounds) != 2 {
			return nil, fmt.Errorf("%w: allowed_range needs [min, max]", ErrInvalidRules)
		}
		lo, err := cast.ToFloat64E(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("%w: allowed_range min: %v", ErrInvalidRules, err)
		}
		hi, err := cast.ToFloat64E(bounds[1])
		if err != nil {
			return nil, fmt.Errorf("%w: allowed_range max: %v", ErrInvalidRules, err)
		}
		if lo > hi {
			return nil, fmt.Errorf("%w: allowed_range min %v greater than max %v", ErrInvalidRules, lo, hi)
		}
		return domain.AllowedRange{Min: lo, Max: hi}, nil

	case domain.KindMinValue:
		v, err := decodeNumber(node)
		if err != nil {
			return nil, fmt.Errorf("%w: min_value: %v", ErrInvalidRules, err)
		}
		return domain.MinValue{Min: v}, nil

	case domain.KindMaxValue:
		v, err := decodeNumber(node)
		if err != nil {
			return nil, fmt.Errorf("%w: max_value: %v", ErrInvalidRules, err)
		}
		return domain.MaxValue{Max: v}, nil

	case domain.KindAllowedValues:
		values, err := decodeList(node)
		if err != nil {
			return nil, fmt.Errorf("%w: allowed_values: %v", ErrInvalidRules, err)
		}
		return domain.AllowedValues{Values: values}, nil

	case domain.KindNotAllowedValues:
		values, err := decodeList(node)
		if err != nil {
			return nil, fmt.Errorf("%w: not_allowed_values: %v", ErrInvalidRules, err)
		}
		return domain.NotAllowedValues{Values: values}, nil

	default:
		return nil, fmt.Errorf("%w: unknown constraint %q", ErrInvalidRules, kind)
	}
}

func decodeNumber(node *yaml.Node) (float64, error) {
	var v any
	if err := node.Decode(&v); err != nil {
		return 0, err
	}
	return cast.ToFloat64E(v)
}

func decodeList(node *yaml.Node) ([]any, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a list")
	}
	var values []any
	if err := node.Decode(&values); err != nil {
		return nil, err
	}
	return values, nil
}

// documentMapping returns the top-level mapping of a document, or nil for
// an empty document.
func documentMapping(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if isNull(root) {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping keyed by source type", ErrInvalidRules)
	}
	return root, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}
