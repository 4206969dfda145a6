package rules

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// CountViolations returns how many values violate c.
// Numeric constraints count values that cannot be read as numbers.
// Nulls violate allowed_range and allowed_values only.
func CountViolations(c domain.Constraint, values []any) int {
	count := 0
	for _, v := range values {
		if v == nil {
			if nullViolates(c) {
				count++
			}
			continue
		}
		if violates(c, v) {
			count++
		}
	}
	return count
}

// nullViolates reports whether a null cell counts against c.
func nullViolates(c domain.Constraint) bool {
	switch c.(type) {
	case domain.AllowedRange, domain.AllowedValues:
		return true
	default:
		return false
	}
}

func violates(c domain.Constraint, v any) bool {
	switch c := c.(type) {
	case domain.AllowedRange:
		f, ok := toNumber(v)
		return !ok || f < c.Min || f > c.Max
	case domain.MinValue:
		f, ok := toNumber(v)
		return !ok || f < c.Min
	case domain.MaxValue:
		f, ok := toNumber(v)
		return !ok || f > c.Max
	case domain.AllowedValues:
		return !contains(c.Values, v)
	case domain.NotAllowedValues:
		return contains(c.Values, v)
	default:
		panic(fmt.Sprintf("rules: unhandled constraint %T", c))
	}
}

// toNumber reads numeric cells and numeric text. Booleans are not numbers.
func toNumber(v any) (float64, bool) {
	if _, isBool := v.(bool); isBool {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

func contains(set []any, v any) bool {
	for _, candidate := range set {
		if sameValue(candidate, v) {
			return true
		}
	}
	return false
}

// sameValue compares a rule parameter with a cell. Numbers compare by value
// across Go numeric types; text only matches text.
func sameValue(a, b any) bool {
	if isNumeric(a) && isNumeric(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}
	switch a := a.(type) {
	case string:
		s, ok := b.(string)
		return ok && a == s
	case bool:
		t, ok := b.(bool)
		return ok && a == t
	}
	return false
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
