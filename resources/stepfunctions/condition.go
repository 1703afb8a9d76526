package stepfunctions

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCondition is returned by ConditionFromType for an unsupported
// condition type.
var ErrUnknownCondition = errors.New("unsupported condition type")

// Condition is a Choice rule comparison.
type Condition struct {
	op       string
	variable string
	value    any
	children []Condition
}

func compare(op, variable string, value any) Condition {
	return Condition{op: op, variable: variable, value: value}
}

func BooleanEquals(variable string, value bool) Condition {
	return compare("BooleanEquals", variable, value)
}

func StringEquals(variable, value string) Condition {
	return compare("StringEquals", variable, value)
}

// StringMatches matches a pattern where "*" is a wildcard.
func StringMatches(variable, pattern string) Condition {
	return compare("StringMatches", variable, pattern)
}

func StringLessThan(variable, value string) Condition {
	return compare("StringLessThan", variable, value)
}

func StringGreaterThan(variable, value string) Condition {
	return compare("StringGreaterThan", variable, value)
}

func NumberEquals(variable string, value float64) Condition {
	return compare("NumericEquals", variable, value)
}

func NumberLessThan(variable string, value float64) Condition {
	return compare("NumericLessThan", variable, value)
}

func NumberLessThanEquals(variable string, value float64) Condition {
	return compare("NumericLessThanEquals", variable, value)
}

func NumberGreaterThan(variable string, value float64) Condition {
	return compare("NumericGreaterThan", variable, value)
}

func NumberGreaterThanEquals(variable string, value float64) Condition {
	return compare("NumericGreaterThanEquals", variable, value)
}

// TimestampEquals compares against an RFC 3339 timestamp.
func TimestampEquals(variable, value string) Condition {
	return compare("TimestampEquals", variable, value)
}

func TimestampLessThan(variable, value string) Condition {
	return compare("TimestampLessThan", variable, value)
}

func TimestampGreaterThan(variable, value string) Condition {
	return compare("TimestampGreaterThan", variable, value)
}

func IsPresent(variable string) Condition    { return compare("IsPresent", variable, true) }
func IsNotPresent(variable string) Condition { return compare("IsPresent", variable, false) }
func IsString(variable string) Condition     { return compare("IsString", variable, true) }
func IsNotString(variable string) Condition  { return compare("IsString", variable, false) }
func IsNumeric(variable string) Condition    { return compare("IsNumeric", variable, true) }
func IsNotNumeric(variable string) Condition { return compare("IsNumeric", variable, false) }
func IsBoolean(variable string) Condition    { return compare("IsBoolean", variable, true) }
func IsNotBoolean(variable string) Condition { return compare("IsBoolean", variable, false) }
func IsNull(variable string) Condition       { return compare("IsNull", variable, true) }
func IsNotNull(variable string) Condition    { return compare("IsNull", variable, false) }

func IsTimestamp(variable string) Condition {
	return compare("IsTimestamp", variable, true)
}

func IsNotTimestamp(variable string) Condition {
	return compare("IsTimestamp", variable, false)
}

// And holds when every condition holds.
func And(conds ...Condition) Condition { return Condition{op: "And", children: conds} }

// Or holds when any condition holds.
func Or(conds ...Condition) Condition { return Condition{op: "Or", children: conds} }

// Not negates cond.
func Not(cond Condition) Condition { return Condition{op: "Not", children: []Condition{cond}} }

func (c Condition) render() (map[string]any, error) {
	switch c.op {
	case "":
		return nil, errors.New("empty condition")
	case "And", "Or":
		if len(c.children) == 0 {
			return nil, fmt.Errorf("%s needs at least one condition", c.op)
		}
		list := make([]any, 0, len(c.children))
		for _, child := range c.children {
			m, err := child.render()
			if err != nil {
				return nil, err
			}
			list = append(list, m)
		}
		return map[string]any{c.op: list}, nil
	case "Not":
		m, err := c.children[0].render()
		if err != nil {
			return nil, err
		}
		return map[string]any{"Not": m}, nil
	}
	if !strings.HasPrefix(c.variable, "$") {
		return nil, fmt.Errorf("%w: variable %q", ErrInvalidPath, c.variable)
	}
	return map[string]any{"Variable": c.variable, c.op: c.value}, nil
}

// ConditionFromType builds a condition from its snake_case type name, e.g.
// "boolean_equals" or "is_present". Type checks take no value.
func ConditionFromType(kind, variable string, value any) (Condition, error) {
	switch kind {
	case "is_present":
		return IsPresent(variable), nil
	case "is_not_present":
		return IsNotPresent(variable), nil
	case "is_string":
		return IsString(variable), nil
	case "is_not_string":
		return IsNotString(variable), nil
	case "is_numeric":
		return IsNumeric(variable), nil
	case "is_not_numeric":
		return IsNotNumeric(variable), nil
	case "is_boolean":
		return IsBoolean(variable), nil
	case "is_not_boolean":
		return IsNotBoolean(variable), nil
	case "is_timestamp":
		return IsTimestamp(variable), nil
	case "is_not_timestamp":
		return IsNotTimestamp(variable), nil
	case "boolean_equals":
		b, ok := value.(bool)
		if !ok {
			return Condition{}, fmt.Errorf("%s: value %v is not a bool", kind, value)
		}
		return BooleanEquals(variable, b), nil
	case "string_equals", "timestamp_equals":
		s, ok := value.(string)
		if !ok {
			return Condition{}, fmt.Errorf("%s: value %v is not a string", kind, value)
		}
		if kind == "timestamp_equals" {
			return TimestampEquals(variable, s), nil
		}
		return StringEquals(variable, s), nil
	case "number_equals":
		var n float64
		switch v := value.(type) {
		case int:
			n = float64(v)
		case int64:
			n = float64(v)
		case float64:
			n = v
		default:
			return Condition{}, fmt.Errorf("%s: value %v is not a number", kind, value)
		}
		return NumberEquals(variable, n), nil
	}
	return Condition{}, fmt.Errorf("%w: %s", ErrUnknownCondition, kind)
}
