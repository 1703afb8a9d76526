package logs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownComparison is returned for a comparison a pattern cannot use.
var ErrUnknownComparison = errors.New("unknown filter comparison")

// FilterPattern renders a CloudWatch Logs filter pattern.
type FilterPattern interface {
	PatternString() string
}

type literal string

func (l literal) PatternString() string { return string(l) }

// Literal passes s through unchanged.
func Literal(s string) FilterPattern { return literal(s) }

// AllEvents matches every event.
func AllEvents() FilterPattern { return literal("") }

// JSONPattern is a pattern over JSON log events. Patterns compose with
// AnyOf and AllOf.
type JSONPattern struct {
	expr string
}

// PatternString returns "{ expr }".
func (p JSONPattern) PatternString() string { return "{ " + p.expr + " }" }

// StringValue matches events whose field compares to value with "=" or "!=".
// value may contain "*" wildcards.
func StringValue(field, comparison, value string) (JSONPattern, error) {
	if comparison != "=" && comparison != "!=" {
		return JSONPattern{}, fmt.Errorf("%w: %q for string values", ErrUnknownComparison, comparison)
	}
	return JSONPattern{expr: fmt.Sprintf("%s %s %s", field, comparison, strconv.Quote(value))}, nil
}

// NumberValue matches events whose numeric field compares to value.
func NumberValue(field, comparison string, value float64) (JSONPattern, error) {
	switch comparison {
	case "=", "!=", "<", "<=", ">", ">=":
	default:
		return JSONPattern{}, fmt.Errorf("%w: %q for number values", ErrUnknownComparison, comparison)
	}
	return JSONPattern{expr: fmt.Sprintf("%s %s %s", field, comparison, strconv.FormatFloat(value, 'f', -1, 64))}, nil
}

// Exists matches events that carry field.
func Exists(field string) JSONPattern {
	return JSONPattern{expr: field + " = *"}
}

// AnyOf matches when one of patterns does.
func AnyOf(patterns ...JSONPattern) (JSONPattern, error) {
	return aggregate("||", patterns)
}

// AllOf matches when every pattern does.
func AllOf(patterns ...JSONPattern) (JSONPattern, error) {
	return aggregate("&&", patterns)
}

func aggregate(op string, patterns []JSONPattern) (JSONPattern, error) {
	if len(patterns) == 0 {
		return JSONPattern{}, errors.New("aggregate pattern needs at least one pattern")
	}
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = "(" + p.expr + ")"
	}
	return JSONPattern{expr: strings.Join(parts, " "+op+" ")}, nil
}

// StatusPattern matches Step Functions execution events whose type ends in
// Succeeded or Failed.
func StatusPattern() FilterPattern {
	succeeded, _ := StringValue("$.type", "=", "*Succeeded*")
	failed, _ := StringValue("$.type", "=", "*Failed*")
	p, _ := AnyOf(succeeded, failed)
	return p
}
