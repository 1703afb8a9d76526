package asl

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	cdkutils "github.com/lex00/cdkutils-go"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://cdkutils.dev/schemas/asl.json"

var (
	schemaOnce     sync.Once
	schemaErr      error
	compiledSchema *jsonschema.Schema
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidationError lists every problem found in a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid state machine: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid state machine: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks doc against the States Language schema and verifies that
// every transition target exists, every non-terminal state transitions and
// every state is reachable. It returns a *ValidationError.
func Validate(doc any) error {
	m, err := normalize(doc)
	if err != nil {
		return err
	}
	sch, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var problems []string
	if err := sch.Validate(m); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		problems = append(problems, schemaProblems(ve)...)
	}
	problems = append(problems, checkTransitions("", m)...)

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidateFile loads and validates path for the CLI.
func ValidateFile(path string) cdkutils.ValidateResult {
	result := cdkutils.ValidateResult{File: path}
	doc, err := Load(path)
	if err != nil {
		result.Errors = []string{err.Error()}
		return result
	}
	result.States = CountStates(doc)

	if err := Validate(doc); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			result.Errors = ve.Problems
		} else {
			result.Errors = []string{err.Error()}
		}
		return result
	}
	result.Success = true
	return result
}

// schemaProblems flattens the leaf causes of a schema error.
func schemaProblems(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{fmt.Sprintf("%s: %s", loc, ve.Message)}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, schemaProblems(c)...)
	}
	return out
}

// checkTransitions verifies one States scope and recurses into nested ones.
func checkTransitions(scope string, doc map[string]any) []string {
	all := states(doc)
	if all == nil {
		return nil
	}
	prefix := scope
	if prefix != "" {
		prefix += ": "
	}

	var problems []string
	startAt, _ := doc["StartAt"].(string)
	if _, ok := all[startAt]; !ok && startAt != "" {
		problems = append(problems, fmt.Sprintf("%sStartAt %q is not a state", prefix, startAt))
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	edges := make(map[string][]string)
	for _, name := range names {
		st, ok := all[name].(map[string]any)
		if !ok {
			continue
		}
		typ, _ := st["Type"].(string)
		targets := Transitions(st)
		edges[name] = targets
		for _, target := range targets {
			if _, ok := all[target]; !ok {
				problems = append(problems, fmt.Sprintf("%sstate %q transitions to missing state %q", prefix, name, target))
			}
		}

		end, _ := st["End"].(bool)
		_, hasNext := st["Next"]
		switch typ {
		case "Choice", "Succeed", "Fail":
		default:
			if !end && !hasNext {
				problems = append(problems, fmt.Sprintf("%sstate %q has neither Next nor End", prefix, name))
			}
			if end && hasNext {
				problems = append(problems, fmt.Sprintf("%sstate %q has both Next and End", prefix, name))
			}
		}

		for i, sub := range nested(st) {
			child := fmt.Sprintf("%s[%d]", name, i)
			if scope != "" {
				child = scope + "/" + child
			}
			problems = append(problems, checkTransitions(child, sub)...)
		}
	}

	if _, ok := all[startAt]; ok {
		seen := map[string]bool{startAt: true}
		queue := []string{startAt}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range edges[cur] {
				if _, exists := all[next]; exists && !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
		for _, name := range names {
			if !seen[name] {
				problems = append(problems, fmt.Sprintf("%sstate %q is unreachable", prefix, name))
			}
		}
	}
	return problems
}

// Transitions lists the states st can move to: Next, Default, every choice
// rule target and every catcher target, without duplicates.
func Transitions(st map[string]any) []string {
	var out []string
	add := func(v any) {
		s, ok := v.(string)
		if !ok || s == "" {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	add(st["Next"])
	if choices, ok := st["Choices"].([]any); ok {
		for _, c := range choices {
			if m, ok := c.(map[string]any); ok {
				add(m["Next"])
			}
		}
	}
	add(st["Default"])
	if catchers, ok := st["Catch"].([]any); ok {
		for _, c := range catchers {
			if m, ok := c.(map[string]any); ok {
				add(m["Next"])
			}
		}
	}
	return out
}
