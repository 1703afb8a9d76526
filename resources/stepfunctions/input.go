package stepfunctions

import (
	"errors"
	"fmt"
	"strings"
)

// Path is a JSON path into the state input, or into the context object when
// it starts with "$$". Inside payload objects a Path value is rendered as a
// "<key>.$" field.
type Path string

const (
	// EntirePayload selects the whole state input.
	EntirePayload Path = "$"
	// TaskToken is the callback token of a WAIT_FOR_TASK_TOKEN task.
	TaskToken Path = "$$.Task.Token"
	// ExecutionID is the ID of the running execution.
	ExecutionID Path = "$$.Execution.Id"
)

// Discard as a ResultPath drops the state result and keeps the input.
const Discard = "DISCARD"

// ErrInvalidPath is returned for a JSON path that does not start with "$".
var ErrInvalidPath = errors.New("invalid JSON path")

// StringAt marks path as a reference to be resolved at run time.
func StringAt(path string) Path { return Path(path) }

func (p Path) validate() error {
	if !strings.HasPrefix(string(p), "$") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, string(p))
	}
	return nil
}

// renderPath maps Discard to JSON null.
func renderPath(p string) any {
	if p == Discard {
		return nil
	}
	return p
}

// renderObject copies v, rewriting every Path field of a map to "<key>.$".
func renderObject(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if p, ok := val.(Path); ok {
				if err := p.validate(); err != nil {
					return nil, fmt.Errorf("%s: %w", k, err)
				}
				out[k+".$"] = string(p)
				continue
			}
			r, err := renderObject(val)
			if err != nil {
				return nil, fmt.Errorf("%s.%w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			if _, ok := val.(Path); ok {
				return nil, fmt.Errorf("[%d]: JSON paths are only allowed as object values", i)
			}
			r, err := renderObject(val)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case Path:
		return nil, errors.New("JSON paths are only allowed as object values")
	}
	return v, nil
}

func containsPath(v any, p Path) bool {
	switch x := v.(type) {
	case Path:
		return x == p
	case map[string]any:
		for _, val := range x {
			if containsPath(val, p) {
				return true
			}
		}
	case []any:
		for _, val := range x {
			if containsPath(val, p) {
				return true
			}
		}
	}
	return false
}

type inputKind int

const (
	inputNone inputKind = iota
	inputObject
	inputPath
	inputText
)

// TaskInput is the payload a task hands to the service it calls.
type TaskInput struct {
	kind  inputKind
	value any
}

// InputFromObject passes obj, with Path values resolved at run time.
func InputFromObject(obj map[string]any) TaskInput {
	return TaskInput{kind: inputObject, value: obj}
}

// InputFromJSONPath passes the value selected by path.
func InputFromJSONPath(path string) TaskInput {
	return TaskInput{kind: inputPath, value: Path(path)}
}

// InputFromText passes a literal string.
func InputFromText(text string) TaskInput {
	return TaskInput{kind: inputText, value: text}
}

// IsZero reports whether no input was given.
func (i TaskInput) IsZero() bool { return i.kind == inputNone }

func (i TaskInput) hasTaskToken() bool {
	return containsPath(i.value, TaskToken)
}

// set stores the input under key in params.
func (i TaskInput) set(params map[string]any, key string) error {
	switch i.kind {
	case inputObject:
		r, err := renderObject(i.value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		params[key] = r
	case inputPath:
		p := i.value.(Path)
		if err := p.validate(); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		params[key+".$"] = string(p)
	case inputText:
		params[key] = i.value
	}
	return nil
}

// IntegrationPattern selects how a task waits for the service it calls.
type IntegrationPattern string

const (
	RequestResponse  IntegrationPattern = "REQUEST_RESPONSE"
	RunJob           IntegrationPattern = "RUN_JOB"
	WaitForTaskToken IntegrationPattern = "WAIT_FOR_TASK_TOKEN"
)

// ErrUnsupportedPattern is returned when a task cannot use a pattern.
var ErrUnsupportedPattern = errors.New("unsupported integration pattern")

// ParseIntegrationPattern accepts REQUEST_RESPONSE, RUN_JOB and
// WAIT_FOR_TASK_TOKEN. An empty string yields def.
func ParseIntegrationPattern(s string, def IntegrationPattern) (IntegrationPattern, error) {
	switch p := IntegrationPattern(strings.ToUpper(s)); p {
	case "":
		return def, nil
	case RequestResponse, RunJob, WaitForTaskToken:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPattern, s)
}

func (p IntegrationPattern) suffix() string {
	switch p {
	case RunJob:
		return ".sync"
	case WaitForTaskToken:
		return ".waitForTaskToken"
	}
	return ""
}
