// Package asl loads, validates and renders Amazon States Language documents,
// whether built with sfnjson or read from disk.
package asl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

// Load reads a JSON or YAML state-machine document.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a JSON or YAML state-machine document.
func Parse(data []byte) (map[string]any, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("convert yaml to json: %w", err)
	}
	return decode(jsonData)
}

// normalize turns any document (typed structs, Go ints) into the generic
// form produced by the JSON decoder.
func normalize(doc any) (map[string]any, error) {
	if m, ok := doc.(map[string]any); ok && isGeneric(m) {
		return m, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func decode(data []byte) (map[string]any, error) {
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("state machine must be an object, got %T", v)
	}
	return m, nil
}

// isGeneric reports whether m only holds decoder-produced values.
func isGeneric(v any) bool {
	switch x := v.(type) {
	case nil, bool, string, json.Number:
		return true
	case map[string]any:
		for _, e := range x {
			if !isGeneric(e) {
				return false
			}
		}
		return true
	case []any:
		for _, e := range x {
			if !isGeneric(e) {
				return false
			}
		}
		return true
	}
	return false
}

// states returns the States map of a document, or nil.
func states(doc map[string]any) map[string]any {
	s, _ := doc["States"].(map[string]any)
	return s
}

// CountStates counts states including those nested in Parallel branches and
// Map iterators.
func CountStates(doc map[string]any) int {
	n := 0
	for _, raw := range states(doc) {
		n++
		st, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for _, sub := range nested(st) {
			n += CountStates(sub)
		}
	}
	return n
}

// nested returns the sub-documents of a Parallel or Map state.
func nested(st map[string]any) []map[string]any {
	var out []map[string]any
	if branches, ok := st["Branches"].([]any); ok {
		for _, b := range branches {
			if m, ok := b.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	for _, key := range []string{"Iterator", "ItemProcessor"} {
		if m, ok := st[key].(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
