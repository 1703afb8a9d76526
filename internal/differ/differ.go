// Package differ compares synthesized CloudFormation templates.
package differ

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"

	"github.com/apex/log"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
	"sigs.k8s.io/yaml"

	cdkutils "github.com/lex00/cdkutils-go"
)

// Options configures the differ.
type Options struct {
	// IgnoreOrder ignores array element order in comparisons.
	IgnoreOrder bool
	// Coloring adds ANSI colors to Render output.
	Coloring bool
}

// Result contains the difference between two templates.
type Result struct {
	Diff    cdkutils.TemplateDiff
	Summary cdkutils.DiffSummary
}

// Compare lists resources added, removed and modified between two templates.
func Compare(before, after *cdkutils.Template, opts Options) *Result {
	result := &Result{}

	for name, def := range after.Resources {
		if _, ok := before.Resources[name]; !ok {
			result.Diff.Added = append(result.Diff.Added, cdkutils.DiffEntry{Resource: name, Type: def.Type})
		}
	}
	for name, def := range before.Resources {
		newDef, ok := after.Resources[name]
		if !ok {
			result.Diff.Removed = append(result.Diff.Removed, cdkutils.DiffEntry{Resource: name, Type: def.Type})
			continue
		}
		if changes := compareResources(def, newDef, opts); len(changes) > 0 {
			result.Diff.Modified = append(result.Diff.Modified, cdkutils.DiffEntry{
				Resource: name,
				Type:     def.Type,
				Changes:  changes,
			})
		}
	}

	sortEntries(result.Diff.Added)
	sortEntries(result.Diff.Removed)
	sortEntries(result.Diff.Modified)

	result.Summary = cdkutils.DiffSummary{
		Added:    len(result.Diff.Added),
		Removed:  len(result.Diff.Removed),
		Modified: len(result.Diff.Modified),
	}
	result.Summary.Total = result.Summary.Added + result.Summary.Removed + result.Summary.Modified
	return result
}

// CompareFiles compares two template files.
func CompareFiles(before, after string, opts Options) (*Result, error) {
	t1, err := LoadTemplate(before)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", before, err)
	}
	t2, err := LoadTemplate(after)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", after, err)
	}
	return Compare(t1, t2, opts), nil
}

// LoadTemplate reads a JSON or YAML template. Short-form intrinsic tags
// such as !Ref are not supported.
func LoadTemplate(path string) (*cdkutils.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTemplate(data)
}

// ParseTemplate decodes a JSON or YAML template.
func ParseTemplate(data []byte) (*cdkutils.Template, error) {
	var tmpl cdkutils.Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse as JSON or YAML: %w", err)
	}
	return &tmpl, nil
}

// Render returns a line diff of the two templates as JSON documents, or an
// empty string when they are identical.
func Render(before, after *cdkutils.Template, opts Options) (string, error) {
	left, err := json.Marshal(before)
	if err != nil {
		return "", err
	}
	right, err := json.Marshal(after)
	if err != nil {
		return "", err
	}

	delta, err := gojsondiff.New().Compare(left, right)
	if err != nil {
		return "", fmt.Errorf("failed to compare templates: %w", err)
	}
	if !delta.Modified() {
		return "", nil
	}
	log.WithField("deltas", len(delta.Deltas())).Debug("templates differ")

	var doc map[string]any
	if err := json.Unmarshal(left, &doc); err != nil {
		return "", err
	}
	f := formatter.NewAsciiFormatter(doc, formatter.AsciiFormatterConfig{
		ShowArrayIndex: false,
		Coloring:       opts.Coloring,
	})
	return f.Format(delta)
}

func compareResources(def1, def2 cdkutils.ResourceDef, opts Options) []string {
	var changes []string

	if def1.Type != def2.Type {
		changes = append(changes, fmt.Sprintf("Type changed: %s -> %s", def1.Type, def2.Type))
	}
	changes = append(changes, compareProperties("", def1.Properties, def2.Properties, opts)...)
	if !reflect.DeepEqual(def1.DependsOn, def2.DependsOn) && (len(def1.DependsOn) > 0 || len(def2.DependsOn) > 0) {
		changes = append(changes, "DependsOn changed")
	}
	if def1.DeletionPolicy != def2.DeletionPolicy {
		changes = append(changes, "DeletionPolicy changed")
	}
	return changes
}

// compareProperties descends into nested maps so changes name the deepest
// differing path.
func compareProperties(prefix string, props1, props2 map[string]any, opts Options) []string {
	var changes []string
	path := func(key string) string {
		if prefix == "" {
			return key
		}
		return prefix + "." + key
	}

	for key, val2 := range props2 {
		val1, ok := props1[key]
		if !ok {
			changes = append(changes, path(key)+" added")
			continue
		}
		m1, ok1 := val1.(map[string]any)
		m2, ok2 := val2.(map[string]any)
		if ok1 && ok2 {
			changes = append(changes, compareProperties(path(key), m1, m2, opts)...)
			continue
		}
		if !deepEqual(val1, val2, opts) {
			changes = append(changes, path(key)+" modified")
		}
	}
	for key := range props1 {
		if _, ok := props2[key]; !ok {
			changes = append(changes, path(key)+" removed")
		}
	}

	sort.Strings(changes)
	return changes
}

func deepEqual(a, b any, opts Options) bool {
	if opts.IgnoreOrder {
		a = normalizeValue(a)
		b = normalizeValue(b)
	}
	return reflect.DeepEqual(a, b)
}

// normalizeValue sorts array elements by their JSON encoding.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		sort.SliceStable(out, func(i, j int) bool {
			return encodeKey(out[i]) < encodeKey(out[j])
		})
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func encodeKey(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func sortEntries(entries []cdkutils.DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Resource < entries[j].Resource
	})
}
