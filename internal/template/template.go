// Package template assembles CloudFormation templates from synthesized
// resource nodes.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	cdkutils "github.com/lex00/cdkutils-go"
)

// Node is one serialized resource awaiting assembly.
type Node struct {
	LogicalID           string
	Type                string
	Properties          map[string]any
	DependsOn           []string
	DeletionPolicy      string
	UpdateReplacePolicy string
}

// Builder constructs CloudFormation templates from resource nodes.
type Builder struct {
	description string
	nodes       map[string]Node
	parameters  map[string]cdkutils.Parameter
	outputs     map[string]cdkutils.Output

	// deps is filled by Build: explicit DependsOn plus references.
	deps map[string][]string
}

// NewBuilder creates an empty template builder.
func NewBuilder(description string) *Builder {
	return &Builder{
		description: description,
		nodes:       make(map[string]Node),
		parameters:  make(map[string]cdkutils.Parameter),
		outputs:     make(map[string]cdkutils.Output),
	}
}

// AddResource registers a resource node. Logical IDs must be unique.
func (b *Builder) AddResource(n Node) error {
	if n.LogicalID == "" {
		return errors.New("resource has no logical ID")
	}
	if n.Type == "" {
		return fmt.Errorf("resource %s has no type", n.LogicalID)
	}
	if _, exists := b.nodes[n.LogicalID]; exists {
		return fmt.Errorf("duplicate logical ID %q", n.LogicalID)
	}
	if _, exists := b.parameters[n.LogicalID]; exists {
		return fmt.Errorf("logical ID %q is already a parameter", n.LogicalID)
	}
	b.nodes[n.LogicalID] = n
	return nil
}

// AddParameter registers a template parameter.
func (b *Builder) AddParameter(name string, p cdkutils.Parameter) {
	b.parameters[name] = p
}

// AddOutput registers a template output.
func (b *Builder) AddOutput(name string, o cdkutils.Output) {
	b.outputs[name] = o
}

// Build constructs the CloudFormation template. References to unknown
// logical IDs and dependency cycles are errors.
func (b *Builder) Build() (*cdkutils.Template, error) {
	if err := b.collectDependencies(); err != nil {
		return nil, err
	}
	if _, err := b.topologicalSort(); err != nil {
		return nil, err
	}

	template := &cdkutils.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Description:              b.description,
		Resources:                make(map[string]cdkutils.ResourceDef, len(b.nodes)),
	}

	for name, n := range b.nodes {
		template.Resources[name] = cdkutils.ResourceDef{
			Type:                n.Type,
			Properties:          n.Properties,
			DependsOn:           uniqueSorted(n.DependsOn),
			DeletionPolicy:      n.DeletionPolicy,
			UpdateReplacePolicy: n.UpdateReplacePolicy,
		}
	}

	if len(b.parameters) > 0 {
		template.Parameters = make(map[string]cdkutils.Parameter, len(b.parameters))
		for name, p := range b.parameters {
			template.Parameters[name] = p
		}
	}

	if len(b.outputs) > 0 {
		template.Outputs = make(map[string]cdkutils.Output, len(b.outputs))
		for name, o := range b.outputs {
			template.Outputs[name] = o
		}
	}

	return template, nil
}

// Order returns logical IDs in dependency order. It is valid after Build.
func (b *Builder) Order() ([]string, error) {
	if b.deps == nil {
		if err := b.collectDependencies(); err != nil {
			return nil, err
		}
	}
	return b.topologicalSort()
}

func (b *Builder) collectDependencies() error {
	b.deps = make(map[string][]string, len(b.nodes))
	for name, n := range b.nodes {
		var deps []string
		for _, dep := range n.DependsOn {
			if _, ok := b.nodes[dep]; !ok {
				return fmt.Errorf("%s depends on unknown resource %q", name, dep)
			}
			deps = append(deps, dep)
		}
		for _, ref := range References(n.Properties) {
			if strings.HasPrefix(ref, "AWS::") {
				continue
			}
			if _, ok := b.parameters[ref]; ok {
				continue
			}
			if _, ok := b.nodes[ref]; !ok {
				return fmt.Errorf("%s references unknown resource %q", name, ref)
			}
			if ref != name {
				deps = append(deps, ref)
			}
		}
		b.deps[name] = uniqueSorted(deps)
	}
	for name, o := range b.outputs {
		for _, ref := range References(o.Value) {
			if strings.HasPrefix(ref, "AWS::") {
				continue
			}
			_, isNode := b.nodes[ref]
			_, isParam := b.parameters[ref]
			if !isNode && !isParam {
				return fmt.Errorf("output %s references unknown resource %q", name, ref)
			}
		}
	}
	return nil
}

var subVariable = regexp.MustCompile(`\$\{([^!}][^}]*)\}`)

// References returns the logical IDs a value refers to through Ref,
// Fn::GetAtt and Fn::Sub. The value is expected in normalized map form.
func References(v any) []string {
	var refs []string
	var walk func(v any)
	walk = func(v any) {
		switch x := v.(type) {
		case map[string]any:
			if len(x) == 1 {
				if name, ok := x["Ref"].(string); ok {
					refs = append(refs, name)
					return
				}
				if getAtt, ok := x["Fn::GetAtt"]; ok {
					switch g := getAtt.(type) {
					case []any:
						if len(g) > 0 {
							if name, ok := g[0].(string); ok {
								refs = append(refs, name)
							}
						}
					case string:
						name, _, _ := strings.Cut(g, ".")
						refs = append(refs, name)
					}
					return
				}
				if sub, ok := x["Fn::Sub"]; ok {
					switch s := sub.(type) {
					case string:
						refs = append(refs, subReferences(s, nil)...)
					case []any:
						if len(s) == 2 {
							vars, _ := s[1].(map[string]any)
							names := make(map[string]bool, len(vars))
							for k, val := range vars {
								names[k] = true
								walk(val)
							}
							if str, ok := s[0].(string); ok {
								refs = append(refs, subReferences(str, names)...)
							}
						}
					}
					return
				}
			}
			for _, val := range x {
				walk(val)
			}
		case []any:
			for _, val := range x {
				walk(val)
			}
		}
	}
	walk(v)
	return uniqueSorted(refs)
}

func subReferences(s string, vars map[string]bool) []string {
	var refs []string
	for _, m := range subVariable.FindAllStringSubmatch(s, -1) {
		name, _, _ := strings.Cut(m[1], ".")
		if vars[name] {
			continue
		}
		refs = append(refs, name)
	}
	return refs
}

// topologicalSort returns resources in dependency order using Kahn's
// algorithm with a sorted queue for deterministic output.
func (b *Builder) topologicalSort() ([]string, error) {
	dependents := make(map[string][]string, len(b.nodes))
	inDegree := make(map[string]int, len(b.nodes))
	for name := range b.nodes {
		inDegree[name] = 0
	}
	for name, deps := range b.deps {
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(b.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, next := range dependents[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(b.nodes) {
		return nil, b.detectCycle()
	}
	return result, nil
}

// detectCycle finds and reports a cycle in the dependency graph.
func (b *Builder) detectCycle() error {
	visited := make(map[string]bool)
	var path []string
	var cycle []string

	var find func(node string) bool
	find = func(node string) bool {
		visited[node] = true
		path = append(path, node)
		for _, dep := range b.deps[node] {
			for i, p := range path {
				if p == dep {
					cycle = append(append([]string{}, path[i:]...), dep)
					return true
				}
			}
			if !visited[dep] && find(dep) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	names := make([]string, 0, len(b.nodes))
	for name := range b.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !visited[name] && find(name) {
			break
		}
	}

	if len(cycle) == 0 {
		return errors.New("circular dependency detected")
	}
	return fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " → "))
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// ToJSON serializes the template to indented JSON.
func ToJSON(t *cdkutils.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML.
func ToYAML(t *cdkutils.Template) ([]byte, error) {
	return yaml.Marshal(t)
}
