// Package graph draws the resource dependency graph of a synthesized template.
package graph

import (
	"io"
	"sort"
	"strings"

	"github.com/emicklei/dot"

	cdkutils "github.com/lex00/cdkutils-go"
	"github.com/lex00/cdkutils-go/internal/template"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Generator creates dependency graphs from templates.
type Generator struct {
	// IncludeParameters draws template parameters and the edges to them.
	IncludeParameters bool

	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByType groups resources by AWS service.
	ClusterByType bool
}

// Generate writes the graph of tmpl to w. Edges point from a resource to
// what it references; Fn::GetAtt edges are blue and DependsOn edges dashed.
func (g *Generator) Generate(tmpl *cdkutils.Template, w io.Writer) error {
	graph := g.buildGraph(tmpl)

	var output string
	if g.Format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}

	_, err := io.WriteString(w, output)
	return err
}

// GenerateString returns the graph as a string.
func (g *Generator) GenerateString(tmpl *cdkutils.Template) (string, error) {
	var sb strings.Builder
	if err := g.Generate(tmpl, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) buildGraph(tmpl *cdkutils.Template) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")
	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	names := sortedKeys(tmpl.Resources)
	if g.ClusterByType {
		g.addClusteredNodes(graph, tmpl.Resources, names)
	} else {
		for _, name := range names {
			addNode(graph, name, tmpl.Resources[name].Type)
		}
	}

	if g.IncludeParameters {
		for _, name := range sortedKeys(tmpl.Parameters) {
			n := graph.Node(name)
			n.Attr("shape", "ellipse")
			n.Attr("style", "dashed")
			n.Label(name)
		}
	}

	for _, name := range names {
		res := tmpl.Resources[name]
		getAtts := make(map[string]bool)
		for _, ref := range getAttTargets(res.Properties) {
			getAtts[ref] = true
		}

		for _, dep := range template.References(res.Properties) {
			_, isResource := tmpl.Resources[dep]
			_, isParam := tmpl.Parameters[dep]
			if !isResource && !(isParam && g.IncludeParameters) {
				continue
			}
			e := graph.Edge(graph.Node(name), graph.Node(dep))
			if getAtts[dep] {
				e.Attr("color", "blue")
			}
		}
		for _, dep := range res.DependsOn {
			if _, ok := tmpl.Resources[dep]; !ok {
				continue
			}
			graph.Edge(graph.Node(name), graph.Node(dep)).Attr("style", "dashed")
		}
	}

	return graph
}

func addNode(graph *dot.Graph, name, cfnType string) {
	graph.Node(name).Label(name + "\\n[" + cfnType + "]")
}

// addClusteredNodes groups resources by service. A service with a single
// resource is drawn without a cluster.
func (g *Generator) addClusteredNodes(graph *dot.Graph, resources map[string]cdkutils.ResourceDef, names []string) {
	byService := make(map[string][]string)
	for _, name := range names {
		service := ServiceOf(resources[name].Type)
		byService[service] = append(byService[service], name)
	}

	for _, service := range sortedKeys(byService) {
		members := byService[service]
		if len(members) == 1 {
			addNode(graph, members[0], resources[members[0]].Type)
			continue
		}
		cluster := graph.Subgraph("cluster_"+service, dot.ClusterOption{})
		cluster.Attr("label", service)
		cluster.Attr("style", "rounded")
		cluster.Attr("bgcolor", "lightyellow")
		for _, name := range members {
			cluster.Node(name).Label(name + "\\n[" + resources[name].Type + "]")
		}
	}
}

// ServiceOf returns the service segment of a resource type, e.g. "Lambda"
// for "AWS::Lambda::Function".
func ServiceOf(cfnType string) string {
	parts := strings.Split(cfnType, "::")
	if len(parts) == 3 && parts[1] != "" {
		return parts[1]
	}
	return "Other"
}

// getAttTargets returns the logical IDs referenced through Fn::GetAtt.
func getAttTargets(v any) []string {
	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch x := v.(type) {
		case map[string]any:
			if att, ok := x["Fn::GetAtt"]; ok && len(x) == 1 {
				switch a := att.(type) {
				case []any:
					if len(a) > 0 {
						if name, ok := a[0].(string); ok {
							out = append(out, name)
						}
					}
				case string:
					name, _, _ := strings.Cut(a, ".")
					out = append(out, name)
				}
				return
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
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
