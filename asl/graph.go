package asl

import (
	"fmt"
	"io"
	"sort"

	"github.com/emicklei/dot"
)

// Format selects the graph output.
type Format string

const (
	FormatDOT     Format = "dot"
	FormatMermaid Format = "mermaid"
)

// Graph writes the states and transitions of doc to w. Parallel branches and
// Map iterators are drawn as clusters.
func Graph(doc any, format Format, w io.Writer) error {
	m, err := normalize(doc)
	if err != nil {
		return err
	}

	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "TB")
	g.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	g.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	start := g.Node("__start").Label("start")
	start.Attr("shape", "circle")
	if first := addScope(g, "", m); first != nil {
		g.Edge(start, *first)
	}

	var out string
	switch format {
	case "", FormatDOT:
		out = g.String()
	case FormatMermaid:
		out = dot.MermaidGraph(g, dot.MermaidTopToBottom)
	default:
		return fmt.Errorf("unknown graph format %q", format)
	}
	_, err = io.WriteString(w, out)
	return err
}

// addScope draws one States scope into g and returns its start node.
func addScope(g *dot.Graph, prefix string, doc map[string]any) *dot.Node {
	all := states(doc)
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	nodes := make(map[string]dot.Node, len(names))
	for _, name := range names {
		st, _ := all[name].(map[string]any)
		typ, _ := st["Type"].(string)
		n := g.Node(prefix + name).Label(name + "\\n[" + typ + "]")
		switch typ {
		case "Choice":
			n.Attr("shape", "diamond")
		case "Succeed":
			n.Attr("color", "darkgreen")
		case "Fail":
			n.Attr("color", "red")
		}
		nodes[name] = n
	}

	for _, name := range names {
		st, _ := all[name].(map[string]any)
		from := nodes[name]
		for _, target := range Transitions(st) {
			to, ok := nodes[target]
			if !ok {
				continue
			}
			e := g.Edge(from, to)
			if isCatchTarget(st, target) && target != st["Next"] {
				e.Attr("style", "dashed")
				e.Attr("color", "red")
			}
		}

		for i, sub := range nested(st) {
			id := fmt.Sprintf("%s%s[%d]", prefix, name, i)
			cluster := g.Subgraph(id, dot.ClusterOption{})
			cluster.Attr("label", id)
			cluster.Attr("style", "rounded")
			if first := addScope(cluster, id+"/", sub); first != nil {
				g.Edge(from, *first).Attr("style", "dotted")
			}
		}
	}

	startAt, _ := doc["StartAt"].(string)
	if n, ok := nodes[startAt]; ok {
		return &n
	}
	return nil
}

func isCatchTarget(st map[string]any, target string) bool {
	catchers, _ := st["Catch"].([]any)
	for _, c := range catchers {
		if m, ok := c.(map[string]any); ok && m["Next"] == target {
			return true
		}
	}
	return false
}
