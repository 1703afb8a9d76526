package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lex00/cdkutils-go/internal/differ"
	"github.com/lex00/cdkutils-go/internal/graph"
)

func newGraphCmd() *cobra.Command {
	var (
		outputFormat      string
		includeParameters bool
		clusterByType     bool
	)

	cmd := &cobra.Command{
		Use:   "graph <template>",
		Short: "Graph resource dependencies of a template",
		Long: `Graph draws a DOT or Mermaid graph of the references between resources.

The output can be rendered with Graphviz:
    cdkutils graph template.json | dot -Tpng -o deps.png

Examples:
    cdkutils graph template.json -p           # include parameters
    cdkutils graph template.json -c           # cluster by service
    cdkutils graph template.json -f mermaid   # mermaid format`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd.OutOrStdout(), args[0], outputFormat, includeParameters, clusterByType)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVarP(&includeParameters, "include-parameters", "p", false, "Include parameter nodes in the graph")
	cmd.Flags().BoolVarP(&clusterByType, "cluster", "c", false, "Cluster resources by AWS service")
	return cmd
}

func runGraph(stdout io.Writer, path, format string, includeParams, cluster bool) error {
	var graphFormat graph.Format
	switch format {
	case "dot":
		graphFormat = graph.FormatDOT
	case "mermaid":
		graphFormat = graph.FormatMermaid
	default:
		return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", format)
	}

	tmpl, err := differ.LoadTemplate(path)
	if err != nil {
		return err
	}
	if len(tmpl.Resources) == 0 {
		return fmt.Errorf("no resources found in %s", path)
	}

	gen := &graph.Generator{
		Format:            graphFormat,
		IncludeParameters: includeParams,
		ClusterByType:     cluster,
	}
	return gen.Generate(tmpl, stdout)
}
