package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lex00/cdkutils-go/internal/differ"
)

func newDiffCmd() *cobra.Command {
	var (
		outputFormat string
		ignoreOrder  bool
		color        bool
	)

	cmd := &cobra.Command{
		Use:   "diff <before> <after>",
		Short: "Compare two CloudFormation templates",
		Long: `Diff lists resources added, removed and modified between two templates.

Formats:
    text    one line per resource change
    json    the change list and summary
    delta   a line diff of the whole documents

Examples:
    cdkutils diff old.json new.json
    cdkutils diff old.yaml new.yaml --ignore-order -f json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := differ.Options{IgnoreOrder: ignoreOrder, Coloring: color}
			return runDiff(cmd.OutOrStdout(), args[0], args[1], outputFormat, opts)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text, json or delta")
	cmd.Flags().BoolVar(&ignoreOrder, "ignore-order", false, "Ignore array element order")
	cmd.Flags().BoolVar(&color, "color", false, "Color delta output")
	return cmd
}

func runDiff(stdout io.Writer, before, after, format string, opts differ.Options) error {
	switch format {
	case "delta":
		t1, err := differ.LoadTemplate(before)
		if err != nil {
			return err
		}
		t2, err := differ.LoadTemplate(after)
		if err != nil {
			return err
		}
		out, err := differ.Render(t1, t2, opts)
		if err != nil {
			return err
		}
		if out == "" {
			fmt.Fprintln(stdout, "The templates are identical.")
			return nil
		}
		fmt.Fprintln(stdout, out)
		return nil
	case "text", "json":
	default:
		return fmt.Errorf("unknown format: %s (use 'text', 'json' or 'delta')", format)
	}

	result, err := differ.CompareFiles(before, after, opts)
	if err != nil {
		return err
	}

	if format == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}

	for _, e := range result.Diff.Added {
		fmt.Fprintf(stdout, "+ %s (%s)\n", e.Resource, e.Type)
	}
	for _, e := range result.Diff.Removed {
		fmt.Fprintf(stdout, "- %s (%s)\n", e.Resource, e.Type)
	}
	for _, e := range result.Diff.Modified {
		fmt.Fprintf(stdout, "~ %s (%s)\n", e.Resource, e.Type)
		for _, c := range e.Changes {
			fmt.Fprintf(stdout, "    %s\n", c)
		}
	}
	s := result.Summary
	fmt.Fprintf(stdout, "%d added, %d removed, %d modified\n", s.Added, s.Removed, s.Modified)
	return nil
}
