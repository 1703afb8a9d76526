package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/lex00/cdkutils-go/internal/differ"
	"github.com/lex00/cdkutils-go/internal/optimizer"
)

func newOptimizeCmd() *cobra.Command {
	var (
		outputFormat string
		category     string
	)

	cmd := &cobra.Command{
		Use:   "optimize <template>",
		Short: "Suggest best-practice improvements for a template",
		Long: `Optimize inspects resource properties and suggests security, cost,
performance and reliability improvements.

Examples:
    cdkutils optimize template.json
    cdkutils optimize template.json -c security -f json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd.OutOrStdout(), args[0], outputFormat, category)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringVarP(&category, "category", "c", "all", "Category: all, security, cost, performance or reliability")
	return cmd
}

func runOptimize(stdout io.Writer, path, format, category string) error {
	if category != "all" && !slices.Contains(optimizer.Categories, category) {
		return fmt.Errorf("unknown category: %s", category)
	}
	tmpl, err := differ.LoadTemplate(path)
	if err != nil {
		return err
	}
	result := optimizer.Optimize(tmpl, optimizer.Options{Category: category})

	switch format {
	case "json":
		return printJSON(stdout, result)
	case "text":
	default:
		return fmt.Errorf("unknown format: %s (use 'text' or 'json')", format)
	}

	for _, s := range result.Suggestions {
		fmt.Fprintf(stdout, "[%s] %s %s (%s): %s\n    %s\n", s.Severity, s.Rule, s.Resource, s.Type, s.Title, s.Suggestion)
	}
	fmt.Fprintf(stdout, "%d suggestion(s)\n", result.Summary.Total)
	return nil
}
