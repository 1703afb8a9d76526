package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lex00/cdkutils-go/internal/validation"
)

func newLintCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "lint <template>",
		Short: "Lint a CloudFormation template",
		Long: `Lint checks a JSON or YAML template with cfn-lint-go.

Warnings are reported but only errors fail the command.

Examples:
    cdkutils lint template.json
    cdkutils lint template.yaml -f json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLint(cmd.OutOrStdout(), args[0], outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	return cmd
}

func runLint(stdout io.Writer, path, format string) error {
	result, err := validation.LintFile(path)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
	case "text":
		for _, issue := range result.Issues {
			fmt.Fprintf(stdout, "%s: %s\n", path, validation.FormatIssue(issue))
		}
		if len(result.Issues) == 0 {
			fmt.Fprintln(stdout, "No issues found.")
		}
	default:
		return fmt.Errorf("unknown format: %s (use 'text' or 'json')", format)
	}

	if !result.Success {
		return fmt.Errorf("lint failed")
	}
	return nil
}
