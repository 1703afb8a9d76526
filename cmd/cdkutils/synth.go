package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	cdkutils "github.com/lex00/cdkutils-go"
	"github.com/lex00/cdkutils-go/internal/template"
	"github.com/lex00/cdkutils-go/internal/validation"
	"github.com/lex00/cdkutils-go/stack"
)

func newSynthCmd() *cobra.Command {
	var (
		opts         lifecycleOptions
		outputFormat string
		outputFile   string
		query        string
		lint         bool
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize the EMR lifecycle stack",
		Long: `Synth declares the bundled EMR lifecycle stack and prints its template.

Examples:
    cdkutils synth --subnet subnet-0a1b --master-sg sg-01 --slave-sg sg-02
    cdkutils synth -f yaml -o template.yaml
    cdkutils synth --query 'Resources.*.Type'
    cdkutils synth -f result --lint`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(cmd.OutOrStdout(), opts, outputFormat, outputFile, query, lint)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.account, "account", "", "Account ID (default: AWS::AccountId)")
	f.StringVar(&opts.region, "region", "", "Region (default: AWS::Region)")
	f.StringVar(&opts.subnet, "subnet", "subnet-00000000", "EC2 subnet of the cluster")
	f.StringVar(&opts.masterSG, "master-sg", "sg-master", "EMR managed master security group")
	f.StringVar(&opts.slaveSG, "slave-sg", "sg-slave", "EMR managed slave security group")
	f.StringVar(&opts.release, "release", "emr-6.15.0", "EMR release label")
	f.StringVar(&opts.scriptsBucket, "scripts-bucket", "scripts", "Bucket holding the Spark script and logs")
	f.StringVar(&opts.script, "script", "jobs/etl.py", "Spark script key")
	f.StringVar(&opts.scheduleHour, "hour", "2", "UTC hour of the nightly run")
	f.StringVar(&opts.instanceType, "instance-type", "m5.xlarge", "Instance type of every fleet")
	f.IntVar(&opts.spotCapacity, "spot", 0, "Spot capacity of the task fleet")
	f.StringVarP(&outputFormat, "format", "f", "json", "Output format: json, yaml or result")
	f.StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	f.StringVarP(&query, "query", "q", "", "gjson path selecting part of the JSON template")
	f.BoolVar(&lint, "lint", false, "Lint the template and fail on errors")

	return cmd
}

func runSynth(stdout io.Writer, opts lifecycleOptions, format, outputFile, query string, lint bool) error {
	st, err := lifecycleStack(opts)
	if err != nil {
		return fmt.Errorf("declaring stack: %w", err)
	}
	tmpl, err := st.Synth()
	if err != nil {
		return fmt.Errorf("synth failed: %w", err)
	}

	if lint {
		result, err := validation.LintTemplate(tmpl)
		if err != nil {
			return err
		}
		for _, issue := range result.Issues {
			fmt.Fprintf(os.Stderr, "%s %s\n", issue.Severity, validation.FormatIssue(issue))
		}
		if !result.Success {
			return fmt.Errorf("template has %d lint issue(s)", len(result.Issues))
		}
	}

	var data []byte
	switch format {
	case "json":
		data, err = template.ToJSON(tmpl)
	case "yaml":
		data, err = template.ToYAML(tmpl)
	case "result":
		data, err = json.MarshalIndent(synthResult(tmpl, st.Assets()), "", "  ")
	default:
		return fmt.Errorf("unknown format: %s (use 'json', 'yaml' or 'result')", format)
	}
	if err != nil {
		return err
	}

	if query != "" {
		if format != "json" {
			return fmt.Errorf("--query requires json output")
		}
		res := gjson.GetBytes(data, query)
		if !res.Exists() {
			return fmt.Errorf("query %q matched nothing", query)
		}
		data = []byte(res.Raw)
	}

	return writeOutput(stdout, outputFile, data)
}

func synthResult(tmpl *cdkutils.Template, assets []stack.Asset) cdkutils.SynthResult {
	r := cdkutils.SynthResult{Success: true, Template: tmpl}
	for name := range tmpl.Resources {
		r.Resources = append(r.Resources, name)
	}
	sort.Strings(r.Resources)
	for _, a := range assets {
		r.Assets = append(r.Assets, a.ObjectKey())
	}
	return r
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
