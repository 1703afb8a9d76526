// Package cdkutils provides convenience factories for AWS infrastructure
// declared as CloudFormation, plus helpers over the AWS SDK.
//
// Resources are declared on a stack through small factories that apply
// defaults and return typed handles:
//
//	st := stack.New("etl", stack.Environment{Region: "eu-central-1"})
//	queue, _ := sqs.CreateQueue(st, "ingest", sqs.QueueProps{})
//	fn, _ := lambda.ImplementFunction(st, "worker", lambda.FunctionProps{})
//	_ = sqs.AddLambdaTrigger(queue, fn, 0)
//
//	tmpl, err := st.Synth()
//
// The types in this package are the shared contracts: the synthesized
// template and the JSON results emitted by the cdkutils CLI.
package cdkutils

// Template represents a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string                 `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                 `json:"Description,omitempty" yaml:"Description,omitempty"`
	Parameters               map[string]Parameter   `json:"Parameters,omitempty" yaml:"Parameters,omitempty"`
	Resources                map[string]ResourceDef `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output      `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// ResourceDef is a single resource in the CloudFormation template.
type ResourceDef struct {
	Type                string         `json:"Type" yaml:"Type"`
	Properties          map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn           []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	DeletionPolicy      string         `json:"DeletionPolicy,omitempty" yaml:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string         `json:"UpdateReplacePolicy,omitempty" yaml:"UpdateReplacePolicy,omitempty"`
}

// Parameter is a CloudFormation template parameter.
type Parameter struct {
	Type           string   `json:"Type" yaml:"Type"`
	Description    string   `json:"Description,omitempty" yaml:"Description,omitempty"`
	Default        any      `json:"Default,omitempty" yaml:"Default,omitempty"`
	AllowedValues  []string `json:"AllowedValues,omitempty" yaml:"AllowedValues,omitempty"`
	AllowedPattern string   `json:"AllowedPattern,omitempty" yaml:"AllowedPattern,omitempty"`
	NoEcho         bool     `json:"NoEcho,omitempty" yaml:"NoEcho,omitempty"`
}

// Output is a CloudFormation template output.
type Output struct {
	Description string  `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any     `json:"Value" yaml:"Value"`
	Export      *Export `json:"Export,omitempty" yaml:"Export,omitempty"`
}

// Export names a cross-stack output.
type Export struct {
	Name string `json:"Name" yaml:"Name"`
}

// SynthResult is the JSON output from `cdkutils synth --json`.
type SynthResult struct {
	Success   bool      `json:"success"`
	Template  *Template `json:"template,omitempty"`
	Resources []string  `json:"resources,omitempty"`
	Assets    []string  `json:"assets,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
}

// LintResult is the JSON output from `cdkutils lint`.
type LintResult struct {
	Success bool        `json:"success"`
	Issues  []LintIssue `json:"issues,omitempty"`
}

// LintIssue is a single cfn-lint finding.
type LintIssue struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
}

// ValidateResult is the JSON output from `cdkutils asl validate`.
type ValidateResult struct {
	File    string   `json:"file"`
	Success bool     `json:"success"`
	States  int      `json:"states"`
	Errors  []string `json:"errors,omitempty"`
}

// TemplateDiff groups resource changes between two templates.
type TemplateDiff struct {
	Added    []DiffEntry `json:"added,omitempty"`
	Removed  []DiffEntry `json:"removed,omitempty"`
	Modified []DiffEntry `json:"modified,omitempty"`
}

// DiffEntry is one changed resource.
type DiffEntry struct {
	Resource string   `json:"resource"`
	Type     string   `json:"type"`
	Changes  []string `json:"changes,omitempty"`
}

// DiffSummary counts changes by kind.
type DiffSummary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
	Total    int `json:"total"`
}

// OptimizeSuggestion is one best-practice finding from `cdkutils optimize`.
type OptimizeSuggestion struct {
	Resource   string `json:"resource"`
	Type       string `json:"type"`
	Rule       string `json:"rule"`
	Category   string `json:"category"` // "security", "cost", "performance", "reliability"
	Severity   string `json:"severity"` // "high", "medium", "low"
	Title      string `json:"title"`
	Suggestion string `json:"suggestion"`
}

// OptimizeSummary counts suggestions by category.
type OptimizeSummary struct {
	Security    int `json:"security"`
	Cost        int `json:"cost"`
	Performance int `json:"performance"`
	Reliability int `json:"reliability"`
	Total       int `json:"total"`
}
