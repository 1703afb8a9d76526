// Package validation lints synthesized templates with cfn-lint-go.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/lex00/cfn-lint-go/pkg/lint"

	cdkutils "github.com/lex00/cdkutils-go"
	"github.com/lex00/cdkutils-go/internal/template"
)

// LintTemplate writes tmpl to a temporary file and lints it.
func LintTemplate(tmpl *cdkutils.Template) (*cdkutils.LintResult, error) {
	data, err := template.ToYAML(tmpl)
	if err != nil {
		return nil, fmt.Errorf("rendering template: %w", err)
	}

	dir, err := os.MkdirTemp("", "cdkutils-lint")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "template.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing template: %w", err)
	}
	return LintFile(path)
}

// LintFile lints a template file. The result succeeds when no finding has
// error severity; warnings are acceptable.
func LintFile(path string) (*cdkutils.LintResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("template file not found: %w", err)
	}

	matches, err := lint.New(lint.Options{}).LintFile(path)
	if err != nil {
		return nil, fmt.Errorf("linter error: %w", err)
	}

	result := &cdkutils.LintResult{Success: true}
	for _, m := range matches {
		issue := issueFromMatch(m)
		if issue.Severity == "error" {
			result.Success = false
		}
		result.Issues = append(result.Issues, issue)
	}
	log.WithField("file", path).WithField("issues", len(result.Issues)).Debug("linted")
	return result, nil
}

// FormatIssue renders an issue on one line.
func FormatIssue(i cdkutils.LintIssue) string {
	if i.Path != "" {
		return fmt.Sprintf("%s: %s (at %s)", i.Rule, i.Message, i.Path)
	}
	return fmt.Sprintf("%s: %s", i.Rule, i.Message)
}

func issueFromMatch(m lint.Match) cdkutils.LintIssue {
	parts := make([]string, len(m.Location.Path))
	for i, p := range m.Location.Path {
		parts[i] = fmt.Sprint(p)
	}

	var severity string
	switch m.Level {
	case "Error":
		severity = "error"
	case "Warning":
		severity = "warning"
	default:
		severity = "info"
	}

	return cdkutils.LintIssue{
		Rule:     m.Rule.ID,
		Severity: severity,
		Message:  m.Message,
		Path:     strings.Join(parts, "/"),
	}
}
