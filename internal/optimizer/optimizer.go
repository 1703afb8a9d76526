// Package optimizer suggests security, cost, performance and reliability
// improvements for a synthesized template.
package optimizer

import (
	"sort"

	cdkutils "github.com/lex00/cdkutils-go"
)

// Categories accepted by Options.Category besides "all".
var Categories = []string{"security", "cost", "performance", "reliability"}

// Options configures the optimizer.
type Options struct {
	// Category filters suggestions; empty or "all" keeps every category.
	Category string
}

// Result contains optimization suggestions.
type Result struct {
	Suggestions []cdkutils.OptimizeSuggestion `json:"suggestions"`
	Summary     cdkutils.OptimizeSummary      `json:"summary"`
}

// Rule checks one resource type, or every type when Type is empty.
type Rule struct {
	ID       string
	Type     string
	Category string
	Severity string
	Title    string
	// Check returns the suggestion text, or "" when the resource complies.
	Check func(def cdkutils.ResourceDef) string
}

// Optimize applies every matching rule to every resource of tmpl.
// Suggestions are ordered by resource then rule.
func Optimize(tmpl *cdkutils.Template, opts Options) *Result {
	result := &Result{}

	names := make([]string, 0, len(tmpl.Resources))
	for name := range tmpl.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := tmpl.Resources[name]
		for _, rule := range rules {
			if rule.Type != "" && rule.Type != def.Type {
				continue
			}
			if opts.Category != "" && opts.Category != "all" && rule.Category != opts.Category {
				continue
			}
			text := rule.Check(def)
			if text == "" {
				continue
			}
			result.Suggestions = append(result.Suggestions, cdkutils.OptimizeSuggestion{
				Resource:   name,
				Type:       def.Type,
				Rule:       rule.ID,
				Category:   rule.Category,
				Severity:   rule.Severity,
				Title:      rule.Title,
				Suggestion: text,
			})
		}
	}

	result.Summary = summarize(result.Suggestions)
	return result
}

func summarize(suggestions []cdkutils.OptimizeSuggestion) cdkutils.OptimizeSummary {
	summary := cdkutils.OptimizeSummary{}
	for _, s := range suggestions {
		switch s.Category {
		case "security":
			summary.Security++
		case "cost":
			summary.Cost++
		case "performance":
			summary.Performance++
		case "reliability":
			summary.Reliability++
		}
		summary.Total++
	}
	return summary
}
