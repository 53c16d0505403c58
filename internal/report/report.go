// Package report renders analysis results for people and for machines.
// Every rendering carries a unique run ID so results can be referenced and
// replayed from the run history.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"toolvet/internal/contract"
	"toolvet/internal/logging"
)

// Format selects the output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Report wraps one analysis result with run metadata.
type Report struct {
	RunID       string                   `json:"run_id" yaml:"run_id"`
	Source      string                   `json:"source" yaml:"source"`
	GeneratedAt time.Time                `json:"generated_at" yaml:"generated_at"`
	Result      *contract.AnalysisResult `json:"result" yaml:"result"`
}

// New builds a report with a fresh run ID.
func New(source string, result *contract.AnalysisResult) *Report {
	return &Report{
		RunID:       uuid.NewString(),
		Source:      source,
		GeneratedAt: time.Now().UTC(),
		Result:      result,
	}
}

// Render writes the report in the requested format.
func (r *Report) Render(w io.Writer, format Format) error {
	timer := logging.StartTimer(logging.CategoryReport, "Render:"+string(format))
	defer timer.Stop()

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(r)
	case FormatText, "":
		return r.renderText(w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// renderText writes the human-readable report: verdict line, diagnostics
// grouped by tool, then the inferred dependency edges.
func (r *Report) renderText(w io.Writer) error {
	res := r.Result

	fmt.Fprintf(w, "toolvet analysis %s\n", r.RunID)
	fmt.Fprintf(w, "source: %s\n", r.Source)
	fmt.Fprintf(w, "verdict: %s (%d tools, %d errors, %d warnings)\n\n",
		res.Verdict, res.ToolCount, len(res.Errors), len(res.Warnings))

	if len(res.Diagnostics) == 0 {
		fmt.Fprintln(w, "No findings.")
	} else {
		for _, group := range groupByTool(res.Diagnostics) {
			if group.tool == "" {
				fmt.Fprintln(w, "server:")
			} else {
				fmt.Fprintf(w, "%s:\n", group.tool)
			}
			for _, d := range group.diags {
				loc := ""
				if d.Field != "" {
					loc = "." + d.Field
				}
				fmt.Fprintf(w, "  [%s] %s%s: %s\n", d.Code, severityLabel(d.Severity), loc, d.Message)
				if d.Suggestion != "" {
					fmt.Fprintf(w, "         hint: %s\n", d.Suggestion)
				}
			}
			fmt.Fprintln(w)
		}
	}

	if len(res.Dependencies) > 0 {
		fmt.Fprintln(w, "inferred dependencies:")
		for _, dep := range res.Dependencies {
			fmt.Fprintf(w, "  %s.%s -> %s.%s (%.2f)\n",
				dep.FromTool, dep.FromField, dep.ToTool, dep.ToField, dep.Confidence)
		}
	}
	return nil
}

type toolGroup struct {
	tool  string
	diags []contract.Diagnostic
}

// groupByTool buckets diagnostics per tool, tools sorted by name with
// server-level findings first. Within a tool, emission order is preserved.
func groupByTool(diags []contract.Diagnostic) []toolGroup {
	byTool := make(map[string][]contract.Diagnostic)
	for _, d := range diags {
		byTool[d.Tool] = append(byTool[d.Tool], d)
	}

	names := make([]string, 0, len(byTool))
	for name := range byTool {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]toolGroup, 0, len(names))
	for _, name := range names {
		groups = append(groups, toolGroup{tool: name, diags: byTool[name]})
	}
	return groups
}

func severityLabel(s contract.Severity) string {
	return strings.ToUpper(string(s))
}

// RenderRules writes the rule catalog as a reference table.
func RenderRules(w io.Writer, rules []RuleInfo) {
	for _, r := range rules {
		kind := "static"
		if r.Behavioral {
			kind = "behavioral"
		}
		fmt.Fprintf(w, "%-6s %-8s %-10s %s\n", r.Code, r.Severity, kind, r.Name)
		fmt.Fprintf(w, "       %s\n", r.Description)
	}
}

// RuleInfo is the reporting view of one catalog entry.
type RuleInfo struct {
	Code        string
	Severity    contract.Severity
	Name        string
	Description string
	Behavioral  bool
}
