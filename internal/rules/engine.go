// Package rules holds the diagnostic rule catalog and the engine that runs
// it. Each rule is an independent analysis over the shared context; a
// buggy rule is isolated so the rest of the catalog still runs.
package rules

import (
	"strings"

	"toolvet/internal/contract"
	"toolvet/internal/logging"
)

// Rule is a single diagnostic analysis. Severity is the rule's nominal
// severity; a rule may emit individual diagnostics at a different severity
// (E102 reports optional inputs as warnings under the same code). Check is
// pure with respect to the engine and may be nil for behavioral-only codes.
type Rule struct {
	Code        string
	Severity    contract.Severity
	Name        string
	Description string
	Check       func(*Context) []contract.Diagnostic
}

// Engine executes a registry of rules in registration order.
type Engine struct {
	rules []Rule
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Register appends a rule to the registry.
func (e *Engine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registry in registration order.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Run executes every selected rule over the context and collects the
// diagnostics. A panicking rule is caught and logged with its code; the
// remaining rules still run. Rules run sequentially so diagnostic ordering
// is deterministic.
func (e *Engine) Run(ctx *Context, selectors []string) []contract.Diagnostic {
	timer := logging.StartTimer(logging.CategoryRules, "Run")
	defer timer.Stop()

	filter := newFilter(selectors)

	var diagnostics []contract.Diagnostic
	for _, rule := range e.rules {
		if !filter.selected(rule.Code) {
			continue
		}
		if rule.Check == nil {
			continue
		}
		diagnostics = append(diagnostics, e.runOne(rule, ctx)...)
	}

	logging.Rules("Rule run complete: %d rules, %d diagnostics", len(e.rules), len(diagnostics))
	return diagnostics
}

// runOne executes a single rule with fault isolation.
func (e *Engine) runOne(rule Rule, ctx *Context) (diags []contract.Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryRules).Error("Rule %s (%s) panicked: %v", rule.Code, rule.Name, r)
			diags = nil
		}
	}()

	diags = rule.Check(ctx)
	if len(diags) > 0 {
		logging.RulesDebug("Rule %s fired %d diagnostic(s)", rule.Code, len(diags))
	}
	return diags
}

// =============================================================================
// RULE FILTERING
// =============================================================================

// ruleFilter implements the allow/deny selector contract: plain codes form
// an allow-list; "-"-prefixed codes form a deny-list; when any allow
// entries are present the allow-list wins.
type ruleFilter struct {
	allow map[string]bool
	deny  map[string]bool
}

func newFilter(selectors []string) ruleFilter {
	f := ruleFilter{
		allow: make(map[string]bool),
		deny:  make(map[string]bool),
	}
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if strings.HasPrefix(sel, "-") {
			f.deny[strings.TrimPrefix(sel, "-")] = true
		} else {
			f.allow[sel] = true
		}
	}
	return f
}

func (f ruleFilter) selected(code string) bool {
	if len(f.allow) > 0 {
		return f.allow[code]
	}
	return !f.deny[code]
}
