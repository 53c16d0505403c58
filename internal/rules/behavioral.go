package rules

import (
	"fmt"
	"strings"

	"toolvet/internal/contract"
)

// Behavioral codes carry no static signal: their Check is nil and they are
// registered so that filtering, reporting, and tests know the codes exist.
// Diagnostics for them are produced by the typed acceptors below, fed by an
// external execution harness that actually calls the tools.

func behavioralRule(code string, severity contract.Severity, name, description string) Rule {
	return Rule{Code: code, Severity: severity, Name: name, Description: description}
}

func behavioralRules() []Rule {
	return []Rule{
		behavioralRule("E000", contract.SeverityError, "Tool Not Found", "A scripted test referenced a tool the server does not expose."),
		behavioralRule("E200", contract.SeverityError, "Input Validation Failed", "The server rejected an input that its own schema accepts."),
		behavioralRule("E300", contract.SeverityError, "Output Validation Failed", "A live response did not conform to the declared output schema."),
		behavioralRule("E301", contract.SeverityError, "Output Explosion", "A live response exceeded the declared or default size limit."),
		behavioralRule("E400", contract.SeverityError, "Tool Execution Failed", "The tool errored on a valid invocation."),
		behavioralRule("E403", contract.SeverityError, "Unbounded Execution", "The tool ran past its declared or default timeout."),
		behavioralRule("E500", contract.SeverityError, "Side Effect Detected", "Execution touched state outside the declared contract."),
		behavioralRule("E501", contract.SeverityError, "Hidden Dependency", "Execution invoked tools the contract never declared."),
		behavioralRule("E600", contract.SeverityError, "Unexpected Test Result", "A scripted test finished with the wrong outcome."),
		behavioralRule("W110", contract.SeverityWarning, "Weak Schema", "The declared schema under-describes observed responses."),
		behavioralRule("W300", contract.SeverityWarning, "High Entropy Output", "Responses vary more than a cacheable tool should."),
		behavioralRule("W301", contract.SeverityWarning, "Unstable Defaults", "Omitted optional inputs produced unstable values."),
	}
}

// =============================================================================
// BEHAVIORAL CONTEXTS
// =============================================================================

// SideEffect is one observed out-of-contract operation.
type SideEffect struct {
	Operation string
	Path      string
}

// HiddenDependency is one observed undeclared tool invocation.
type HiddenDependency struct {
	ToolName  string
	Timestamp string
}

// UnstableField is one field whose value changed across identical calls.
type UnstableField struct {
	FieldName string
	Reason    string
}

// ToolNotFoundContext feeds E000.
type ToolNotFoundContext struct {
	ToolName   string
	ScriptName string
}

// InputValidationContext feeds E200.
type InputValidationContext struct {
	ToolName    string
	TestName    string
	TestInput   any
	Error       string
	ParsedError string
}

// OutputValidationContext feeds E300.
type OutputValidationContext struct {
	ToolName             string
	TestName             string
	TestInput            any
	ExpectedOutputSchema string
	Error                string
	Details              string
}

// OutputExplosionContext feeds E301.
type OutputExplosionContext struct {
	ToolName    string
	ActualSize  int
	MaxSize     int
	LimitString string
}

// ExecutionFailedContext feeds E400.
type ExecutionFailedContext struct {
	ToolName string
	Errors   []string
}

// UnboundedExecutionContext feeds E403.
type UnboundedExecutionContext struct {
	ToolName        string
	TimedOut        bool
	DeclaredTimeout string
	ActualTimeoutMs int
	Errors          []string
}

// SideEffectContext feeds E500.
type SideEffectContext struct {
	ToolName    string
	SideEffects []SideEffect
}

// HiddenDependencyContext feeds E501.
type HiddenDependencyContext struct {
	ToolName             string
	HiddenDependencies   []HiddenDependency
	MissingDependencies  []string
	DeclaredDependencies []string
}

// UnexpectedResultContext feeds E600.
type UnexpectedResultContext struct {
	ToolName          string
	TestName          string
	ExpectedOutcome   string
	ActualOutcome     string
	ExpectedErrorType string
	ActualErrorType   string
	ExpectedErrorCode string
	ActualErrorCode   string
}

// WeakSchemaContext feeds W110.
type WeakSchemaContext struct {
	ToolName        string
	SchemasMatch    bool
	MismatchDetails string
}

// EntropyContext feeds W300. EntropyThreshold defaults to 0.7 when zero.
type EntropyContext struct {
	ToolName         string
	EntropyScore     float64
	Reason           string
	EntropyThreshold float64
}

// UnstableDefaultsContext feeds W301.
type UnstableDefaultsContext struct {
	ToolName       string
	UnstableFields []UnstableField
}

// CheckToolNotFound reports E000 for a scripted test whose tool is absent.
func CheckToolNotFound(c ToolNotFoundContext) []contract.Diagnostic {
	return []contract.Diagnostic{{
		Code:       "E000",
		Severity:   contract.SeverityError,
		Tool:       c.ToolName,
		Message:    fmt.Sprintf("Test script %q calls tool %q, which the server does not expose", c.ScriptName, c.ToolName),
		Suggestion: "Fix the script or register the tool",
		Context:    map[string]any{"scriptName": c.ScriptName},
	}}
}

// CheckInputValidation reports E200 for an input the schema accepts but the
// server rejected.
func CheckInputValidation(c InputValidationContext) []contract.Diagnostic {
	msg := fmt.Sprintf("Tool %q rejected schema-valid input: %s", c.ToolName, c.Error)
	if c.ParsedError != "" {
		msg = fmt.Sprintf("Tool %q rejected schema-valid input: %s", c.ToolName, c.ParsedError)
	}
	return []contract.Diagnostic{{
		Code:       "E200",
		Severity:   contract.SeverityError,
		Tool:       c.ToolName,
		Message:    msg,
		Suggestion: "Tighten the input schema to match what the server actually enforces",
		Context:    map[string]any{"testName": c.TestName, "testInput": c.TestInput, "error": c.Error},
	}}
}

// CheckOutputValidation reports E300 for a live response that failed the
// declared output schema.
func CheckOutputValidation(c OutputValidationContext) []contract.Diagnostic {
	return []contract.Diagnostic{{
		Code:       "E300",
		Severity:   contract.SeverityError,
		Tool:       c.ToolName,
		Message:    fmt.Sprintf("Response from tool %q violates its output schema: %s", c.ToolName, c.Error),
		Suggestion: "Fix the response or correct the declared schema",
		Context: map[string]any{
			"testName": c.TestName, "testInput": c.TestInput,
			"expectedOutputSchema": c.ExpectedOutputSchema, "details": c.Details,
		},
	}}
}

// CheckOutputExplosion reports E301 for an oversized response.
func CheckOutputExplosion(c OutputExplosionContext) []contract.Diagnostic {
	return []contract.Diagnostic{{
		Code:     "E301",
		Severity: contract.SeverityError,
		Tool:     c.ToolName,
		Message: fmt.Sprintf("Response from tool %q is %d bytes, over the %s limit (%d)",
			c.ToolName, c.ActualSize, c.LimitString, c.MaxSize),
		Suggestion: "Paginate or truncate the response",
		Context:    map[string]any{"actualSize": c.ActualSize, "maxSize": c.MaxSize},
	}}
}

// CheckExecutionFailed reports E400 for a tool erroring on valid input.
func CheckExecutionFailed(c ExecutionFailedContext) []contract.Diagnostic {
	return []contract.Diagnostic{{
		Code:       "E400",
		Severity:   contract.SeverityError,
		Tool:       c.ToolName,
		Message:    fmt.Sprintf("Tool %q failed on a valid invocation: %s", c.ToolName, strings.Join(c.Errors, "; ")),
		Suggestion: "Handle the failing case or document the precondition",
		Context:    map[string]any{"errors": c.Errors},
	}}
}

// CheckUnboundedExecution reports E403 for a tool exceeding its timeout.
func CheckUnboundedExecution(c UnboundedExecutionContext) []contract.Diagnostic {
	limit := c.DeclaredTimeout
	if limit == "" {
		limit = fmt.Sprintf("%dms", c.ActualTimeoutMs)
	}
	return []contract.Diagnostic{{
		Code:       "E403",
		Severity:   contract.SeverityError,
		Tool:       c.ToolName,
		Message:    fmt.Sprintf("Tool %q exceeded its %s execution limit", c.ToolName, limit),
		Suggestion: "Bound the work or declare a realistic timeout",
		Context:    map[string]any{"timedOut": c.TimedOut, "errors": c.Errors},
	}}
}

// CheckSideEffects reports E500 for observed out-of-contract operations.
func CheckSideEffects(c SideEffectContext) []contract.Diagnostic {
	if len(c.SideEffects) == 0 {
		return nil
	}
	parts := make([]string, len(c.SideEffects))
	for i, se := range c.SideEffects {
		parts[i] = fmt.Sprintf("%s %s", se.Operation, se.Path)
	}
	return []contract.Diagnostic{{
		Code:       "E500",
		Severity:   contract.SeverityError,
		Tool:       c.ToolName,
		Message:    fmt.Sprintf("Tool %q produced undeclared side effects: %s", c.ToolName, strings.Join(parts, ", ")),
		Suggestion: "Declare the side effects in the tool contract",
		Context:    map[string]any{"sideEffects": c.SideEffects},
	}}
}

// CheckHiddenDependencies reports E501 for undeclared tool invocations.
func CheckHiddenDependencies(c HiddenDependencyContext) []contract.Diagnostic {
	if len(c.HiddenDependencies) == 0 {
		return nil
	}
	names := make([]string, len(c.HiddenDependencies))
	for i, hd := range c.HiddenDependencies {
		names[i] = hd.ToolName
	}
	return []contract.Diagnostic{{
		Code:       "E501",
		Severity:   contract.SeverityError,
		Tool:       c.ToolName,
		Message:    fmt.Sprintf("Tool %q invoked undeclared tools: %s", c.ToolName, strings.Join(names, ", ")),
		Suggestion: "Declare the dependencies so agents can order the calls",
		Context: map[string]any{
			"hiddenDependencies":   c.HiddenDependencies,
			"missingDependencies":  c.MissingDependencies,
			"declaredDependencies": c.DeclaredDependencies,
		},
	}}
}

// CheckUnexpectedResult reports E600 for a scripted test with the wrong
// outcome.
func CheckUnexpectedResult(c UnexpectedResultContext) []contract.Diagnostic {
	return []contract.Diagnostic{{
		Code:     "E600",
		Severity: contract.SeverityError,
		Tool:     c.ToolName,
		Message: fmt.Sprintf("Test %q on tool %q expected %s but got %s",
			c.TestName, c.ToolName, c.ExpectedOutcome, c.ActualOutcome),
		Suggestion: "Reconcile the test expectation with the observed behavior",
		Context: map[string]any{
			"expectedErrorType": c.ExpectedErrorType, "actualErrorType": c.ActualErrorType,
			"expectedErrorCode": c.ExpectedErrorCode, "actualErrorCode": c.ActualErrorCode,
		},
	}}
}

// CheckWeakSchema reports W110 when observed responses outgrow the schema.
func CheckWeakSchema(c WeakSchemaContext) []contract.Diagnostic {
	if c.SchemasMatch {
		return nil
	}
	return []contract.Diagnostic{{
		Code:       "W110",
		Severity:   contract.SeverityWarning,
		Tool:       c.ToolName,
		Message:    fmt.Sprintf("Declared schema of tool %q under-describes its responses: %s", c.ToolName, c.MismatchDetails),
		Suggestion: "Regenerate the schema from representative responses",
	}}
}

// CheckEntropy reports W300 when output entropy exceeds the threshold.
func CheckEntropy(c EntropyContext) []contract.Diagnostic {
	threshold := c.EntropyThreshold
	if threshold == 0 {
		threshold = 0.7
	}
	score := c.EntropyScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	if score <= threshold {
		return nil
	}
	msg := fmt.Sprintf("Output of tool %q varies across identical calls (entropy %.2f)", c.ToolName, score)
	if c.Reason != "" {
		msg += ": " + c.Reason
	}
	return []contract.Diagnostic{{
		Code:       "W300",
		Severity:   contract.SeverityWarning,
		Tool:       c.ToolName,
		Message:    msg,
		Suggestion: "Stabilize the output or document the variability",
		Context:    map[string]any{"entropyScore": score, "entropyThreshold": threshold},
	}}
}

// CheckUnstableDefaults reports W301 for optional inputs whose omission
// yields unstable values.
func CheckUnstableDefaults(c UnstableDefaultsContext) []contract.Diagnostic {
	if len(c.UnstableFields) == 0 {
		return nil
	}
	names := make([]string, len(c.UnstableFields))
	for i, f := range c.UnstableFields {
		names[i] = f.FieldName
	}
	return []contract.Diagnostic{{
		Code:       "W301",
		Severity:   contract.SeverityWarning,
		Tool:       c.ToolName,
		Message:    fmt.Sprintf("Omitting optional inputs of tool %q yields unstable values: %s", c.ToolName, strings.Join(names, ", ")),
		Suggestion: "Declare explicit defaults for these fields",
		Context:    map[string]any{"unstableFields": c.UnstableFields},
	}}
}
