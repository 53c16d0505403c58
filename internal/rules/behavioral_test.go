package rules

import (
	"strings"
	"testing"

	"toolvet/internal/contract"
)

func single(t *testing.T, diags []contract.Diagnostic, code string, severity contract.Severity) contract.Diagnostic {
	t.Helper()
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %v, want exactly one", diags)
	}
	d := diags[0]
	if d.Code != code {
		t.Errorf("code = %s, want %s", d.Code, code)
	}
	if d.Severity != severity {
		t.Errorf("severity = %s, want %s", d.Severity, severity)
	}
	return d
}

func TestCheckToolNotFound(t *testing.T) {
	d := single(t, CheckToolNotFound(ToolNotFoundContext{
		ToolName:   "ghost",
		ScriptName: "smoke.yaml",
	}), "E000", contract.SeverityError)
	if d.Tool != "ghost" {
		t.Errorf("tool = %s", d.Tool)
	}
	if !strings.Contains(d.Message, "smoke.yaml") {
		t.Errorf("message should name the script: %s", d.Message)
	}
}

func TestCheckInputValidationPrefersParsedError(t *testing.T) {
	d := single(t, CheckInputValidation(InputValidationContext{
		ToolName:    "create_user",
		Error:       "code -32602",
		ParsedError: "email must be a string",
	}), "E200", contract.SeverityError)
	if !strings.Contains(d.Message, "email must be a string") {
		t.Errorf("message should prefer the parsed error: %s", d.Message)
	}
}

func TestCheckOutputExplosion(t *testing.T) {
	d := single(t, CheckOutputExplosion(OutputExplosionContext{
		ToolName:    "dump_logs",
		ActualSize:  5 << 20,
		MaxSize:     1 << 20,
		LimitString: "default",
	}), "E301", contract.SeverityError)
	if d.Context["actualSize"] != 5<<20 {
		t.Errorf("actualSize = %v", d.Context["actualSize"])
	}
}

func TestCheckUnboundedExecutionLimitLabel(t *testing.T) {
	d := single(t, CheckUnboundedExecution(UnboundedExecutionContext{
		ToolName:        "slow_tool",
		TimedOut:        true,
		ActualTimeoutMs: 30000,
	}), "E403", contract.SeverityError)
	if !strings.Contains(d.Message, "30000ms") {
		t.Errorf("message should fall back to the actual timeout: %s", d.Message)
	}

	d = single(t, CheckUnboundedExecution(UnboundedExecutionContext{
		ToolName:        "slow_tool",
		DeclaredTimeout: "5s",
	}), "E403", contract.SeverityError)
	if !strings.Contains(d.Message, "5s") {
		t.Errorf("message should use the declared timeout: %s", d.Message)
	}
}

func TestCheckSideEffects(t *testing.T) {
	if diags := CheckSideEffects(SideEffectContext{ToolName: "t"}); diags != nil {
		t.Errorf("no side effects should yield nil, got %v", diags)
	}

	d := single(t, CheckSideEffects(SideEffectContext{
		ToolName: "convert_file",
		SideEffects: []SideEffect{
			{Operation: "write", Path: "/tmp/scratch"},
			{Operation: "delete", Path: "/tmp/old"},
		},
	}), "E500", contract.SeverityError)
	if !strings.Contains(d.Message, "write /tmp/scratch") || !strings.Contains(d.Message, "delete /tmp/old") {
		t.Errorf("message should list the operations: %s", d.Message)
	}
}

func TestCheckHiddenDependencies(t *testing.T) {
	if diags := CheckHiddenDependencies(HiddenDependencyContext{ToolName: "t"}); diags != nil {
		t.Errorf("no hidden deps should yield nil, got %v", diags)
	}

	d := single(t, CheckHiddenDependencies(HiddenDependencyContext{
		ToolName: "get_report",
		HiddenDependencies: []HiddenDependency{
			{ToolName: "get_session", Timestamp: "2026-08-25T10:00:00Z"},
		},
		DeclaredDependencies: []string{"get_data"},
	}), "E501", contract.SeverityError)
	if !strings.Contains(d.Message, "get_session") {
		t.Errorf("message should name the hidden tool: %s", d.Message)
	}
}

func TestCheckUnexpectedResult(t *testing.T) {
	d := single(t, CheckUnexpectedResult(UnexpectedResultContext{
		ToolName:        "delete_user",
		TestName:        "rejects unknown id",
		ExpectedOutcome: "error",
		ActualOutcome:   "success",
	}), "E600", contract.SeverityError)
	if !strings.Contains(d.Message, "expected error but got success") {
		t.Errorf("message = %s", d.Message)
	}
}

func TestCheckWeakSchema(t *testing.T) {
	if diags := CheckWeakSchema(WeakSchemaContext{ToolName: "t", SchemasMatch: true}); diags != nil {
		t.Errorf("matching schemas should yield nil, got %v", diags)
	}
	single(t, CheckWeakSchema(WeakSchemaContext{
		ToolName:        "get_user",
		MismatchDetails: "response carries 4 undeclared fields",
	}), "W110", contract.SeverityWarning)
}

func TestCheckEntropy(t *testing.T) {
	// Below the default threshold: silent.
	if diags := CheckEntropy(EntropyContext{ToolName: "t", EntropyScore: 0.5}); diags != nil {
		t.Errorf("score below default threshold should yield nil, got %v", diags)
	}
	// Exactly at the threshold: silent.
	if diags := CheckEntropy(EntropyContext{ToolName: "t", EntropyScore: 0.7}); diags != nil {
		t.Errorf("score at threshold should yield nil, got %v", diags)
	}

	d := single(t, CheckEntropy(EntropyContext{
		ToolName:     "get_quote",
		EntropyScore: 0.9,
		Reason:       "text differs on every call",
	}), "W300", contract.SeverityWarning)
	if d.Context["entropyThreshold"] != 0.7 {
		t.Errorf("threshold default = %v, want 0.7", d.Context["entropyThreshold"])
	}

	// Out-of-range scores are clamped.
	d = single(t, CheckEntropy(EntropyContext{
		ToolName:     "get_quote",
		EntropyScore: 3.2,
	}), "W300", contract.SeverityWarning)
	if d.Context["entropyScore"] != 1.0 {
		t.Errorf("score = %v, want clamped to 1", d.Context["entropyScore"])
	}
	if diags := CheckEntropy(EntropyContext{ToolName: "t", EntropyScore: -2}); diags != nil {
		t.Errorf("negative score clamps to 0 and stays silent, got %v", diags)
	}

	// A custom threshold moves the cut.
	if diags := CheckEntropy(EntropyContext{ToolName: "t", EntropyScore: 0.8, EntropyThreshold: 0.9}); diags != nil {
		t.Errorf("score below the custom threshold should yield nil, got %v", diags)
	}
}

func TestCheckUnstableDefaults(t *testing.T) {
	if diags := CheckUnstableDefaults(UnstableDefaultsContext{ToolName: "t"}); diags != nil {
		t.Errorf("no unstable fields should yield nil, got %v", diags)
	}

	d := single(t, CheckUnstableDefaults(UnstableDefaultsContext{
		ToolName: "search",
		UnstableFields: []UnstableField{
			{FieldName: "limit", Reason: "varies between 10 and 50"},
		},
	}), "W301", contract.SeverityWarning)
	if !strings.Contains(d.Message, "limit") {
		t.Errorf("message should name the field: %s", d.Message)
	}
}
