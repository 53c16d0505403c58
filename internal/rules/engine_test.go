package rules

import (
	"testing"

	"toolvet/internal/contract"
)

func stubRule(code string, check func(*Context) []contract.Diagnostic) Rule {
	return Rule{
		Code:        code,
		Severity:    contract.SeverityWarning,
		Name:        code,
		Description: code,
		Check:       check,
	}
}

func emit(code string) func(*Context) []contract.Diagnostic {
	return func(*Context) []contract.Diagnostic {
		return []contract.Diagnostic{{Code: code, Severity: contract.SeverityWarning, Message: code}}
	}
}

func TestEngineRunsInRegistrationOrder(t *testing.T) {
	engine := NewEngine()
	engine.Register(stubRule("T2", emit("T2")))
	engine.Register(stubRule("T1", emit("T1")))

	diags := engine.Run(mkCtx(nil, nil), nil)
	if len(diags) != 2 {
		t.Fatalf("diagnostics = %v, want 2", diags)
	}
	if diags[0].Code != "T2" || diags[1].Code != "T1" {
		t.Errorf("order = [%s %s], want registration order [T2 T1]", diags[0].Code, diags[1].Code)
	}
}

func TestEngineAllowList(t *testing.T) {
	engine := NewEngine()
	engine.Register(stubRule("T1", emit("T1")))
	engine.Register(stubRule("T2", emit("T2")))
	engine.Register(stubRule("T3", emit("T3")))

	diags := engine.Run(mkCtx(nil, nil), []string{"T2"})
	if len(diags) != 1 || diags[0].Code != "T2" {
		t.Errorf("allow-listed run = %v, want only T2", diags)
	}
}

func TestEngineDenyList(t *testing.T) {
	engine := NewEngine()
	engine.Register(stubRule("T1", emit("T1")))
	engine.Register(stubRule("T2", emit("T2")))

	diags := engine.Run(mkCtx(nil, nil), []string{"-T1"})
	if len(diags) != 1 || diags[0].Code != "T2" {
		t.Errorf("deny-listed run = %v, want only T2", diags)
	}
}

func TestEngineAllowListWinsOverDeny(t *testing.T) {
	engine := NewEngine()
	engine.Register(stubRule("T1", emit("T1")))
	engine.Register(stubRule("T2", emit("T2")))
	engine.Register(stubRule("T3", emit("T3")))

	// Mixed selectors: the allow-list governs, the deny entry is moot.
	diags := engine.Run(mkCtx(nil, nil), []string{"T1", "-T2", "T3"})
	if len(diags) != 2 || diags[0].Code != "T1" || diags[1].Code != "T3" {
		t.Errorf("mixed selectors = %v, want [T1 T3]", diags)
	}
}

func TestEngineBlankSelectorsIgnored(t *testing.T) {
	engine := NewEngine()
	engine.Register(stubRule("T1", emit("T1")))

	diags := engine.Run(mkCtx(nil, nil), []string{" ", ""})
	if len(diags) != 1 {
		t.Errorf("blank selectors should select everything, got %v", diags)
	}
}

func TestEnginePanicIsolation(t *testing.T) {
	engine := NewEngine()
	engine.Register(stubRule("T1", emit("T1")))
	engine.Register(stubRule("BOOM", func(*Context) []contract.Diagnostic {
		panic("rule bug")
	}))
	engine.Register(stubRule("T2", emit("T2")))

	diags := engine.Run(mkCtx(nil, nil), nil)
	if len(diags) != 2 || diags[0].Code != "T1" || diags[1].Code != "T2" {
		t.Errorf("panicking rule should be isolated, got %v", diags)
	}
}

func TestEngineSkipsBehavioralRules(t *testing.T) {
	engine := NewEngine()
	engine.Register(behavioralRule("B1", contract.SeverityError, "b", "b"))
	engine.Register(stubRule("T1", emit("T1")))

	diags := engine.Run(mkCtx(nil, nil), nil)
	if len(diags) != 1 || diags[0].Code != "T1" {
		t.Errorf("nil-check rules must not run, got %v", diags)
	}
}

func TestDefaultEngineCatalog(t *testing.T) {
	engine := DefaultEngine()

	byCode := make(map[string]Rule)
	for _, rule := range engine.Rules() {
		if _, dup := byCode[rule.Code]; dup {
			t.Errorf("duplicate rule code %s", rule.Code)
		}
		byCode[rule.Code] = rule
	}

	static := []string{
		"E100", "E101", "E102", "E103", "E104", "E105", "E106", "E107",
		"E108", "E109", "E110", "E112", "E113",
		"W100", "W101", "W102", "W103", "W104", "W105", "W106", "W107",
		"W108", "W109", "W111", "W112", "W113", "W114", "W115", "W116", "W117",
	}
	for _, code := range static {
		rule, ok := byCode[code]
		if !ok {
			t.Errorf("catalog missing rule %s", code)
			continue
		}
		if rule.Check == nil {
			t.Errorf("rule %s has no check", code)
		}
	}

	behavioral := []string{
		"E000", "E200", "E300", "E301", "E400", "E403", "E500", "E501",
		"E600", "W110", "W300", "W301",
	}
	for _, code := range behavioral {
		rule, ok := byCode[code]
		if !ok {
			t.Errorf("catalog missing behavioral code %s", code)
			continue
		}
		if rule.Check != nil {
			t.Errorf("behavioral code %s should not have a static check", code)
		}
	}
}

func TestDefaultEngineEmptyContext(t *testing.T) {
	diags := DefaultEngine().Run(mkCtx(nil, nil), nil)
	if len(diags) != 0 {
		t.Errorf("empty context produced diagnostics: %v", diags)
	}
}
