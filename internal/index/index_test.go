package index

import (
	"testing"

	"toolvet/internal/contract"
)

func sampleTools() []contract.ToolSpec {
	return []contract.ToolSpec{
		{
			Name:        "get_user",
			Description: "Fetch a user record",
			Inputs: []contract.FieldSpec{
				{Tool: "get_user", Name: "userId", Type: "string", Required: true},
			},
			Outputs: []contract.FieldSpec{
				{Tool: "get_user", Name: "email", Type: "string"},
			},
		},
		{
			Name:        "update_user",
			Description: "Update a user record",
			Inputs: []contract.FieldSpec{
				{Tool: "update_user", Name: "userId", Type: "string", Required: true},
				{Tool: "update_user", Name: "email", Type: "string"},
			},
		},
	}
}

func TestToolLookupCaseInsensitive(t *testing.T) {
	idx := Build(sampleTools())

	for _, name := range []string{"get_user", "GET_USER", "Get_User"} {
		tool, ok := idx.Tool(name)
		if !ok {
			t.Fatalf("Tool(%q) not found", name)
		}
		if tool.Name != "get_user" {
			t.Errorf("Tool(%q) = %s", name, tool.Name)
		}
	}

	if _, ok := idx.Tool("missing"); ok {
		t.Error("lookup of unknown tool succeeded")
	}
}

func TestFieldOccurrencesAccumulate(t *testing.T) {
	idx := Build(sampleTools())

	inputs := idx.InputFields("userid")
	if len(inputs) != 2 {
		t.Fatalf("InputFields(userid) = %d occurrences, want 2", len(inputs))
	}
	tools := map[string]bool{}
	for _, f := range inputs {
		tools[f.Tool] = true
	}
	if !tools["get_user"] || !tools["update_user"] {
		t.Errorf("occurrences from %v, want both tools", tools)
	}

	// email is an output of one tool and an input of the other.
	if got := idx.OutputFields("email"); len(got) != 1 || got[0].Tool != "get_user" {
		t.Errorf("OutputFields(email) = %v", got)
	}
	if got := idx.InputFields("email"); len(got) != 1 || got[0].Tool != "update_user" {
		t.Errorf("InputFields(email) = %v", got)
	}
}

func TestKeywordIndex(t *testing.T) {
	idx := Build(sampleTools())

	both := idx.ToolsForKeyword("user")
	if len(both) != 2 {
		t.Errorf("ToolsForKeyword(user) = %v, want both tools", both)
	}

	only := idx.ToolsForKeyword("fetch")
	if len(only) != 1 {
		t.Fatalf("ToolsForKeyword(fetch) = %v, want one tool", only)
	}
	if _, ok := only["get_user"]; !ok {
		t.Errorf("ToolsForKeyword(fetch) missing get_user: %v", only)
	}

	if got := idx.ToolsForKeyword("nonexistent"); len(got) != 0 {
		t.Errorf("unknown keyword returned %v", got)
	}
}

func TestToolCount(t *testing.T) {
	if got := Build(nil).ToolCount(); got != 0 {
		t.Errorf("empty index count = %d", got)
	}
	if got := Build(sampleTools()).ToolCount(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestIndexReturnsStablePointers(t *testing.T) {
	tools := sampleTools()
	idx := Build(tools)

	tool, _ := idx.Tool("get_user")
	tool.Description = "mutated"
	again, _ := idx.Tool("get_user")
	if again.Description != "mutated" {
		t.Error("index does not share the underlying tool values")
	}
}
