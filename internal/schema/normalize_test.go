package schema

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"toolvet/internal/contract"
)

func normalize(t *testing.T, name, desc, inputSchema, outputSchema string) contract.ToolSpec {
	t.Helper()
	raw := contract.RawTool{Name: name, Description: desc}
	if inputSchema != "" {
		raw.InputSchema = json.RawMessage(inputSchema)
	}
	if outputSchema != "" {
		raw.OutputSchema = json.RawMessage(outputSchema)
	}

	spec, err := NewNormalizer(nil).NormalizeTool(context.Background(), raw)
	if err != nil {
		t.Fatalf("NormalizeTool: %v", err)
	}
	return spec
}

func TestNormalizeBasicObject(t *testing.T) {
	spec := normalize(t, "get_user", "Fetch a user by id", `{
		"type": "object",
		"properties": {
			"userId": {"type": "string", "description": "The user id", "pattern": "^u_"},
			"verbose": {"type": "boolean"}
		},
		"required": ["userId"]
	}`, "")

	want := []contract.FieldSpec{
		{Tool: "get_user", Name: "userId", Type: "string", Required: true, Description: "The user id", Pattern: "^u_"},
		{Tool: "get_user", Name: "verbose", Type: "boolean"},
	}
	if diff := cmp.Diff(want, spec.Inputs); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}
	if len(spec.Outputs) != 0 {
		t.Errorf("expected no outputs, got %v", spec.Outputs)
	}
}

func TestNormalizeMissingSchemas(t *testing.T) {
	spec := normalize(t, "noop", "Does nothing", "", "")
	if len(spec.Inputs) != 0 || len(spec.Outputs) != 0 {
		t.Errorf("missing schemas should yield empty field lists, got %v / %v", spec.Inputs, spec.Outputs)
	}
}

func TestNormalizeUnparseableSchema(t *testing.T) {
	spec := normalize(t, "broken", "Broken schema", `{not json`, "")
	if len(spec.Inputs) != 0 {
		t.Errorf("unparseable schema should degrade to empty, got %v", spec.Inputs)
	}
}

func TestNormalizeNullableUnion(t *testing.T) {
	spec := normalize(t, "t", "d", `{
		"type": "object",
		"properties": {
			"maybe": {"type": ["string", "null"]},
			"multi": {"type": ["string", "integer"]},
			"mustNull": {"type": ["null"]},
			"untyped": {}
		}
	}`, "")

	byName := map[string]contract.FieldSpec{}
	for _, f := range spec.Inputs {
		byName[f.Name] = f
	}

	if f := byName["maybe"]; f.Type != "string" || !f.Nullable {
		t.Errorf("maybe = %+v, want nullable string", f)
	}
	if f := byName["multi"]; f.Type != "string|integer" || f.Nullable {
		t.Errorf("multi = %+v, want string|integer not nullable", f)
	}
	// A sole null type means must-be-null, not nullable.
	if f := byName["mustNull"]; f.Type != "null" || f.Nullable {
		t.Errorf("mustNull = %+v, want type null not nullable", f)
	}
	if f := byName["untyped"]; f.Type != "any" {
		t.Errorf("untyped = %+v, want type any", f)
	}
}

func TestNormalizeNestedAndArray(t *testing.T) {
	spec := normalize(t, "t", "d", "", `{
		"type": "object",
		"properties": {
			"profile": {
				"type": "object",
				"properties": {"email": {"type": "string", "format": "email"}},
				"required": ["email"]
			},
			"tags": {
				"type": "array",
				"items": {"type": "object", "properties": {"label": {"type": "string"}}}
			}
		}
	}`)

	byName := map[string]contract.FieldSpec{}
	for _, f := range spec.Outputs {
		byName[f.Name] = f
	}

	profile := byName["profile"]
	if profile.Type != "object" || len(profile.Properties) != 1 {
		t.Fatalf("profile = %+v, want object with one property", profile)
	}
	if profile.Properties[0].Name != "email" || !profile.Properties[0].Required || profile.Properties[0].Format != "email" {
		t.Errorf("profile.email = %+v", profile.Properties[0])
	}

	tags := byName["tags"]
	if tags.Type != "array" || len(tags.Properties) != 1 || tags.Properties[0].Name != "label" {
		t.Errorf("tags = %+v, want array with label item property", tags)
	}
}

func TestNormalizeCombinators(t *testing.T) {
	spec := normalize(t, "t", "d", `{
		"oneOf": [
			{"type": "object", "properties": {"a": {"type": "string"}}},
			{"type": "object", "properties": {"b": {"type": "integer"}}}
		]
	}`, "")

	if len(spec.Inputs) != 2 {
		t.Fatalf("expected union of branch fields, got %v", spec.Inputs)
	}
	if spec.Inputs[0].Name != "a" || spec.Inputs[1].Name != "b" {
		t.Errorf("branch fields = %v", spec.Inputs)
	}
}

func TestNormalizeRef(t *testing.T) {
	spec := normalize(t, "t", "d", `{
		"type": "object",
		"properties": {
			"user": {"$ref": "#/definitions/User"}
		},
		"definitions": {
			"User": {"type": "object", "properties": {"name": {"type": "string"}}}
		}
	}`, "")

	if len(spec.Inputs) != 1 {
		t.Fatalf("inputs = %v", spec.Inputs)
	}
	user := spec.Inputs[0]
	if user.Type != "object" || len(user.Properties) != 1 || user.Properties[0].Name != "name" {
		t.Errorf("dereferenced field = %+v", user)
	}
}

func TestNormalizeBrokenRefSwallowed(t *testing.T) {
	spec := normalize(t, "t", "d", `{
		"type": "object",
		"properties": {
			"x": {"$ref": "#/definitions/Missing"}
		}
	}`, "")

	if len(spec.Inputs) != 1 {
		t.Fatalf("inputs = %v", spec.Inputs)
	}
	// Unresolvable refs degrade to the original node, which has no type.
	if spec.Inputs[0].Type != "any" {
		t.Errorf("broken ref field = %+v, want type any", spec.Inputs[0])
	}
}

func TestNormalizeScalarTopLevel(t *testing.T) {
	spec := normalize(t, "t", "d", `{"type": "string", "enum": ["on", "off"]}`, `{"type": "integer"}`)

	if len(spec.Inputs) != 1 || spec.Inputs[0].Name != "input" || !spec.Inputs[0].Required {
		t.Fatalf("scalar input pseudo-field = %v", spec.Inputs)
	}
	if got := spec.Inputs[0].Enum; len(got) != 2 || got[0] != "on" {
		t.Errorf("enum = %v", got)
	}
	if len(spec.Outputs) != 1 || spec.Outputs[0].Name != "output" || spec.Outputs[0].Type != "integer" {
		t.Fatalf("scalar output pseudo-field = %v", spec.Outputs)
	}
}

func TestNormalizeEnumStringification(t *testing.T) {
	spec := normalize(t, "t", "d", `{
		"type": "object",
		"properties": {
			"level": {"type": "integer", "enum": [1, 2, 3]},
			"ratio": {"type": "number", "enum": [0.5]}
		}
	}`, "")

	byName := map[string][]string{}
	for _, f := range spec.Inputs {
		byName[f.Name] = f.Enum
	}
	if got := byName["level"]; len(got) != 3 || got[0] != "1" || got[2] != "3" {
		t.Errorf("integer enum = %v", got)
	}
	if got := byName["ratio"]; len(got) != 1 || got[0] != "0.5" {
		t.Errorf("number enum = %v", got)
	}
}

func TestNormalizeDeterministicOrder(t *testing.T) {
	schema := `{
		"type": "object",
		"properties": {
			"zeta": {"type": "string"},
			"alpha": {"type": "string"},
			"mid": {"type": "string"}
		}
	}`

	first := normalize(t, "t", "d", schema, "")
	for i := 0; i < 10; i++ {
		again := normalize(t, "t", "d", schema, "")
		if diff := cmp.Diff(first.Inputs, again.Inputs); diff != "" {
			t.Fatalf("normalization not deterministic (-first +again):\n%s", diff)
		}
	}
	if first.Inputs[0].Name != "alpha" || first.Inputs[2].Name != "zeta" {
		t.Errorf("properties not sorted: %v", first.Inputs)
	}
}

func TestNormalizeExample(t *testing.T) {
	spec := normalize(t, "t", "d", `{
		"type": "object",
		"properties": {
			"a": {"type": "string", "examples": ["first", "second"]},
			"b": {"type": "string", "example": "single"}
		}
	}`, "")

	byName := map[string]any{}
	for _, f := range spec.Inputs {
		byName[f.Name] = f.Example
	}
	if byName["a"] != "first" {
		t.Errorf("examples[0] = %v, want first", byName["a"])
	}
	if byName["b"] != "single" {
		t.Errorf("example = %v, want single", byName["b"])
	}
}
