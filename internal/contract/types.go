// Package contract defines the data model shared by the toolvet analysis
// pipeline: raw tool metadata as delivered by an MCP server, the normalized
// tool/field model, inferred dependencies, diagnostics, and the final
// analysis result. Everything here is a plain value type; nothing is
// mutated after construction.
package contract

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// RAW TOOL (loader output)
// =============================================================================

// RawTool is a single tool as listed by an MCP server, before normalization.
// InputSchema and OutputSchema are opaque JSON Schema fragments.
type RawTool struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// =============================================================================
// NORMALIZED FIELD MODEL
// =============================================================================

// FieldDirection distinguishes input fields from output fields.
type FieldDirection string

const (
	DirectionInput  FieldDirection = "input"
	DirectionOutput FieldDirection = "output"
)

// FieldSpec is a flattened schema field produced by the normalizer.
// Type is one of the JSON Schema primitives, the sentinel "any", or a
// "|"-joined union with "null" stripped (null-ness is carried by Nullable).
type FieldSpec struct {
	Tool        string      `json:"tool"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	Pattern     string      `json:"pattern,omitempty"`
	Format      string      `json:"format,omitempty"`
	Example     any         `json:"example,omitempty"`
	Nullable    bool        `json:"nullable,omitempty"`
	Properties  []FieldSpec `json:"properties,omitempty"`
}

// HasConstraint reports whether the field carries any machine-checkable
// constraint beyond its type: enum, pattern, format, or example.
func (f *FieldSpec) HasConstraint() bool {
	return len(f.Enum) > 0 || f.Pattern != "" || f.Format != "" || f.Example != nil
}

// IsBroadType reports whether the declared type accepts essentially
// arbitrary values.
func (f *FieldSpec) IsBroadType() bool {
	switch f.Type {
	case "string", "any", "object":
		return true
	}
	return false
}

// Depth returns the nesting depth of the field: 1 for a leaf, 1 plus the
// deepest nested property otherwise.
func (f *FieldSpec) Depth() int {
	max := 0
	for i := range f.Properties {
		if d := f.Properties[i].Depth(); d > max {
			max = d
		}
	}
	return 1 + max
}

// =============================================================================
// NORMALIZED TOOL
// =============================================================================

// ToolSpec is a normalized tool: flattened inputs and outputs, description
// tokens, and optional precomputed embeddings. Embedding maps are keyed by
// field name, one map per direction.
type ToolSpec struct {
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	Inputs            []FieldSpec `json:"inputs"`
	Outputs           []FieldSpec `json:"outputs"`
	DescriptionTokens []string    `json:"description_tokens,omitempty"`

	DescEmbedding    []float32            `json:"-"`
	InputEmbeddings  map[string][]float32 `json:"-"`
	OutputEmbeddings map[string][]float32 `json:"-"`
}

// Input returns the input field with the given name, or nil.
func (t *ToolSpec) Input(name string) *FieldSpec {
	for i := range t.Inputs {
		if t.Inputs[i].Name == name {
			return &t.Inputs[i]
		}
	}
	return nil
}

// Output returns the output field with the given name, or nil.
func (t *ToolSpec) Output(name string) *FieldSpec {
	for i := range t.Outputs {
		if t.Outputs[i].Name == name {
			return &t.Outputs[i]
		}
	}
	return nil
}

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Dependency is an inferred probable data flow: an output field of one tool
// feeding an input field of another, with a confidence in [0,1].
type Dependency struct {
	FromTool   string  `json:"from_tool"`
	FromField  string  `json:"from_field"`
	ToTool     string  `json:"to_tool"`
	ToField    string  `json:"to_field"`
	Confidence float64 `json:"confidence"`
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// Severity classifies a diagnostic as an error or a warning.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a single machine-readable finding about a tool or a
// relationship between tools. Context carries rule-specific structured data.
type Diagnostic struct {
	Code       string         `json:"code"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Tool       string         `json:"tool,omitempty"`
	Field      string         `json:"field,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// =============================================================================
// VERDICT AND RESULT
// =============================================================================

// Verdict is the single-word summary of an analysis.
type Verdict string

const (
	VerdictPass             Verdict = "pass"
	VerdictPassWithWarnings Verdict = "pass-with-warnings"
	VerdictFail             Verdict = "fail"
)

// AnalysisResult is the structured output of one analysis run.
type AnalysisResult struct {
	Verdict      Verdict      `json:"verdict"`
	Diagnostics  []Diagnostic `json:"diagnostics"`
	Errors       []Diagnostic `json:"errors"`
	Warnings     []Diagnostic `json:"warnings"`
	Dependencies []Dependency `json:"dependencies"`
	ToolCount    int          `json:"tool_count"`
}

// =============================================================================
// TOKENIZATION HELPERS
// =============================================================================

// Tokenize lowercases s, splits on non-alphanumeric characters, and keeps
// tokens of length >= 3. This is the shared tokenization for description
// tokens, keyword indexing, and name similarity.
func Tokenize(s string) []string {
	return tokenizeMin(s, 3)
}

// TokenizeShort behaves like Tokenize but keeps tokens of length > 2 only
// after splitting, matching the name-similarity contract.
func TokenizeShort(s string) []string {
	return tokenizeMin(s, 3)
}

func tokenizeMin(s string, min int) []string {
	s = strings.ToLower(s)
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() >= min {
			tokens = append(tokens, b.String())
		}
		b.Reset()
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// TokenSet returns the tokens of s as a set.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard computes the Jaccard similarity of two token slices. Empty inputs
// yield 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// SplitIdentifier splits a camelCase, snake_case, or kebab-case identifier
// into lowercase word tokens. Used for matching tool names against prose.
func SplitIdentifier(name string) []string {
	var words []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			words = append(words, strings.ToLower(b.String()))
		}
		b.Reset()
	}
	var prev rune
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
		case r >= 'A' && r <= 'Z' && prev >= 'a' && prev <= 'z':
			flush()
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	flush()
	return words
}
