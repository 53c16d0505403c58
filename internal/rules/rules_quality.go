package rules

import (
	"fmt"
	"sort"
	"strings"

	"toolvet/internal/contract"
	"toolvet/internal/embedding"
)

// Description-quality bounds and the token-cost estimate parameters.
const (
	minDescriptionLen = 20
	maxDescriptionLen = 500
	maxToolCount      = 20
	maxSchemaDepth    = 3
	maxTokenEstimate  = 1000
	tokensPerField    = 20
)

var actionVerbs = []string{
	"get", "fetch", "list", "read", "retrieve", "search", "query", "find",
	"lookup", "show", "create", "update", "delete", "set", "write", "insert",
	"remove", "modify", "add", "send", "post", "upload", "download",
	"convert", "validate", "parse", "generate", "calculate", "compute",
	"handle", "manage", "process", "perform", "execute",
}

var vagueVerbs = []string{
	"handle", "manage", "process", "perform", "execute", "do", "deal", "work",
}

var defaultConcreteNouns = []string{
	"file", "user", "email", "record", "order", "message", "database",
	"document", "image", "payment", "product", "account", "event", "task",
	"report", "customer", "invoice", "ticket", "contact", "calendar",
}

var mutationVerbs = []string{
	"create", "update", "delete", "set", "write", "insert", "remove",
	"modify", "add", "send", "post", "upload",
}

var stateChangeTokens = []string{
	"success", "id", "status", "result", "created", "updated", "deleted",
	"count", "ok", "error", "affected",
}

var userInputTokens = []string{
	"query", "message", "input", "text", "search", "question", "prompt", "user",
}

var displayOnlyTokens = []string{
	"message", "text", "display", "formatted", "html", "markdown",
	"pretty", "rendered", "summary", "output",
}

// domainConcepts maps an entry-point concept to the field-name tokens that
// resolve to it.
var domainConcepts = []struct {
	name   string
	tokens []string
}{
	{"location", []string{"location", "address", "city", "latitude", "longitude", "lat", "lng", "place", "zip", "postal"}},
	{"user", []string{"user", "username", "account", "userid"}},
	{"email", []string{"email", "mail"}},
	{"phone", []string{"phone", "mobile", "tel"}},
	{"name", []string{"name", "firstname", "lastname", "fullname"}},
	{"id", []string{"id", "identifier", "uuid", "key"}},
}

func ruleE110() Rule {
	return Rule{
		Code:        "E110",
		Severity:    contract.SeverityError,
		Name:        "Hard Tool Ambiguity",
		Description: "Two tools whose descriptions and schemas overlap enough to confuse routing.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				for j := i + 1; j < len(ctx.Tools); j++ {
					a, b := &ctx.Tools[i], &ctx.Tools[j]
					descSim := contract.Jaccard(a.DescriptionTokens, b.DescriptionTokens)
					if descSim <= 0.6 {
						continue
					}
					overlap := (fieldNameOverlap(a.Inputs, b.Inputs) + fieldNameOverlap(a.Outputs, b.Outputs)) / 2
					if overlap <= 0.5 {
						continue
					}
					diags = append(diags, contract.Diagnostic{
						Code:     "E110",
						Severity: contract.SeverityError,
						Tool:     a.Name,
						Message: fmt.Sprintf("Tools %q and %q are nearly indistinguishable (description similarity %.2f, schema overlap %.2f)",
							a.Name, b.Name, descSim, overlap),
						Suggestion: "Merge the tools or sharpen the descriptions to state when each applies",
						Context:    map[string]any{"other": b.Name, "descSimilarity": descSim, "schemaOverlap": overlap},
					})
				}
			}
			return diags
		},
	}
}

// fieldNameOverlap is the Jaccard similarity of the lowercased field-name
// sets. Two empty sets count as identical.
func fieldNameOverlap(a, b []contract.FieldSpec) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	names := func(fields []contract.FieldSpec) []string {
		out := make([]string, 0, len(fields))
		for i := range fields {
			out = append(out, strings.ToLower(fields[i].Name))
		}
		return out
	}
	return contract.Jaccard(names(a), names(b))
}

func ruleW101() Rule {
	return Rule{
		Code:        "W101",
		Severity:    contract.SeverityWarning,
		Name:        "Free-Text Output Without Normalization",
		Description: "String output with no enum, pattern, or description.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				for j := range tool.Outputs {
					field := &tool.Outputs[j]
					if field.Type != "string" || len(field.Enum) > 0 ||
						field.Pattern != "" || strings.TrimSpace(field.Description) != "" {
						continue
					}
					diags = append(diags, contract.Diagnostic{
						Code:       "W101",
						Severity:   contract.SeverityWarning,
						Tool:       tool.Name,
						Field:      field.Name,
						Message:    fmt.Sprintf("Output %q of tool %q is an undocumented free-text string", field.Name, tool.Name),
						Suggestion: "Describe or constrain the output so downstream tools can rely on its shape",
					})
				}
			}
			return diags
		},
	}
}

func ruleW102() Rule {
	return Rule{
		Code:        "W102",
		Severity:    contract.SeverityWarning,
		Name:        "Missing Examples",
		Description: "User-facing input without an example value.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				for j := range tool.Inputs {
					field := &tool.Inputs[j]
					if field.Example != nil {
						continue
					}
					if !textContainsAnyToken(field.Name+" "+field.Description, userInputTokens) {
						continue
					}
					diags = append(diags, contract.Diagnostic{
						Code:       "W102",
						Severity:   contract.SeverityWarning,
						Tool:       tool.Name,
						Field:      field.Name,
						Message:    fmt.Sprintf("User-facing input %q of tool %q has no example", field.Name, tool.Name),
						Suggestion: "Add an example so the model can imitate the expected shape",
					})
				}
			}
			return diags
		},
	}
}

func ruleW103() Rule {
	return Rule{
		Code:        "W103",
		Severity:    contract.SeverityWarning,
		Name:        "Overloaded Responsibility",
		Description: "Description suggests the tool does several unrelated things.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				descLower := strings.ToLower(tool.Description)
				verbs := 0
				for _, verb := range actionVerbs {
					if containsWord(descLower, verb) {
						verbs++
					}
				}
				splits := strings.Count(descLower, " and ") + strings.Count(descLower, " or ") + strings.Count(descLower, ",")
				if verbs <= 3 && splits <= 2 {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:       "W103",
					Severity:   contract.SeverityWarning,
					Tool:       tool.Name,
					Message:    fmt.Sprintf("Tool %q appears to do several things (%d verbs, %d clause splits)", tool.Name, verbs, splits),
					Suggestion: "Split the tool so each one has a single responsibility",
				})
			}
			return diags
		},
	}
}

func ruleW104() Rule {
	return Rule{
		Code:        "W104",
		Severity:    contract.SeverityWarning,
		Name:        "Generic Description",
		Description: "Vague verb with no concrete noun to anchor it.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			nouns := ctx.nounList()
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				descLower := strings.ToLower(tool.Description)
				if descLower == "" {
					continue
				}
				vague := false
				for _, verb := range vagueVerbs {
					if containsWord(descLower, verb) {
						vague = true
						break
					}
				}
				if !vague {
					continue
				}
				concrete := false
				for _, noun := range nouns {
					if containsWord(descLower, strings.ToLower(noun)) {
						concrete = true
						break
					}
				}
				if concrete {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:       "W104",
					Severity:   contract.SeverityWarning,
					Tool:       tool.Name,
					Message:    fmt.Sprintf("Description of tool %q is generic; it says what it does but not to what", tool.Name),
					Suggestion: "Name the concrete object the tool operates on",
				})
			}
			return diags
		},
	}
}

func ruleW106() Rule {
	return Rule{
		Code:        "W106",
		Severity:    contract.SeverityWarning,
		Name:        "Broad Output Schema",
		Description: "Output typed as any, or an object with no declared properties.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				for j := range tool.Outputs {
					field := &tool.Outputs[j]
					broad := field.Type == "any" || (field.Type == "object" && len(field.Properties) == 0)
					if !broad {
						continue
					}
					diags = append(diags, contract.Diagnostic{
						Code:       "W106",
						Severity:   contract.SeverityWarning,
						Tool:       tool.Name,
						Field:      field.Name,
						Message:    fmt.Sprintf("Output %q of tool %q has no usable shape (%s)", field.Name, tool.Name, field.Type),
						Suggestion: "Declare the output's properties so consumers can bind to them",
					})
				}
			}
			return diags
		},
	}
}

func ruleW107() Rule {
	return Rule{
		Code:        "W107",
		Severity:    contract.SeverityWarning,
		Name:        "Multiple Entry Points",
		Description: "Several tools keyed on the same domain concept.",
		Check: func(ctx *Context) []contract.Diagnostic {
			byConcept := make(map[string][]string)
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				seen := make(map[string]bool)
				for j := range tool.Inputs {
					field := &tool.Inputs[j]
					if !field.Required {
						continue
					}
					concept, ok := resolveConcept(field.Name)
					if !ok || seen[concept] {
						continue
					}
					seen[concept] = true
					byConcept[concept] = append(byConcept[concept], tool.Name)
				}
			}

			concepts := make([]string, 0, len(byConcept))
			for concept, tools := range byConcept {
				if len(tools) > 1 {
					concepts = append(concepts, concept)
				}
			}
			sort.Strings(concepts)

			var diags []contract.Diagnostic
			for _, concept := range concepts {
				tools := byConcept[concept]
				diags = append(diags, contract.Diagnostic{
					Code:     "W107",
					Severity: contract.SeverityWarning,
					Tool:     tools[0],
					Message: fmt.Sprintf("Multiple tools take a required %s: %s",
						concept, strings.Join(tools, ", ")),
					Suggestion: "Clarify in each description which tool is the entry point for this concept",
					Context:    map[string]any{"concept": concept, "tools": tools},
				})
			}
			return diags
		},
	}
}

// resolveConcept maps a field name to a domain concept through its tokens.
func resolveConcept(fieldName string) (string, bool) {
	tokens := contract.SplitIdentifier(fieldName)
	tokens = append(tokens, strings.ToLower(fieldName))
	for _, dc := range domainConcepts {
		for _, tok := range tokens {
			for _, want := range dc.tokens {
				if tok == want {
					return dc.name, true
				}
			}
		}
	}
	return "", false
}

func ruleW108() Rule {
	return Rule{
		Code:        "W108",
		Severity:    contract.SeverityWarning,
		Name:        "Hidden Side Effects",
		Description: "Mutation verb with outputs that never acknowledge the state change.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				if len(tool.Outputs) == 0 {
					continue
				}
				if !textContainsAnyToken(tool.Name+" "+tool.Description, mutationVerbs) {
					continue
				}
				indicated := false
				for j := range tool.Outputs {
					if textContainsAnyToken(tool.Outputs[j].Name, stateChangeTokens) {
						indicated = true
						break
					}
				}
				if indicated {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:       "W108",
					Severity:   contract.SeverityWarning,
					Tool:       tool.Name,
					Message:    fmt.Sprintf("Tool %q mutates state but no output confirms what changed", tool.Name),
					Suggestion: "Return an id, status, or success flag so callers can verify the effect",
				})
			}
			return diags
		},
	}
}

func ruleW109() Rule {
	return Rule{
		Code:        "W109",
		Severity:    contract.SeverityWarning,
		Name:        "Output Not Reusable",
		Description: "Every output is display-oriented text.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				if len(tool.Outputs) == 0 {
					continue
				}
				displayOnly := true
				for j := range tool.Outputs {
					field := &tool.Outputs[j]
					if field.Type != "string" ||
						!textContainsAnyToken(field.Name+" "+field.Description, displayOnlyTokens) {
						displayOnly = false
						break
					}
				}
				if !displayOnly {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:       "W109",
					Severity:   contract.SeverityWarning,
					Tool:       tool.Name,
					Message:    fmt.Sprintf("Every output of tool %q is display text; nothing downstream can bind to it", tool.Name),
					Suggestion: "Add structured fields alongside the rendered text",
				})
			}
			return diags
		},
	}
}

func ruleW111() Rule {
	return Rule{
		Code:        "W111",
		Severity:    contract.SeverityWarning,
		Name:        "Description Quality",
		Description: "Description too short or too long to be useful.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				n := len(strings.TrimSpace(tool.Description))
				if n == 0 || (n >= minDescriptionLen && n <= maxDescriptionLen) {
					// Emptiness is E101's finding.
					continue
				}
				problem := "too short to be informative"
				if n > maxDescriptionLen {
					problem = "long enough to dilute the model's attention"
				}
				diags = append(diags, contract.Diagnostic{
					Code:       "W111",
					Severity:   contract.SeverityWarning,
					Tool:       tool.Name,
					Message:    fmt.Sprintf("Description of tool %q is %d characters, %s", tool.Name, n, problem),
					Suggestion: fmt.Sprintf("Aim for %d-%d characters", minDescriptionLen, maxDescriptionLen),
				})
			}
			return diags
		},
	}
}

func ruleW112() Rule {
	return Rule{
		Code:        "W112",
		Severity:    contract.SeverityWarning,
		Name:        "Tool Count",
		Description: "More tools than a model can reliably route between.",
		Check: func(ctx *Context) []contract.Diagnostic {
			if len(ctx.Tools) <= maxToolCount {
				return nil
			}
			return []contract.Diagnostic{{
				Code:       "W112",
				Severity:   contract.SeverityWarning,
				Message:    fmt.Sprintf("Server exposes %d tools; selection accuracy degrades past %d", len(ctx.Tools), maxToolCount),
				Suggestion: "Split the server or consolidate overlapping tools",
			}}
		},
	}
}

func ruleW113() Rule {
	return Rule{
		Code:        "W113",
		Severity:    contract.SeverityWarning,
		Name:        "Optional Parameter Missing Example",
		Description: "Optional input with neither example nor enum.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				for j := range tool.Inputs {
					field := &tool.Inputs[j]
					if field.Required || field.Example != nil || len(field.Enum) > 0 {
						continue
					}
					diags = append(diags, contract.Diagnostic{
						Code:       "W113",
						Severity:   contract.SeverityWarning,
						Tool:       tool.Name,
						Field:      field.Name,
						Message:    fmt.Sprintf("Optional input %q of tool %q has no example or enum", field.Name, tool.Name),
						Suggestion: "Show a valid value so the model knows when and how to use it",
					})
				}
			}
			return diags
		},
	}
}

func ruleW114() Rule {
	return Rule{
		Code:        "W114",
		Severity:    contract.SeverityWarning,
		Name:        "Schema Depth",
		Description: "Nested object depth beyond what models fill reliably.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				depth := 0
				for j := range tool.Inputs {
					if d := tool.Inputs[j].Depth(); d > depth {
						depth = d
					}
				}
				for j := range tool.Outputs {
					if d := tool.Outputs[j].Depth(); d > depth {
						depth = d
					}
				}
				if depth <= maxSchemaDepth {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:       "W114",
					Severity:   contract.SeverityWarning,
					Tool:       tool.Name,
					Message:    fmt.Sprintf("Schema of tool %q nests %d levels deep", tool.Name, depth),
					Suggestion: fmt.Sprintf("Flatten the schema to at most %d levels", maxSchemaDepth),
					Context:    map[string]any{"depth": depth},
				})
			}
			return diags
		},
	}
}

func ruleW115() Rule {
	return Rule{
		Code:        "W115",
		Severity:    contract.SeverityWarning,
		Name:        "Token Cost",
		Description: "Tool contract consumes an outsized share of the context window.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				estimate := len(tool.Description)/4 + tokensPerField*(len(tool.Inputs)+len(tool.Outputs))
				if estimate <= maxTokenEstimate {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:       "W115",
					Severity:   contract.SeverityWarning,
					Tool:       tool.Name,
					Message:    fmt.Sprintf("Tool %q costs roughly %d tokens of context", tool.Name, estimate),
					Suggestion: "Trim the description and schema; every call pays this cost",
					Context:    map[string]any{"estimatedTokens": estimate},
				})
			}
			return diags
		},
	}
}

func ruleW116() Rule {
	return Rule{
		Code:        "W116",
		Severity:    contract.SeverityWarning,
		Name:        "Schema-Description Drift",
		Description: "Most schema fields never appear in the description.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				descLower := strings.ToLower(tool.Description)
				total, unmentioned := 0, 0
				count := func(fields []contract.FieldSpec) {
					for j := range fields {
						if len(fields[j].Name) <= 3 {
							continue
						}
						total++
						if !anyTokenInText(contract.SplitIdentifier(fields[j].Name), descLower) {
							unmentioned++
						}
					}
				}
				count(tool.Inputs)
				count(tool.Outputs)
				if total == 0 || unmentioned*2 < total {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:     "W116",
					Severity: contract.SeverityWarning,
					Tool:     tool.Name,
					Message: fmt.Sprintf("%d of %d schema fields of tool %q are never mentioned in its description",
						unmentioned, total, tool.Name),
					Suggestion: "Keep the description in step with the schema",
				})
			}
			return diags
		},
	}
}

func ruleW117() Rule {
	return Rule{
		Code:        "W117",
		Severity:    contract.SeverityWarning,
		Name:        "Idempotency Signal Missing",
		Description: "Mutating tool that never says whether repeating it is safe.",
		Check: func(ctx *Context) []contract.Diagnostic {
			if !ctx.SemanticsReady() {
				return nil
			}
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				if len(tool.DescEmbedding) == 0 {
					continue
				}
				if !ctx.Embeddings.IsConceptMatch(tool.DescEmbedding, embedding.ConceptMutation, tauMutation) {
					continue
				}
				if ctx.Embeddings.IsConceptMatch(tool.DescEmbedding, embedding.ConceptIdempotent, tauIdempotent) {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:       "W117",
					Severity:   contract.SeverityWarning,
					Tool:       tool.Name,
					Message:    fmt.Sprintf("Tool %q mutates state but never says whether retrying is safe", tool.Name),
					Suggestion: "State whether the operation is idempotent; agents retry on transport errors",
				})
			}
			return diags
		},
	}
}

// containsWord reports whether word occurs in text at word boundaries.
func containsWord(text, word string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], word)
		if pos < 0 {
			return false
		}
		pos += idx
		end := pos + len(word)
		beforeOK := pos == 0 || !isWordChar(rune(text[pos-1]))
		afterOK := end >= len(text) || !isWordChar(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = pos + 1
	}
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
