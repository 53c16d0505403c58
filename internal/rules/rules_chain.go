package rules

import (
	"fmt"
	"strings"

	"toolvet/internal/contract"
	"toolvet/internal/depgraph"
	"toolvet/internal/embedding"
)

// Confidence bounds for the relational rules.
const (
	highConfidence  = 0.8
	cycleConfidence = 0.65
	producerMatch   = 0.6
)

// userDataKeywords is the token fallback for USER_DATA classification.
var userDataKeywords = []string{
	"user", "name", "email", "phone", "address", "message", "question",
	"query", "input", "text", "comment", "feedback",
}

func ruleE103() Rule {
	return Rule{
		Code:        "E103",
		Severity:    contract.SeverityError,
		Name:        "Unsafe Tool Chaining: Type Mismatch",
		Description: "High-confidence dependency whose endpoint types are incompatible.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for _, dep := range ctx.DepsAtLeast(highConfidence) {
				out, in, ok := ctx.ResolveEdge(dep)
				if !ok {
					continue
				}
				if depgraph.Compatible(out, in) {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:     "E103",
					Severity: contract.SeverityError,
					Tool:     dep.ToTool,
					Field:    dep.ToField,
					Message: fmt.Sprintf("Output %s.%s (%s) likely feeds input %s.%s (%s) but the types are incompatible",
						dep.FromTool, dep.FromField, out.Type, dep.ToTool, dep.ToField, in.Type),
					Suggestion: "Align the types or document the required conversion",
					Context: map[string]any{
						"fromTool": dep.FromTool, "fromField": dep.FromField,
						"toTool": dep.ToTool, "toField": dep.ToField,
						"confidence": dep.Confidence,
					},
				})
			}
			return diags
		},
	}
}

func ruleE105() Rule {
	return Rule{
		Code:        "E105",
		Severity:    contract.SeverityError,
		Name:        "Unsafe Tool Chaining: Free-Text Propagation",
		Description: "High-confidence dependency carrying an unconstrained string.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for _, dep := range ctx.DepsAtLeast(highConfidence) {
				out, _, ok := ctx.ResolveEdge(dep)
				if !ok {
					continue
				}
				// A description alone does not constrain the value.
				if out.Type != "string" || len(out.Enum) > 0 || out.Pattern != "" {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:     "E105",
					Severity: contract.SeverityError,
					Tool:     dep.FromTool,
					Field:    dep.FromField,
					Message: fmt.Sprintf("Unconstrained string %s.%s flows into %s.%s",
						dep.FromTool, dep.FromField, dep.ToTool, dep.ToField),
					Suggestion: "Constrain the output with an enum or pattern before chaining it",
					Context: map[string]any{
						"toTool": dep.ToTool, "toField": dep.ToField,
						"confidence": dep.Confidence,
					},
				})
			}
			return diags
		},
	}
}

func ruleE106() Rule {
	return Rule{
		Code:        "E106",
		Severity:    contract.SeverityError,
		Name:        "Output Not Guaranteed",
		Description: "Optional or nullable output feeding a strictly required input.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for _, dep := range ctx.DepsAtLeast(highConfidence) {
				out, in, ok := ctx.ResolveEdge(dep)
				if !ok {
					continue
				}
				if (out.Required && !out.Nullable) || !in.Required || in.Nullable {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:     "E106",
					Severity: contract.SeverityError,
					Tool:     dep.ToTool,
					Field:    dep.ToField,
					Message: fmt.Sprintf("Input %s.%s requires a value, but upstream %s.%s may be absent or null",
						dep.ToTool, dep.ToField, dep.FromTool, dep.FromField),
					Suggestion: "Guarantee the upstream output or make the downstream input optional",
				})
			}
			return diags
		},
	}
}

func ruleE107() Rule {
	return Rule{
		Code:        "E107",
		Severity:    contract.SeverityError,
		Name:        "Circular Tool Dependency",
		Description: "Tools whose inferred data flows form a cycle.",
		Check: func(ctx *Context) []contract.Diagnostic {
			adj := depgraph.Adjacency(ctx.Deps, cycleConfidence)
			var diags []contract.Diagnostic
			for _, cycle := range depgraph.FindCycles(adj) {
				diags = append(diags, contract.Diagnostic{
					Code:     "E107",
					Severity: contract.SeverityError,
					Tool:     cycle[0],
					Message: fmt.Sprintf("Circular dependency between tools: %s",
						strings.Join(cycle, " -> ")),
					Suggestion: "Break the cycle; an agent cannot order these calls",
					Context:    map[string]any{"cycle": cycle},
				})
			}
			return diags
		},
	}
}

func ruleE108() Rule {
	return Rule{
		Code:        "E108",
		Severity:    contract.SeverityError,
		Name:        "Implicit User Input",
		Description: "Required user-data input with no tool that can produce it.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				for j := range tool.Inputs {
					field := &tool.Inputs[j]
					if !field.Required {
						continue
					}
					if hasProducer(ctx, tool, field) {
						continue
					}
					if !isUserData(ctx, tool, field) {
						continue
					}
					if hasIncomingDep(ctx, tool.Name, field.Name) {
						continue
					}
					diags = append(diags, contract.Diagnostic{
						Code:     "E108",
						Severity: contract.SeverityError,
						Tool:     tool.Name,
						Field:    field.Name,
						Message: fmt.Sprintf("Required input %q of tool %q must come from the user, but nothing in the contract says so",
							field.Name, tool.Name),
						Suggestion: "Document that the value is user-supplied, or add a tool that produces it",
					})
				}
			}
			return diags
		},
	}
}

// hasProducer reports whether any other tool's output field matches the
// input field above the producer threshold, semantically when embeddings
// are available and by name similarity otherwise.
func hasProducer(ctx *Context, tool *contract.ToolSpec, field *contract.FieldSpec) bool {
	if ctx.SemanticsReady() {
		if vec, ok := tool.InputEmbeddings[field.Name]; ok && len(vec) > 0 {
			for i := range ctx.Tools {
				other := &ctx.Tools[i]
				if other.Name == tool.Name {
					continue
				}
				if _, found := ctx.Embeddings.FindBestMatchingField(vec, other.OutputEmbeddings, producerMatch); found {
					return true
				}
			}
			return false
		}
	}
	for i := range ctx.Tools {
		other := &ctx.Tools[i]
		if other.Name == tool.Name {
			continue
		}
		for j := range other.Outputs {
			if depgraph.NameSimilarity(field.Name, other.Outputs[j].Name) >= producerMatch {
				return true
			}
		}
	}
	return false
}

// isUserData classifies the field as user-supplied data.
func isUserData(ctx *Context, tool *contract.ToolSpec, field *contract.FieldSpec) bool {
	if ctx.SemanticsReady() {
		if vec, ok := tool.InputEmbeddings[field.Name]; ok && len(vec) > 0 {
			return ctx.Embeddings.IsConceptMatch(vec, embedding.ConceptUserData, tauUserData)
		}
	}
	return textContainsAnyToken(field.Name+" "+field.Description, userDataKeywords)
}

// hasIncomingDep reports whether any inferred dependency at or above the
// producer threshold targets the given field.
func hasIncomingDep(ctx *Context, toolName, fieldName string) bool {
	for _, dep := range ctx.Deps {
		if dep.Confidence >= producerMatch && dep.ToTool == toolName && dep.ToField == fieldName {
			return true
		}
	}
	return false
}

func ruleW100() Rule {
	return Rule{
		Code:        "W100",
		Severity:    contract.SeverityWarning,
		Name:        "Implicit Dependency",
		Description: "Mid-confidence dependency not acknowledged in the downstream description.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for _, dep := range ctx.Deps {
				if dep.Confidence < depgraph.Threshold || dep.Confidence >= highConfidence {
					continue
				}
				toTool, ok := ctx.Tool(dep.ToTool)
				if !ok {
					continue
				}
				if toolNameMentioned(dep.FromTool, toTool.Description) {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:     "W100",
					Severity: contract.SeverityWarning,
					Tool:     dep.ToTool,
					Field:    dep.ToField,
					Message: fmt.Sprintf("Input %s.%s probably comes from %s.%s, but %q never mentions %q",
						dep.ToTool, dep.ToField, dep.FromTool, dep.FromField, dep.ToTool, dep.FromTool),
					Suggestion: "Mention the upstream tool in the description so agents order the calls correctly",
				})
			}
			return diags
		},
	}
}

// toolNameMentioned matches a tool name against prose after camelCase and
// underscore splitting: either every word token appears, or the tokens
// appear as a contiguous phrase.
func toolNameMentioned(name, description string) bool {
	descLower := strings.ToLower(description)
	words := contract.SplitIdentifier(name)
	if len(words) == 0 {
		return false
	}
	if strings.Contains(descLower, strings.Join(words, " ")) ||
		strings.Contains(descLower, strings.Join(words, "_")) ||
		strings.Contains(descLower, strings.ToLower(name)) {
		return true
	}
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if !strings.Contains(descLower, w) {
			return false
		}
	}
	return true
}

func ruleW105() Rule {
	return Rule{
		Code:        "W105",
		Severity:    contract.SeverityWarning,
		Name:        "Optional Used As Required Downstream",
		Description: "Optional or nullable output feeding a required input.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for _, dep := range ctx.DepsAtLeast(highConfidence) {
				out, in, ok := ctx.ResolveEdge(dep)
				if !ok {
					continue
				}
				if (out.Required && !out.Nullable) || !in.Required {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:     "W105",
					Severity: contract.SeverityWarning,
					Tool:     dep.ToTool,
					Field:    dep.ToField,
					Message: fmt.Sprintf("Required input %s.%s depends on optional output %s.%s",
						dep.ToTool, dep.ToField, dep.FromTool, dep.FromField),
					Suggestion: "Make the upstream output required, or the downstream input optional",
				})
			}
			return diags
		},
	}
}
