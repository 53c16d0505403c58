package rules

import (
	"fmt"
	"sort"
	"strings"

	"toolvet/internal/contract"
	"toolvet/internal/embedding"
)

// Concept-match thresholds used by the semantic rules. Calibrated against
// the anchor phrase sets; USER_DATA sits lower because user-supplied field
// names are short and noisy.
const (
	tauReturnsData = 0.45
	tauUserData    = 0.35
	tauSensitive   = 0.45
	tauMutation    = 0.45
	tauIdempotent  = 0.45
)

// returnsDataKeywords is the token fallback for RETURNS_DATA when no
// embedding service is available.
var returnsDataKeywords = []string{
	"get", "fetch", "list", "read", "retrieve", "search", "query", "find", "lookup", "show",
}

// sensitiveKeywords is the fallback (and reinforcement) list for SENSITIVE
// parameter detection.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"access_key", "private_key", "auth", "credential", "ssn", "bearer",
}

func ruleE100() Rule {
	return Rule{
		Code:        "E100",
		Severity:    contract.SeverityError,
		Name:        "Missing Output Schema",
		Description: "Tool declares no output fields but appears to return data or takes inputs.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				if len(tool.Outputs) > 0 {
					continue
				}
				returnsData := false
				if ctx.SemanticsReady() && len(tool.DescEmbedding) > 0 {
					returnsData = ctx.Embeddings.IsConceptMatch(tool.DescEmbedding, embedding.ConceptReturnsData, tauReturnsData)
				} else {
					returnsData = textContainsAnyToken(tool.Name+" "+tool.Description, returnsDataKeywords)
				}
				if !returnsData && len(tool.Inputs) == 0 {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:       "E100",
					Severity:   contract.SeverityError,
					Tool:       tool.Name,
					Message:    fmt.Sprintf("Tool %q declares no output schema", tool.Name),
					Suggestion: "Declare an outputSchema so callers can validate and chain the result",
				})
			}
			return diags
		},
	}
}

func ruleE101() Rule {
	return Rule{
		Code:        "E101",
		Severity:    contract.SeverityError,
		Name:        "Missing Tool Description",
		Description: "Tool description is empty or whitespace-only.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				if strings.TrimSpace(tool.Description) != "" {
					continue
				}
				diags = append(diags, contract.Diagnostic{
					Code:       "E101",
					Severity:   contract.SeverityError,
					Tool:       tool.Name,
					Message:    fmt.Sprintf("Tool %q has no description", tool.Name),
					Suggestion: "Describe what the tool does, its inputs, and what it returns",
				})
			}
			return diags
		},
	}
}

func ruleE102() Rule {
	return Rule{
		Code:        "E102",
		Severity:    contract.SeverityError,
		Name:        "Underspecified Required Input",
		Description: "Broad-typed input with no description, enum, pattern, or example.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				for j := range tool.Inputs {
					field := &tool.Inputs[j]
					if !field.IsBroadType() {
						continue
					}
					if strings.TrimSpace(field.Description) != "" || len(field.Enum) > 0 ||
						field.Pattern != "" || field.Example != nil {
						continue
					}
					severity := contract.SeverityError
					qualifier := "Required"
					if !field.Required {
						severity = contract.SeverityWarning
						qualifier = "Optional"
					}
					diags = append(diags, contract.Diagnostic{
						Code:     "E102",
						Severity: severity,
						Tool:     tool.Name,
						Field:    field.Name,
						Message: fmt.Sprintf("%s input %q of tool %q has broad type %q with no description, enum, pattern, or example",
							qualifier, field.Name, tool.Name, field.Type),
						Suggestion: "Add a description, enum, pattern, or example so callers know what to send",
					})
				}
			}
			return diags
		},
	}
}

func ruleE104() Rule {
	return Rule{
		Code:        "E104",
		Severity:    contract.SeverityError,
		Name:        "Required Input Not Mentioned in Description",
		Description: "Required input whose name never appears in the tool description.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				descLower := strings.ToLower(tool.Description)
				for j := range tool.Inputs {
					field := &tool.Inputs[j]
					if !field.Required {
						continue
					}
					if anyTokenInText(contract.SplitIdentifier(field.Name), descLower) {
						continue
					}
					if ctx.SemanticsReady() && len(tool.DescEmbedding) > 0 {
						if vec, ok := tool.InputEmbeddings[field.Name]; ok {
							if embedding.Cosine(vec, tool.DescEmbedding) >= 0.5 {
								continue
							}
						}
					}
					diags = append(diags, contract.Diagnostic{
						Code:     "E104",
						Severity: contract.SeverityError,
						Tool:     tool.Name,
						Field:    field.Name,
						Message: fmt.Sprintf("Required input %q of tool %q is never mentioned in its description",
							field.Name, tool.Name),
						Suggestion: "Mention the parameter in the description so the model knows to supply it",
					})
				}
			}
			return diags
		},
	}
}

func ruleE109() Rule {
	nonSerializable := map[string]bool{
		"function": true, "undefined": true, "symbol": true, "bigint": true,
	}
	return Rule{
		Code:        "E109",
		Severity:    contract.SeverityError,
		Name:        "Non-Serializable Output",
		Description: "Output declares a type that cannot cross a JSON boundary.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				for j := range tool.Outputs {
					field := &tool.Outputs[j]
					for _, part := range strings.Split(field.Type, "|") {
						if !nonSerializable[part] {
							continue
						}
						diags = append(diags, contract.Diagnostic{
							Code:     "E109",
							Severity: contract.SeverityError,
							Tool:     tool.Name,
							Field:    field.Name,
							Message: fmt.Sprintf("Output %q of tool %q declares non-serializable type %q",
								field.Name, tool.Name, part),
							Suggestion: "Return a JSON-serializable representation instead",
						})
						break
					}
				}
			}
			return diags
		},
	}
}

func ruleE112() Rule {
	return Rule{
		Code:        "E112",
		Severity:    contract.SeverityError,
		Name:        "Sensitive Parameter Detection",
		Description: "Input appears to carry a credential or other secret.",
		Check: func(ctx *Context) []contract.Diagnostic {
			var diags []contract.Diagnostic
			for i := range ctx.Tools {
				tool := &ctx.Tools[i]
				for j := range tool.Inputs {
					field := &tool.Inputs[j]
					sensitive := textContainsAnyToken(field.Name+" "+field.Description, sensitiveKeywords)
					if !sensitive && ctx.SemanticsReady() {
						if vec, ok := tool.InputEmbeddings[field.Name]; ok {
							sensitive = ctx.Embeddings.IsConceptMatch(vec, embedding.ConceptSensitive, tauSensitive)
						}
					}
					if !sensitive {
						continue
					}
					diags = append(diags, contract.Diagnostic{
						Code:     "E112",
						Severity: contract.SeverityError,
						Tool:     tool.Name,
						Field:    field.Name,
						Message: fmt.Sprintf("Input %q of tool %q appears to carry sensitive data",
							field.Name, tool.Name),
						Suggestion: "Secrets should flow through server-side configuration, not model-visible parameters",
					})
				}
			}
			return diags
		},
	}
}

func ruleE113() Rule {
	return Rule{
		Code:        "E113",
		Severity:    contract.SeverityError,
		Name:        "Duplicate Tool Names",
		Description: "Two or more tools collide on a case-insensitive name.",
		Check: func(ctx *Context) []contract.Diagnostic {
			groups := make(map[string][]string)
			for i := range ctx.Tools {
				key := strings.ToLower(ctx.Tools[i].Name)
				groups[key] = append(groups[key], ctx.Tools[i].Name)
			}

			keys := make([]string, 0, len(groups))
			for key, variants := range groups {
				if len(variants) > 1 {
					keys = append(keys, key)
				}
			}
			sort.Strings(keys)

			var diags []contract.Diagnostic
			for _, key := range keys {
				variants := groups[key]
				diags = append(diags, contract.Diagnostic{
					Code:     "E113",
					Severity: contract.SeverityError,
					Tool:     variants[0],
					Message: fmt.Sprintf("Duplicate tool names (case-insensitive): %s",
						strings.Join(variants, ", ")),
					Suggestion: "Rename the tools so every name is unique regardless of case",
					Context:    map[string]any{"variants": variants},
				})
			}
			return diags
		},
	}
}

// =============================================================================
// TEXT HELPERS
// =============================================================================

// textContainsAnyToken tokenizes text (including short tokens) and reports
// whether any keyword appears as a token, or as a substring for compound
// keywords like "api_key".
func textContainsAnyToken(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	// Map punctuation to spaces so prose and identifiers tokenize alike,
	// then split camelCase boundaries.
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, text)
	tokens := make(map[string]struct{})
	for _, tok := range contract.SplitIdentifier(cleaned) {
		tokens[tok] = struct{}{}
	}
	for _, kw := range keywords {
		if strings.Contains(kw, "_") {
			if strings.Contains(lower, kw) || strings.Contains(lower, strings.ReplaceAll(kw, "_", "")) {
				return true
			}
			continue
		}
		if _, ok := tokens[kw]; ok {
			return true
		}
	}
	return false
}

// anyTokenInText reports whether any of the word tokens occurs in the
// lowercased text.
func anyTokenInText(tokens []string, textLower string) bool {
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if strings.Contains(textLower, tok) {
			return true
		}
	}
	return false
}
