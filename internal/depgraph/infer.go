// Package depgraph infers probable data flows between tools: a weighted
// directed graph over (tool, field) pairs, scored from field-name
// similarity, type compatibility, and description-token overlap. Edges at
// or above the confidence threshold become the dependency set the
// relational rules operate on.
package depgraph

import (
	"strings"

	"toolvet/internal/contract"
	"toolvet/internal/logging"
)

// Scoring weights and thresholds. Exact field-name collisions are the
// strongest signal in practice; the weighted fusion keeps the score robust
// to naming variation while letting a hard threshold gate the rules.
const (
	// Threshold is the minimum confidence for a retained edge.
	Threshold = 0.6

	weightName     = 0.4
	weightJaccard  = 0.3
	exactNameBonus = 0.15

	compatExact        = 0.3
	compatWidening     = 0.2
	compatIncompatible = -0.5
)

// Infer computes the dependency set over the normalized tool set.
// Self-edges are never emitted. A single tool pair may yield several edges,
// one per field combination above threshold. Pure function of its inputs.
func Infer(tools []contract.ToolSpec) []contract.Dependency {
	timer := logging.StartTimer(logging.CategoryDepGraph, "Infer")
	defer timer.Stop()

	var deps []contract.Dependency

	for i := range tools {
		from := &tools[i]
		for j := range tools {
			if i == j {
				continue
			}
			to := &tools[j]

			tokenOverlap := contract.Jaccard(from.DescriptionTokens, to.DescriptionTokens)

			for fi := range from.Outputs {
				outField := &from.Outputs[fi]
				for ti := range to.Inputs {
					inField := &to.Inputs[ti]

					conf := score(outField, inField, tokenOverlap)
					if conf >= Threshold {
						deps = append(deps, contract.Dependency{
							FromTool:   from.Name,
							FromField:  outField.Name,
							ToTool:     to.Name,
							ToField:    inField.Name,
							Confidence: conf,
						})
					}
				}
			}
		}
	}

	logging.DepGraph("Inferred %d dependencies across %d tools", len(deps), len(tools))
	return deps
}

// score fuses the three signals plus the exact-name bonus, clamped to [0,1].
func score(out, in *contract.FieldSpec, tokenOverlap float64) float64 {
	nameSim := NameSimilarity(out.Name, in.Name)
	typeScore := TypeCompatibilityScore(out, in)

	conf := weightName*nameSim + typeScore + weightJaccard*tokenOverlap
	if nameSim == 1 && typeScore > 0 {
		conf += exactNameBonus
	}

	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// NameSimilarity scores two field names in [0,1]. Equality scores 1;
// containment scores 0.8 when the shorter name has length >= 3 and 0.7
// below that; otherwise the Jaccard of word tokens longer than 2.
func NameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter := len(a)
		if len(b) < shorter {
			shorter = len(b)
		}
		if shorter >= 3 {
			return 0.8
		}
		return 0.7
	}

	return contract.Jaccard(contract.TokenizeShort(a), contract.TokenizeShort(b))
}

// TypeCompatibilityScore scores feeding an output field into an input
// field: 0.3 for an exact type match, 0.2 for a safe widening, -0.5 for a
// known-incompatible pair, 0 otherwise.
func TypeCompatibilityScore(out, in *contract.FieldSpec) float64 {
	if out.Type == in.Type {
		return compatExact
	}
	if isSafeWidening(out, in) {
		return compatWidening
	}
	if isKnownIncompatible(out.Type, in.Type) {
		return compatIncompatible
	}
	return 0
}

// Compatible reports whether the output type is in the compatibility set of
// the input type: exact match or safe widening. The "any" sentinel is
// compatible with everything.
func Compatible(out, in *contract.FieldSpec) bool {
	if out.Type == "any" || in.Type == "any" {
		return true
	}
	return out.Type == in.Type || isSafeWidening(out, in)
}

// isSafeWidening covers the conversions an agent performs losslessly:
// numeric to string, enum to/from plain string, and array/object rendered
// into a string.
func isSafeWidening(out, in *contract.FieldSpec) bool {
	if in.Type == "string" {
		switch out.Type {
		case "number", "integer", "array", "object":
			return true
		}
		if len(out.Enum) > 0 {
			return true
		}
	}
	// Plain string feeding an enum-constrained input.
	if out.Type == "string" && len(in.Enum) > 0 {
		return true
	}
	return false
}

// isKnownIncompatible covers pairs that fail at runtime without explicit
// conversion.
func isKnownIncompatible(outType, inType string) bool {
	switch {
	case outType == "string" && (inType == "number" || inType == "integer"):
		return true
	case (outType == "number" || outType == "integer") && inType == "boolean":
		return true
	}
	return false
}
