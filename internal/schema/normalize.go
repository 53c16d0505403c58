// Package schema flattens arbitrary JSON Schema fragments into the uniform
// field model used by the analysis pipeline. It tolerates every schema
// style MCP servers emit in practice: $ref indirection, oneOf/anyOf/allOf
// branches, nested objects, array item schemas, nullable unions, and
// missing types. Invalid fragments degrade to permissive fields instead of
// aborting the analysis.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"toolvet/internal/contract"
	"toolvet/internal/embedding"
	"toolvet/internal/logging"
)

// Normalizer converts raw tools to ToolSpecs. The embedding service is
// optional; without it, ToolSpecs carry no precomputed vectors and the
// semantic rules fall back to token heuristics.
type Normalizer struct {
	embeddings *embedding.Service
}

// NewNormalizer creates a normalizer. svc may be nil.
func NewNormalizer(svc *embedding.Service) *Normalizer {
	return &Normalizer{embeddings: svc}
}

// NormalizeTool flattens one raw tool. Missing schemas yield empty field
// lists, not errors. The output is stable for identical input.
func (n *Normalizer) NormalizeTool(ctx context.Context, raw contract.RawTool) (contract.ToolSpec, error) {
	timer := logging.StartTimer(logging.CategorySchema, "NormalizeTool:"+raw.Name)
	defer timer.Stop()

	spec := contract.ToolSpec{
		Name:              raw.Name,
		Description:       raw.Description,
		DescriptionTokens: contract.Tokenize(raw.Name + " " + raw.Description),
	}

	inputs, err := flattenSchema(raw.InputSchema, raw.Name, contract.DirectionInput)
	if err != nil {
		return contract.ToolSpec{}, fmt.Errorf("tool %s: input schema: %w", raw.Name, err)
	}
	outputs, err := flattenSchema(raw.OutputSchema, raw.Name, contract.DirectionOutput)
	if err != nil {
		return contract.ToolSpec{}, fmt.Errorf("tool %s: output schema: %w", raw.Name, err)
	}
	spec.Inputs = inputs
	spec.Outputs = outputs

	if n.embeddings != nil {
		n.attachEmbeddings(ctx, &spec)
	}

	logging.SchemaDebug("Normalized %s: %d inputs, %d outputs, %d tokens",
		raw.Name, len(spec.Inputs), len(spec.Outputs), len(spec.DescriptionTokens))

	return spec, nil
}

// attachEmbeddings precomputes the description embedding and one embedding
// per field name in each direction.
func (n *Normalizer) attachEmbeddings(ctx context.Context, spec *contract.ToolSpec) {
	descText := strings.TrimSpace(spec.Name + " " + spec.Description)
	spec.DescEmbedding = n.embeddings.Embed(ctx, descText)

	if len(spec.Inputs) > 0 {
		spec.InputEmbeddings = make(map[string][]float32, len(spec.Inputs))
		for i := range spec.Inputs {
			spec.InputEmbeddings[spec.Inputs[i].Name] = n.embeddings.Embed(ctx, spec.Inputs[i].Name)
		}
	}
	if len(spec.Outputs) > 0 {
		spec.OutputEmbeddings = make(map[string][]float32, len(spec.Outputs))
		for i := range spec.Outputs {
			spec.OutputEmbeddings[spec.Outputs[i].Name] = n.embeddings.Embed(ctx, spec.Outputs[i].Name)
		}
	}
}

// =============================================================================
// SCHEMA WALKING
// =============================================================================

// flattenSchema parses a raw fragment and flattens it to a field list.
func flattenSchema(raw json.RawMessage, tool string, dir contract.FieldDirection) ([]contract.FieldSpec, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		logging.SchemaDebug("Tool %s: unparseable %s schema, treating as empty: %v", tool, dir, err)
		return nil, nil
	}

	node, ok := doc.(map[string]any)
	if !ok {
		// A bare "true"/"false" or scalar schema constrains nothing.
		return nil, nil
	}

	return walkNode(node, node, tool, dir, nil)
}

// walkNode flattens one schema node. root is the document root for $ref
// resolution; seen guards against combinator recursion on aliased nodes.
func walkNode(node, root map[string]any, tool string, dir contract.FieldDirection, seen []map[string]any) ([]contract.FieldSpec, error) {
	node = deref(node, root)

	for _, prev := range seen {
		if sameNode(prev, node) {
			return nil, nil
		}
	}
	seen = append(seen, node)

	// Union combinator branches without reconciling duplicate names.
	if branches := combinatorBranches(node); len(branches) > 0 {
		var fields []contract.FieldSpec
		for _, branch := range branches {
			branchFields, err := walkNode(branch, root, tool, dir, seen)
			if err != nil {
				return nil, err
			}
			fields = append(fields, branchFields...)
		}
		return fields, nil
	}

	if props, hasProps := node["properties"]; hasProps {
		propsMap, ok := props.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("properties is not an object")
		}
		return walkProperties(propsMap, requiredSet(node), root, tool, dir, seen)
	}

	// Non-object top-level schema: a single pseudo-field preserves the type.
	typ, nullable := normalizeType(node)
	if _, hasType := node["type"]; !hasType || typ == "object" {
		return nil, nil
	}
	pseudo := string(dir)
	field := buildScalarField(node, tool, pseudo, typ, nullable)
	field.Required = dir == contract.DirectionInput
	return []contract.FieldSpec{field}, nil
}

// walkProperties enumerates each property in sorted name order so the
// output is deterministic across runs.
func walkProperties(props map[string]any, required map[string]bool, root map[string]any, tool string, dir contract.FieldDirection, seen []map[string]any) ([]contract.FieldSpec, error) {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]contract.FieldSpec, 0, len(names))
	for _, name := range names {
		propNode, ok := props[name].(map[string]any)
		if !ok {
			// Boolean or malformed property schema constrains nothing.
			fields = append(fields, contract.FieldSpec{
				Tool:     tool,
				Name:     name,
				Type:     "any",
				Required: required[name],
			})
			continue
		}

		field, err := buildField(propNode, root, tool, name, dir, seen)
		if err != nil {
			return nil, err
		}
		field.Required = required[name]
		fields = append(fields, field)
	}
	return fields, nil
}

// buildField flattens a single property schema.
func buildField(node, root map[string]any, tool, name string, dir contract.FieldDirection, seen []map[string]any) (contract.FieldSpec, error) {
	node = deref(node, root)

	typ, nullable := normalizeType(node)
	field := buildScalarField(node, tool, name, typ, nullable)

	// Nested object: recurse and attach properties.
	if typ == "object" || hasKey(node, "properties") {
		if props, ok := node["properties"].(map[string]any); ok {
			nested, err := walkProperties(props, requiredSet(node), root, tool, dir, seen)
			if err != nil {
				return contract.FieldSpec{}, err
			}
			field.Properties = nested
		}
	}

	// Array: recurse into every item schema (single or list) and merge.
	if typ == "array" || hasKey(node, "items") {
		if items, ok := node["items"]; ok {
			var itemNodes []map[string]any
			switch v := items.(type) {
			case map[string]any:
				itemNodes = append(itemNodes, v)
			case []any:
				for _, item := range v {
					if m, ok := item.(map[string]any); ok {
						itemNodes = append(itemNodes, m)
					}
				}
			}
			var merged []contract.FieldSpec
			for _, itemNode := range itemNodes {
				itemFields, err := walkNode(itemNode, root, tool, dir, seen)
				if err != nil {
					return contract.FieldSpec{}, err
				}
				merged = append(merged, itemFields...)
			}
			field.Properties = append(field.Properties, merged...)
		}
	}

	// Combinator property: union the branch fields as nested properties.
	if branches := combinatorBranches(node); len(branches) > 0 {
		for _, branch := range branches {
			branchFields, err := walkNode(branch, root, tool, dir, seen)
			if err != nil {
				return contract.FieldSpec{}, err
			}
			field.Properties = append(field.Properties, branchFields...)
		}
	}

	return field, nil
}

// buildScalarField copies the scalar attributes of a schema node.
func buildScalarField(node map[string]any, tool, name, typ string, nullable bool) contract.FieldSpec {
	field := contract.FieldSpec{
		Tool:     tool,
		Name:     name,
		Type:     typ,
		Nullable: nullable,
	}

	if desc, ok := node["description"].(string); ok {
		field.Description = desc
	}
	if enum, ok := node["enum"].([]any); ok && len(enum) > 0 {
		field.Enum = make([]string, len(enum))
		for i, v := range enum {
			field.Enum[i] = stringifyEnum(v)
		}
	}
	if pattern, ok := node["pattern"].(string); ok {
		field.Pattern = pattern
	}
	if format, ok := node["format"].(string); ok {
		field.Format = format
	}
	if examples, ok := node["examples"].([]any); ok && len(examples) > 0 {
		field.Example = examples[0]
	} else if example, ok := node["example"]; ok {
		field.Example = example
	}

	return field
}

// normalizeType computes the normalized type string and nullability of a
// node. A single type passes through; a type array is filtered to drop
// "null" and joined with "|"; an empty or missing type becomes "any". A
// sole "null" type means must-be-null and is not nullable.
func normalizeType(node map[string]any) (string, bool) {
	nullable := false
	if n, ok := node["nullable"].(bool); ok && n {
		nullable = true
	}

	switch t := node["type"].(type) {
	case string:
		return t, nullable
	case []any:
		var kept []string
		sawNull := false
		for _, v := range t {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if s == "null" {
				sawNull = true
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			if sawNull {
				return "null", nullable
			}
			return "any", nullable
		}
		if sawNull {
			nullable = true
		}
		return strings.Join(kept, "|"), nullable
	default:
		return "any", nullable
	}
}

// combinatorBranches returns the non-empty oneOf/anyOf/allOf branches of a
// node, in that keyword order.
func combinatorBranches(node map[string]any) []map[string]any {
	var branches []map[string]any
	for _, key := range []string{"oneOf", "anyOf", "allOf"} {
		list, ok := node[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				branches = append(branches, m)
			}
		}
	}
	return branches
}

func requiredSet(node map[string]any) map[string]bool {
	set := make(map[string]bool)
	if list, ok := node["required"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				set[s] = true
			}
		}
	}
	return set
}

func stringifyEnum(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; keep integers unsuffixed.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func hasKey(node map[string]any, key string) bool {
	_, ok := node[key]
	return ok
}

// sameNode reports whether two nodes are the same underlying map. Used to
// break combinator cycles introduced by $ref aliasing.
func sameNode(a, b map[string]any) bool {
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}
