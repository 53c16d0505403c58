// Package index builds the read-only lookup tables the rules consult:
// tool-name to tool, field-name to field occurrences per direction, and
// keyword to the set of tools mentioning it. All keys are lowercased.
package index

import (
	"strings"

	"toolvet/internal/contract"
	"toolvet/internal/logging"
)

// Index holds the three derived lookup tables over a normalized tool set.
// Field indexes accumulate every occurrence; nothing is deduplicated.
type Index struct {
	byName   map[string]*contract.ToolSpec
	inputs   map[string][]*contract.FieldSpec
	outputs  map[string][]*contract.FieldSpec
	keywords map[string]map[string]struct{}
}

// Build constructs the indexes. Linear in the total field count.
func Build(tools []contract.ToolSpec) *Index {
	timer := logging.StartTimer(logging.CategoryIndex, "Build")
	defer timer.Stop()

	idx := &Index{
		byName:   make(map[string]*contract.ToolSpec, len(tools)),
		inputs:   make(map[string][]*contract.FieldSpec),
		outputs:  make(map[string][]*contract.FieldSpec),
		keywords: make(map[string]map[string]struct{}),
	}

	for i := range tools {
		tool := &tools[i]
		idx.byName[strings.ToLower(tool.Name)] = tool

		for j := range tool.Inputs {
			field := &tool.Inputs[j]
			key := strings.ToLower(field.Name)
			idx.inputs[key] = append(idx.inputs[key], field)
		}
		for j := range tool.Outputs {
			field := &tool.Outputs[j]
			key := strings.ToLower(field.Name)
			idx.outputs[key] = append(idx.outputs[key], field)
		}

		for _, keyword := range contract.Tokenize(tool.Name + " " + tool.Description) {
			set, ok := idx.keywords[keyword]
			if !ok {
				set = make(map[string]struct{})
				idx.keywords[keyword] = set
			}
			set[tool.Name] = struct{}{}
		}
	}

	logging.IndexDebug("Built indexes: %d tools, %d input names, %d output names, %d keywords",
		len(idx.byName), len(idx.inputs), len(idx.outputs), len(idx.keywords))

	return idx
}

// Tool looks up a tool by name, case-insensitively.
func (idx *Index) Tool(name string) (*contract.ToolSpec, bool) {
	tool, ok := idx.byName[strings.ToLower(name)]
	return tool, ok
}

// InputFields returns every input field with the given name across tools.
func (idx *Index) InputFields(name string) []*contract.FieldSpec {
	return idx.inputs[strings.ToLower(name)]
}

// OutputFields returns every output field with the given name across tools.
func (idx *Index) OutputFields(name string) []*contract.FieldSpec {
	return idx.outputs[strings.ToLower(name)]
}

// ToolsForKeyword returns the set of tool names mentioning the keyword in
// their name or description.
func (idx *Index) ToolsForKeyword(keyword string) map[string]struct{} {
	return idx.keywords[strings.ToLower(keyword)]
}

// ToolCount returns the number of distinct (lowercased) tool names.
func (idx *Index) ToolCount() int {
	return len(idx.byName)
}
