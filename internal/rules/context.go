package rules

import (
	"toolvet/internal/contract"
	"toolvet/internal/embedding"
	"toolvet/internal/index"
)

// Context carries everything a rule may consult: the normalized tool set,
// the inferred dependency edges, the lookup indexes, and the (optional)
// embedding service. Rules treat the context as read-only.
type Context struct {
	Tools      []contract.ToolSpec
	Deps       []contract.Dependency
	Index      *index.Index
	Embeddings *embedding.Service

	// ConcreteNouns overrides the default noun list consulted by the vague
	// description check. Nil means the default list.
	ConcreteNouns []string
}

// SemanticsReady reports whether concept matching is available. Rules that
// depend on embeddings either fall back to keyword heuristics or no-op.
func (c *Context) SemanticsReady() bool {
	return c.Embeddings != nil && c.Embeddings.Ready()
}

// Tool looks up a tool by name through the index.
func (c *Context) Tool(name string) (*contract.ToolSpec, bool) {
	if c.Index == nil {
		return nil, false
	}
	return c.Index.Tool(name)
}

// DepsAtLeast returns the dependency edges at or above the confidence bound,
// preserving inference order.
func (c *Context) DepsAtLeast(min float64) []contract.Dependency {
	var out []contract.Dependency
	for _, dep := range c.Deps {
		if dep.Confidence >= min {
			out = append(out, dep)
		}
	}
	return out
}

// ResolveEdge maps a dependency edge back to its concrete field specs.
// Returns false when either endpoint no longer resolves.
func (c *Context) ResolveEdge(dep contract.Dependency) (out, in *contract.FieldSpec, ok bool) {
	fromTool, ok := c.Tool(dep.FromTool)
	if !ok {
		return nil, nil, false
	}
	toTool, ok := c.Tool(dep.ToTool)
	if !ok {
		return nil, nil, false
	}
	out = fromTool.Output(dep.FromField)
	in = toTool.Input(dep.ToField)
	if out == nil || in == nil {
		return nil, nil, false
	}
	return out, in, true
}

// nounList returns the concrete-noun list in effect.
func (c *Context) nounList() []string {
	if len(c.ConcreteNouns) > 0 {
		return c.ConcreteNouns
	}
	return defaultConcreteNouns
}
