// Package analyzer sequences the analysis pipeline: load, normalize, index,
// infer dependencies, run rules, synthesize a verdict. One Analyze call is
// one pipeline pass under a single overall deadline; the only state shared
// between calls is the embedding cache and the concept anchors.
package analyzer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"toolvet/internal/contract"
	"toolvet/internal/depgraph"
	"toolvet/internal/embedding"
	"toolvet/internal/index"
	"toolvet/internal/logging"
	"toolvet/internal/rules"
	"toolvet/internal/schema"
)

// DefaultTimeout bounds a whole analysis run.
const DefaultTimeout = 60 * time.Second

// normalizeParallelism caps concurrent tool normalization. Normalization
// blocks on the embedding backend, so a small bound keeps remote providers
// happy.
const normalizeParallelism = 8

// Loader produces the raw tool batch. Implementations own the transport;
// the analyzer only requires at most one response with order preserved.
type Loader interface {
	ListTools(ctx context.Context) ([]contract.RawTool, error)
}

// Options configures one analyzer instance.
type Options struct {
	// StrictMode promotes every warning to an error before verdict
	// reduction.
	StrictMode bool

	// Timeout bounds the whole pipeline. Zero means DefaultTimeout.
	Timeout time.Duration

	// RuleSelectors filters the rule catalog: plain codes allow, "-"-prefixed
	// codes deny.
	RuleSelectors []string

	// ConcreteNouns overrides the noun list used by the generic-description
	// check.
	ConcreteNouns []string
}

// Analyzer runs the static analysis pipeline. The embedding service may be
// nil, in which case the semantic rules fall back to token heuristics.
type Analyzer struct {
	embeddings *embedding.Service
	engine     *rules.Engine
	opts       Options
}

// New creates an analyzer with the default rule catalog.
func New(svc *embedding.Service, opts Options) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Analyzer{
		embeddings: svc,
		engine:     rules.DefaultEngine(),
		opts:       opts,
	}
}

// Engine exposes the rule catalog, for listing and reporting.
func (a *Analyzer) Engine() *rules.Engine {
	return a.engine
}

// AnalyzeServer loads the tool batch from the loader and analyzes it.
// Concept-anchor initialization overlaps the load, since the loader
// typically blocks on I/O.
func (a *Analyzer) AnalyzeServer(ctx context.Context, loader Loader) (*contract.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()
	start := time.Now()

	var raw []contract.RawTool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tools, err := loader.ListTools(gctx)
		if err != nil {
			return err
		}
		raw = tools
		return nil
	})
	g.Go(func() error {
		return a.initConcepts(gctx)
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, contract.TimeoutError("load", time.Since(start))
		}
		return nil, err
	}

	return a.analyze(ctx, start, raw)
}

// Analyze runs the pipeline over an already-loaded tool batch.
func (a *Analyzer) Analyze(ctx context.Context, raw []contract.RawTool) (*contract.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()
	start := time.Now()

	if err := a.initConcepts(ctx); err != nil {
		return nil, err
	}
	return a.analyze(ctx, start, raw)
}

func (a *Analyzer) analyze(ctx context.Context, start time.Time, raw []contract.RawTool) (*contract.AnalysisResult, error) {
	timer := logging.StartTimer(logging.CategoryAnalysis, "analyze")
	defer timer.Stop()

	// A nameless tool rejects the whole batch; no partial results.
	for i := range raw {
		if raw[i].Name == "" {
			return nil, contract.MissingNameError(i)
		}
	}

	tools, err := a.normalize(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, contract.TimeoutError("normalize", time.Since(start))
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, contract.TimeoutError("normalize", time.Since(start))
	}

	// The remaining steps are bounded CPU work.
	idx := index.Build(tools)
	deps := depgraph.Infer(tools)

	rctx := &rules.Context{
		Tools:         tools,
		Deps:          deps,
		Index:         idx,
		Embeddings:    a.embeddings,
		ConcreteNouns: a.opts.ConcreteNouns,
	}
	diags := a.engine.Run(rctx, a.opts.RuleSelectors)

	result := Synthesize(diags, a.opts.StrictMode)
	result.Dependencies = deps
	result.ToolCount = len(tools)

	logging.Analysis("Analyzed %d tools in %s: %s (%d errors, %d warnings)",
		len(tools), time.Since(start).Round(time.Millisecond), result.Verdict,
		len(result.Errors), len(result.Warnings))

	return result, nil
}

// initConcepts prepares the concept anchors. A missing service is fine; a
// failing one is fatal per the embedding contract.
func (a *Analyzer) initConcepts(ctx context.Context) error {
	if a.embeddings == nil {
		return nil
	}
	return a.embeddings.InitConcepts(ctx)
}

// normalize flattens every tool, in parallel, preserving input order.
func (a *Analyzer) normalize(ctx context.Context, raw []contract.RawTool) ([]contract.ToolSpec, error) {
	norm := schema.NewNormalizer(a.embeddings)
	tools := make([]contract.ToolSpec, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(normalizeParallelism)
	for i := range raw {
		g.Go(func() error {
			spec, err := norm.NormalizeTool(gctx, raw[i])
			if err != nil {
				return err
			}
			tools[i] = spec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tools, nil
}
