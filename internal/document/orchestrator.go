package document

import (
	"context"
	"log/slog"
	"path"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpv-information-centre/reportcompiler/internal/compiler"
	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/fragment"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/metrics"
	"github.com/hpv-information-centre/reportcompiler/internal/observability"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// DefaultWorkers is the fragment pool size used when none is configured.
func DefaultWorkers() int { return runtime.GOMAXPROCS(0) }

// Orchestrator generates documents. Fragments of one document are
// independent: they run concurrently, but results are merged in pre-order so
// the DocumentContext does not depend on completion order.
type Orchestrator struct {
	compiler       *compiler.Compiler
	registry       *plugin.Registry
	workers        int
	renderer       Renderer
	postprocessors []Postprocessor
	recorder       metrics.Recorder
	logger         *slog.Logger
}

// NewOrchestrator creates an orchestrator. registry serves the augmentation
// pre-pass; fragment strategies are resolved by the compiler.
func NewOrchestrator(c *compiler.Compiler, registry *plugin.Registry) *Orchestrator {
	return &Orchestrator{
		compiler: c,
		registry: registry,
		workers:  DefaultWorkers(),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
}

// WithWorkers sets the fragment pool size. Values below 1 mean 1.
func (o *Orchestrator) WithWorkers(n int) *Orchestrator {
	if n < 1 {
		n = 1
	}
	o.workers = n
	return o
}

// WithRenderer sets the main-template renderer.
func (o *Orchestrator) WithRenderer(r Renderer) *Orchestrator {
	o.renderer = r
	return o
}

// WithPostprocessors sets the post-processors, applied in order.
func (o *Orchestrator) WithPostprocessors(p ...Postprocessor) *Orchestrator {
	o.postprocessors = p
	return o
}

// WithRecorder sets the metrics recorder.
func (o *Orchestrator) WithRecorder(r metrics.Recorder) *Orchestrator {
	o.recorder = metrics.OrNoop(r)
	return o
}

// WithLogger sets the base logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// Workers returns the fragment pool size.
func (o *Orchestrator) Workers() int { return o.workers }

// Generate compiles every selected fragment, then merges, renders and
// post-processes. Any failure is returned as a *errors.FragmentGenerationError
// naming the document; fragment failures are collected over the whole tree
// before it is raised. The returned Document is non-nil whenever fragments
// ran, so callers can report per-fragment outcomes on failure too.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Document, error) {
	start := time.Now()
	suffix := req.Env.Suffix
	if suffix == "" {
		suffix = req.Param.Suffix()
		if suffix == "" {
			suffix = docparam.DefaultSuffix
		}
		req.Env.Suffix = suffix
	}
	ctx = observability.WithDocument(ctx, suffix)
	log := observability.Logger(ctx, o.logger)

	doc, err := o.generate(ctx, log, req)
	if doc == nil {
		doc = &Document{Suffix: suffix, Param: req.Param}
	}
	doc.Duration = time.Since(start)
	o.recorder.ObserveDocumentDuration(doc.Duration)
	o.recorder.IncDocumentOutcome(err == nil)
	if err != nil {
		fge := rcerrors.AsDocumentFailure(suffix, err)
		log.Error("Document failed", logfields.Count(len(fge.Failures)), logfields.Error(fge))
		return doc, fge
	}
	log.Info("Document generated", logfields.DurationMS(float64(doc.Duration.Microseconds())/1000), logfields.Path(doc.Output))
	return doc, nil
}

func (o *Orchestrator) generate(ctx context.Context, log *slog.Logger, req Request) (*Document, error) {
	if req.Tree == nil {
		return nil, rcerrors.ConfigurationError("document has no template tree")
	}
	nodes, err := req.Tree.Subset(req.Fragments...)
	if err != nil {
		return nil, rcerrors.WrapConfiguration(err, "invalid fragment selection")
	}

	log.Info("Generating document", logfields.Count(len(nodes)), logfields.Workers(o.workers))
	param, err := Augment(ctx, o.registry, req.Param, req.Metadata, req.Env, req.Augmentation, log)
	if err != nil {
		return nil, err
	}
	doc := &Document{Suffix: req.Env.Suffix, Param: param}

	doc.Fragments = o.compileAll(ctx, nodes, param, req.Metadata, req.Env)
	if fge := collectFailures(req.Env.Suffix, doc.Fragments); fge != nil {
		return doc, fge
	}

	data := make(map[string]any)
	for _, res := range doc.Fragments {
		Merge(data, res.Path, res.Context)
	}
	meta := docparam.CloneMap(req.Metadata)
	if meta == nil {
		meta = make(map[string]any)
	}
	meta[KeyTemplateContextInfo] = req.Tree.ContextInfo()
	meta[KeyDocSuffix] = req.Env.Suffix
	doc.Context = map[string]any{KeyData: data, KeyMeta: meta}

	if err := o.finish(ctx, log, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// compileAll dispatches one unit per node and returns the results in node
// order. Every unit gets its own copy of the parameter and metadata; units
// never fail the group, so one fragment's failure leaves siblings running.
func (o *Orchestrator) compileAll(ctx context.Context, nodes []*fragment.Node, param docparam.Param, metadata map[string]any, env plugin.Env) []compiler.Result {
	o.recorder.SetWorkers(metrics.PoolFragments, o.workers)
	results := make([]compiler.Result, len(nodes))

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, node := range nodes {
		req := compiler.Request{
			Node:     node,
			Param:    param.Clone(),
			Metadata: docparam.CloneMap(metadata),
			Env:      env,
		}
		g.Go(func() error {
			results[i] = o.compiler.CompileFragment(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// collectFailures aggregates failed results in pre-order. Failures are named
// by fragment stem, or by node ID when the stem is already taken.
func collectFailures(suffix string, results []compiler.Result) *rcerrors.FragmentGenerationError {
	var failures []rcerrors.FragmentFailure
	seen := make(map[string]bool)
	for _, res := range results {
		if !res.Failed() {
			continue
		}
		name := fragment.StripExt(path.Base(res.Name))
		if seen[name] {
			name = res.Fragment
		}
		seen[name] = true
		failures = append(failures, rcerrors.NewFragmentFailure(name, res.Err))
	}
	if len(failures) == 0 {
		return nil
	}
	return &rcerrors.FragmentGenerationError{Document: suffix, Failures: failures}
}

func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, doc *Document) error {
	if o.renderer == nil {
		return nil
	}
	log.Debug("Rendering template", logfields.Stage("render"))
	out, err := o.renderer.Render(ctx, doc)
	if err != nil {
		return rcerrors.RenderError(err)
	}
	doc.Output = out

	for _, p := range o.postprocessors {
		log.Debug("Postprocessing", logfields.Stage("postprocess"), logfields.Strategy(p.Name()))
		out, err := p.Process(ctx, doc, doc.Output)
		if err != nil {
			return rcerrors.PostprocessError(p.Name(), err)
		}
		doc.Output = out
	}
	return nil
}
