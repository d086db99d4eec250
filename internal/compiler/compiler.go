// Package compiler runs the per-fragment pipeline: metadata retrieval, data
// fetching, fingerprinting against the content cache, and context generation.
package compiler

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/fragment"
	"github.com/hpv-information-centre/reportcompiler/internal/incremental"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/metrics"
	"github.com/hpv-information-centre/reportcompiler/internal/observability"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// Metadata keys read or written by the compiler.
const (
	KeySkipUnchanged        = "skip_unchanged_fragments"
	KeyDeleteGeneratorFiles = "delete_generator_files"
	KeyFragmentName         = "fragment_name"
	KeyFragmentID           = "fragment_id"
)

// Stage names used for logs and metrics.
const (
	StageMetadata = "metadata"
	StageData     = "data"
	StageCache    = "cache"
	StageContext  = "context"
)

// Status is the outcome of one fragment compilation.
type Status string

const (
	// StatusComputed means the context builder ran and the cache was updated.
	StatusComputed Status = "computed"
	// StatusCached means the context was read back from the cache.
	StatusCached Status = "cached"
	// StatusEmpty means the fragment has no source and contributes nothing.
	StatusEmpty Status = "empty"
	// StatusFailed means Err is set and Context is nil.
	StatusFailed Status = "failed"
)

// Request is the input of one compilation. The compiler treats Param and
// Metadata as owned: callers hand over copies they no longer touch.
type Request struct {
	Node     *fragment.Node
	Param    docparam.Param
	Metadata map[string]any
	Env      plugin.Env
}

// Result is the FragmentResult of one node: a context or a typed failure.
type Result struct {
	Fragment string
	Name     string
	// Path is where Context is merged into the document context.
	Path        []string
	Context     map[string]any
	Status      Status
	Fingerprint incremental.Fingerprint
	// Changed lists the fingerprint components that differ from the
	// previous run, when a previous run exists and the cache missed.
	Changed  []incremental.Component
	Duration time.Duration
	Err      error
}

// Failed reports whether the compilation failed.
func (r Result) Failed() bool { return r.Err != nil }

// Options tune a Compiler.
type Options struct {
	// SkipUnchanged enables cache reuse. When false every fragment is
	// recomputed, but results are still stored.
	SkipUnchanged bool

	// Debug writes an error_*.json snapshot of the inputs of every failed
	// context generation into DebugDir.
	Debug    bool
	DebugDir string

	// SpecName is recorded in debug snapshots.
	SpecName string
}

// DefaultOptions returns options with caching enabled.
func DefaultOptions() Options {
	return Options{SkipUnchanged: true}
}

// Compiler compiles single fragments. It is safe for concurrent use as long
// as concurrent requests target distinct cache keys.
type Compiler struct {
	registry *plugin.Registry
	cache    *incremental.ContentCache
	opts     Options
	recorder metrics.Recorder
	logger   *slog.Logger
}

// New creates a compiler dispatching strategies through registry.
func New(registry *plugin.Registry, cache *incremental.ContentCache, opts Options) *Compiler {
	return &Compiler{
		registry: registry,
		cache:    cache,
		opts:     opts,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
}

// WithRecorder sets the metrics recorder.
func (c *Compiler) WithRecorder(r metrics.Recorder) *Compiler {
	c.recorder = metrics.OrNoop(r)
	return c
}

// WithLogger sets the base logger.
func (c *Compiler) WithLogger(logger *slog.Logger) *Compiler {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Options returns the compiler options.
func (c *Compiler) Options() Options { return c.opts }

// CompileFragment runs the pipeline for one node. Failures are returned in
// Result.Err, already tagged with the fragment name.
func (c *Compiler) CompileFragment(ctx context.Context, req Request) Result {
	start := time.Now()
	node := req.Node
	ctx = observability.WithFragment(ctx, node.ID())
	log := observability.Logger(ctx, c.logger)

	res := c.compile(ctx, log, req)
	res.Fragment = node.ID()
	res.Name = node.Name
	res.Path = node.ContextPath()
	res.Duration = time.Since(start)

	c.recorder.ObserveFragmentDuration(res.Duration)
	switch res.Status {
	case StatusFailed:
		c.recorder.IncFragmentResult(metrics.ResultFailed)
		log.Error("Fragment failed", logfields.Error(res.Err), logfields.DurationMS(ms(res.Duration)))
	case StatusCached:
		c.recorder.IncFragmentResult(metrics.ResultCached)
		log.Info("Fragment done", logfields.Cache(string(metrics.CacheHit)), logfields.DurationMS(ms(res.Duration)))
	default:
		c.recorder.IncFragmentResult(metrics.ResultSuccess)
		log.Info("Fragment done", logfields.DurationMS(ms(res.Duration)))
	}
	return res
}

func (c *Compiler) compile(ctx context.Context, log *slog.Logger, req Request) Result {
	node := req.Node
	name := node.Stem()
	if node.Source == "" {
		log.Debug("No source file, context will be empty")
		return Result{Context: map[string]any{}, Status: StatusEmpty}
	}
	fail := func(err error) Result { return Result{Status: StatusFailed, Err: err} }

	// #nosec G304 - source paths come from the specification's src directory
	source, err := os.ReadFile(node.Source)
	if err != nil {
		return fail(rcerrors.MetadataError(name, err))
	}
	in := &plugin.Input{
		Fragment:    node.ID(),
		Name:        node.Name,
		Source:      node.Source,
		SourceBytes: source,
		Param:       req.Param,
		Metadata:    req.Metadata,
		Env:         req.Env,
		Logger:      log,
	}

	// 1. metadata
	stageStart := time.Now()
	effective, err := c.retrieveMetadata(ctx, log, in, req.Metadata)
	c.recorder.ObserveStageDuration(StageMetadata, time.Since(stageStart))
	if err != nil {
		return fail(err)
	}
	in.Metadata = effective

	builder, builderID, err := c.registry.ContextBuilderFor(effective, in.Ext())
	if err != nil {
		return fail(tagFragment(err, name))
	}

	// 2. data
	stageStart = time.Now()
	data, order, err := c.fetchData(ctx, log, in)
	c.recorder.ObserveStageDuration(StageData, time.Since(stageStart))
	if err != nil {
		return fail(err)
	}
	in.Data = data
	in.DataOrder = order

	// 3. fingerprint and cache
	stageStart = time.Now()
	fp, err := incremental.ComputeFingerprint(source, req.Param, data, effective)
	if err != nil {
		return fail(rcerrors.InternalError("cannot fingerprint fragment inputs", err).WithFragment(name))
	}
	key := incremental.Key{Namespace: req.Env.Suffix, Fragment: node.ID()}
	cached, changed, hit := c.checkCache(ctx, log, key, fp, skipUnchanged(effective, c.opts.SkipUnchanged))
	c.recorder.ObserveStageDuration(StageCache, time.Since(stageStart))
	if hit {
		return Result{Context: cached, Status: StatusCached, Fingerprint: fp}
	}

	// 4. context
	stageStart = time.Now()
	artifact, err := c.generateContext(ctx, log, in, builder, builderID)
	c.recorder.ObserveStageDuration(StageContext, time.Since(stageStart))
	if err != nil {
		return Result{Status: StatusFailed, Err: err, Fingerprint: fp, Changed: changed}
	}
	if err := c.cache.Store(ctx, key, fp, artifact); err != nil {
		log.Warn("Failed to store fragment context", logfields.Error(err))
	}
	return Result{Context: artifact, Status: StatusComputed, Fingerprint: fp, Changed: changed}
}

func (c *Compiler) checkCache(ctx context.Context, log *slog.Logger, key incremental.Key, fp incremental.Fingerprint, skip bool) (map[string]any, []incremental.Component, bool) {
	if !skip {
		c.recorder.IncCacheResult(metrics.CacheDisabled)
		log.Debug("Cache disabled, generating context", logfields.Cache(string(metrics.CacheDisabled)))
		return nil, nil, false
	}
	if artifact, ok := c.cache.Lookup(ctx, key, fp); ok {
		c.recorder.IncCacheResult(metrics.CacheHit)
		log.Debug("Reusing cached context", logfields.Cache(string(metrics.CacheHit)))
		return artifact, nil, true
	}
	c.recorder.IncCacheResult(metrics.CacheMiss)

	changed, had := c.cache.ExplainMiss(ctx, key, fp)
	switch {
	case !had:
		log.Warn("No previous context found, generating", logfields.Cache(string(metrics.CacheMiss)))
	case len(changed) > 0:
		names := make([]string, 0, len(changed))
		for _, comp := range changed {
			names = append(names, string(comp))
		}
		log.Warn("Fragment inputs differ, generating context", logfields.Cache(string(metrics.CacheMiss)), logfields.Changed(names))
	default:
		log.Info("Cached context not available, generating", logfields.Cache(string(metrics.CacheMiss)))
	}
	return nil, changed, false
}

// skipUnchanged reads the per-document (or per-fragment) override of the
// compiler default.
func skipUnchanged(metadata map[string]any, def bool) bool {
	if v, ok := metadata[KeySkipUnchanged].(bool); ok {
		return v
	}
	return def
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
