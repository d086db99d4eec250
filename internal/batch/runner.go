package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hpv-information-centre/reportcompiler/internal/compiler"
	"github.com/hpv-information-centre/reportcompiler/internal/config"
	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	"github.com/hpv-information-centre/reportcompiler/internal/docspec"
	"github.com/hpv-information-centre/reportcompiler/internal/document"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/git"
	"github.com/hpv-information-centre/reportcompiler/internal/incremental"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/markdown"
	"github.com/hpv-information-centre/reportcompiler/internal/metrics"
	"github.com/hpv-information-centre/reportcompiler/internal/observability"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
	"github.com/hpv-information-centre/reportcompiler/internal/storage"
	"github.com/hpv-information-centre/reportcompiler/internal/templates"
	"github.com/hpv-information-centre/reportcompiler/internal/workspace"
)

// DefaultSuffix names the document of a parameter without values.
const DefaultSuffix = docparam.DefaultSuffix

// Request is one batch run.
type Request struct {
	Spec    *docspec.Spec
	Params  []docparam.Param
	Options config.Normalized
}

// Runner generates batches of documents.
type Runner struct {
	registry *plugin.Registry
	recorder metrics.Recorder
	logger   *slog.Logger
	// store overrides the backend selected by the run options.
	store storage.RecordStore
}

// NewRunner creates a runner resolving strategies through registry.
func NewRunner(registry *plugin.Registry) *Runner {
	return &Runner{
		registry: registry,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
}

// WithRecorder sets the metrics recorder.
func (r *Runner) WithRecorder(rec metrics.Recorder) *Runner {
	r.recorder = metrics.OrNoop(rec)
	return r
}

// WithLogger sets the console logger. Per-document log files receive the
// same records.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithStore makes every run use store instead of opening one from the run
// options. The runner does not close it.
func (r *Runner) WithStore(store storage.RecordStore) *Runner {
	r.store = store
	return r
}

// run is the shared state of one batch.
type run struct {
	*Runner
	spec      *docspec.Spec
	opts      config.Normalized
	debug     bool
	cache     *incremental.ContentCache
	metadata  map[string]any
	renderer  document.Renderer
	fragments int
}

// Run generates one document per distinct parameter. Specification-level
// problems (configuration, parameter validation, style fetching) abort the
// run with their own error. Document failures are reported in the returned
// Report and summarised by a *errors.BatchError.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	log := observability.Logger(ctx, r.logger)

	if req.Spec == nil {
		return nil, rcerrors.ConfigurationError("no document specification")
	}
	spec := req.Spec
	report := &Report{RunID: runID, Spec: spec.Dir, StartTime: start}
	if commit, err := git.Head(spec.Dir); err == nil {
		report.Commit = commit
	}

	b := &run{Runner: r, spec: spec, opts: req.Options}
	b.debug = req.Options.Debug || spec.Config.Debug
	docWorkers, fragWorkers := req.Options.DocWorkers, req.Options.FragmentWorkers
	if b.debug {
		docWorkers, fragWorkers = 1, 1
	}
	b.fragments = fragWorkers

	store := r.store
	if store == nil {
		s, err := OpenStore(req.Options, spec.Layout)
		if err != nil {
			return nil, rcerrors.InternalError("cannot open the content cache", err)
		}
		defer func() {
			if cerr := s.Close(); cerr != nil {
				log.Warn("Failed to close the content cache", logfields.Error(cerr))
			}
		}()
		store = s
	}
	b.cache = incremental.NewContentCache(store).WithLogger(log)

	b.metadata = spec.Metadata(req.Options.RandomSeed)
	if err := spec.ResolveStyle(ctx, r.registry, b.metadata, log); err != nil {
		return nil, err
	}

	params := docspec.Dedupe(req.Params, log)
	if err := spec.Validate(ctx, r.registry, params, b.metadata, log); err != nil {
		return nil, err
	}

	renderer, err := templates.New(spec.Config.TemplateRenderer, spec.Layout.Templates(), spec.LibraryDir, spec.Config.MainTemplate)
	if err != nil {
		return nil, rcerrors.WrapConfiguration(err, "invalid template renderer")
	}
	b.renderer = renderer
	if _, err := markdown.Postprocessors(spec.Config.Postprocessors, log); err != nil {
		return nil, rcerrors.WrapConfiguration(err, "invalid postprocessors")
	}

	if b.debug {
		if err := compiler.ResetDebugErrors(spec.Layout.Meta()); err != nil {
			log.Warn("Failed to reset debug snapshots", logfields.Error(err))
		}
	}

	suffixes := assignSuffixes(params, log)
	log.Info("Generating documents",
		logfields.Spec(spec.Dir),
		logfields.Count(len(params)),
		logfields.Workers(docWorkers))
	r.recorder.SetWorkers(metrics.PoolDocuments, docWorkers)

	report.Documents = make([]Outcome, len(params))
	var g errgroup.Group
	g.SetLimit(docWorkers)
	for i, p := range params {
		g.Go(func() error {
			report.Documents[i] = b.document(ctx, suffixes[i], p)
			return nil
		})
	}
	_ = g.Wait()

	if b.debug {
		if n, err := compiler.CollectDebugErrors(spec.Layout.Meta()); err != nil {
			log.Warn("Failed to collect debug snapshots", logfields.Error(err))
		} else if n > 0 {
			log.Info("Debug snapshots collected", logfields.Count(n), logfields.Path(spec.Layout.Meta()))
		}
	}

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(start)
	log.Info("Batch finished",
		slog.Int("succeeded", report.Succeeded()),
		slog.Int("failed", report.Failed()),
		logfields.DurationMS(float64(report.Duration.Microseconds())/1000))
	return report, report.Err()
}

// document generates one document. It never returns an error: failures are
// recorded in the outcome.
func (b *run) document(ctx context.Context, suffix string, param docparam.Param) Outcome {
	start := time.Now()
	out := Outcome{Suffix: suffix, Param: param, Status: StatusFailed}
	fail := func(err error) Outcome {
		out.Err = rcerrors.AsDocumentFailure(suffix, err)
		out.Duration = time.Since(start)
		b.recorder.IncDocumentOutcome(false)
		observability.Logger(observability.WithDocument(ctx, suffix), b.logger).
			Error("Document failed", logfields.Error(err))
		return out
	}

	dirs, err := b.spec.Layout.For(suffix)
	if err != nil {
		return fail(err)
	}
	if err := dirs.Create(); err != nil {
		return fail(err)
	}

	logger, closeLog, err := b.documentLogger(dirs)
	if err != nil {
		return fail(rcerrors.WorkspaceError("open log file", err))
	}
	defer closeLog()
	out.LogFile = logFile(dirs, b.spec.Name())

	postprocessors, err := markdown.Postprocessors(b.spec.Config.Postprocessors, logger)
	if err != nil {
		return fail(rcerrors.WrapConfiguration(err, "invalid postprocessors"))
	}

	comp := compiler.New(b.registry, b.cache, compiler.Options{
		SkipUnchanged: b.spec.Config.SkipUnchanged(),
		Debug:         b.debug,
		DebugDir:      b.spec.Layout.Meta(),
		SpecName:      b.spec.Name(),
	}).WithRecorder(b.recorder).WithLogger(logger)

	orch := document.NewOrchestrator(comp, b.registry).
		WithWorkers(b.fragments).
		WithRenderer(b.renderer).
		WithPostprocessors(postprocessors...).
		WithRecorder(b.recorder).
		WithLogger(logger)

	meta := docparam.CloneMap(b.metadata)
	for k, v := range dirs.Metadata() {
		meta[k] = v
	}

	doc, err := orch.Generate(ctx, document.Request{
		Tree:         b.spec.Tree,
		Param:        param,
		Metadata:     meta,
		Env:          dirs.Env(),
		Fragments:    b.opts.Fragments,
		Augmentation: b.spec.Config.Params.Augmentation,
	})
	if doc != nil {
		out.Param = doc.Param
		out.Counts = doc.Counts()
		out.Output = doc.Output
	}
	out.Duration = time.Since(start)
	if err != nil {
		var fge *rcerrors.FragmentGenerationError
		if !errors.As(err, &fge) {
			fge = rcerrors.AsDocumentFailure(suffix, err)
		}
		out.Err = fge
		return out
	}
	out.Status = StatusSuccess
	return out
}

// documentLogger tees the console logger with a JSON log file in the
// document's log directory. The file is truncated on every run.
func (b *run) documentLogger(dirs workspace.Dirs) (*slog.Logger, func(), error) {
	path := logFile(dirs, b.spec.Name())
	// #nosec G304 - path is built from the workspace layout
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := observability.Tee(b.logger.Handler(), file)
	return logger, func() { _ = f.Close() }, nil
}

func logFile(dirs workspace.Dirs, name string) string {
	return filepath.Join(dirs.Log, name+".log")
}

// assignSuffixes names every document. A parameter without values becomes
// DefaultSuffix; a suffix already taken by another parameter falls back to
// the key-including form, then to a numbered one.
func assignSuffixes(params []docparam.Param, logger *slog.Logger) []string {
	out := make([]string, len(params))
	taken := make(map[string]bool, len(params))
	for i, p := range params {
		s := p.Suffix()
		if s == "" {
			s = DefaultSuffix
		}
		if taken[s] {
			alt := p.UniqueSuffix()
			for n := 2; alt == "" || taken[alt]; n++ {
				alt = fmt.Sprintf("%s~%d", s, n)
			}
			logger.Warn("Document suffix collides with another parameter, using the unambiguous form",
				logfields.Param(p.String()),
				logfields.Document(alt))
			s = alt
		}
		taken[s] = true
		out[i] = s
	}
	return out
}
