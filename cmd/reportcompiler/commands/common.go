package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/hpv-information-centre/reportcompiler/internal/batch"
	"github.com/hpv-information-centre/reportcompiler/internal/config"
	"github.com/hpv-information-centre/reportcompiler/internal/docspec"
	"github.com/hpv-information-centre/reportcompiler/internal/git"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/metrics"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin/builtin"
	"github.com/hpv-information-centre/reportcompiler/internal/retry"
	"github.com/hpv-information-centre/reportcompiler/internal/workspace"
)

// Global carries the state shared by every command. AfterApply fills it
// from the global flags.
type Global struct {
	Logger   *slog.Logger
	Options  config.Normalized
	Recorder metrics.Recorder
	// Metrics is set when --metrics-file is given.
	Metrics *prom.Registry
	// Registry resolves the stage strategies. Nil selects the built-ins.
	Registry *plugin.Registry
	Stdout   io.Writer
	Stderr   io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Verbose     bool             `short:"v" help:"Enable verbose logging and stack traces in failure reports"`
	LogLevel    string           `name:"log-level" help:"Log level (debug, info, warn, error)" default:"info" env:"RC_LOG_LEVEL"`
	LogFormat   string           `name:"log-format" help:"Log format (text, json)" default:"text" env:"RC_LOG_FORMAT"`
	MetricsFile string           `name:"metrics-file" help:"Write Prometheus metrics to this file when the command ends" type:"path"`
	Version     kong.VersionFlag `name:"version" help:"Show version and exit"`

	DocWorkers      int    `name:"doc-workers" short:"j" help:"Documents generated concurrently (default 2)"`
	FragmentWorkers int    `name:"fragment-workers" help:"Fragments compiled concurrently per document (default GOMAXPROCS)"`
	Debug           bool   `help:"Run serially and keep debug snapshots of failing fragments"`
	Seed            *int64 `help:"Override the random_seed of the specification"`
	Cache           string `help:"Content cache backend (fs, sqlite, memory, nats)" default:"fs" env:"RC_CACHE"`
	NATSURL         string `name:"nats-url" help:"NATS server for the nats cache backend" env:"NATS_URL"`
	NATSBucket      string `name:"nats-bucket" help:"JetStream key-value bucket for the nats cache backend"`

	Repo       string `help:"Git repository holding the document specification"`
	Branch     string `help:"Branch to check out with --repo (default: remote HEAD)"`
	RepoPath   string `name:"repo-path" help:"Specification directory inside the repository"`
	GitAuth    string `name:"git-auth" help:"Git authentication (none, ssh, token, basic); credentials come from RC_GIT_* variables" env:"RC_GIT_AUTH"`
	WorkDir    string `name:"work-dir" help:"Directory for repository clones" type:"path"`
	Reset      bool   `name:"reset-on-diverge" help:"Hard reset a clone whose branch diverged from the remote"`
	GitRetries int    `name:"git-retries" help:"Retries of a timed out clone or fetch" default:"2"`

	Generate GenerateCmd `cmd:"" help:"Generate one document per parameter"`
	Fragment FragmentCmd `cmd:"" help:"Regenerate only the named fragments and their descendants"`
	Tree     TreeCmd     `cmd:"" help:"Print the fragment tree of a document specification"`
	Init     InitCmd     `cmd:"" help:"Create a new document specification"`
	Clean    CleanCmd    `cmd:"" help:"Remove generated documents"`
	Watch    WatchCmd    `cmd:"" help:"Regenerate documents whenever the specification changes"`
	Schedule ScheduleCmd `cmd:"" help:"Regenerate documents periodically"`
	Explain  ExplainCmd  `cmd:"" help:"Show the cached fingerprints of a document's fragments"`
}

// AfterApply runs after flag parsing; it sets up logging, metrics and the
// normalised run options once.
func (c *CLI) AfterApply(g *Global) error {
	if g.Stdout == nil {
		g.Stdout = os.Stdout
	}
	if g.Stderr == nil {
		g.Stderr = os.Stderr
	}
	level := c.LogLevel
	if c.Verbose {
		level = string(config.LogDebug)
	}
	opts, warnings, err := config.RunOptions{
		DocWorkers:      c.DocWorkers,
		FragmentWorkers: c.FragmentWorkers,
		Debug:           c.Debug,
		LogLevel:        level,
		LogFormat:       c.LogFormat,
		CacheBackend:    c.Cache,
		NATSURL:         c.NATSURL,
		NATSBucket:      c.NATSBucket,
		RandomSeed:      c.Seed,
	}.Normalize()
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	g.Options = opts
	if g.Logger == nil {
		g.Logger = config.NewLogger(g.Stderr, opts.LogLevel, opts.LogFormat)
		slog.SetDefault(g.Logger)
	}
	for _, w := range warnings {
		g.Logger.Warn(w)
	}

	g.Recorder = metrics.NoopRecorder{}
	if c.MetricsFile != "" {
		g.Metrics = prom.NewRegistry()
		g.Recorder = metrics.NewPrometheusRecorder(g.Metrics)
	}
	if g.Registry == nil {
		reg, err := builtin.NewRegistry()
		if err != nil {
			return err
		}
		g.Registry = reg
	}
	return nil
}

// AfterRun writes the metrics file.
func (c *CLI) AfterRun(g *Global) error {
	if g.Metrics == nil || c.MetricsFile == "" {
		return nil
	}
	if err := metrics.WriteTextfile(g.Metrics, c.MetricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	g.Logger.Debug("Metrics written", logfields.Path(c.MetricsFile))
	return nil
}

// resolveSpec returns the specification directory: dir itself, or with
// --repo the checked out repository directory.
func (c *CLI) resolveSpec(ctx context.Context, g *Global, dir string) (string, error) {
	if c.Repo == "" {
		if dir == "" {
			return "", errors.New("a document specification directory is required")
		}
		return dir, nil
	}
	sub := c.RepoPath
	if sub == "" {
		sub = dir
	}
	if sub == "" {
		sub = "."
	}
	ws, err := c.workspace(g)
	if err != nil {
		return "", err
	}
	client := git.NewClient(ws.Path()).
		WithLogger(g.Logger).
		WithHardResetOnDiverge(c.Reset).
		WithRetry(retry.NewPolicy(retry.ModeExponential, time.Second, 30*time.Second, c.GitRetries))
	return client.Checkout(ctx, git.Repository{
		URL:    c.Repo,
		Branch: c.Branch,
		Path:   sub,
		Auth:   git.AuthFromEnv(c.GitAuth),
	})
}

// workspace is the persistent clone directory. Clones are reused between
// runs so only new commits are fetched.
func (c *CLI) workspace(g *Global) (*workspace.Manager, error) {
	base := c.WorkDir
	if base == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			cache = os.TempDir()
		}
		base = filepath.Join(cache, "reportcompiler")
	}
	ws := workspace.NewPersistentManager(base, "repositories").WithLogger(g.Logger)
	if err := ws.Create(); err != nil {
		return nil, err
	}
	return ws, nil
}

// openSpec resolves and loads the document specification.
func (c *CLI) openSpec(ctx context.Context, g *Global, dir string) (*docspec.Spec, error) {
	resolved, err := c.resolveSpec(ctx, g, dir)
	if err != nil {
		return nil, err
	}
	return docspec.Open(resolved)
}

// generation is the shared input of the commands that generate documents.
type generation struct {
	spec      string
	params    []string
	fragments []string
}

// generate opens the specification, runs one batch and prints its report.
// A specification loaded from git is checked out again on every call.
func (c *CLI) generate(ctx context.Context, g *Global, in generation) (*batch.Report, error) {
	spec, err := c.openSpec(ctx, g, in.spec)
	if err != nil {
		return nil, err
	}
	params, err := spec.ParseParams(in.params)
	if err != nil {
		return nil, err
	}
	opts := g.Options
	if len(in.fragments) > 0 {
		opts.Fragments = append([]string(nil), in.fragments...)
	}
	runner := batch.NewRunner(g.Registry).
		WithRecorder(g.Recorder).
		WithLogger(g.Logger)
	report, err := runner.Run(ctx, batch.Request{Spec: spec, Params: params, Options: opts})
	if report != nil {
		printReport(g.Stdout, report)
	}
	return report, err
}
