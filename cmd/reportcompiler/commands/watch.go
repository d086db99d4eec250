package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Spec     string        `arg:"" help:"Document specification directory"`
	Params   []string      `arg:"" optional:"" help:"Document parameters"`
	Debounce time.Duration `help:"Quiet period before regenerating" default:"300ms"`
}

func (c *WatchCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	if root.Repo != "" {
		return errors.New("watch needs a local document specification; use schedule with --repo")
	}
	spec, err := root.openSpec(ctx, g, c.Spec)
	if err != nil {
		return err
	}
	in := generation{spec: spec.Dir, params: c.Params}
	adapter := rcerrors.NewCLIErrorAdapter(root.Verbose, g.Logger)
	adapter.SetOutput(g.Stderr)

	regenerate := func(ctx context.Context, changed []string) error {
		for _, p := range changed {
			g.Logger.Debug("Changed", logfields.Path(p))
		}
		_, err := root.generate(ctx, g, in)
		if err != nil {
			fmt.Fprintln(g.Stderr, adapter.FormatError(err))
		}
		return err
	}
	if err := regenerate(ctx, nil); err != nil {
		g.Logger.Warn("Initial generation failed; watching for fixes", logfields.Error(err))
	}

	roots := []string{spec.Dir}
	if spec.LibraryDir != "" {
		roots = append(roots, spec.LibraryDir)
	}
	return watch.New(regenerate, roots...).
		WithIgnore(spec.Layout.Gen()).
		WithDebounce(c.Debounce).
		WithLogger(g.Logger).
		Run(ctx)
}
