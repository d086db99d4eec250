package commands

import (
	"context"
	"fmt"
	"time"

	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/schedule"
)

// ScheduleCmd implements the 'schedule' command. With --repo every run
// fetches the repository first, so new commits are picked up.
type ScheduleCmd struct {
	Spec   string        `arg:"" help:"Document specification directory"`
	Params []string      `arg:"" optional:"" help:"Document parameters"`
	Every  time.Duration `help:"Interval between runs" default:"1h"`
	Now    bool          `help:"Run once immediately instead of after the first interval" default:"true" negatable:""`
}

func (c *ScheduleCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	s, err := schedule.NewScheduler()
	if err != nil {
		return err
	}
	s.WithLogger(g.Logger)
	adapter := rcerrors.NewCLIErrorAdapter(root.Verbose, g.Logger)
	adapter.SetOutput(g.Stderr)

	in := generation{spec: c.Spec, params: c.Params}
	task := func(ctx context.Context) error {
		_, err := root.generate(ctx, g, in)
		if err != nil {
			fmt.Fprintln(g.Stderr, adapter.FormatError(err))
		}
		return err
	}
	if _, err := s.Every(ctx, "reportcompiler-generate", c.Every, c.Now, task); err != nil {
		_ = s.Stop()
		return err
	}
	return s.Run(ctx)
}
