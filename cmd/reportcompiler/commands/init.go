package commands

import (
	"context"
	"fmt"

	"github.com/hpv-information-centre/reportcompiler/internal/docspec"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Dir string `arg:"" help:"Directory of the new document specification; its parent must exist"`
}

func (c *InitCmd) Run(_ context.Context, g *Global, _ *CLI) error {
	if err := docspec.Create(c.Dir); err != nil {
		return err
	}
	fmt.Fprintf(g.Stdout, "Document specification created at %s\n", c.Dir)
	return nil
}
