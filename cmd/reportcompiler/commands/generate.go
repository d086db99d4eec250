package commands

import (
	"context"
	"errors"
)

// GenerateCmd implements the 'generate' command.
type GenerateCmd struct {
	Spec   string   `arg:"" help:"Document specification directory (the path inside the repository with --repo)"`
	Params []string `arg:"" optional:"" help:"Document parameters: JSON objects, JSON lists of objects, or scalars for the default key"`
}

func (c *GenerateCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	_, err := root.generate(ctx, g, generation{spec: c.Spec, params: c.Params})
	return err
}

// FragmentCmd implements the 'fragment' command.
type FragmentCmd struct {
	Spec      string   `arg:"" help:"Document specification directory"`
	Fragments []string `arg:"" help:"Fragment names or IDs to regenerate"`
	Params    []string `short:"p" name:"param" help:"Document parameter (repeatable)"`
}

func (c *FragmentCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	if len(c.Fragments) == 0 {
		return errors.New("at least one fragment is required")
	}
	_, err := root.generate(ctx, g, generation{spec: c.Spec, params: c.Params, fragments: c.Fragments})
	return err
}
