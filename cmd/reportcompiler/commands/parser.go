package commands

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/hpv-information-centre/reportcompiler/internal/version"
)

// NewParser builds the kong parser over cli. g is bound for hooks and
// commands.
func NewParser(cli *CLI, g *Global, options ...kong.Option) (*kong.Kong, error) {
	opts := append([]kong.Option{
		kong.Name("reportcompiler"),
		kong.Description("Generate parameterised documents from fragment templates, data sources and context builders."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(g),
	}, options...)
	return kong.New(cli, opts...)
}

// Execute parses args and runs the selected command under ctx.
func Execute(ctx context.Context, cli *CLI, g *Global, args []string, options ...kong.Option) error {
	parser, err := NewParser(cli, g, options...)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run()
}
