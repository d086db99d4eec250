package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/hpv-information-centre/reportcompiler/cmd/reportcompiler/commands"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := &commands.CLI{}
	g := &commands.Global{}
	parser, err := commands.NewParser(cli, g)
	if err != nil {
		panic(err)
	}
	kctx, err := parser.Parse(os.Args[1:])
	var perr *kong.ParseError
	if errors.As(err, &perr) {
		parser.FatalIfErrorf(err)
	}
	if err == nil {
		kctx.BindTo(ctx, (*context.Context)(nil))
		err = kctx.Run()
	}
	stop()
	rcerrors.NewCLIErrorAdapter(cli.Verbose, g.Logger).HandleError(err)
}
