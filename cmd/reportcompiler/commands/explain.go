package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/hpv-information-centre/reportcompiler/internal/batch"
	"github.com/hpv-information-centre/reportcompiler/internal/fragment"
	"github.com/hpv-information-centre/reportcompiler/internal/incremental"
)

// ExplainCmd implements the 'explain' command. It reads the content cache
// only: data and metadata are not fetched, so of the current inputs only the
// source code is compared.
type ExplainCmd struct {
	Spec      string   `arg:"" help:"Document specification directory"`
	Document  string   `arg:"" help:"Document suffix"`
	Fragments []string `arg:"" optional:"" help:"Restrict to these fragments and their descendants"`
	Against   string   `help:"Compare with the cached fingerprints of another document"`
}

func (c *ExplainCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	spec, err := root.openSpec(ctx, g, c.Spec)
	if err != nil {
		return err
	}
	nodes := spec.Tree.PreOrder()
	if len(c.Fragments) > 0 {
		if nodes, err = spec.Tree.Subset(c.Fragments...); err != nil {
			return err
		}
	}

	store, err := batch.OpenStore(g.Options, spec.Layout)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	cache := incremental.NewContentCache(store).WithLogger(g.Logger)

	for _, n := range nodes {
		c.explain(ctx, g.Stdout, cache, n)
	}
	return nil
}

func (c *ExplainCmd) explain(ctx context.Context, w io.Writer, cache *incremental.ContentCache, n *fragment.Node) {
	yellow := color.New(color.FgYellow).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	key := incremental.Key{Namespace: c.Document, Fragment: n.ID()}
	if n.Source == "" {
		fmt.Fprintf(w, "%s %s\n", n.ID(), faint("no source"))
		return
	}
	fp, ok := cache.Previous(ctx, key)
	if !ok {
		fmt.Fprintf(w, "%s %s\n", n.ID(), yellow("not cached"))
		return
	}
	fmt.Fprintln(w, n.ID())
	for _, comp := range incremental.Components {
		fmt.Fprintf(w, "  %-8s %s\n", comp, short(fp.Get(comp)))
	}
	if source, err := os.ReadFile(n.Source); err == nil && incremental.HashBytes(source) != fp.Code {
		fmt.Fprintf(w, "  %s\n", yellow("source changed since the last run"))
	}
	if c.Against == "" {
		return
	}
	other := incremental.Key{Namespace: c.Against, Fragment: n.ID()}
	theirs, ok := cache.Previous(ctx, other)
	if !ok {
		fmt.Fprintf(w, "  %s\n", faint("not cached for "+c.Against))
		return
	}
	changed, _ := cache.ExplainMiss(ctx, key, theirs)
	if len(changed) == 0 {
		fmt.Fprintf(w, "  same inputs as %s\n", c.Against)
		return
	}
	names := make([]string, len(changed))
	for i, comp := range changed {
		names[i] = string(comp)
	}
	fmt.Fprintf(w, "  differs from %s in %s\n", c.Against, yellow(strings.Join(names, ", ")))
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
