package commands

import (
	"context"
	"fmt"

	"github.com/hpv-information-centre/reportcompiler/internal/fragment"
)

// TreeCmd implements the 'tree' command.
type TreeCmd struct {
	Spec      string   `arg:"" help:"Document specification directory"`
	Fragments []string `arg:"" optional:"" help:"Only print the subtrees of these fragments"`
	Sources   bool     `help:"Print the source file of every fragment"`
}

func (c *TreeCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	spec, err := root.openSpec(ctx, g, c.Spec)
	if err != nil {
		return err
	}
	roots := []*fragment.Node{spec.Tree}
	if len(c.Fragments) > 0 {
		roots = nil
		for _, name := range c.Fragments {
			found := spec.Tree.Find(name)
			if len(found) == 0 {
				return fmt.Errorf("fragment %q is not part of the template tree", name)
			}
			roots = append(roots, found...)
		}
	}
	for _, n := range roots {
		fmt.Fprintln(g.Stdout, n.String())
		if !c.Sources {
			continue
		}
		for _, d := range n.PreOrder() {
			src := d.Source
			if src == "" {
				src = "-"
			}
			fmt.Fprintf(g.Stdout, "%s\t%s\n", d.ID(), src)
		}
	}
	fmt.Fprintln(g.Stdout, fragment.Describe(spec.Tree))
	return nil
}
