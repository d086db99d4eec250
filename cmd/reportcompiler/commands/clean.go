package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/hpv-information-centre/reportcompiler/internal/batch"
	"github.com/hpv-information-centre/reportcompiler/internal/config"
	"github.com/hpv-information-centre/reportcompiler/internal/incremental"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/workspace"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct {
	Spec      string   `arg:"" help:"Document specification directory"`
	Documents []string `arg:"" optional:"" help:"Document suffixes to remove (default: all)"`
	Keep      []string `short:"k" help:"Document suffixes to keep"`
	DryRun    bool     `name:"dry-run" help:"List the documents that would be removed"`
}

func (c *CleanCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	spec, err := root.openSpec(ctx, g, c.Spec)
	if err != nil {
		return err
	}
	if c.DryRun {
		docs, err := spec.Layout.Documents()
		if err != nil {
			return err
		}
		for _, d := range selectDocs(docs, c.Documents, c.Keep) {
			fmt.Fprintln(g.Stdout, d)
		}
		return nil
	}

	removed, err := spec.Layout.Clean(c.Documents, c.Keep)
	for _, d := range removed {
		fmt.Fprintf(g.Stdout, "removed %s\n", d)
	}
	if err != nil {
		return err
	}
	return purgeCache(ctx, g, spec.Layout, removed)
}

// purgeCache drops the cache entries of removed documents for backends that
// live outside their generation directories.
func purgeCache(ctx context.Context, g *Global, layout workspace.Layout, removed []string) error {
	if len(removed) == 0 {
		return nil
	}
	switch g.Options.CacheBackend {
	case config.CacheNATS:
	case config.CacheSQLite:
		// gen/ is gone with its database once every document was removed.
		if _, err := os.Stat(layout.Gen()); err != nil {
			return nil
		}
	default:
		return nil
	}
	store, err := batch.OpenStore(g.Options, layout)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	cache := incremental.NewContentCache(store).WithLogger(g.Logger)
	for _, d := range removed {
		if err := cache.Purge(ctx, d); err != nil {
			return err
		}
		g.Logger.Debug("Cache purged", logfields.Document(d))
	}
	return nil
}

func selectDocs(existing, docs, keep []string) []string {
	want := make(map[string]bool, len(docs))
	for _, d := range docs {
		want[d] = true
	}
	skip := make(map[string]bool, len(keep))
	for _, k := range keep {
		skip[k] = true
	}
	var out []string
	for _, d := range existing {
		if (len(docs) > 0 && !want[d]) || skip[d] {
			continue
		}
		out = append(out, d)
	}
	return out
}
