package docspec

import (
	"context"
	"log/slog"

	"github.com/hpv-information-centre/reportcompiler/internal/config"
	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	"github.com/hpv-information-centre/reportcompiler/internal/document"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// StyleFragment labels failures of the style fetchers.
const StyleFragment = "<style>"

// ResolveStyle runs the data fetchers declared in the style section once and
// stores their results in meta["style"] under the fetcher names. The
// declaration itself is removed from the style. meta is modified in place.
func (s *Spec) ResolveStyle(ctx context.Context, registry *plugin.Registry, meta map[string]any, logger *slog.Logger) error {
	style, ok := meta[config.KeyStyle].(map[string]any)
	if !ok {
		return nil
	}
	specs, err := plugin.ParseFetchers(style, plugin.KeyDataFetcher)
	if err != nil {
		return rcerrors.WrapConfiguration(err, "invalid style data fetchers")
	}
	if len(specs) == 0 {
		return nil
	}
	logger.Info("Fetching style data", logfields.Count(len(specs)))
	in := &plugin.Input{
		Fragment: StyleFragment,
		Name:     StyleFragment,
		Metadata: docparam.CloneMap(meta),
		Env:      s.env(),
		Logger:   logger,
	}
	results, err := document.FetchAll(ctx, registry, in, specs, StyleFragment)
	if err != nil {
		return err
	}
	resolved := docparam.CloneMap(style)
	delete(resolved, plugin.KeyDataFetcher)
	for name, v := range results {
		resolved[name] = v
	}
	meta[config.KeyStyle] = resolved
	return nil
}

// env is the environment of specification-level fetches, which belong to no
// document.
func (s *Spec) env() plugin.Env {
	return plugin.Env{
		SpecDir:        s.Dir,
		SourceDir:      s.Layout.Sources(),
		DataDir:        s.Layout.Data(),
		CredentialsDir: s.Layout.Credentials(),
	}
}
