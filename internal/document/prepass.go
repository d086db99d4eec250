package document

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// AugmentationFragment labels failures of the parameter augmentation pre-pass.
const AugmentationFragment = "<augmentation>"

// FetchAll runs specs in order through the registry's data sources and
// returns their results keyed by fetcher name. label names the caller in
// errors and in in.Fragment.
func FetchAll(ctx context.Context, registry *plugin.Registry, in *plugin.Input, specs []plugin.FetcherSpec, label string) (map[string]any, error) {
	log := in.Log()
	out := make(map[string]any, len(specs))
	for _, spec := range specs {
		ds, err := registry.DataSource(spec.Type)
		if err != nil {
			return nil, err
		}
		log.Debug("Fetching data", logfields.Fetcher(spec.Name), logfields.Strategy(spec.Type))
		v, err := ds.Fetch(ctx, in, spec)
		if err != nil {
			return nil, rcerrors.DataFetchError(label, spec.Name, err)
		}
		out[spec.Name] = v
	}
	return out, nil
}

// Augment runs the augmentation fetchers and appends the first row of each
// result to param. When two results share a column the earlier fetcher wins.
func Augment(ctx context.Context, registry *plugin.Registry, param docparam.Param, metadata map[string]any, env plugin.Env, specs []plugin.FetcherSpec, logger *slog.Logger) (docparam.Param, error) {
	if len(specs) == 0 {
		return param, nil
	}
	logger.Info("Starting parameter augmentation", logfields.Count(len(specs)))
	in := &plugin.Input{
		Fragment: AugmentationFragment,
		Name:     AugmentationFragment,
		Param:    param,
		Metadata: metadata,
		Env:      env,
		Logger:   logger,
	}
	results, err := FetchAll(ctx, registry, in, specs, AugmentationFragment)
	if err != nil {
		return param, err
	}

	fields := make(map[string]any)
	for _, spec := range specs {
		row, err := FirstRow(results[spec.Name])
		if err != nil {
			return param, rcerrors.DataFetchError(AugmentationFragment, spec.Name, err)
		}
		for k, v := range row {
			if _, seen := fields[k]; !seen {
				fields[k] = v
			}
		}
	}
	return param.Augment(fields), nil
}

// FirstRow returns the first row of a table-shaped fetcher result: a list of
// mappings, or a single mapping taken as a one-row table.
func FirstRow(v any) (map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []map[string]any:
		if len(t) == 0 {
			return nil, fmt.Errorf("empty result")
		}
		return t[0], nil
	case []any:
		if len(t) == 0 {
			return nil, fmt.Errorf("empty result")
		}
		row, ok := t[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("first row is %T, not a mapping", t[0])
		}
		return row, nil
	default:
		return nil, fmt.Errorf("result of type %T is not a table", v)
	}
}
