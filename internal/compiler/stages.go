package compiler

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/incremental"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
	"github.com/hpv-information-centre/reportcompiler/internal/storage"
)

// retrieveMetadata reads the fragment-local metadata and returns the
// effective metadata: a copy of the document metadata with every fragment
// key overriding the document key of the same name (one level, no deep merge).
func (c *Compiler) retrieveMetadata(ctx context.Context, log *slog.Logger, in *plugin.Input, docMeta map[string]any) (map[string]any, error) {
	name := fragmentName(in)
	source, sourceID, err := c.registry.MetadataSourceFor(docMeta, in.Ext())
	if err != nil {
		return nil, tagFragment(err, name)
	}
	log.Debug("Retrieving metadata", logfields.Stage(StageMetadata), logfields.Strategy(sourceID))

	local, err := source.Retrieve(ctx, in)
	if err != nil {
		return nil, rcerrors.MetadataError(name, err)
	}
	return EffectiveMetadata(docMeta, local, in), nil
}

// EffectiveMetadata merges fragment metadata over document metadata and
// records the fragment identity. Neither input is modified.
func EffectiveMetadata(docMeta, local map[string]any, in *plugin.Input) map[string]any {
	effective := docparam.CloneMap(docMeta)
	if effective == nil {
		effective = make(map[string]any, len(local)+2)
	}
	for k, v := range local {
		effective[k] = docparam.DeepCopy(v)
	}
	effective[KeyFragmentName] = fragmentName(in)
	effective[KeyFragmentID] = in.Fragment
	return effective
}

// fetchData runs every declared fetcher in order and returns the results
// keyed by fetcher name, with the names in declaration order. Declaration
// problems are configuration errors raised before any fetcher runs.
func (c *Compiler) fetchData(ctx context.Context, log *slog.Logger, in *plugin.Input) (map[string]any, []string, error) {
	name := fragmentName(in)
	specs, err := plugin.ParseFetchers(in.Metadata, plugin.KeyDataFetcher)
	if err != nil {
		var dup plugin.DuplicateFetcherError
		if stdErrors.As(err, &dup) {
			return nil, nil, rcerrors.DuplicateFetcher(name, dup.Name)
		}
		return nil, nil, rcerrors.WrapConfiguration(err, "invalid data fetcher declaration").WithFragment(name)
	}
	if len(specs) == 0 {
		if requiresData(in.Metadata) {
			return nil, nil, rcerrors.ConfigurationError("fragment requires data but declares no data fetcher").WithFragment(name)
		}
		log.Debug("No data fetcher declared", logfields.Stage(StageData))
		return map[string]any{}, nil, nil
	}

	sources := make([]plugin.DataSource, len(specs))
	for i, spec := range specs {
		ds, err := c.registry.DataSource(spec.Type)
		if err != nil {
			return nil, nil, tagFragment(err, name)
		}
		sources[i] = ds
	}

	data := make(map[string]any, len(specs))
	order := make([]string, 0, len(specs))
	for i, spec := range specs {
		log.Debug("Fetching data", logfields.Stage(StageData), logfields.Fetcher(spec.Name), logfields.Strategy(spec.Type))
		v, err := sources[i].Fetch(ctx, in, spec)
		if err != nil {
			return nil, nil, rcerrors.DataFetchError(name, spec.Name, err)
		}
		data[spec.Name] = v
		order = append(order, spec.Name)
	}
	return data, order, nil
}

func requiresData(metadata map[string]any) bool {
	v, _ := metadata[plugin.KeyRequiresData].(bool)
	return v
}

// Snapshot is the hand-off payload written before context generation. Data
// keeps the fetcher declaration order.
type Snapshot struct {
	DocParam docparam.Param `json:"doc_param"`
	Data     docparam.Param `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// orderedData pairs each fetcher result with its name in declaration order.
// Names missing from order follow in sorted order.
func orderedData(data map[string]any, order []string) docparam.Param {
	kv := make([]any, 0, 2*len(data))
	seen := make(map[string]bool, len(data))
	for _, k := range order {
		if v, ok := data[k]; ok && !seen[k] {
			kv = append(kv, k, v)
			seen[k] = true
		}
	}
	rest := docparam.FromMap(data)
	for _, k := range rest.Keys() {
		if !seen[k] {
			v, _ := rest.Get(k)
			kv = append(kv, k, v)
		}
	}
	return docparam.MustNew(kv...)
}

// SnapshotPath is tmp/<suffix>_<fragment id with "/" as "__">.json.
func SnapshotPath(env plugin.Env, fragmentID string) string {
	name := env.Suffix + "_" + strings.ReplaceAll(fragmentID, "/", "__") + ".json"
	return filepath.Join(env.TmpDir, name)
}

// generateContext writes the input snapshot, runs the builder with panics
// recovered, and normalises its result to a JSON mapping.
func (c *Compiler) generateContext(ctx context.Context, log *slog.Logger, in *plugin.Input, builder plugin.ContextBuilder, builderID string) (map[string]any, error) {
	name := fragmentName(in)
	snap := Snapshot{DocParam: in.Param, Data: orderedData(in.Data, in.DataOrder), Metadata: in.Metadata}

	if in.Env.TmpDir != "" {
		in.SnapshotPath = SnapshotPath(in.Env, in.Fragment)
		payload, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, rcerrors.ContextGenerationError(name, fmt.Errorf("encode input snapshot: %w", err), nil)
		}
		if err := os.MkdirAll(in.Env.TmpDir, 0o750); err != nil {
			return nil, rcerrors.ContextGenerationError(name, fmt.Errorf("create snapshot directory: %w", err), nil)
		}
		if err := storage.WriteFileAtomic(in.SnapshotPath, payload, 0o600); err != nil {
			return nil, rcerrors.ContextGenerationError(name, fmt.Errorf("write input snapshot: %w", err), nil)
		}
		if v, _ := in.Metadata[KeyDeleteGeneratorFiles].(bool); v {
			defer func() { _ = os.Remove(in.SnapshotPath) }()
		}
	}

	log.Info("Starting context generation", logfields.Stage(StageContext), logfields.Strategy(builderID))
	result, err := runBuilder(ctx, builder, in)
	if err != nil {
		var re *rcerrors.ReportError
		if !stdErrors.As(err, &re) {
			err = rcerrors.ContextGenerationError(name, err, nil)
		}
		if c.opts.Debug {
			c.writeDebugSnapshot(log, in, snap, err)
		}
		return nil, err
	}

	if _, ok := result.(map[string]any); !ok {
		result = map[string]any{"data": result}
	}
	artifact, _, err := incremental.Normalize(result)
	if err != nil {
		return nil, rcerrors.ContextGenerationError(name, fmt.Errorf("context is not serialisable: %w", err), nil)
	}
	return artifact, nil
}

// runBuilder calls the builder, turning a panic into a context generation
// error that carries the panicking frames.
func runBuilder(ctx context.Context, builder plugin.ContextBuilder, in *plugin.Input) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = rcerrors.ContextGenerationError(fragmentName(in), fmt.Errorf("panic: %v", r), rcerrors.TruncateStack(debug.Stack()))
		}
	}()
	return builder.Build(ctx, in)
}

// tagFragment attaches the fragment name to a ReportError lacking one.
func tagFragment(err error, name string) error {
	var re *rcerrors.ReportError
	if stdErrors.As(err, &re) && re.Fragment == "" {
		re.Fragment = name
	}
	return err
}

func fragmentName(in *plugin.Input) string {
	base := filepath.Base(filepath.FromSlash(in.Name))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
