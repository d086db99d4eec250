package batch

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpv-information-centre/reportcompiler/internal/compiler"
	"github.com/hpv-information-centre/reportcompiler/internal/config"
	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	"github.com/hpv-information-centre/reportcompiler/internal/docspec"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/observability"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
	"github.com/hpv-information-centre/reportcompiler/internal/storage"
	"github.com/hpv-information-centre/reportcompiler/internal/workspace"
)

// writeSpec lays out a specification whose single fragment, country.md,
// is built from the "iso" parameter.
func writeSpec(t *testing.T) *docspec.Spec {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "country_report")
	files := map[string]string{
		"config.yaml": "doc_name: report\n" +
			"main_template: report.md\n" +
			"include_scanner: gotemplate\n" +
			"template_renderer: gotemplate\n",
		"params.yaml":          "mandatory: iso\n",
		"templates/report.md":  `{{ .meta.doc_suffix }}:{{ template "country.md" . }}`,
		"templates/country.md": `{{ $ctx.country }}`,
		"src/country.py":       "",
	}
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	spec, err := docspec.Open(dir)
	require.NoError(t, err)
	return spec
}

func testRegistry(t *testing.T) *plugin.Registry {
	t.Helper()
	reg := plugin.NewRegistry()
	require.NoError(t, reg.RegisterMetadataSource("none", func() plugin.MetadataSource {
		return plugin.MetadataSourceFunc(func(context.Context, *plugin.Input) (map[string]any, error) {
			return map[string]any{}, nil
		})
	}))
	require.NoError(t, reg.RegisterContextBuilder("country", func() plugin.ContextBuilder {
		return plugin.ContextBuilderFunc(func(_ context.Context, in *plugin.Input) (any, error) {
			iso, _ := in.Param.Get("iso")
			if iso == "XXX" {
				return nil, fmt.Errorf("no data for %v", iso)
			}
			return map[string]any{"country": fmt.Sprintf("C-%v", iso)}, nil
		})
	}))
	reg.SetExtensionDefaults(".py", "none", "country")
	return reg
}

func options() config.Normalized {
	return config.Normalized{
		DocWorkers:      2,
		FragmentWorkers: 2,
		LogLevel:        config.LogInfo,
		CacheBackend:    config.CacheMemory,
	}
}

func params(isos ...string) []docparam.Param {
	out := make([]docparam.Param, 0, len(isos))
	for _, iso := range isos {
		out = append(out, docparam.MustNew("iso", iso))
	}
	return out
}

func readOutput(t *testing.T, spec *docspec.Spec, suffix string) string {
	t.Helper()
	dirs, err := spec.Layout.For(suffix)
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dirs.Out, "report-"+suffix+".md"))
	require.NoError(t, err)
	return string(b)
}

func TestRunGeneratesEachDocument(t *testing.T) {
	spec := writeSpec(t)
	runner := NewRunner(testRegistry(t)).WithLogger(observability.Discard())

	report, err := runner.Run(t.Context(), Request{Spec: spec, Params: params("ESP", "FRA", "ESP"), Options: options()})
	require.NoError(t, err)
	require.Len(t, report.Documents, 2, "duplicate parameters are dropped")
	assert.Equal(t, 2, report.Succeeded())
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, "ESP:C-ESP", readOutput(t, spec, "ESP"))
	assert.Equal(t, "FRA:C-FRA", readOutput(t, spec, "FRA"))

	logData, err := os.ReadFile(report.Documents[0].LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(logData), `"document":"ESP"`)
	assert.Contains(t, string(logData), "Document generated")
	assert.NotContains(t, string(logData), `"document":"FRA"`)
}

func TestRunIsolatesFailures(t *testing.T) {
	spec := writeSpec(t)
	runner := NewRunner(testRegistry(t)).WithLogger(observability.Discard())

	report, err := runner.Run(t.Context(), Request{Spec: spec, Params: params("XXX", "ESP"), Options: options()})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, StatusSuccess, report.Documents[1].Status)
	assert.Equal(t, "ESP:C-ESP", readOutput(t, spec, "ESP"))

	var be *rcerrors.BatchError
	require.True(t, stdErrors.As(err, &be))
	failures := be.Failures()
	require.Contains(t, failures, "XXX")
	assert.Contains(t, failures["XXX"]["country"].Message, "no data for XXX")
	assert.NotEmpty(t, failures["XXX"]["country"].Trace)
}

func TestRunRejectsMissingMandatoryKey(t *testing.T) {
	spec := writeSpec(t)
	runner := NewRunner(testRegistry(t)).WithLogger(observability.Discard())

	report, err := runner.Run(t.Context(), Request{Spec: spec, Params: []docparam.Param{docparam.MustNew("year", 2020)}, Options: options()})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, rcerrors.IsCategory(err, rcerrors.CategoryConfig))
}

func TestRunReusesCachedFragments(t *testing.T) {
	spec := writeSpec(t)
	store := storage.NewMemoryStore()
	runner := NewRunner(testRegistry(t)).WithLogger(observability.Discard()).WithStore(store)

	first, err := runner.Run(t.Context(), Request{Spec: spec, Params: params("ESP"), Options: options()})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Documents[0].Counts[compiler.StatusComputed])

	second, err := runner.Run(t.Context(), Request{Spec: spec, Params: params("ESP"), Options: options()})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Documents[0].Counts[compiler.StatusCached])
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunDebugIsSerial(t *testing.T) {
	spec := writeSpec(t)
	opts := options()
	opts.Debug = true
	runner := NewRunner(testRegistry(t)).WithLogger(observability.Discard())

	_, err := runner.Run(t.Context(), Request{Spec: spec, Params: params("XXX"), Options: opts})
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(spec.Layout.Meta(), compiler.DebugErrorsFile))
}

func TestAssignSuffixes(t *testing.T) {
	ps := []docparam.Param{
		{},
		docparam.MustNew("iso", "ESP"),
		docparam.MustNew("country", "ESP"),
	}
	got := assignSuffixes(ps, observability.Discard())
	assert.Equal(t, DefaultSuffix, got[0])
	assert.Equal(t, "ESP", got[1])
	assert.Equal(t, ps[2].UniqueSuffix(), got[2])
}

func TestOpenStore(t *testing.T) {
	layout := workspace.NewLayout(t.TempDir())
	for _, backend := range []config.CacheBackend{config.CacheFS, config.CacheSQLite, config.CacheMemory} {
		t.Run(string(backend), func(t *testing.T) {
			store, err := OpenStore(config.Normalized{CacheBackend: backend}, layout)
			require.NoError(t, err)
			require.NoError(t, store.Put(t.Context(), storage.Key{Namespace: "ESP", Kind: storage.KindFingerprint, ID: "a"}, []byte("x")))
			require.NoError(t, store.Close())
		})
	}
	_, err := OpenStore(config.Normalized{CacheBackend: "redis"}, layout)
	assert.Error(t, err)
}
