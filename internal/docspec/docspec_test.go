package docspec

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpv-information-centre/reportcompiler/internal/config"
	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/observability"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin/builtin"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
}

func countrySpec(t *testing.T) *Spec {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "hpv_country")
	writeFiles(t, dir, map[string]string{
		"config.yaml": "main_template: report.md\n",
		"params.yaml": `mandatory: [iso]
default_key: iso
allowed_values:
  - type: constant
    name: iso
    values: [ESP, FRA]
`,
		"style.yaml": `font: Arial
data_fetcher:
  - type: constant
    name: palette
    value: [red, blue]
`,
		"templates/report.md": `{{ template "intro.md" . }}`,
		"templates/intro.md":  `{{ $ctx.title }}`,
		"src/intro.yaml":      "title: Intro\n",
	})
	spec, err := Open(dir)
	require.NoError(t, err)
	return spec
}

func registry(t *testing.T) *plugin.Registry {
	t.Helper()
	reg, err := builtin.NewRegistry()
	require.NoError(t, err)
	return reg
}

func TestOpen(t *testing.T) {
	spec := countrySpec(t)

	assert.Equal(t, "hpv_country", spec.Name(), "doc_name defaults to the directory name")
	assert.True(t, filepath.IsAbs(spec.Dir))
	require.NotNil(t, spec.Tree)
	assert.Equal(t, "report.md", spec.Tree.Name)
	require.Len(t, spec.Tree.Children, 1)
	assert.Equal(t, "intro.md", spec.Tree.Children[0].Name)

	seed := int64(7)
	meta := spec.Metadata(&seed)
	assert.Equal(t, int64(7), meta[config.KeyRandomSeed])
}

func TestOpenMissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, rcerrors.IsCategory(err, rcerrors.CategoryConfig))
}

func TestParseParams(t *testing.T) {
	spec := countrySpec(t)

	got, err := spec.ParseParams([]string{"ESP", `{"iso": "FRA", "year": 2020}`, `[{"iso": "ITA"}, {"iso": "PRT"}]`})
	require.NoError(t, err)
	var suffixes []string
	for _, p := range got {
		suffixes = append(suffixes, p.Suffix())
	}
	if diff := cmp.Diff([]string{"ESP", "FRA-2020", "ITA", "PRT"}, suffixes); diff != "" {
		t.Errorf("suffixes mismatch (-want +got):\n%s", diff)
	}

	none, err := spec.ParseParams(nil)
	require.NoError(t, err)
	require.Len(t, none, 1)
	assert.True(t, none[0].IsZero())
}

func TestParseParamsScalarWithoutDefaultKey(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"config.yaml":         "main_template: report.md\n",
		"templates/report.md": "static",
	})
	spec, err := Open(dir)
	require.NoError(t, err)

	_, err = spec.ParseParams([]string{"ESP"})
	require.Error(t, err)
	assert.True(t, rcerrors.IsCategory(err, rcerrors.CategoryConfig))
}

func TestDedupe(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	in := []docparam.Param{
		docparam.MustNew("iso", "ESP"),
		docparam.MustNew("iso", "FRA"),
		docparam.MustNew("iso", "ESP"),
	}
	out := Dedupe(in, logger)
	require.Len(t, out, 2)
	assert.Equal(t, "FRA", out[1].Suffix())
	assert.Contains(t, buf.String(), "duplicates will be ignored")
}

func TestValidate(t *testing.T) {
	spec := countrySpec(t)
	reg := registry(t)
	meta := spec.Metadata(nil)
	log := observability.Discard()

	tests := []struct {
		name    string
		param   docparam.Param
		wantErr string
	}{
		{"allowed", docparam.MustNew("iso", "ESP"), ""},
		{"missing mandatory", docparam.MustNew("year", 2020), "mandatory"},
		{"not allowed", docparam.MustNew("iso", "XXX"), `allowed values for "iso" are`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := spec.Validate(t.Context(), reg, []docparam.Param{tt.param}, meta, log)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, rcerrors.IsCategory(err, rcerrors.CategoryConfig))
		})
	}
}

func TestColumns(t *testing.T) {
	rows := []any{
		map[string]any{"iso": "ESP", "name": "Spain"},
		map[string]any{"iso": "FRA", "name": "France"},
	}
	cols, err := Columns(rows)
	require.NoError(t, err)
	assert.Equal(t, []any{"ESP", "FRA"}, cols["iso"])

	_, err = Columns(42)
	assert.Error(t, err)
}

func TestResolveStyle(t *testing.T) {
	spec := countrySpec(t)
	meta := spec.Metadata(nil)

	require.NoError(t, spec.ResolveStyle(t.Context(), registry(t), meta, observability.Discard()))
	style, ok := meta[config.KeyStyle].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Arial", style["font"])
	assert.Equal(t, []any{"red", "blue"}, style["palette"])
	assert.NotContains(t, style, plugin.KeyDataFetcher)
}

func TestCreateThenOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "new_report")
	require.NoError(t, Create(dir))

	spec, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, "new_report", spec.Name())
	require.Len(t, spec.Tree.Children, 1)
	assert.Equal(t, "intro.md", spec.Tree.Children[0].Name)
	assert.FileExists(t, filepath.Join(dir, "src", "intro.sh"))
	assert.DirExists(t, spec.Layout.Credentials())

	err = Create(dir)
	require.Error(t, err, "an existing specification is never overwritten")

	err = Create(filepath.Join(t.TempDir(), "missing", "report"))
	require.Error(t, err)
}
