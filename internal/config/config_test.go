package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
doc_name: hpv_report
verbose_name: HPV report
main_template: main.tex
skip_unchanged_fragments: false
random_seed: 42
postprocessors: markdown-html
author: ICO
`)
	writeFile(t, dir, "params.yaml", `
mandatory: iso
default_key: iso
augmentation:
  - type: constant
    value: {region: Europe}
`)
	writeFile(t, dir, "style.yaml", "colour: blue\n")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "hpv_report", cfg.DocName)
	assert.Equal(t, "HPV report", cfg.String())
	assert.Equal(t, "main.tex", cfg.MainTemplate)
	assert.False(t, cfg.SkipUnchanged())
	require.NotNil(t, cfg.RandomSeed)
	assert.EqualValues(t, 42, *cfg.RandomSeed)
	assert.Equal(t, StringList{"markdown-html"}, cfg.Postprocessors)
	assert.Equal(t, map[string]any{"author": "ICO"}, cfg.Custom())

	assert.Equal(t, []string{"iso"}, cfg.Params.Mandatory)
	assert.Equal(t, "iso", cfg.Params.DefaultKey)
	require.Len(t, cfg.Params.Augmentation, 1)
	assert.Equal(t, "constant", cfg.Params.Augmentation[0].Type)

	meta := cfg.Metadata()
	assert.Equal(t, "ICO", meta["author"])
	assert.Equal(t, false, meta[KeySkipUnchangedFragments])
	assert.Equal(t, map[string]any{"colour": "blue"}, meta[KeyStyle])
	assert.Contains(t, meta, KeyParams)
}

func TestLoadConfWithComments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.conf", `{
  // legacy configuration
  "main_template": "main.tex", /* inline */
  "url": "http://example.org/a//b"
}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "main.tex", cfg.MainTemplate)
	assert.Equal(t, filepath.Base(dir), cfg.DocName)
	assert.True(t, cfg.SkipUnchanged())
	assert.Equal(t, "http://example.org/a//b", cfg.Custom()["url"])
}

func TestLoadExpandsEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "RC_TEST_TEMPLATE=from_env.tex\n")
	writeFile(t, dir, "config.yaml", "main_template: ${RC_TEST_TEMPLATE}\n")
	t.Cleanup(func() { _ = os.Unsetenv("RC_TEST_TEMPLATE") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from_env.tex", cfg.MainTemplate)
}

func TestLoadExistingEnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RC_TEST_TEMPLATE", "shell.tex")
	writeFile(t, dir, ".env", "RC_TEST_TEMPLATE=file.tex\n")
	writeFile(t, dir, "config.yaml", "main_template: ${RC_TEST_TEMPLATE}\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "shell.tex", cfg.MainTemplate)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"missing config", map[string]string{}},
		{"missing main template", map[string]string{"config.yaml": "doc_name: x\n"}},
		{"invalid yaml", map[string]string{"config.yaml": "main_template: [\n"}},
		{"unknown params key", map[string]string{
			"config.yaml": "main_template: main.tex\n",
			"params.yaml": "mandatory: [iso]\nextra: 1\n",
		}},
		{"duplicate augmentation fetcher", map[string]string{
			"config.yaml": "main_template: main.tex\n",
			"params.yaml": "augmentation:\n  - {type: constant, name: a}\n  - {type: constant, name: a}\n",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			_, err := Load(dir)
			require.Error(t, err)
			assert.True(t, rcerrors.IsCategory(err, rcerrors.CategoryConfig), "got %v", err)
		})
	}
}

func TestStripJSONComments(t *testing.T) {
	in := "{\n// c1\n\"a\": \"x // not a comment\", /* b\nc */ \"b\": \"\\\"/*\"\n}"
	want := "{\n\n\"a\": \"x // not a comment\", \n \"b\": \"\\\"/*\"\n}"
	assert.Equal(t, want, string(StripJSONComments([]byte(in))))
}

func TestRunOptionsNormalize(t *testing.T) {
	n, warnings, err := RunOptions{}.Normalize()
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, DefaultDocWorkers, n.DocWorkers)
	assert.Positive(t, n.FragmentWorkers)
	assert.Equal(t, LogInfo, n.LogLevel)
	assert.Equal(t, FormatText, n.LogFormat)
	assert.Equal(t, CacheFS, n.CacheBackend)

	n, warnings, err = RunOptions{DocWorkers: 4, FragmentWorkers: 8, Debug: true, LogLevel: " DEBUG ", CacheBackend: "SQLite"}.Normalize()
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.Equal(t, 1, n.DocWorkers)
	assert.Equal(t, 1, n.FragmentWorkers)
	assert.Equal(t, LogDebug, n.LogLevel)
	assert.Equal(t, CacheSQLite, n.CacheBackend)

	_, _, err = RunOptions{CacheBackend: "redis"}.Normalize()
	assert.ErrorContains(t, err, "valid options")

	_, _, err = RunOptions{CacheBackend: "nats"}.Normalize()
	assert.Error(t, err)
}
