package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
)

func TestManager_EphemeralMode(t *testing.T) {
	mgr := NewManager(t.TempDir())
	require.NoError(t, mgr.Create())

	wsPath := mgr.Path()
	require.NotEmpty(t, wsPath)
	assert.True(t, strings.HasPrefix(filepath.Base(wsPath), "reportcompiler-"), wsPath)
	assert.DirExists(t, wsPath)
	assert.False(t, mgr.Persistent())

	sub, err := mgr.CreateSubdir("repo")
	require.NoError(t, err)
	assert.DirExists(t, sub)

	require.NoError(t, mgr.Cleanup())
	assert.NoDirExists(t, wsPath)
	assert.Empty(t, mgr.Path())
}

func TestManager_PersistentMode(t *testing.T) {
	base := t.TempDir()
	mgr := NewPersistentManager(base, "specs")
	require.NoError(t, mgr.Create())
	assert.Equal(t, filepath.Join(base, "specs"), mgr.Path())

	require.NoError(t, mgr.Cleanup())
	assert.DirExists(t, mgr.Path(), "persistent workspace survives cleanup")

	// Creating twice is fine.
	require.NoError(t, mgr.Create())
}

func TestManager_SubdirBeforeCreate(t *testing.T) {
	_, err := NewManager(t.TempDir()).CreateSubdir("x")
	assert.Error(t, err)
}

func TestLayoutFor(t *testing.T) {
	spec := filepath.Join(t.TempDir(), "hpv")
	l := NewLayout(spec)

	d, err := l.For("ESP")
	require.NoError(t, err)
	require.NoError(t, d.Create())
	for _, dir := range []string{d.Hash, d.Tmp, d.Log, d.Out, d.Fig} {
		assert.DirExists(t, dir)
	}
	assert.Equal(t, filepath.Join(spec, "gen", "ESP", "tmp"), d.Tmp)
	assert.Equal(t, filepath.Join(filepath.Dir(spec), "_meta"), l.Meta())

	env := d.Env()
	assert.Equal(t, "ESP", env.Suffix)
	assert.Equal(t, filepath.Join(spec, "src"), env.SourceDir)
	assert.Equal(t, filepath.Join(spec, "credentials"), env.CredentialsDir)
	assert.Equal(t, d.Fig, env.FigureDir)
	assert.Equal(t, d.Out, d.Metadata()["out_path"])

	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := l.For(bad)
		assert.True(t, rcerrors.IsCategory(err, rcerrors.CategoryConfig), "suffix %q", bad)
	}
}

func TestLayoutClean(t *testing.T) {
	l := NewLayout(t.TempDir())
	for _, s := range []string{"ESP", "FRA", "ITA"} {
		d, err := l.For(s)
		require.NoError(t, err)
		require.NoError(t, d.Create())
	}

	removed, err := l.Clean(nil, []string{"ITA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ESP", "FRA"}, removed)

	docs, err := l.Documents()
	require.NoError(t, err)
	assert.Equal(t, []string{"ITA"}, docs)

	removed, err = l.Clean([]string{"ITA", "GBR"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ITA"}, removed)
	_, err = os.Stat(l.Gen())
	assert.True(t, os.IsNotExist(err), "empty gen directory is removed")

	removed, err = l.Clean(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
