package markdown

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inful/mdfp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpv-information-centre/reportcompiler/internal/document"
	"github.com/hpv-information-centre/reportcompiler/internal/frontmatter"
	"github.com/hpv-information-centre/reportcompiler/internal/observability"
)

func fingerprintDoc() *document.Document {
	return &document.Document{Suffix: "ESP", Context: map[string]any{
		document.KeyMeta: map[string]any{"doc_name": "hpv"},
	}}
}

func readFields(t *testing.T, path string) (map[string]any, string) {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	header, body, had, _, err := frontmatter.Split(content)
	require.NoError(t, err)
	require.True(t, had)
	fields, err := frontmatter.ParseYAML(header)
	require.NoError(t, err)
	return fields, string(body)
}

func TestFingerprintProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hpv-ESP.md")
	require.NoError(t, os.WriteFile(path, []byte("# Spain\n\nCoverage: 80%\n"), 0o600))
	pp := NewFingerprint(observability.Discard())

	out, err := pp.Process(context.Background(), fingerprintDoc(), path)
	require.NoError(t, err)
	assert.Equal(t, path, out)

	fields, body := readFields(t, path)
	assert.Equal(t, "ESP", fields[KeyDocument])
	assert.Equal(t, "hpv", fields[KeyDocName])
	assert.Equal(t, "# Spain\n\nCoverage: 80%\n", body)
	first, ok := fields[mdfp.FingerprintField].(string)
	require.True(t, ok)
	assert.NotEmpty(t, first)

	_, err = pp.Process(context.Background(), fingerprintDoc(), path)
	require.NoError(t, err)
	again, _ := readFields(t, path)
	assert.Equal(t, first, again[mdfp.FingerprintField], "fingerprinting is idempotent")
}

func TestFingerprintChangesWithBody(t *testing.T) {
	fields := map[string]any{KeyDocument: "ESP"}
	a, err := ComputeFingerprint(fields, []byte("Coverage: 80%\n"))
	require.NoError(t, err)
	b, err := ComputeFingerprint(fields, []byte("Coverage: 81%\n"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	fields[mdfp.FingerprintField] = a
	c, err := ComputeFingerprint(fields, []byte("Coverage: 80%\n"))
	require.NoError(t, err)
	assert.Equal(t, a, c, "the fingerprint field itself is not hashed")
}

func TestFingerprintSkipsOtherOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hpv-ESP.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>x</p>"), 0o600))

	out, err := NewFingerprint(nil).Process(context.Background(), fingerprintDoc(), path)
	require.NoError(t, err)
	assert.Equal(t, path, out)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", string(content))
}

func TestFingerprintThenHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hpv-ESP.md")
	require.NoError(t, os.WriteFile(path, []byte("# Spain\n"), 0o600))
	pps, err := Postprocessors([]string{"fingerprint", "markdown-html"}, observability.Discard())
	require.NoError(t, err)
	require.Len(t, pps, 2)

	doc := fingerprintDoc()
	out := path
	for _, pp := range pps {
		out, err = pp.Process(context.Background(), doc, out)
		require.NoError(t, err)
	}
	page, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<title>Spain</title>")
	assert.False(t, strings.Contains(string(page), mdfp.FingerprintField+":"), "front matter is not rendered")
}
