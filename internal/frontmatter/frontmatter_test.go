package frontmatter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_NoHeader_ReturnsBodyOnly(t *testing.T) {
	input := []byte("def generate_context(doc_param, data, metadata):\n    return {}\n")

	fm, body, had, _, err := Split(input)
	require.NoError(t, err)
	require.False(t, had)
	require.Empty(t, fm)
	require.Equal(t, input, body)
}

func TestSplit_BareYAMLHeader(t *testing.T) {
	input := []byte("---\nkey: value\n---\ncontext: {}\n")

	fm, body, had, style, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, "", style.Prefix)
	require.Equal(t, []byte("key: value\n"), fm)
	require.Equal(t, []byte("context: {}\n"), body)
}

func TestSplit_CommentPrefixedHeader(t *testing.T) {
	input := []byte("# ---\n# data_fetcher:\n#   type: csv\n#\n# ---\nimport json\n")

	fm, body, had, style, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, "#", style.Prefix)
	require.Equal(t, "data_fetcher:\n  type: csv\n\n", string(fm))
	require.Equal(t, "import json\n", string(body))
}

func TestSplit_ShebangBeforeHeader(t *testing.T) {
	input := []byte("#!/usr/bin/env Rscript\n# ---\n# requires_data: true\n# ---\nlibrary(jsonlite)\n")

	fm, body, had, style, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, "#!/usr/bin/env Rscript", string(style.Shebang))
	require.Equal(t, "requires_data: true\n", string(fm))
	require.Equal(t, "library(jsonlite)\n", string(body))
}

func TestSplit_ShebangWithoutHeader(t *testing.T) {
	input := []byte("#!/bin/sh\necho '{}'\n")

	_, body, had, style, err := Split(input)
	require.NoError(t, err)
	require.False(t, had)
	require.Nil(t, style.Shebang)
	require.Equal(t, input, body)
}

func TestSplit_MissingClosingDelimiter_ReturnsError(t *testing.T) {
	input := []byte("// ---\n// key: value\nfunc main() {}\n")

	_, _, had, _, err := Split(input)
	require.Error(t, err)
	require.False(t, had)
	require.True(t, errors.Is(err, ErrUnprefixedLine))

	_, _, _, _, err = Split([]byte("---\nkey: value\n"))
	require.True(t, errors.Is(err, ErrMissingClosingDelimiter))
}

func TestSplit_CRLF_SplitsHeaderAndBody(t *testing.T) {
	input := []byte("-- ---\r\n-- key: value\r\n-- ---\r\nSELECT 1;\r\n")

	fm, body, had, _, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("key: value\r\n"), fm)
	require.Equal(t, []byte("SELECT 1;\r\n"), body)
}

func TestSplit_EmptyHeaderBlock(t *testing.T) {
	input := []byte("---\n---\n# Title\n")

	fm, body, had, _, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Empty(t, fm)
	require.Equal(t, []byte("# Title\n"), body)
}

func TestJoin_RoundTrip_ReconstructsOriginalBytes(t *testing.T) {
	cases := [][]byte{
		[]byte("print(1)\n"),
		[]byte("---\nkey: value\n---\n# Title\n"),
		[]byte("---\n---\n# Title\n"),
		[]byte("# ---\n# key: value\n#   nested: 1\n# ---\nprint(1)\n"),
		[]byte("#!/usr/bin/env python3\n# ---\n# key: value\n# ---\nprint(1)\n"),
		[]byte("% ---\r\n% key: value\r\n% ---\r\nx = 1;\r\n"),
	}

	for _, input := range cases {
		fm, body, had, style, err := Split(input)
		require.NoError(t, err)

		out := Join(fm, body, had, style)
		require.Equal(t, string(input), string(out))
	}
}

func TestParse(t *testing.T) {
	fields, err := Parse([]byte("# ---\n# uid: abc\n# tags:\n#   - one\n# ---\n"))
	require.NoError(t, err)
	require.Equal(t, "abc", fields["uid"])
	require.Equal(t, []any{"one"}, fields["tags"])

	fields, err = Parse([]byte("print(1)\n"))
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestParseYAML_Empty_ReturnsEmptyMap(t *testing.T) {
	fields, err := ParseYAML(nil)
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestParseYAML_InvalidYAML_ReturnsError(t *testing.T) {
	_, err := ParseYAML([]byte(": not yaml"))
	require.Error(t, err)
}
