package frontmatter

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// SerializeYAML encodes fields as a header body (without delimiters).
//
// Keys are emitted sorted, so the output is stable. If fields is empty,
// SerializeYAML returns an empty slice.
func SerializeYAML(fields map[string]any, style Style) ([]byte, error) {
	if len(fields) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fields); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	out := buf.Bytes()
	if style.Newline != "" && style.Newline != "\n" {
		out = bytes.ReplaceAll(out, []byte("\n"), []byte(style.Newline))
	}
	return out, nil
}

// Render writes a complete file: header fields in the given style, then body.
func Render(fields map[string]any, body []byte, style Style) ([]byte, error) {
	header, err := SerializeYAML(fields, style)
	if err != nil {
		return nil, err
	}
	return Join(header, body, true, style), nil
}
