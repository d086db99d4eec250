// Package frontmatter reads and writes the YAML header at the top of a
// fragment source file. In script sources the header lines sit behind the
// language's line-comment marker:
//
//	#!/usr/bin/env python3
//	# ---
//	# data_fetcher:
//	#   type: csv
//	#   file: population.csv
//	# ---
//
// Plain YAML documents use bare "---" delimiters.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommentPrefixes are the line-comment markers recognised in front of a header.
var CommentPrefixes = []string{"#", "//", "--", "%"}

// Style captures the layout details needed to write a header back.
type Style struct {
	Newline            string
	HasTrailingNewline bool
	// Prefix is the comment marker of the header lines, "" for bare YAML.
	Prefix string
	// Shebang is the interpreter line preceding the header, without newline.
	Shebang []byte
}

var (
	// ErrMissingClosingDelimiter indicates a header was opened but never closed.
	ErrMissingClosingDelimiter = errors.New("yaml header start delimiter found but closing delimiter is missing")

	// ErrUnprefixedLine indicates a header line without the comment marker of its delimiter.
	ErrUnprefixedLine = errors.New("yaml header line lacks the comment prefix")
)

// Split separates the YAML header from the rest of the file. The returned
// header has the comment markers stripped.
//
// If the file does not start with a header delimiter (after an optional
// shebang line), had is false and body is the full input.
func Split(content []byte) (header []byte, body []byte, had bool, style Style, err error) {
	style = detectStyle(content)
	nl := []byte(style.Newline)

	rest := content
	if bytes.HasPrefix(rest, []byte("#!")) {
		line, after, found := bytes.Cut(rest, nl)
		if !found {
			return nil, content, false, style, nil
		}
		style.Shebang = line
		rest = after
	}

	open, after, found := bytes.Cut(rest, nl)
	prefix, ok := delimiterPrefix(open)
	if !ok {
		style.Shebang = nil
		return nil, content, false, style, nil
	}
	style.Prefix = prefix
	if !found {
		return nil, nil, false, style, ErrMissingClosingDelimiter
	}

	var buf bytes.Buffer
	for len(after) > 0 {
		line, next, _ := bytes.Cut(after, nl)
		if isDelimiter(line, prefix) {
			return buf.Bytes(), next, true, style, nil
		}
		stripped, ok := stripPrefix(line, prefix)
		if !ok {
			return nil, nil, false, style, fmt.Errorf("%w: %q", ErrUnprefixedLine, line)
		}
		buf.Write(stripped)
		buf.Write(nl)
		after = next
	}
	return nil, nil, false, style, ErrMissingClosingDelimiter
}

// Join reassembles a file from a raw header and body, re-applying the
// shebang, comment prefix and newline style captured in Style.
//
// If had is false, Join returns body as-is.
func Join(header []byte, body []byte, had bool, style Style) []byte {
	if !had {
		return body
	}

	nl := style.Newline
	if nl == "" {
		nl = "\n"
	}

	var out bytes.Buffer
	if len(style.Shebang) > 0 {
		out.Write(style.Shebang)
		out.WriteString(nl)
	}
	delim := "---"
	if style.Prefix != "" {
		delim = style.Prefix + " ---"
	}
	out.WriteString(delim + nl)
	for _, line := range strings.SplitAfter(string(header), nl) {
		if line == "" {
			continue
		}
		text := strings.TrimSuffix(line, nl)
		switch {
		case style.Prefix == "":
			out.WriteString(text)
		case text == "":
			out.WriteString(style.Prefix)
		default:
			out.WriteString(style.Prefix + " " + text)
		}
		out.WriteString(nl)
	}
	out.WriteString(delim + nl)
	out.Write(body)
	return out.Bytes()
}

// ParseYAML parses a raw header (without delimiters) into a map.
func ParseYAML(header []byte) (map[string]any, error) {
	if len(header) == 0 {
		return map[string]any{}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(header, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// Parse splits content and decodes its header. A file without a header
// yields an empty map.
func Parse(content []byte) (map[string]any, error) {
	header, _, had, _, err := Split(content)
	if err != nil {
		return nil, err
	}
	if !had {
		return map[string]any{}, nil
	}
	return ParseYAML(header)
}

func delimiterPrefix(line []byte) (string, bool) {
	t := strings.TrimSpace(string(line))
	if t == "---" {
		return "", true
	}
	for _, p := range CommentPrefixes {
		if strings.HasPrefix(t, p) && strings.TrimSpace(t[len(p):]) == "---" {
			return p, true
		}
	}
	return "", false
}

func isDelimiter(line []byte, prefix string) bool {
	t := strings.TrimSpace(string(line))
	if !strings.HasPrefix(t, prefix) {
		return false
	}
	return strings.TrimSpace(t[len(prefix):]) == "---"
}

// stripPrefix removes the comment marker and the single space after it.
func stripPrefix(line []byte, prefix string) ([]byte, bool) {
	if prefix == "" {
		return line, true
	}
	t := bytes.TrimLeft(line, " \t")
	if len(t) == 0 {
		return nil, true
	}
	if !bytes.HasPrefix(t, []byte(prefix)) {
		return nil, false
	}
	t = t[len(prefix):]
	if len(t) > 0 && t[0] == ' ' {
		t = t[1:]
	}
	return t, true
}

func detectStyle(content []byte) Style {
	newline := "\n"
	for i := 0; i+1 < len(content); i++ {
		if content[i] == '\r' && content[i+1] == '\n' {
			newline = "\r\n"
			break
		}
		if content[i] == '\n' {
			newline = "\n"
			break
		}
	}

	hasTrailingNewline := len(content) > 0 && (content[len(content)-1] == '\n')

	return Style{
		Newline:            newline,
		HasTrailingNewline: hasTrailingNewline,
	}
}
