package markdown

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/inful/mdfp"

	"github.com/hpv-information-centre/reportcompiler/internal/document"
	"github.com/hpv-information-centre/reportcompiler/internal/frontmatter"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/storage"
)

// Front matter keys written by the fingerprint post-processor.
const (
	KeyDocument = "document"
	KeyDocName  = "doc_name"
)

// Fingerprint stamps the rendered Markdown file with a content fingerprint
// in its YAML front matter, so publishing pipelines can tell whether a
// regenerated document actually changed. The file is rewritten in place.
// Other outputs pass through untouched; list it before markdown-html, which
// drops the front matter.
type Fingerprint struct {
	logger *slog.Logger
}

// NewFingerprint returns the markdown-fingerprint post-processor.
func NewFingerprint(logger *slog.Logger) *Fingerprint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fingerprint{logger: logger}
}

func (f *Fingerprint) Name() string { return NameFingerprint }

func (f *Fingerprint) Process(_ context.Context, doc *document.Document, output string) (string, error) {
	if !isMarkdown(output) {
		f.logger.Debug("Skipping fingerprint of a non-Markdown output", logfields.Path(output))
		return output, nil
	}
	// #nosec G304 - output is the path the previous step wrote
	content, err := os.ReadFile(output)
	if err != nil {
		return "", fmt.Errorf("read rendered document: %w", err)
	}
	header, body, had, style, err := frontmatter.Split(content)
	if err != nil {
		return "", fmt.Errorf("split front matter: %w", err)
	}
	fields := map[string]any{}
	if had {
		if fields, err = frontmatter.ParseYAML(header); err != nil {
			return "", fmt.Errorf("parse front matter: %w", err)
		}
		if fields == nil {
			fields = map[string]any{}
		}
	}
	fields[KeyDocument] = doc.Suffix
	if name, ok := doc.Meta()[KeyDocName].(string); ok && name != "" {
		fields[KeyDocName] = name
	}

	fp, err := ComputeFingerprint(fields, body)
	if err != nil {
		return "", err
	}
	previous, _ := fields[mdfp.FingerprintField].(string)
	fields[mdfp.FingerprintField] = fp

	if style.Newline == "" {
		style.Newline = "\n"
	}
	out, err := frontmatter.Render(fields, body, style)
	if err != nil {
		return "", fmt.Errorf("render front matter: %w", err)
	}
	if err := storage.WriteFileAtomic(output, out, 0o600); err != nil {
		return "", err
	}
	f.logger.Debug("Document fingerprinted",
		logfields.Document(doc.Suffix),
		slog.Bool("updated", previous != fp),
		slog.String("fingerprint", fp))
	return output, nil
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// ComputeFingerprint hashes the front matter fields, except the fingerprint
// itself, together with the body. Fields are serialised as sorted YAML with
// LF newlines.
func ComputeFingerprint(fields map[string]any, body []byte) (string, error) {
	forHash := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == mdfp.FingerprintField {
			continue
		}
		forHash[k] = v
	}
	header := ""
	if len(forHash) > 0 {
		serialized, err := frontmatter.SerializeYAML(forHash, frontmatter.Style{Newline: "\n"})
		if err != nil {
			return "", fmt.Errorf("serialize front matter: %w", err)
		}
		header = strings.TrimSuffix(string(serialized), "\n")
	}
	return mdfp.CalculateFingerprintFromParts(header, string(body)), nil
}
