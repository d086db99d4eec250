// Package markdown post-processes rendered Markdown documents: conversion
// into standalone HTML pages and content fingerprinting.
package markdown

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/hpv-information-centre/reportcompiler/internal/document"
	"github.com/hpv-information-centre/reportcompiler/internal/foundation/normalization"
	"github.com/hpv-information-centre/reportcompiler/internal/frontmatter"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/templates"
)

// Postprocessor names.
const (
	NameHTML        = "markdown-html"
	NameFingerprint = "markdown-fingerprint"
)

var postprocessorNames = normalization.NewNormalizer(map[string]string{
	"markdown-html":        NameHTML,
	"markdown":             NameHTML,
	"html":                 NameHTML,
	"markdown-fingerprint": NameFingerprint,
	"fingerprint":          NameFingerprint,
}, "")

// Postprocessors resolves configured post-processor names, in order.
func Postprocessors(names []string, logger *slog.Logger) ([]document.Postprocessor, error) {
	out := make([]document.Postprocessor, 0, len(names))
	for _, name := range names {
		id, err := postprocessorNames.NormalizeWithError(name)
		if err != nil {
			return nil, fmt.Errorf("postprocessor: %w", err)
		}
		switch id {
		case NameHTML:
			out = append(out, NewHTML(logger))
		case NameFingerprint:
			out = append(out, NewFingerprint(logger))
		}
	}
	return out, nil
}

// HTML converts the rendered Markdown file into <name>.html next to it.
// Relative images that do not exist are reported as warnings.
type HTML struct {
	md     goldmark.Markdown
	logger *slog.Logger
}

// NewHTML returns the markdown-html post-processor.
func NewHTML(logger *slog.Logger) *HTML {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTML{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
		logger: logger,
	}
}

func (h *HTML) Name() string { return NameHTML }

func (h *HTML) Process(_ context.Context, doc *document.Document, output string) (string, error) {
	// #nosec G304 - output is the path the renderer just wrote
	src, err := os.ReadFile(output)
	if err != nil {
		return "", fmt.Errorf("read rendered document: %w", err)
	}
	if _, content, had, _, err := frontmatter.Split(src); err == nil && had {
		src = content
	}
	h.checkImages(doc, output, src)

	var body bytes.Buffer
	if err := h.md.Convert(src, &body); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	title, err := Title(body.Bytes())
	if err != nil {
		return "", err
	}
	if title == "" {
		title = doc.Suffix
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(title))
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")

	name := strings.TrimSuffix(filepath.Base(output), filepath.Ext(output)) + ".html"
	return templates.WriteOutput(filepath.Dir(output), name, page.Bytes())
}

// checkImages warns about relative image destinations that resolve neither
// against the output directory nor against the figure directory.
func (h *HTML) checkImages(doc *document.Document, output string, src []byte) {
	figDir, _ := doc.Meta()["fig_path"].(string)
	for _, link := range ExtractLinks(src) {
		if link.Kind != LinkKindImage {
			continue
		}
		u, err := url.Parse(link.Destination)
		if err != nil || u.Scheme != "" || u.Path == "" || filepath.IsAbs(u.Path) {
			continue
		}
		candidates := []string{filepath.Join(filepath.Dir(output), filepath.FromSlash(u.Path))}
		if figDir != "" {
			candidates = append(candidates, filepath.Join(figDir, filepath.FromSlash(u.Path)))
		}
		if !anyExists(candidates) {
			h.logger.Warn("Image not found", logfields.Document(doc.Suffix), logfields.Path(link.Destination))
		}
	}
}

func anyExists(paths []string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}
