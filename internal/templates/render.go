// Package templates renders the main template of a document from its
// DocumentContext with Go's text/template engine.
//
// Every template of the fragment tree is parsed under its template name, so
// the main template reaches the others with {{template "name" .}}. Fragment
// templates additionally get $ctx bound to their own context, the value
// found at their context path under "data".
package templates

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/hpv-information-centre/reportcompiler/internal/document"
	"github.com/hpv-information-centre/reportcompiler/internal/fragment"
	"github.com/hpv-information-centre/reportcompiler/internal/foundation/normalization"
)

// Renderer names.
const (
	RendererGoTemplate = "gotemplate"
	RendererNone       = "none"
)

var rendererNames = normalization.NewNormalizer(map[string]string{
	"gotemplate":    RendererGoTemplate,
	"go":            RendererGoTemplate,
	"text/template": RendererGoTemplate,
	"none":          RendererNone,
}, RendererNone)

// Renderer renders the main template into the document's out directory.
type Renderer struct {
	// Dir is the specification's templates directory.
	Dir string
	// LibraryDir is the shared template library, searched after Dir.
	LibraryDir string
	// Main is the main template name.
	Main string
}

// New returns the renderer registered under name, or nil for "none" and the
// empty name.
func New(name, dir, libraryDir, main string) (document.Renderer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	id, err := rendererNames.NormalizeWithError(name)
	if err != nil {
		return nil, fmt.Errorf("template renderer: %w", err)
	}
	if id == RendererNone {
		return nil, nil
	}
	return &Renderer{Dir: dir, LibraryDir: libraryDir, Main: main}, nil
}

// Render executes the main template against doc.Context and writes the
// result to <out_path>/<doc_name>[-<suffix>]<ext>.
func (r *Renderer) Render(_ context.Context, doc *document.Document) (string, error) {
	meta := doc.Meta()
	outDir, _ := meta["out_path"].(string)
	if outDir == "" {
		return "", fmt.Errorf("document metadata has no out_path")
	}

	body, err := r.RenderString(doc.Context)
	if err != nil {
		return "", err
	}
	return WriteOutput(outDir, OutputName(meta, r.Main), []byte(body))
}

// RenderString executes the main template against docCtx.
func (r *Renderer) RenderString(docCtx map[string]any) (string, error) {
	tpl := template.New(r.Main).Funcs(Funcs()).Option("missingkey=error")

	entries := contextInfo(docCtx)
	if len(entries) == 0 {
		entries = []fragment.ContextEntry{{Fragment: r.Main}}
	}
	for _, e := range entries {
		content, err := r.read(e.Fragment)
		if err != nil {
			return "", err
		}
		if e.Fragment != r.Main {
			content = bindContext(e.Path) + content
		}
		if _, err := tpl.New(e.Fragment).Parse(content); err != nil {
			return "", fmt.Errorf("parse template %s: %w", e.Fragment, err)
		}
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, r.Main, docCtx); err != nil {
		return "", fmt.Errorf("render template %s: %w", r.Main, err)
	}
	return buf.String(), nil
}

func (r *Renderer) read(name string) (string, error) {
	for _, dir := range []string{r.Dir, r.LibraryDir} {
		if dir == "" {
			continue
		}
		// #nosec G304 - template names come from the fragment tree
		b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err == nil {
			return string(b), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read template %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("template %s not found", name)
}

func bindContext(dotted string) string {
	return fmt.Sprintf("{{- %s := contextAt . %q -}}", fragment.ContextVariable, dotted)
}

func contextInfo(docCtx map[string]any) []fragment.ContextEntry {
	meta, _ := docCtx[document.KeyMeta].(map[string]any)
	entries, _ := meta[document.KeyTemplateContextInfo].([]fragment.ContextEntry)
	// Fragments repeated in the tree are parsed once.
	seen := make(map[string]bool, len(entries))
	out := make([]fragment.ContextEntry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Fragment] {
			continue
		}
		seen[e.Fragment] = true
		out = append(out, e)
	}
	return out
}

// OutputName is <doc_name>[-<suffix>] with the main template's extension.
func OutputName(meta map[string]any, main string) string {
	name, _ := meta["doc_name"].(string)
	if name == "" {
		name = fragment.StripExt(path.Base(main))
	}
	if suffix, _ := meta[document.KeyDocSuffix].(string); suffix != "" {
		name += "-" + suffix
	}
	return name + path.Ext(main)
}
