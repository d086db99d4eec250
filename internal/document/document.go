// Package document assembles one document: it compiles every fragment of the
// template tree over a bounded worker pool, merges the fragment contexts into
// the DocumentContext, and hands it to the optional renderer and
// post-processors.
package document

import (
	"context"
	"time"

	"github.com/hpv-information-centre/reportcompiler/internal/compiler"
	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	"github.com/hpv-information-centre/reportcompiler/internal/fragment"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// DocumentContext keys.
const (
	KeyData = "data"
	KeyMeta = "meta"

	KeyTemplateContextInfo = "template_context_info"
	KeyDocSuffix           = "doc_suffix"
	KeyStyle               = "style"
)

// Request describes one document generation.
type Request struct {
	Tree     *fragment.Node
	Param    docparam.Param
	Metadata map[string]any
	// Env.Suffix names the document; it defaults to Param.Suffix().
	Env plugin.Env

	// Fragments restricts generation to the named fragments and their
	// descendants. Empty means the whole tree.
	Fragments []string

	// Augmentation fetchers run once before any fragment; the first row of
	// each result is appended to the document parameter.
	Augmentation []plugin.FetcherSpec
}

// Document is the outcome of one generation.
type Document struct {
	Suffix string
	// Param is the augmented document parameter.
	Param docparam.Param
	// Context is {"data": merged fragment contexts, "meta": run metadata}.
	// It is nil when any fragment failed.
	Context map[string]any
	// Fragments holds one result per compiled node, in pre-order.
	Fragments []compiler.Result
	// Output is the rendered (and post-processed) artefact, if any.
	Output   string
	Duration time.Duration
}

// Data returns the merged fragment contexts.
func (d *Document) Data() map[string]any {
	m, _ := d.Context[KeyData].(map[string]any)
	return m
}

// Meta returns the metadata side channel.
func (d *Document) Meta() map[string]any {
	m, _ := d.Context[KeyMeta].(map[string]any)
	return m
}

// Counts tallies fragment results by status.
func (d *Document) Counts() map[compiler.Status]int {
	out := make(map[compiler.Status]int, 4)
	for _, r := range d.Fragments {
		out[r.Status]++
	}
	return out
}

// Renderer renders the main template from a successful document and returns
// the path of what it produced.
type Renderer interface {
	Render(ctx context.Context, doc *Document) (string, error)
}

// Postprocessor transforms a rendered artefact, returning the new path.
type Postprocessor interface {
	Name() string
	Process(ctx context.Context, doc *Document, output string) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, doc *Document) (string, error)

func (f RendererFunc) Render(ctx context.Context, doc *Document) (string, error) { return f(ctx, doc) }
