package fragment

import (
	"fmt"
	"regexp"
	"sort"
	"text/template/parse"

	"github.com/hpv-information-centre/reportcompiler/internal/foundation/normalization"
)

// Scanner names.
const (
	ScannerGoTemplate = "gotemplate"
	ScannerJinja      = "jinja"
)

var scannerNormalizer = normalization.NewNormalizer(map[string]string{
	"gotemplate": ScannerGoTemplate,
	"go":         ScannerGoTemplate,
	"jinja":      ScannerJinja,
	"jinja2":     ScannerJinja,
}, ScannerGoTemplate)

// ScannerFor returns the include scanner registered under name.
func ScannerFor(name string) (IncludeScanner, error) {
	if name == "" {
		return GoTemplateScanner{}, nil
	}
	id, err := scannerNormalizer.NormalizeWithError(name)
	if err != nil {
		return nil, fmt.Errorf("include scanner: %w", err)
	}
	if id == ScannerJinja {
		return JinjaScanner{}, nil
	}
	return GoTemplateScanner{}, nil
}

// ContextVariable is bound by the renderer in every template to the
// template's own slice of the document context.
const ContextVariable = "$ctx"

// GoTemplateScanner finds {{template "name"}} actions. Templates defined in
// the same body with {{define}} are not includes.
type GoTemplateScanner struct{}

func (GoTemplateScanner) Includes(name string, content []byte) ([]string, error) {
	trees := make(map[string]*parse.Tree)
	t := parse.New(name)
	t.Mode = parse.SkipFuncCheck | parse.ParseComments
	// The declaration has no newline so reported line numbers stay exact.
	prologue := "{{- " + ContextVariable + " := . -}}"
	if _, err := t.Parse(prologue+string(content), "", "", trees); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(trees))
	for n := range trees {
		names = append(names, n)
	}
	sort.Strings(names)
	// The main body first, then defined blocks, for a stable discovery order.
	ordered := []*parse.Tree{}
	if tree, ok := trees[name]; ok {
		ordered = append(ordered, tree)
	}
	for _, n := range names {
		if n != name {
			ordered = append(ordered, trees[n])
		}
	}

	var out []string
	for _, tree := range ordered {
		if tree == nil || tree.Root == nil {
			continue
		}
		collectTemplates(tree.Root, func(ref string) {
			if _, defined := trees[ref]; !defined {
				out = append(out, ref)
			}
		})
	}
	return out, nil
}

func collectTemplates(node parse.Node, emit func(string)) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			collectTemplates(c, emit)
		}
	case *parse.TemplateNode:
		emit(n.Name)
	case *parse.IfNode:
		collectTemplates(n.List, emit)
		collectTemplates(n.ElseList, emit)
	case *parse.RangeNode:
		collectTemplates(n.List, emit)
		collectTemplates(n.ElseList, emit)
	case *parse.WithNode:
		collectTemplates(n.List, emit)
		collectTemplates(n.ElseList, emit)
	}
}

var jinjaInclude = regexp.MustCompile(`\{%-?\s*(?:include|extends|import|from)\s+["']([^"']+)["']`)

// JinjaScanner finds {% include %}, {% extends %}, {% import %} and
// {% from ... import %} references with literal template names.
type JinjaScanner struct{}

func (JinjaScanner) Includes(_ string, content []byte) ([]string, error) {
	matches := jinjaInclude.FindAllSubmatch(content, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, string(m[1]))
	}
	return out, nil
}
