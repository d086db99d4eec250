package fragment

import (
	"fmt"
	"strings"

	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
)

// Template is a resolved template body.
type Template struct {
	ID      string
	Content []byte
	// Library is set when the template came from the shared library path.
	Library bool
}

// TemplateSource resolves template identifiers to their contents.
type TemplateSource interface {
	Resolve(id string) (Template, error)
}

// IncludeScanner lists the templates statically included by a template body,
// in order of appearance.
type IncludeScanner interface {
	Includes(name string, content []byte) ([]string, error)
}

// SourceIndex maps a template to its source file. An empty path means the
// fragment has no source; more than one candidate is an error.
type SourceIndex interface {
	SourceFor(template string) (string, error)
}

// Build constructs the fragment tree rooted at rootID. Missing templates,
// include cycles and ambiguous source files are configuration errors.
func Build(rootID string, templates TemplateSource, scanner IncludeScanner, sources SourceIndex) (*Node, error) {
	b := &builder{templates: templates, scanner: scanner, sources: sources}
	root, err := b.node(rootID, nil, nil)
	if err != nil {
		return nil, err
	}
	return root, nil
}

type builder struct {
	templates TemplateSource
	scanner   IncludeScanner
	sources   SourceIndex
}

func (b *builder) node(name string, parent *Node, stack []string) (*Node, error) {
	for _, s := range stack {
		if s == name {
			return nil, rcerrors.ConfigurationError("template include cycle").
				WithContext("cycle", strings.Join(append(stack, name), " -> "))
		}
	}

	tpl, err := b.templates.Resolve(name)
	if err != nil {
		return nil, err
	}

	n := &Node{Name: name, parent: parent, Library: tpl.Library}
	if tpl.Library {
		return n, nil
	}

	if b.sources != nil {
		src, err := b.sources.SourceFor(name)
		if err != nil {
			return nil, err
		}
		n.Source = src
	}

	includes, err := b.scanner.Includes(name, tpl.Content)
	if err != nil {
		return nil, rcerrors.WrapConfiguration(err, "cannot scan template includes").WithContext("template", name)
	}

	seen := make(map[string]int, len(includes))
	stack = append(stack, name)
	for _, inc := range includes {
		child, err := b.node(inc, n, stack)
		if err != nil {
			return nil, err
		}
		child.id = childID(inc, seen[inc])
		seen[inc]++
		n.Children = append(n.Children, child)
	}
	if parent == nil {
		n.id = name
		assignIDs(n)
	}
	return n, nil
}

// childID is provisional until the root is known; assignIDs finalises it.
func childID(name string, repeat int) string {
	if repeat == 0 {
		return name
	}
	return fmt.Sprintf("%s~%d", name, repeat)
}

// assignIDs prefixes each provisional child ID with its parent's final ID.
func assignIDs(n *Node) {
	for _, c := range n.Children {
		c.id = n.id + "/" + c.id
		assignIDs(c)
	}
}
