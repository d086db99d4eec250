package fragment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
)

// DirSource resolves templates from a specification's templates directory,
// falling back to a shared library directory.
type DirSource struct {
	Dir        string
	LibraryDir string
}

// Resolve reads id from Dir, then from LibraryDir.
func (s DirSource) Resolve(id string) (Template, error) {
	local, err := within(s.Dir, id)
	if err != nil {
		return Template{}, err
	}
	// #nosec G304 - path is confined to the templates directory
	content, err := os.ReadFile(local)
	if err == nil {
		return Template{ID: id, Content: content}, nil
	}
	if !os.IsNotExist(err) {
		return Template{}, rcerrors.WrapConfiguration(err, "cannot read template").WithContext("template", id)
	}

	if s.LibraryDir != "" {
		lib, err := within(s.LibraryDir, id)
		if err != nil {
			return Template{}, err
		}
		if _, err := os.Stat(lib); err == nil {
			return Template{ID: id, Library: true}, nil
		}
	}
	return Template{}, rcerrors.MissingTemplate(id, s.LibraryDir)
}

func within(dir, id string) (string, error) {
	p := filepath.Join(dir, filepath.FromSlash(id))
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", rcerrors.ConfigurationError("template path escapes its directory").WithContext("template", id)
	}
	return p, nil
}

// MemorySource resolves templates from an in-memory map. Names listed in
// Library resolve as library templates.
type MemorySource struct {
	Templates map[string]string
	Library   map[string]bool
}

func (s MemorySource) Resolve(id string) (Template, error) {
	if body, ok := s.Templates[id]; ok {
		return Template{ID: id, Content: []byte(body)}, nil
	}
	if s.Library[id] {
		return Template{ID: id, Library: true}, nil
	}
	return Template{}, rcerrors.MissingTemplate(id, "")
}

// GlobSourceIndex finds a template's source file as <Dir>/<template without
// extension>.<ext>. Several extensions for one name are ambiguous.
type GlobSourceIndex struct {
	Dir string
}

func (g GlobSourceIndex) SourceFor(template string) (string, error) {
	stem := StripExt(filepath.FromSlash(template))
	pattern := filepath.Join(g.Dir, escapeGlob(stem)+".[a-zA-Z0-9]*")
	found, err := filepath.Glob(pattern)
	if err != nil {
		return "", rcerrors.WrapConfiguration(err, "invalid source pattern").WithContext("template", template)
	}
	// Only a single extension counts; intro.py.bak is not a source of intro.
	prefix := filepath.Base(stem) + "."
	matches := found[:0]
	for _, m := range found {
		if isExtension(strings.TrimPrefix(filepath.Base(m), prefix)) {
			matches = append(matches, m)
		}
	}
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", rcerrors.AmbiguousSource(StripExt(template), matches)
	}
}

func isExtension(ext string) bool {
	if ext == "" {
		return false
	}
	for _, r := range ext {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
			return false
		}
	}
	return true
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`).Replace(s)
}

// MapSourceIndex is a fixed template -> source mapping.
type MapSourceIndex map[string]string

func (m MapSourceIndex) SourceFor(template string) (string, error) {
	return m[template], nil
}

// Describe returns a one-line summary of the tree, for logs.
func Describe(root *Node) string {
	nodes := root.PreOrder()
	withSource := 0
	for _, n := range nodes {
		if n.Source != "" {
			withSource++
		}
	}
	return fmt.Sprintf("%d fragment(s), %d with source", len(nodes), withSource)
}
