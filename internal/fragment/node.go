// Package fragment builds the fragment tree of a document: one node per
// template, children being the templates it statically includes.
package fragment

import (
	"fmt"
	"path"
	"strings"
)

// Node is one fragment of a document. A node is read-only once Build returns.
type Node struct {
	// Name is the template identifier, e.g. "sections/intro.tex".
	Name string

	// Source is the path of the fragment's source file. Empty means the
	// fragment computes nothing and contributes an empty context.
	Source string

	// Library marks templates resolved from the shared template library.
	// They are leaves and never carry a source file.
	Library bool

	Children []*Node

	parent *Node
	id     string
}

// ID is the slash-joined path of names from the root, with a "~N" suffix for
// the N-th repetition of the same name under one parent. IDs are unique per tree.
func (n *Node) ID() string { return n.id }

// Parent returns the including node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// IsRoot reports whether n is the main template.
func (n *Node) IsRoot() bool { return n.parent == nil }

// Stem is the template name without directory or extension.
func (n *Node) Stem() string {
	return StripExt(path.Base(n.Name))
}

// Ancestors returns the nodes from the root down to the parent of n.
func (n *Node) Ancestors() []*Node {
	var out []*Node
	for p := n.parent; p != nil; p = p.parent {
		out = append(out, p)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ContextPath is where this fragment's context is placed in the document
// context: the extension-less names of its ancestors, root excluded.
func (n *Node) ContextPath() []string {
	anc := n.Ancestors()
	if len(anc) <= 1 {
		return nil
	}
	out := make([]string, 0, len(anc)-1)
	for _, a := range anc[1:] {
		out = append(out, StripExt(a.Name))
	}
	return out
}

// Walk visits n and its descendants in pre-order. Returning an error stops the walk.
func (n *Node) Walk(fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// PreOrder returns every node, parent before children, children in discovery order.
func (n *Node) PreOrder() []*Node {
	var out []*Node
	_ = n.Walk(func(x *Node) error {
		out = append(out, x)
		return nil
	})
	return out
}

// Find returns every node whose Name or Stem equals name, in pre-order.
func (n *Node) Find(name string) []*Node {
	var out []*Node
	for _, x := range n.PreOrder() {
		if x.Name == name || x.Stem() == name || x.id == name {
			out = append(out, x)
		}
	}
	return out
}

// Lookup returns the node with the given ID.
func (n *Node) Lookup(id string) (*Node, bool) {
	for _, x := range n.PreOrder() {
		if x.id == id {
			return x, true
		}
	}
	return nil, false
}

// Subset returns, in pre-order, the nodes named by names together with all
// their descendants. An empty names list selects the whole tree.
func (n *Node) Subset(names ...string) ([]*Node, error) {
	if len(names) == 0 {
		return n.PreOrder(), nil
	}
	selected := make(map[*Node]bool)
	for _, name := range names {
		found := n.Find(name)
		if len(found) == 0 {
			return nil, fmt.Errorf("fragment %q is not part of the template tree", name)
		}
		for _, f := range found {
			_ = f.Walk(func(x *Node) error {
				selected[x] = true
				return nil
			})
		}
	}
	var out []*Node
	for _, x := range n.PreOrder() {
		if selected[x] {
			out = append(out, x)
		}
	}
	return out, nil
}

// ContextEntry locates one fragment's data in the document context.
type ContextEntry struct {
	Fragment string `json:"fragment"`
	Path     string `json:"path"`
}

// ContextInfo returns, in pre-order, the dotted context path of every fragment.
func (n *Node) ContextInfo() []ContextEntry {
	nodes := n.PreOrder()
	out := make([]ContextEntry, 0, len(nodes))
	for _, x := range nodes {
		out = append(out, ContextEntry{Fragment: x.Name, Path: strings.Join(x.ContextPath(), ".")})
	}
	return out
}

// String renders the tree with one indented line per node.
func (n *Node) String() string {
	var b strings.Builder
	n.render(&b, "", true, true)
	return strings.TrimRight(b.String(), "\n")
}

func (n *Node) render(b *strings.Builder, prefix string, last, root bool) {
	label := n.Name
	switch {
	case n.Library:
		label += " (library)"
	case n.Source != "":
		label += " <- " + path.Base(n.Source)
	}
	if root {
		b.WriteString(label + "\n")
	} else {
		branch := "├── "
		if last {
			branch = "└── "
		}
		b.WriteString(prefix + branch + label + "\n")
		if last {
			prefix += "    "
		} else {
			prefix += "│   "
		}
	}
	for i, c := range n.Children {
		c.render(b, prefix, i == len(n.Children)-1, false)
	}
}

// StripExt removes the last extension of name.
func StripExt(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
