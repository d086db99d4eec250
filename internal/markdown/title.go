package markdown

import (
	"bytes"
	"fmt"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Title returns the text of the first <h1> of an HTML fragment, or "".
func Title(fragment []byte) (string, error) {
	nodes, err := xhtml.ParseFragment(bytes.NewReader(fragment), &xhtml.Node{
		Type:     xhtml.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", fmt.Errorf("parse rendered html: %w", err)
	}
	for _, n := range nodes {
		if h1 := findFirst(n, atom.H1); h1 != nil {
			return strings.TrimSpace(textContent(h1)), nil
		}
	}
	return "", nil
}

func findFirst(n *xhtml.Node, a atom.Atom) *xhtml.Node {
	if n.Type == xhtml.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *xhtml.Node) string {
	if n.Type == xhtml.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
