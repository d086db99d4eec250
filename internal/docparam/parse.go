package docparam

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parse decodes a single parameter from JSON or YAML, preserving key order.
func Parse(data []byte) (Param, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Param{}, fmt.Errorf("docparam: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return Param{}, fmt.Errorf("docparam: empty document")
	}
	return fromNode(doc.Content[0])
}

// ParseList decodes either one parameter object or a sequence of them.
func ParseList(data []byte) ([]Param, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("docparam: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("docparam: empty document")
	}
	root := doc.Content[0]
	if root.Kind == yaml.MappingNode {
		p, err := fromNode(root)
		if err != nil {
			return nil, err
		}
		return []Param{p}, nil
	}
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("docparam: expected a mapping or a list of mappings at line %d", root.Line)
	}
	out := make([]Param, 0, len(root.Content))
	for _, item := range root.Content {
		p, err := fromNode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// FromScalar wraps a bare command-line value as {defaultKey: value}.
func FromScalar(defaultKey, value string) (Param, error) {
	if defaultKey == "" {
		return Param{}, fmt.Errorf("docparam: %q is not a parameter object and no default key is declared", value)
	}
	return New(defaultKey, value)
}

func fromNode(node *yaml.Node) (Param, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return Param{}, fmt.Errorf("docparam: expected a mapping at line %d", node.Line)
	}
	var p Param
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var value any
		if err := valueNode.Decode(&value); err != nil {
			return Param{}, fmt.Errorf("docparam: key %q: %w", keyNode.Value, err)
		}
		p = p.with(keyNode.Value, value)
	}
	return p, nil
}
