// Package docparam holds the document parameter: the ordered key/value set
// that identifies which variant of a document is generated.
package docparam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Param is an ordered mapping of string keys to scalar or list values. The
// zero value is an empty parameter. Methods never mutate the receiver.
type Param struct {
	keys   []string
	values map[string]any
}

// New builds a parameter from alternating key/value pairs.
func New(kv ...any) (Param, error) {
	if len(kv)%2 != 0 {
		return Param{}, fmt.Errorf("docparam: odd number of key/value arguments")
	}
	var p Param
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return Param{}, fmt.Errorf("docparam: key %v is not a string", kv[i])
		}
		p = p.with(k, kv[i+1])
	}
	return p, nil
}

// MustNew is New for tests and constants.
func MustNew(kv ...any) Param {
	p, err := New(kv...)
	if err != nil {
		panic(err)
	}
	return p
}

// FromMap builds a parameter from m with keys in sorted order.
func FromMap(m map[string]any) Param {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var p Param
	for _, k := range keys {
		p = p.with(k, m[k])
	}
	return p
}

func (p Param) with(key string, value any) Param {
	out := p.Clone()
	if out.values == nil {
		out.values = make(map[string]any)
	}
	if _, exists := out.values[key]; !exists {
		out.keys = append(out.keys, key)
	}
	out.values[key] = DeepCopy(value)
	return out
}

// Keys returns the keys in declaration order.
func (p Param) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of keys.
func (p Param) Len() int { return len(p.keys) }

// IsZero reports whether the parameter has no keys.
func (p Param) IsZero() bool { return len(p.keys) == 0 }

// Get returns a deep copy of the value for key.
func (p Param) Get(key string) (any, bool) {
	v, ok := p.values[key]
	if !ok {
		return nil, false
	}
	return DeepCopy(v), true
}

// Map returns a deep-copied unordered view.
func (p Param) Map() map[string]any {
	return CloneMap(p.values)
}

// Clone returns an independently owned deep copy.
func (p Param) Clone() Param {
	if p.keys == nil {
		return Param{}
	}
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return Param{keys: keys, values: CloneMap(p.values)}
}

// Augment returns a copy with fields appended (or overwritten in place when
// the key already exists). Field order follows the keys of fields, sorted.
func (p Param) Augment(fields map[string]any) Param {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := p
	for _, k := range keys {
		out = out.with(k, fields[k])
	}
	return out
}

// DefaultSuffix names the document of a parameter without keys.
const DefaultSuffix = "_default"

// Equal compares keys, order and values.
func (p Param) Equal(other Param) bool {
	a, errA := p.MarshalJSON()
	b, errB := other.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// Suffix derives the namespace string used for cache and output paths: the
// values in key order, stringified, joined with "-", with ": " replaced by "="
// and NFC-normalised. Distinct parameters may collide; see UniqueSuffix.
// A parameter without keys has no suffix; callers name it DefaultSuffix.
func (p Param) Suffix() string {
	if p.IsZero() {
		return ""
	}
	parts := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		parts = append(parts, stringify(p.values[k]))
	}
	return sanitize(strings.ReplaceAll(strings.Join(parts, "-"), ": ", "="))
}

// UniqueSuffix is an unambiguous variant of Suffix that includes the keys and
// escapes every separator.
func (p Param) UniqueSuffix() string {
	parts := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(stringify(p.values[k])))
	}
	return norm.NFC.String(strings.Join(parts, ","))
}

// Canonical returns the sorted-key JSON encoding used for hashing.
func (p Param) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	m := p.values
	if m == nil {
		m = map[string]any{}
	}
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("docparam: canonical encoding: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalJSON encodes the parameter as an object in declaration order.
func (p Param) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("docparam: encode %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping key order.
func (p *Param) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML encodes the parameter as an ordered YAML mapping.
func (p Param) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range p.keys {
		var v yaml.Node
		if err := v.Encode(p.values[k]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, &v)
	}
	return node, nil
}

// UnmarshalYAML decodes a mapping node, keeping key order.
func (p *Param) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := fromNode(node)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// String renders the parameter in declaration order for logs.
func (p Param) String() string {
	b, err := p.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", p.values)
	}
	return string(b)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringify(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + stringify(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(t)
	}
}

// sanitize keeps a suffix usable as a single path element.
func sanitize(s string) string {
	s = norm.NFC.String(s)
	s = strings.NewReplacer("/", "_", `\`, "_").Replace(s)
	if s == "" || s == "." || s == ".." {
		return "_" + s
	}
	return s
}
