// Package incremental decides which fragments must be recomputed, based on
// content hashes of everything that feeds them.
package incremental

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Component names one of the four hashed inputs of a fragment.
type Component string

const (
	ComponentCode     Component = "code"
	ComponentParam    Component = "param"
	ComponentData     Component = "data"
	ComponentMetadata Component = "metadata"
)

// Components lists every fingerprint component in comparison order.
var Components = []Component{ComponentCode, ComponentParam, ComponentData, ComponentMetadata}

// Fingerprint is the signature of a fragment's inputs.
type Fingerprint struct {
	Code     string `json:"code"`
	Param    string `json:"param"`
	Data     string `json:"data"`
	Metadata string `json:"metadata"`
}

// ComputeFingerprint hashes the source bytes and the canonical encodings of the
// parameter, fetched data and effective metadata.
func ComputeFingerprint(source []byte, param, data, metadata any) (Fingerprint, error) {
	paramHash, err := HashCanonical(param)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("hash parameter: %w", err)
	}
	dataHash, err := HashCanonical(data)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("hash data: %w", err)
	}
	metaHash, err := HashCanonical(metadata)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("hash metadata: %w", err)
	}
	return Fingerprint{
		Code:     HashBytes(source),
		Param:    paramHash,
		Data:     dataHash,
		Metadata: metaHash,
	}, nil
}

// Get returns the hash of one component.
func (f Fingerprint) Get(c Component) string {
	switch c {
	case ComponentCode:
		return f.Code
	case ComponentParam:
		return f.Param
	case ComponentData:
		return f.Data
	case ComponentMetadata:
		return f.Metadata
	default:
		return ""
	}
}

// Diff returns the components whose hashes differ, in Components order.
func (f Fingerprint) Diff(other Fingerprint) []Component {
	var changed []Component
	for _, c := range Components {
		if f.Get(c) != other.Get(c) {
			changed = append(changed, c)
		}
	}
	return changed
}

// Equals reports whether every component matches.
func (f Fingerprint) Equals(other Fingerprint) bool {
	return f == other
}

// String joins the four hashes, one per line.
func (f Fingerprint) String() string {
	return strings.Join([]string{f.Code, f.Param, f.Data, f.Metadata}, "\n")
}

// HashBytes returns the hex SHA256 of b.
func HashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// HashCanonical returns the hex SHA256 of the canonical encoding of v.
func HashCanonical(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// Canonicaler is implemented by values that carry their own stable encoding.
type Canonicaler interface {
	Canonical() ([]byte, error)
}

// CanonicalJSON encodes v with sorted map keys and no HTML escaping. Values
// implementing Canonicaler encode themselves.
func CanonicalJSON(v any) ([]byte, error) {
	if c, ok := v.(Canonicaler); ok {
		return c.Canonical()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical encoding: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Normalize round-trips v through JSON so that a freshly computed context and
// one read back from the cache have identical Go representations.
func Normalize(v any) (map[string]any, []byte, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return nil, nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, nil, fmt.Errorf("context is not a mapping: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, data, nil
}
