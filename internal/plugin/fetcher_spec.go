package plugin

import (
	"fmt"
	"strconv"
)

// FetcherSpec is one entry of a "data_fetcher" declaration.
type FetcherSpec struct {
	// Name is the explicit "name", or the positional index as a string.
	Name  string
	Index int
	// Type selects the DataSource.
	Type string
	// Options is the whole declaration, type and name included.
	Options map[string]any
}

// String returns the option as a string, or "" when absent.
func (s FetcherSpec) String(key string) string {
	v, ok := s.Options[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Strings returns a string list option; a single string becomes a one-element list.
func (s FetcherSpec) Strings(key string) []string {
	switch v := s.Options[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

// DuplicateFetcherError reports two declarations resolving to the same name.
type DuplicateFetcherError struct {
	Name string
}

func (e DuplicateFetcherError) Error() string {
	return fmt.Sprintf("fetcher id is duplicated: %s", e.Name)
}

// ParseFetchers reads the declarations under key. The value may be a single
// mapping or a list of mappings; a missing key yields no fetchers.
func ParseFetchers(metadata map[string]any, key string) ([]FetcherSpec, error) {
	raw, ok := metadata[key]
	if !ok || raw == nil {
		return nil, nil
	}

	var entries []any
	switch v := raw.(type) {
	case []any:
		entries = v
	case map[string]any:
		entries = []any{v}
	default:
		return nil, fmt.Errorf("%s must be a mapping or a list of mappings, got %T", key, raw)
	}

	specs := make([]FetcherSpec, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		opts, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s entry %d must be a mapping, got %T", key, i, e)
		}
		spec := FetcherSpec{Index: i, Options: opts, Name: strconv.Itoa(i)}
		if name, ok := opts["name"]; ok && name != nil {
			spec.Name = fmt.Sprint(name)
		}
		if typ, ok := opts["type"].(string); ok {
			spec.Type = typ
		}
		if spec.Type == "" {
			return nil, fmt.Errorf("%s entry %q has no type", key, spec.Name)
		}
		if seen[spec.Name] {
			return nil, DuplicateFetcherError{Name: spec.Name}
		}
		seen[spec.Name] = true
		specs = append(specs, spec)
	}
	return specs, nil
}
