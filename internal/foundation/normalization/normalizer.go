// Package normalization maps loosely written option values (any case,
// surrounding blanks, aliases) onto typed enums.
package normalization

import (
	"fmt"
	"sort"
	"strings"
)

// Normalizer converts strings to values of an enum type T.
type Normalizer[T comparable] struct {
	values       map[string]T
	defaultValue T
	keys         []string
	fold         Func
}

// Func folds a raw string before lookup.
type Func func(string) string

// NewNormalizer creates a normalizer over values, folding case and blanks.
// Unrecognised input maps to defaultValue.
func NewNormalizer[T comparable](values map[string]T, defaultValue T) *Normalizer[T] {
	return WithCustomNormalizer(values, defaultValue, defaultFold)
}

// WithCustomNormalizer creates a normalizer that folds input with fold.
func WithCustomNormalizer[T comparable](values map[string]T, defaultValue T, fold Func) *Normalizer[T] {
	n := &Normalizer[T]{
		values:       make(map[string]T, len(values)),
		defaultValue: defaultValue,
		keys:         make([]string, 0, len(values)),
		fold:         fold,
	}
	for k, v := range values {
		key := fold(k)
		n.values[key] = v
		n.keys = append(n.keys, key)
	}
	sort.Strings(n.keys)
	return n
}

// Normalize returns the value for raw, or the default.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[n.fold(raw)]; ok {
		return v
	}
	return n.defaultValue
}

// NormalizeWithError returns the value for raw. Blank input yields the
// default; anything else unrecognised is an error listing the valid keys.
func (n *Normalizer[T]) NormalizeWithError(raw string) (T, error) {
	key := n.fold(raw)
	if key == "" {
		return n.defaultValue, nil
	}
	if v, ok := n.values[key]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid value %q, valid options: %s", raw, strings.Join(n.keys, ", "))
}

// ValidKeys returns the accepted (folded) keys, sorted.
func (n *Normalizer[T]) ValidKeys() []string {
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

func defaultFold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
