package docspec

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	"github.com/hpv-information-centre/reportcompiler/internal/document"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// AllowedValuesFragment labels failures of the allowed-values fetchers.
const AllowedValuesFragment = "<allowed_values>"

// maxListedValues bounds the allowed values quoted in an error message.
const maxListedValues = 30

// ParseParams turns command-line arguments into document parameters. An
// argument is a JSON or YAML object, a list of objects, or a bare value that
// becomes {default_key: value}. No argument means one empty parameter.
func (s *Spec) ParseParams(args []string) ([]docparam.Param, error) {
	if len(args) == 0 {
		return []docparam.Param{{}}, nil
	}
	var out []docparam.Param
	for _, arg := range args {
		if isScalar(arg) {
			p, err := docparam.FromScalar(s.Config.Params.DefaultKey, strings.TrimSpace(arg))
			if err != nil {
				return nil, rcerrors.WrapConfiguration(err, "invalid document parameter")
			}
			out = append(out, p)
			continue
		}
		list, err := docparam.ParseList([]byte(arg))
		if err != nil {
			return nil, rcerrors.WrapConfiguration(err, "invalid document parameter").WithContext("param", arg)
		}
		out = append(out, list...)
	}
	return out, nil
}

func isScalar(arg string) bool {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(arg), &doc); err != nil {
		return false
	}
	return len(doc.Content) == 1 && doc.Content[0].Kind == yaml.ScalarNode
}

// Dedupe drops repeated parameters, keeping the first occurrence.
func Dedupe(params []docparam.Param, logger *slog.Logger) []docparam.Param {
	seen := make(map[string]bool, len(params))
	out := make([]docparam.Param, 0, len(params))
	for _, p := range params {
		key, err := p.Canonical()
		if err != nil {
			out = append(out, p)
			continue
		}
		if seen[string(key)] {
			logger.Warn("Document parameter appears more than once, duplicates will be ignored", logfields.Param(p.String()))
			continue
		}
		seen[string(key)] = true
		out = append(out, p)
	}
	return out
}

// Validate checks every parameter against the mandatory keys and the
// allowed values of the specification.
func (s *Spec) Validate(ctx context.Context, registry *plugin.Registry, params []docparam.Param, meta map[string]any, logger *slog.Logger) error {
	for _, p := range params {
		if err := s.checkMandatory(p); err != nil {
			return err
		}
		if err := s.checkAllowed(ctx, registry, p, meta, logger); err != nil {
			return err
		}
	}
	return nil
}

func (s *Spec) checkMandatory(p docparam.Param) error {
	var missing []string
	for _, key := range s.Config.Params.Mandatory {
		if _, ok := p.Get(key); !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return rcerrors.ConfigurationError("some mandatory document parameters were not specified: " + strings.Join(missing, ", ")).
			WithContext("param", p.String())
	}
	return nil
}

// AllowedValues fetches the allowed values of every constrained key. The
// fetchers see p, so the values of one key may depend on another.
func (s *Spec) AllowedValues(ctx context.Context, registry *plugin.Registry, p docparam.Param, meta map[string]any, logger *slog.Logger) (map[string][]any, error) {
	specs := s.Config.Params.AllowedValues
	if len(specs) == 0 {
		return nil, nil
	}
	in := &plugin.Input{
		Fragment: AllowedValuesFragment,
		Name:     AllowedValuesFragment,
		Param:    p.Clone(),
		Metadata: meta,
		Env:      s.env(),
		Logger:   logger,
	}
	results, err := document.FetchAll(ctx, registry, in, specs, AllowedValuesFragment)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]any)
	for _, spec := range specs {
		cols, err := Columns(results[spec.Name])
		if err != nil {
			return nil, rcerrors.DataFetchError(AllowedValuesFragment, spec.Name, err)
		}
		for col, values := range cols {
			out[col] = append(out[col], values...)
		}
	}
	return out, nil
}

func (s *Spec) checkAllowed(ctx context.Context, registry *plugin.Registry, p docparam.Param, meta map[string]any, logger *slog.Logger) error {
	allowed, err := s.AllowedValues(ctx, registry, p, meta, logger)
	if err != nil {
		return err
	}
	var msgs []string
	for _, key := range sortedKeys(allowed) {
		values := allowed[key]
		got, ok := p.Get(key)
		// An empty list means the values depend on a key p does not set.
		if !ok || got == nil || len(values) == 0 {
			continue
		}
		if !contains(values, got) {
			msgs = append(msgs, fmt.Sprintf("allowed values for %q are %s: got %s", key, listValues(values), quote(got)))
		}
	}
	if len(msgs) > 0 {
		return rcerrors.ConfigurationError("some document parameters have invalid values: " + strings.Join(msgs, "; ")).
			WithContext("param", p.String())
	}
	return nil
}

// Columns turns a table-shaped fetcher result into its columns: a list of
// rows, or a mapping of column name to values.
func Columns(v any) (map[string][]any, error) {
	out := make(map[string][]any)
	addRow := func(row map[string]any) {
		for k, val := range row {
			out[k] = append(out[k], val)
		}
	}
	switch t := v.(type) {
	case nil:
		return out, nil
	case []map[string]any:
		for _, row := range t {
			addRow(row)
		}
	case []any:
		for i, e := range t {
			row, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("row %d is %T, not a mapping", i, e)
			}
			addRow(row)
		}
	case map[string]any:
		for k, val := range t {
			switch vals := val.(type) {
			case []any:
				out[k] = append(out[k], vals...)
			case []string:
				for _, s := range vals {
					out[k] = append(out[k], s)
				}
			default:
				out[k] = append(out[k], val)
			}
		}
	default:
		return nil, fmt.Errorf("result of type %T is not a table", v)
	}
	return out, nil
}

func contains(values []any, v any) bool {
	want := fmt.Sprint(v)
	for _, candidate := range values {
		if fmt.Sprint(candidate) == want {
			return true
		}
	}
	return false
}

func listValues(values []any) string {
	n := len(values)
	if n > maxListedValues {
		n = maxListedValues
	}
	parts := make([]string, 0, n+1)
	for _, v := range values[:n] {
		parts = append(parts, quote(v))
	}
	if len(values) > n {
		parts = append(parts, "...")
	}
	return strings.Join(parts, ", ")
}

func quote(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprint(v)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
