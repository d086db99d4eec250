package fetchers

import (
	"context"
	"fmt"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDConstant returns data written inline in the fetcher declaration.
const IDConstant = "constant"

// Constant serves "value" verbatim, or turns a "values" list into a
// one-column table named after the fetcher (or "value" when unnamed).
type Constant struct{}

// NewConstant is the registry factory for Constant.
func NewConstant() plugin.DataSource { return Constant{} }

func (Constant) Fetch(_ context.Context, _ *plugin.Input, spec plugin.FetcherSpec) (any, error) {
	if v, ok := spec.Options["value"]; ok {
		return v, nil
	}
	raw, ok := spec.Options["values"]
	if !ok {
		return nil, fmt.Errorf("constant fetcher %q: neither 'value' nor 'values' is set", spec.Name)
	}
	values, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("constant fetcher %q: values not a list", spec.Name)
	}

	column := "value"
	if name, ok := spec.Options["name"].(string); ok && name != "" {
		column = name
	}
	rows := make([]any, 0, len(values))
	for _, v := range values {
		rows = append(rows, map[string]any{column: v})
	}
	return rows, nil
}
