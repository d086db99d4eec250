package builders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDSpec returns a context written out in the fragment declaration.
const IDSpec = "spec"

// Spec returns, in order of preference, the "context" metadata entry, the
// decoded "context_file" from the data directory, or the fetched data.
type Spec struct{}

// NewSpec is the registry factory for Spec.
func NewSpec() plugin.ContextBuilder { return Spec{} }

func (Spec) Build(_ context.Context, in *plugin.Input) (any, error) {
	if v, ok := in.Metadata["context"]; ok {
		return v, nil
	}
	if name, ok := in.Metadata["context_file"].(string); ok && name != "" {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(in.Env.DataDir, name)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("spec builder: %w", err)
		}
		var v any
		if err := yaml.Unmarshal(content, &v); err != nil {
			return nil, fmt.Errorf("spec builder: decode %s: %w", path, err)
		}
		return v, nil
	}
	if in.Data == nil {
		return map[string]any{}, nil
	}
	return in.Data, nil
}
