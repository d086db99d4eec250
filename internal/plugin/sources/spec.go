package sources

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDSpec treats a YAML or JSON source file as the metadata itself.
const IDSpec = "spec"

// Spec decodes the whole source file as a mapping. It serves declarative
// fragments whose context is written out rather than computed.
type Spec struct{}

// NewSpec is the registry factory for Spec.
func NewSpec() plugin.MetadataSource { return Spec{} }

func (Spec) Retrieve(_ context.Context, in *plugin.Input) (map[string]any, error) {
	content, err := sourceBytes(in)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if len(content) == 0 {
		return fields, nil
	}
	var doc any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", in.Source, err)
	}
	switch v := doc.(type) {
	case nil:
		return fields, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("%s: top level must be a mapping, got %T", in.Source, doc)
	}
}
