package sources

import (
	"context"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDStub declares no metadata.
const IDStub = "stub"

// Stub returns empty metadata for every fragment.
type Stub struct{}

// NewStub is the registry factory for Stub.
func NewStub() plugin.MetadataSource { return Stub{} }

func (Stub) Retrieve(context.Context, *plugin.Input) (map[string]any, error) {
	return map[string]any{}, nil
}
