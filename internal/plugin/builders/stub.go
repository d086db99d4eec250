package builders

import (
	"context"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDStub produces a fixed placeholder context.
const IDStub = "stub"

// StubMessage is the placeholder returned by Stub.
const StubMessage = "Stub context generated!!"

// Stub ignores its input. Useful to lay out a document before its fragments exist.
type Stub struct{}

// NewStub is the registry factory for Stub.
func NewStub() plugin.ContextBuilder { return Stub{} }

func (Stub) Build(context.Context, *plugin.Input) (any, error) {
	return map[string]any{"data": StubMessage}, nil
}
