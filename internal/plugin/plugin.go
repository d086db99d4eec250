// Package plugin defines the three per-fragment stage strategies (metadata
// sources, data sources and context builders) and the typed registry that
// dispatches them by string id.
package plugin

import (
	"context"
)

// MetadataSource reads the fragment-local configuration declared by a
// fragment, usually from its source file.
type MetadataSource interface {
	Retrieve(ctx context.Context, in *Input) (map[string]any, error)
}

// DataSource produces one named entry of a fragment's data.
type DataSource interface {
	Fetch(ctx context.Context, in *Input, spec FetcherSpec) (any, error)
}

// ContextBuilder turns (parameter, data, metadata) into the fragment context.
// A result that is not a mapping is wrapped as {"data": result} by the caller.
type ContextBuilder interface {
	Build(ctx context.Context, in *Input) (any, error)
}

// MetadataSourceFunc adapts a function to MetadataSource.
type MetadataSourceFunc func(ctx context.Context, in *Input) (map[string]any, error)

func (f MetadataSourceFunc) Retrieve(ctx context.Context, in *Input) (map[string]any, error) {
	return f(ctx, in)
}

// DataSourceFunc adapts a function to DataSource.
type DataSourceFunc func(ctx context.Context, in *Input, spec FetcherSpec) (any, error)

func (f DataSourceFunc) Fetch(ctx context.Context, in *Input, spec FetcherSpec) (any, error) {
	return f(ctx, in, spec)
}

// ContextBuilderFunc adapts a function to ContextBuilder.
type ContextBuilderFunc func(ctx context.Context, in *Input) (any, error)

func (f ContextBuilderFunc) Build(ctx context.Context, in *Input) (any, error) {
	return f(ctx, in)
}

// Factories create a fresh strategy per use.
type (
	MetadataSourceFactory func() MetadataSource
	DataSourceFactory     func() DataSource
	ContextBuilderFactory func() ContextBuilder
)
