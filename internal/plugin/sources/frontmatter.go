// Package sources holds the built-in metadata sources.
package sources

import (
	"context"
	"fmt"
	"os"

	"github.com/hpv-information-centre/reportcompiler/internal/frontmatter"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDFrontmatter reads the commented YAML header of a script source.
const IDFrontmatter = "frontmatter"

// Frontmatter reads fragment metadata from the YAML header at the top of the
// source file. A source without a header has no metadata.
type Frontmatter struct{}

// NewFrontmatter is the registry factory for Frontmatter.
func NewFrontmatter() plugin.MetadataSource { return Frontmatter{} }

func (Frontmatter) Retrieve(_ context.Context, in *plugin.Input) (map[string]any, error) {
	content, err := sourceBytes(in)
	if err != nil {
		return nil, err
	}
	fields, err := frontmatter.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.Source, err)
	}
	return fields, nil
}

// sourceBytes returns the already loaded source, reading the file otherwise.
func sourceBytes(in *plugin.Input) ([]byte, error) {
	if in.SourceBytes != nil {
		return in.SourceBytes, nil
	}
	if in.Source == "" {
		return nil, nil
	}
	b, err := os.ReadFile(in.Source)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return b, nil
}
