package fetchers

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDFile decodes a JSON or YAML file from the data directory.
const IDFile = "file"

// File returns the decoded contents of the "file" option. An optional "key"
// selects one top-level entry of a mapping.
type File struct{}

// NewFile is the registry factory for File.
func NewFile() plugin.DataSource { return File{} }

func (File) Fetch(_ context.Context, in *plugin.Input, spec plugin.FetcherSpec) (any, error) {
	path, err := dataPath(in, spec, "file")
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file fetcher %q: %w", spec.Name, err)
	}

	var doc any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("file fetcher %q: decode %s: %w", spec.Name, path, err)
	}

	key := spec.String("key")
	if key == "" {
		return doc, nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("file fetcher %q: %s is not a mapping, cannot select %q", spec.Name, path, key)
	}
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("file fetcher %q: key %q not found in %s", spec.Name, key, path)
	}
	return v, nil
}
