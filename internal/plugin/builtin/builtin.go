// Package builtin registers every built-in strategy and the file-extension
// defaults with a plugin registry.
package builtin

import (
	"fmt"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin/builders"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin/fetchers"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin/sources"
)

// ScriptExtensions are run by the exec builder with frontmatter metadata.
var ScriptExtensions = []string{".py", ".r", ".sh", ".js"}

// DeclarativeExtensions are read whole by the spec source and builder.
var DeclarativeExtensions = []string{".yaml", ".yml", ".json"}

// Register adds the built-in strategies and extension defaults to reg.
func Register(reg *plugin.Registry) error {
	metadataSources := map[string]plugin.MetadataSourceFactory{
		sources.IDFrontmatter: sources.NewFrontmatter,
		sources.IDSpec:        sources.NewSpec,
		sources.IDStub:        sources.NewStub,
	}
	for id, f := range metadataSources {
		if err := reg.RegisterMetadataSource(id, f); err != nil {
			return fmt.Errorf("register metadata source: %w", err)
		}
	}

	dataSources := map[string]plugin.DataSourceFactory{
		fetchers.IDConstant: fetchers.NewConstant,
		fetchers.IDFile:     fetchers.NewFile,
		fetchers.IDCSV:      fetchers.NewCSV,
		fetchers.IDSQLite:   fetchers.NewSQLite,
		fetchers.IDNATS:     fetchers.NewNATS,
	}
	for id, f := range dataSources {
		if err := reg.RegisterDataSource(id, f); err != nil {
			return fmt.Errorf("register data source: %w", err)
		}
	}

	contextBuilders := map[string]plugin.ContextBuilderFactory{
		builders.IDExec: builders.NewExec,
		builders.IDSpec: builders.NewSpec,
		builders.IDStub: builders.NewStub,
	}
	for id, f := range contextBuilders {
		if err := reg.RegisterContextBuilder(id, f); err != nil {
			return fmt.Errorf("register context builder: %w", err)
		}
	}

	for _, ext := range ScriptExtensions {
		reg.SetExtensionDefaults(ext, sources.IDFrontmatter, builders.IDExec)
	}
	for _, ext := range DeclarativeExtensions {
		reg.SetExtensionDefaults(ext, sources.IDSpec, builders.IDSpec)
	}
	return nil
}

// NewRegistry returns a registry holding every built-in strategy.
func NewRegistry() (*plugin.Registry, error) {
	reg := plugin.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
