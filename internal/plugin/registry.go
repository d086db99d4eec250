package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
)

// Registry maps strategy ids to factories, one table per stage, plus the
// file-extension defaults used when a fragment selects nothing explicitly.
type Registry struct {
	mu          sync.RWMutex
	sources     map[string]MetadataSourceFactory
	fetchers    map[string]DataSourceFactory
	builders    map[string]ContextBuilderFactory
	extSources  map[string]string
	extBuilders map[string]string
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources:     make(map[string]MetadataSourceFactory),
		fetchers:    make(map[string]DataSourceFactory),
		builders:    make(map[string]ContextBuilderFactory),
		extSources:  make(map[string]string),
		extBuilders: make(map[string]string),
	}
}

// RegisterMetadataSource adds a metadata source factory.
// Returns an error if the id is empty or already registered.
func (r *Registry) RegisterMetadataSource(id string, f MetadataSourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return register(r.sources, StageMetadata, id, f)
}

// RegisterDataSource adds a data source factory.
func (r *Registry) RegisterDataSource(id string, f DataSourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return register(r.fetchers, StageData, id, f)
}

// RegisterContextBuilder adds a context builder factory.
func (r *Registry) RegisterContextBuilder(id string, f ContextBuilderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return register(r.builders, StageContext, id, f)
}

func register[F any](table map[string]F, stage StageType, id string, f F) error {
	if id == "" {
		return fmt.Errorf("%s id is required", stage)
	}
	if _, exists := table[id]; exists {
		return fmt.Errorf("%s %q already registered", stage, id)
	}
	table[id] = f
	return nil
}

// SetExtensionDefaults declares the metadata source and context builder used
// for source files with extension ext (e.g. ".py"). Empty ids are left unset.
func (r *Registry) SetExtensionDefaults(ext, sourceID, builderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ext = normalizeExt(ext)
	if sourceID != "" {
		r.extSources[ext] = sourceID
	}
	if builderID != "" {
		r.extBuilders[ext] = builderID
	}
}

// MetadataSourceFor picks the metadata source of a fragment: the explicit
// "metadata_source" selection in metadata, else the extension default.
// It returns the strategy and the id it was selected under.
func (r *Registry) MetadataSourceFor(metadata map[string]any, ext string) (MetadataSource, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, err := r.pick(metadata, KeyMetadataSource, ext, r.extSources)
	if err != nil {
		return nil, "", err
	}
	f, ok := r.sources[id]
	if !ok {
		return nil, id, unknown(StageMetadata, id, keys(r.sources))
	}
	return f(), id, nil
}

// ContextBuilderFor picks the context builder of a fragment, like MetadataSourceFor.
func (r *Registry) ContextBuilderFor(metadata map[string]any, ext string) (ContextBuilder, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, err := r.pick(metadata, KeyContextBuilder, ext, r.extBuilders)
	if err != nil {
		return nil, "", err
	}
	f, ok := r.builders[id]
	if !ok {
		return nil, id, unknown(StageContext, id, keys(r.builders))
	}
	return f(), id, nil
}

// DataSource returns the data source registered under id.
func (r *Registry) DataSource(id string) (DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fetchers[id]
	if !ok {
		return nil, unknown(StageData, id, keys(r.fetchers))
	}
	return f(), nil
}

func (r *Registry) pick(metadata map[string]any, key, ext string, defaults map[string]string) (string, error) {
	ext = normalizeExt(ext)
	id, err := selectID(metadata, key, ext)
	if err != nil {
		return "", rcerrors.WrapConfiguration(err, "invalid strategy selection")
	}
	if id != "" {
		return id, nil
	}
	if id, ok := defaults[ext]; ok {
		return id, nil
	}
	return "", rcerrors.ConfigurationError(fmt.Sprintf("no %s declared and none registered for extension %q", key, ext))
}

// List returns the sorted ids registered for stage.
func (r *Registry) List(stage StageType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch stage {
	case StageMetadata:
		return keys(r.sources)
	case StageData:
		return keys(r.fetchers)
	case StageContext:
		return keys(r.builders)
	default:
		return nil
	}
}

// Has checks if id is registered for stage.
func (r *Registry) Has(stage StageType, id string) bool {
	for _, k := range r.List(stage) {
		if k == id {
			return true
		}
	}
	return false
}

func unknown(stage StageType, id string, known []string) error {
	return rcerrors.ConfigurationError(fmt.Sprintf("unknown %s %q", stage, id)).
		WithContext("known", strings.Join(known, ", "))
}

func keys[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
