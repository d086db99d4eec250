package plugin

import "fmt"

// StageType identifies the category of a strategy.
type StageType string

const (
	// StageMetadata reads fragment-local metadata.
	StageMetadata StageType = "metadata_source"

	// StageData fetches the data a fragment needs.
	StageData StageType = "data_fetcher"

	// StageContext builds the fragment context.
	StageContext StageType = "context_builder"
)

// IsValid returns true if the stage type is recognized.
func (t StageType) IsValid() bool {
	switch t {
	case StageMetadata, StageData, StageContext:
		return true
	default:
		return false
	}
}

// String returns the string representation of the stage type.
func (t StageType) String() string {
	return string(t)
}

// Metadata keys that select strategies explicitly.
const (
	KeyMetadataSource = "metadata_source"
	KeyContextBuilder = "context_builder"
	KeyDataFetcher    = "data_fetcher"
	KeyRequiresData   = "requires_data"
)

// selectID reads an explicit strategy id from metadata[key]. The value is
// either a string or a map from file extension to id.
func selectID(metadata map[string]any, key, ext string) (string, error) {
	raw, ok := metadata[key]
	if !ok || raw == nil {
		return "", nil
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case map[string]any:
		id, ok := v[ext]
		if !ok {
			return "", nil
		}
		s, ok := id.(string)
		if !ok {
			return "", fmt.Errorf("%s for %q must be a string, got %T", key, ext, id)
		}
		return s, nil
	default:
		return "", fmt.Errorf("%s must be a string or a map of extension to id, got %T", key, raw)
	}
}
