package config

import (
	"fmt"
	"strings"

	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// Params keys.
const (
	ParamsAugmentation  = "augmentation"
	ParamsAllowedValues = "allowed_values"
	ParamsMandatory     = "mandatory"
	ParamsDefaultKey    = "default_key"
)

var paramsKeys = map[string]bool{
	ParamsAugmentation:  true,
	ParamsAllowedValues: true,
	ParamsMandatory:     true,
	ParamsDefaultKey:    true,
}

// Params is the document parameter configuration.
type Params struct {
	// Augmentation fetchers run before each document; their first row is
	// appended to the document parameter.
	Augmentation []plugin.FetcherSpec
	// AllowedValues fetchers return tables whose columns list the allowed
	// values of the parameter key of the same name.
	AllowedValues []plugin.FetcherSpec
	// Mandatory keys every document parameter must carry.
	Mandatory []string
	// DefaultKey turns a bare scalar parameter into {DefaultKey: value}.
	DefaultKey string

	raw map[string]any
}

// Map returns the section as read, for the document metadata.
func (p Params) Map() map[string]any {
	return docparam.CloneMap(p.raw)
}

func parseParams(raw map[string]any) (Params, error) {
	var unknown []string
	for _, k := range sortedKeys(raw) {
		if !paramsKeys[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return Params{}, fmt.Errorf("unknown keys: %s", strings.Join(unknown, ", "))
	}

	p := Params{raw: raw}
	var err error
	if p.Augmentation, err = plugin.ParseFetchers(raw, ParamsAugmentation); err != nil {
		return Params{}, err
	}
	if p.AllowedValues, err = plugin.ParseFetchers(raw, ParamsAllowedValues); err != nil {
		return Params{}, err
	}
	if v, ok := raw[ParamsDefaultKey]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Params{}, fmt.Errorf("%s must be a string", ParamsDefaultKey)
		}
		p.DefaultKey = s
	}
	switch v := raw[ParamsMandatory].(type) {
	case nil:
	case string:
		p.Mandatory = []string{v}
	case []any:
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return Params{}, fmt.Errorf("%s entries must be strings", ParamsMandatory)
			}
			p.Mandatory = append(p.Mandatory, s)
		}
	default:
		return Params{}, fmt.Errorf("%s must be a list of keys", ParamsMandatory)
	}
	return p, nil
}
