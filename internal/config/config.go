// Package config loads the configuration of a document specification:
// config.yaml (or the legacy config.conf), params.yaml|params.conf and
// style.yaml|style.conf.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
)

// Recognised config keys. Any other key is kept as custom metadata.
const (
	KeyDocName                = "doc_name"
	KeyVerboseName            = "verbose_name"
	KeyMainTemplate           = "main_template"
	KeyDebug                  = "debug"
	KeySkipUnchangedFragments = "skip_unchanged_fragments"
	KeyRandomSeed             = "random_seed"
	KeyDataFetcher            = "data_fetcher"
	KeyIncludeScanner         = "include_scanner"
	KeyTemplateRenderer       = "template_renderer"
	KeyPostprocessors         = "postprocessors"
	KeyParams                 = "params"
	KeyStyle                  = "style"
)

// Config is the decoded configuration of one document specification.
type Config struct {
	DocName                string     `yaml:"doc_name"`
	VerboseName            string     `yaml:"verbose_name"`
	MainTemplate           string     `yaml:"main_template"`
	Debug                  bool       `yaml:"debug"`
	SkipUnchangedFragments *bool      `yaml:"skip_unchanged_fragments"`
	RandomSeed             *int64     `yaml:"random_seed"`
	IncludeScanner         string     `yaml:"include_scanner"`
	TemplateRenderer       string     `yaml:"template_renderer"`
	Postprocessors         StringList `yaml:"postprocessors"`

	// Params is the content of params.yaml, zero when absent.
	Params Params `yaml:"-"`
	// Style is the content of style.yaml, nil when absent.
	Style map[string]any `yaml:"-"`

	// raw holds every key of the config file, custom ones included.
	raw map[string]any
	// Path is the file the configuration was read from.
	Path string `yaml:"-"`
}

// SkipUnchanged reports whether cached fragment contexts may be reused.
// It defaults to true.
func (c *Config) SkipUnchanged() bool {
	return c.SkipUnchangedFragments == nil || *c.SkipUnchangedFragments
}

// String is the verbose name, or the document name.
func (c *Config) String() string {
	if c.VerboseName != "" {
		return c.VerboseName
	}
	return c.DocName
}

// Custom returns the keys that are not recognised configuration keys.
func (c *Config) Custom() map[string]any {
	out := make(map[string]any)
	for k, v := range c.raw {
		if !recognised[k] {
			out[k] = docparam.DeepCopy(v)
		}
	}
	return out
}

// Metadata is the document-level metadata shared by every fragment: every
// config key (custom keys included) with defaults applied, plus the params
// and style sections.
func (c *Config) Metadata() map[string]any {
	meta := docparam.CloneMap(c.raw)
	if meta == nil {
		meta = make(map[string]any)
	}
	meta[KeyDocName] = c.DocName
	meta[KeyMainTemplate] = c.MainTemplate
	meta[KeySkipUnchangedFragments] = c.SkipUnchanged()
	if c.RandomSeed != nil {
		meta[KeyRandomSeed] = *c.RandomSeed
	}
	if params := c.Params.Map(); len(params) > 0 {
		meta[KeyParams] = params
	}
	if c.Style != nil {
		meta[KeyStyle] = docparam.CloneMap(c.Style)
	}
	return meta
}

var recognised = map[string]bool{
	KeyDocName: true, KeyVerboseName: true, KeyMainTemplate: true, KeyDebug: true,
	KeySkipUnchangedFragments: true, KeyRandomSeed: true, KeyDataFetcher: true,
	KeyIncludeScanner: true, KeyTemplateRenderer: true, KeyPostprocessors: true,
}

// Load reads the configuration of the specification in specDir. A .env file
// in specDir is loaded first so that ${VAR} references can use it.
func Load(specDir string) (*Config, error) {
	if err := LoadEnv(specDir); err != nil {
		return nil, err
	}

	path, raw, err := readSection(specDir, "config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, rcerrors.ConfigurationError("document specification has no configuration file (config.yaml)").
			WithContext("path", specDir)
	}

	cfg := &Config{raw: raw, Path: path}
	if err := remarshal(raw, cfg); err != nil {
		return nil, rcerrors.WrapConfiguration(err, "invalid configuration").WithContext("path", path)
	}
	if cfg.DocName == "" {
		cfg.DocName = filepath.Base(filepath.Clean(specDir))
	}
	if cfg.MainTemplate == "" {
		return nil, rcerrors.ConfigurationError("main_template is not set").WithContext("path", path)
	}

	paramsPath, params, err := readSection(specDir, "params")
	if err != nil {
		return nil, err
	}
	if paramsPath != "" {
		if cfg.Params, err = parseParams(params); err != nil {
			return nil, rcerrors.WrapConfiguration(err, "invalid parameter configuration").WithContext("path", paramsPath)
		}
	}

	stylePath, style, err := readSection(specDir, "style")
	if err != nil {
		return nil, err
	}
	if stylePath != "" {
		cfg.Style = style
	}
	return cfg, nil
}

// readSection reads <name>.yaml, <name>.yml or <name>.conf from dir, in that
// order. A missing section returns an empty path and no error.
func readSection(dir, name string) (string, map[string]any, error) {
	for _, ext := range []string{".yaml", ".yml", ".conf"} {
		path := filepath.Join(dir, name+ext)
		// #nosec G304 - fixed file names inside the specification directory
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", nil, rcerrors.WrapConfiguration(err, "cannot read configuration").WithContext("path", path)
		}
		out, err := decode(ext, data)
		if err != nil {
			return "", nil, rcerrors.WrapConfiguration(err, "cannot parse configuration").WithContext("path", path)
		}
		return path, out, nil
	}
	return "", nil, nil
}

// decode parses YAML, or JSON with comments for .conf files. ${VAR}
// references are expanded from the environment first.
func decode(ext string, data []byte) (map[string]any, error) {
	expanded := []byte(os.ExpandEnv(string(data)))
	out := map[string]any{}
	if ext == ".conf" {
		if err := json.Unmarshal(StripJSONComments(expanded), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if err := yaml.Unmarshal(expanded, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// remarshal decodes a generic mapping into a typed struct through YAML.
func remarshal(in map[string]any, out any) error {
	b, err := yaml.Marshal(in)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

// StringList accepts a single string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		if v == "" {
			*s = nil
			return nil
		}
		*s = StringList{v}
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = v
		return nil
	default:
		return fmt.Errorf("expected a string or a list of strings")
	}
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
