// Package docspec opens a document specification directory: its
// configuration, its fragment tree and its parameter rules.
package docspec

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpv-information-centre/reportcompiler/internal/config"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/fragment"
	"github.com/hpv-information-centre/reportcompiler/internal/workspace"
)

// EnvTemplateLibrary names the shared template library directory. Templates
// found only there are leaves of the fragment tree.
const EnvTemplateLibrary = "RC_TEMPLATE_LIBRARY_PATH"

// Spec is an opened document specification.
type Spec struct {
	Dir        string
	Layout     workspace.Layout
	Config     *config.Config
	Tree       *fragment.Node
	LibraryDir string
}

// Open loads the configuration in dir and builds the fragment tree of its
// main template.
func Open(dir string) (*Spec, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, rcerrors.WrapConfiguration(err, "invalid document specification path")
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, rcerrors.ConfigurationError(fmt.Sprintf("document specification %q does not exist", dir))
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	layout := workspace.NewLayout(abs)

	scanner, err := fragment.ScannerFor(cfg.IncludeScanner)
	if err != nil {
		return nil, rcerrors.WrapConfiguration(err, "invalid include scanner")
	}
	lib := os.Getenv(EnvTemplateLibrary)
	tree, err := fragment.Build(
		cfg.MainTemplate,
		fragment.DirSource{Dir: layout.Templates(), LibraryDir: lib},
		scanner,
		fragment.GlobSourceIndex{Dir: layout.Sources()},
	)
	if err != nil {
		return nil, err
	}
	return &Spec{Dir: abs, Layout: layout, Config: cfg, Tree: tree, LibraryDir: lib}, nil
}

// Name is the document name.
func (s *Spec) Name() string { return s.Config.DocName }

func (s *Spec) String() string { return s.Config.String() }

// Metadata returns the document-level metadata. seed, when set, replaces the
// configured random_seed.
func (s *Spec) Metadata(seed *int64) map[string]any {
	meta := s.Config.Metadata()
	if seed != nil {
		meta[config.KeyRandomSeed] = *seed
	}
	return meta
}
