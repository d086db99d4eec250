package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// Directory names inside a document specification.
const (
	GenDir         = "gen"
	MetaDir        = "_meta"
	SourceDir      = "src"
	TemplatesDir   = "templates"
	DataDir        = "data"
	CredentialsDir = "credentials"
)

// Per-document directory names.
const (
	HashDir = "hash"
	TmpDir  = "tmp"
	LogDir  = "log"
	OutDir  = "out"
	FigDir  = "fig"
)

// Layout locates the directories of one document specification.
type Layout struct {
	SpecDir string
}

// NewLayout returns the layout of the specification rooted at specDir.
func NewLayout(specDir string) Layout {
	return Layout{SpecDir: specDir}
}

// Gen is the parent of every per-document directory.
func (l Layout) Gen() string { return filepath.Join(l.SpecDir, GenDir) }

// Meta is the debug directory shared by the specifications of one parent
// directory: <spec>/../_meta.
func (l Layout) Meta() string { return filepath.Join(filepath.Dir(filepath.Clean(l.SpecDir)), MetaDir) }

// Templates is the specification's template directory.
func (l Layout) Templates() string { return filepath.Join(l.SpecDir, TemplatesDir) }

// Sources is the specification's fragment source directory.
func (l Layout) Sources() string { return filepath.Join(l.SpecDir, SourceDir) }

// Data is the specification's data directory.
func (l Layout) Data() string { return filepath.Join(l.SpecDir, DataDir) }

// Credentials is the specification's credentials directory.
func (l Layout) Credentials() string { return filepath.Join(l.SpecDir, CredentialsDir) }

// Dirs are the directories of one document.
type Dirs struct {
	Suffix string
	Root   string
	Hash   string
	Tmp    string
	Log    string
	Out    string
	Fig    string
	layout Layout
}

// For returns the directories of the document named suffix. The suffix must
// be a single path element.
func (l Layout) For(suffix string) (Dirs, error) {
	if err := validSuffix(suffix); err != nil {
		return Dirs{}, err
	}
	root := filepath.Join(l.Gen(), suffix)
	return Dirs{
		Suffix: suffix,
		Root:   root,
		Hash:   filepath.Join(root, HashDir),
		Tmp:    filepath.Join(root, TmpDir),
		Log:    filepath.Join(root, LogDir),
		Out:    filepath.Join(root, OutDir),
		Fig:    filepath.Join(root, FigDir),
		layout: l,
	}, nil
}

func validSuffix(suffix string) error {
	if suffix == "" || suffix == "." || suffix == ".." ||
		strings.ContainsAny(suffix, `/\`) {
		return rcerrors.ConfigurationError(fmt.Sprintf("document suffix %q cannot name a directory", suffix))
	}
	return nil
}

// Create makes every directory of the document.
func (d Dirs) Create() error {
	for _, dir := range []string{d.Hash, d.Tmp, d.Log, d.Out, d.Fig} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return rcerrors.WorkspaceError("create", err).WithContext("path", dir)
		}
	}
	return nil
}

// Env is the working environment handed to stage strategies.
func (d Dirs) Env() plugin.Env {
	return plugin.Env{
		SpecDir:        d.layout.SpecDir,
		SourceDir:      d.layout.Sources(),
		DataDir:        d.layout.Data(),
		CredentialsDir: d.layout.Credentials(),
		TmpDir:         d.Tmp,
		FigureDir:      d.Fig,
		Suffix:         d.Suffix,
	}
}

// Metadata exposes the document directories to fragments and templates as
// "<name>_path" entries.
func (d Dirs) Metadata() map[string]any {
	return map[string]any{
		"docspec_path":   d.layout.SpecDir,
		"data_path":      d.layout.Data(),
		"templates_path": d.layout.Templates(),
		"src_path":       d.layout.Sources(),
		"hash_path":      d.Hash,
		"tmp_path":       d.Tmp,
		"log_path":       d.Log,
		"out_path":       d.Out,
		"fig_path":       d.Fig,
	}
}

// Documents lists the suffixes that have a directory under gen.
func (l Layout) Documents() ([]string, error) {
	entries, err := os.ReadDir(l.Gen())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, rcerrors.WorkspaceError("list", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Clean removes the generated directories of docs (every document when docs
// is empty) except those in keep, and removes gen itself once empty. It
// returns the removed suffixes.
func (l Layout) Clean(docs, keep []string) ([]string, error) {
	existing, err := l.Documents()
	if err != nil {
		return nil, err
	}
	selected := toSet(docs)
	kept := toSet(keep)

	var removed []string
	for _, suffix := range existing {
		if (len(docs) > 0 && !selected[suffix]) || kept[suffix] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(l.Gen(), suffix)); err != nil {
			return removed, rcerrors.WorkspaceError("clean", err).WithContext("document", suffix)
		}
		removed = append(removed, suffix)
	}

	if left, err := l.Documents(); err == nil && len(left) == 0 {
		_ = os.RemoveAll(l.Gen())
	}
	return removed, nil
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}
