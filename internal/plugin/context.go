package plugin

import (
	"log/slog"
	"path/filepath"

	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
)

// Env describes the working environment of one document. It is never hashed.
type Env struct {
	// SpecDir is the root of the document specification.
	SpecDir string
	// SourceDir holds fragment source files.
	SourceDir string
	// DataDir holds data files read by file-based fetchers.
	DataDir string
	// CredentialsDir holds connection settings read by database fetchers.
	CredentialsDir string
	// TmpDir receives per-fragment input snapshots.
	TmpDir string
	// FigureDir receives images produced by context builders.
	FigureDir string
	// Suffix is the document namespace.
	Suffix string
}

// Input is the owned payload handed to a strategy. Each fragment receives its
// own deep copies of Param, Data and Metadata.
type Input struct {
	// Fragment is the unique fragment ID; Name is the template name.
	Fragment string
	Name     string

	// Source is the fragment's source file path; SourceBytes its contents.
	Source      string
	SourceBytes []byte

	Param    docparam.Param
	Data     map[string]any
	Metadata map[string]any
	// DataOrder lists the keys of Data in fetcher declaration order.
	DataOrder []string

	// SnapshotPath points at the JSON snapshot of {doc_param, data, metadata}
	// written before context generation.
	SnapshotPath string

	Env    Env
	Logger *slog.Logger
}

// Ext returns the source file extension, or the template extension when the
// fragment has no source.
func (in *Input) Ext() string {
	if in.Source != "" {
		return filepath.Ext(in.Source)
	}
	return filepath.Ext(in.Name)
}

// Log returns the input's logger or slog.Default.
func (in *Input) Log() *slog.Logger {
	if in.Logger == nil {
		return slog.Default()
	}
	return in.Logger
}
