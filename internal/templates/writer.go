package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpv-information-centre/reportcompiler/internal/storage"
)

// WriteOutput writes a rendered artefact under dir, replacing any previous
// version atomically, and returns its full path.
//
// The name must stay inside dir: absolute names and names escaping dir with
// ".." are rejected.
func WriteOutput(dir, name string, content []byte) (string, error) {
	if dir == "" {
		return "", errors.New("output directory is required")
	}
	if name == "" {
		return "", errors.New("output name is required")
	}

	cleanRel := filepath.Clean(name)
	if filepath.IsAbs(cleanRel) || strings.HasPrefix(cleanRel, "..") {
		return "", errors.New("output name must be relative to the output directory")
	}
	fullPath := filepath.Join(dir, cleanRel)
	rel, err := filepath.Rel(dir, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.New("output name escapes the output directory")
	}

	if err = os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	if err := storage.WriteFileAtomic(fullPath, content, 0o600); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return fullPath, nil
}
