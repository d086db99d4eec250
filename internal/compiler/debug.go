package compiler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
	"github.com/hpv-information-centre/reportcompiler/internal/storage"
)

// Debug artefacts live in the specification's _meta directory.
const (
	DebugErrorPrefix = "error_"
	DebugErrorsFile  = "last_debug_errors"
)

// DebugRecord is the content of one error_*.json file: enough input to
// replay the failing context generation by hand.
type DebugRecord struct {
	Snapshot
	Report   string `json:"report"`
	Fragment string `json:"fragment"`
	Error    string `json:"error"`
}

func (c *Compiler) writeDebugSnapshot(log *slog.Logger, in *plugin.Input, snap Snapshot, cause error) {
	dir := c.opts.DebugDir
	if dir == "" {
		return
	}
	rec := DebugRecord{
		Snapshot: snap,
		Report:   c.opts.SpecName,
		Fragment: in.Fragment,
		Error:    cause.Error(),
	}
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		log.Warn("Cannot encode debug snapshot", logfields.Error(err))
		return
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.Warn("Cannot create debug directory", logfields.Path(dir), logfields.Error(err))
		return
	}
	f, err := os.CreateTemp(dir, DebugErrorPrefix+"*.json")
	if err != nil {
		log.Warn("Cannot create debug snapshot", logfields.Path(dir), logfields.Error(err))
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(payload); err != nil {
		log.Warn("Cannot write debug snapshot", logfields.Path(f.Name()), logfields.Error(err))
		return
	}
	log.Info("Debug snapshot written", logfields.Path(f.Name()))
}

// ResetDebugErrors removes the error files and the collected report left by
// a previous debug session.
func ResetDebugErrors(dir string) error {
	files, err := debugErrorFiles(dir)
	if err != nil {
		return err
	}
	files = append(files, filepath.Join(dir, DebugErrorsFile))
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", f, err)
		}
	}
	return nil
}

// CollectDebugErrors concatenates every error_* file of dir into a JSON
// array written to last_debug_errors, then removes the individual files.
// It returns the number of records collected.
func CollectDebugErrors(dir string) (int, error) {
	files, err := debugErrorFiles(dir)
	if err != nil {
		return 0, err
	}
	records := make([]json.RawMessage, 0, len(files))
	for _, f := range files {
		// #nosec G304 - files are enumerated from the debug directory
		b, err := os.ReadFile(f)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", f, err)
		}
		if !json.Valid(b) {
			continue
		}
		records = append(records, json.RawMessage(b))
	}
	if len(records) == 0 {
		return 0, nil
	}
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := storage.WriteFileAtomic(filepath.Join(dir, DebugErrorsFile), out, 0o600); err != nil {
		return 0, err
	}
	for _, f := range files {
		_ = os.Remove(f)
	}
	return len(records), nil
}

func debugErrorFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read debug directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), DebugErrorPrefix) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
