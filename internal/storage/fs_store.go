package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FSStore is a filesystem-based implementation of RecordStore. Each namespace
// is a document's generation directory:
//
//	<base>/
//	  <namespace>/
//	    hash/
//	      <escaped id>.hash
//	      <escaped id>.ctx
//
// Fragment IDs contain slashes, so they are path-escaped into a single file name.
type FSStore struct {
	basePath string
}

// NewFSStore creates a new filesystem-based record store rooted at basePath.
func NewFSStore(basePath string) (*FSStore, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", basePath, err)
	}
	return &FSStore{basePath: basePath}, nil
}

// BasePath returns the root directory of the store.
func (fs *FSStore) BasePath() string {
	return fs.basePath
}

// Put atomically writes data under key.
func (fs *FSStore) Put(_ context.Context, key Key, data []byte) error {
	path, err := fs.recordPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}
	if err := WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("write record %s: %w", key, err)
	}
	return nil
}

// Get reads the record for key.
func (fs *FSStore) Get(_ context.Context, key Key) ([]byte, error) {
	path, err := fs.recordPath(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path is built from an escaped key under basePath
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	return data, nil
}

// Delete removes the record for key.
func (fs *FSStore) Delete(_ context.Context, key Key) error {
	path, err := fs.recordPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound{Key: key}
		}
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// List returns the IDs of every record of kind in namespace.
func (fs *FSStore) List(_ context.Context, namespace string, kind RecordKind) ([]string, error) {
	dir := filepath.Join(fs.basePath, namespace, "hash")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list records: %w", err)
	}

	ext := "." + string(kind)
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(e.Name(), ext))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Purge removes the record directory of namespace.
func (fs *FSStore) Purge(_ context.Context, namespace string) error {
	if namespace == "" || strings.ContainsAny(namespace, `/\`) || namespace == ".." {
		return fmt.Errorf("invalid namespace %q", namespace)
	}
	if err := os.RemoveAll(filepath.Join(fs.basePath, namespace, "hash")); err != nil {
		return fmt.Errorf("purge namespace %s: %w", namespace, err)
	}
	return nil
}

// Close releases resources.
func (fs *FSStore) Close() error {
	return nil
}

// recordPath returns the filesystem path for a record.
func (fs *FSStore) recordPath(key Key) (string, error) {
	if key.Namespace == "" || key.ID == "" {
		return "", fmt.Errorf("invalid record key %q", key.String())
	}
	if strings.ContainsAny(key.Namespace, `/\`) || key.Namespace == "." || key.Namespace == ".." {
		return "", fmt.Errorf("invalid namespace %q", key.Namespace)
	}
	name := url.PathEscape(key.ID) + "." + string(key.Kind)
	return filepath.Join(fs.basePath, key.Namespace, "hash", name), nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
