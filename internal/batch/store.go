package batch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpv-information-centre/reportcompiler/internal/config"
	"github.com/hpv-information-centre/reportcompiler/internal/storage"
	"github.com/hpv-information-centre/reportcompiler/internal/workspace"
)

// SQLiteFile is the cache database of the sqlite backend, inside gen/.
const SQLiteFile = "cache.db"

// OpenStore opens the record store selected by opts for the specification
// laid out by layout.
func OpenStore(opts config.Normalized, layout workspace.Layout) (storage.RecordStore, error) {
	switch opts.CacheBackend {
	case config.CacheMemory:
		return storage.NewMemoryStore(), nil
	case config.CacheSQLite:
		if err := os.MkdirAll(layout.Gen(), 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		s, err := storage.NewSQLiteStore(filepath.Join(layout.Gen(), SQLiteFile))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.CacheNATS:
		bucket := opts.NATSBucket
		if bucket == "" {
			bucket = storage.DefaultKVBucket
		}
		s, err := storage.NewNATSStore(opts.NATSURL, bucket)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.CacheFS, "":
		s, err := storage.NewFSStore(layout.Gen())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.CacheBackend)
	}
}
