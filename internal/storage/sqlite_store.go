package storage

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements RecordStore on a single SQLite database, so that a
// whole batch's cache lives in one file instead of one directory per document.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and migrates) a SQLite record store.
// Use ":memory:" for in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		namespace TEXT NOT NULL,
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, kind, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_namespace ON records(namespace);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces the record for key.
func (s *SQLiteStore) Put(ctx context.Context, key Key, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (namespace, kind, id, data, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, kind, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key.Namespace, string(key.Kind), key.ID, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", key, err)
	}
	return nil
}

// Get returns the record for key.
func (s *SQLiteStore) Get(ctx context.Context, key Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM records WHERE namespace = ? AND kind = ? AND id = ?",
		key.Namespace, string(key.Kind), key.ID,
	).Scan(&data)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("query record %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the record for key.
func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE namespace = ? AND kind = ? AND id = ?",
		key.Namespace, string(key.Kind), key.ID,
	)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound{Key: key}
	}
	return nil
}

// List returns the IDs of every record of kind in namespace, sorted.
func (s *SQLiteStore) List(ctx context.Context, namespace string, kind RecordKind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM records WHERE namespace = ? AND kind = ? ORDER BY id",
		namespace, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Purge removes every record of namespace.
func (s *SQLiteStore) Purge(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE namespace = ?", namespace); err != nil {
		return fmt.Errorf("purge namespace %s: %w", namespace, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
