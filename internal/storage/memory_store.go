package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of RecordStore, used by tests and
// by one-off runs that should not touch the generation directory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key][]byte
	calls   MemoryCalls
}

// MemoryCalls tracks method invocations for test verification.
type MemoryCalls struct {
	Put    int
	Get    int
	Delete int
	List   int
	Purge  int
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Key][]byte),
	}
}

// Put stores a copy of data under key.
func (m *MemoryStore) Put(_ context.Context, key Key, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Put++

	stored := make([]byte, len(data))
	copy(stored, data)
	m.records[key] = stored
	return nil
}

// Get returns a copy of the record for key.
func (m *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Get++

	data, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound{Key: key}
	}

	// Return a copy to prevent external modification
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// Delete removes the record for key.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Delete++

	if _, ok := m.records[key]; !ok {
		return ErrNotFound{Key: key}
	}
	delete(m.records, key)
	return nil
}

// List returns the IDs of every record of kind in namespace, sorted.
func (m *MemoryStore) List(_ context.Context, namespace string, kind RecordKind) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.List++

	var ids []string
	for k := range m.records {
		if k.Namespace == namespace && k.Kind == kind {
			ids = append(ids, k.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Purge removes every record of namespace.
func (m *MemoryStore) Purge(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Purge++

	for k := range m.records {
		if k.Namespace == namespace {
			delete(m.records, k)
		}
	}
	return nil
}

// Close releases resources (no-op for memory).
func (m *MemoryStore) Close() error {
	return nil
}

// GetCalls returns the number of times each method was called.
func (m *MemoryStore) GetCalls() MemoryCalls {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Size returns the number of stored records.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// String returns a string representation for debugging.
func (m *MemoryStore) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("MemoryStore{records: %d, calls: %+v}", len(m.records), m.calls)
}
