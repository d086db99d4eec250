// Package storage provides the keyed record stores that back the content cache.
package storage

import (
	"context"
	stdErrors "errors"
)

// RecordStore persists opaque records grouped by namespace (one per document
// suffix). Put must fully overwrite an existing record; readers never observe
// a partially written record.
type RecordStore interface {
	// Put atomically stores data under key, replacing any previous record.
	Put(ctx context.Context, key Key, data []byte) error

	// Get returns the record for key or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Delete removes the record for key. Deleting a missing record is ErrNotFound.
	Delete(ctx context.Context, key Key) error

	// List returns the IDs of every record of kind in namespace.
	List(ctx context.Context, namespace string, kind RecordKind) ([]string, error)

	// Purge removes a whole namespace. Purging a missing namespace is not an error.
	Purge(ctx context.Context, namespace string) error

	// Close releases any resources held by the store.
	Close() error
}

// RecordKind identifies which half of a cache entry a record holds.
type RecordKind string

const (
	// KindFingerprint holds the four input hashes of a fragment plus the artifact digest.
	KindFingerprint RecordKind = "hash"

	// KindArtifact holds the JSON context produced by a fragment.
	KindArtifact RecordKind = "ctx"
)

// Key addresses one record.
type Key struct {
	Namespace string
	Kind      RecordKind
	ID        string
}

func (k Key) String() string {
	return k.Namespace + "/" + string(k.Kind) + "/" + k.ID
}

// ErrNotFound is returned when a record doesn't exist.
type ErrNotFound struct {
	Key Key
}

func (e ErrNotFound) Error() string {
	return "record not found: " + e.Key.String()
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return stdErrors.As(err, &nf)
}
