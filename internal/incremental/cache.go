package incremental

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/storage"
)

// Key identifies one cache entry: the document suffix and the fragment ID.
type Key struct {
	Namespace string
	Fragment  string
}

func (k Key) fingerprintKey() storage.Key {
	return storage.Key{Namespace: k.Namespace, Kind: storage.KindFingerprint, ID: k.Fragment}
}

func (k Key) artifactKey() storage.Key {
	return storage.Key{Namespace: k.Namespace, Kind: storage.KindArtifact, ID: k.Fragment}
}

// fingerprintRecord is what is persisted next to an artifact. ArtifactSHA256
// ties the two records together so a torn write is detected as a miss.
type fingerprintRecord struct {
	Fingerprint    Fingerprint `json:"fingerprint"`
	ArtifactSHA256 string      `json:"artifact_sha256"`
	StoredAt       time.Time   `json:"stored_at"`
}

// ContentCache maps a fragment fingerprint to the context it produced last time.
// Fragment keys are unique within a run, so no locking is done per key.
type ContentCache struct {
	store  storage.RecordStore
	logger *slog.Logger
}

// NewContentCache creates a cache over store.
func NewContentCache(store storage.RecordStore) *ContentCache {
	return &ContentCache{
		store:  store,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (c *ContentCache) WithLogger(logger *slog.Logger) *ContentCache {
	c.logger = logger
	return c
}

// Lookup returns the stored artifact for key when the stored fingerprint equals
// fp component-wise and the artifact is present, intact and parseable.
func (c *ContentCache) Lookup(ctx context.Context, key Key, fp Fingerprint) (map[string]any, bool) {
	rec, ok := c.previous(ctx, key)
	if !ok || !rec.Fingerprint.Equals(fp) {
		return nil, false
	}

	data, err := c.store.Get(ctx, key.artifactKey())
	if err != nil {
		if !storage.IsNotFound(err) {
			c.logger.Warn("Failed to read cached context", logfields.Fragment(key.Fragment), logfields.Error(err))
		}
		return nil, false
	}
	if HashBytes(data) != rec.ArtifactSHA256 {
		c.logger.Warn("Cached context does not match its fingerprint record", logfields.Fragment(key.Fragment))
		return nil, false
	}

	var artifact map[string]any
	if err := json.Unmarshal(data, &artifact); err != nil || artifact == nil {
		c.logger.Warn("Cached context is not parseable", logfields.Fragment(key.Fragment), logfields.Error(err))
		return nil, false
	}
	return artifact, true
}

// Store overwrites both records for key. The artifact is written first so that
// a crash in between leaves a fingerprint whose digest no longer matches.
func (c *ContentCache) Store(ctx context.Context, key Key, fp Fingerprint, artifact map[string]any) error {
	data, err := CanonicalJSON(artifact)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	if err := c.store.Put(ctx, key.artifactKey(), data); err != nil {
		return fmt.Errorf("store context: %w", err)
	}

	rec, err := json.Marshal(fingerprintRecord{
		Fingerprint:    fp,
		ArtifactSHA256: HashBytes(data),
		StoredAt:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode fingerprint: %w", err)
	}
	if err := c.store.Put(ctx, key.fingerprintKey(), rec); err != nil {
		return fmt.Errorf("store fingerprint: %w", err)
	}
	return nil
}

// ExplainMiss returns the components that changed since the previous stored
// fingerprint. The boolean is false when there is no previous fingerprint.
func (c *ContentCache) ExplainMiss(ctx context.Context, key Key, fp Fingerprint) ([]Component, bool) {
	rec, ok := c.previous(ctx, key)
	if !ok {
		return nil, false
	}
	return rec.Fingerprint.Diff(fp), true
}

// Previous returns the last stored fingerprint for key.
func (c *ContentCache) Previous(ctx context.Context, key Key) (Fingerprint, bool) {
	rec, ok := c.previous(ctx, key)
	return rec.Fingerprint, ok
}

// Fragments lists the fragment IDs with a stored fingerprint in namespace.
func (c *ContentCache) Fragments(ctx context.Context, namespace string) ([]string, error) {
	return c.store.List(ctx, namespace, storage.KindFingerprint)
}

// Purge drops every entry of namespace.
func (c *ContentCache) Purge(ctx context.Context, namespace string) error {
	return c.store.Purge(ctx, namespace)
}

func (c *ContentCache) previous(ctx context.Context, key Key) (fingerprintRecord, bool) {
	data, err := c.store.Get(ctx, key.fingerprintKey())
	if err != nil {
		if !storage.IsNotFound(err) {
			c.logger.Warn("Failed to read fingerprint", logfields.Fragment(key.Fragment), logfields.Error(err))
		}
		return fingerprintRecord{}, false
	}
	var rec fingerprintRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("Fingerprint record is not parseable", logfields.Fragment(key.Fragment), logfields.Error(err))
		return fingerprintRecord{}, false
	}
	return rec, true
}
