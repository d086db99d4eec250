package storage

import (
	"context"
	"encoding/base64"
	stdErrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultKVBucket is the JetStream key-value bucket used when none is given.
const DefaultKVBucket = "reportcompiler-cache"

// NATSStore implements RecordStore on a JetStream key-value bucket, so that
// several machines generating the same specification share one cache.
//
// KV keys are "<namespace>.<kind>.<id>" with namespace and id base64url
// encoded, since document suffixes and fragment IDs may contain characters
// that KV keys do not allow.
type NATSStore struct {
	conn    *nats.Conn
	kv      jetstream.KeyValue
	timeout time.Duration
}

// NewNATSStore connects to url and opens (or creates) bucket.
func NewNATSStore(url, bucket string) (*NATSStore, error) {
	if bucket == "" {
		bucket = DefaultKVBucket
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Fragment context cache",
			History:     1, // Keep only latest value
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create KV bucket: %w", err)
		}
	}
	return &NATSStore{conn: conn, kv: kv, timeout: 5 * time.Second}, nil
}

var keyEncoding = base64.RawURLEncoding

func natsKey(key Key) string {
	return keyEncoding.EncodeToString([]byte(key.Namespace)) + "." + string(key.Kind) + "." + keyEncoding.EncodeToString([]byte(key.ID))
}

func namespacePrefix(namespace string) string {
	return keyEncoding.EncodeToString([]byte(namespace)) + "."
}

func (s *NATSStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Put stores data under key, replacing the previous revision.
func (s *NATSStore) Put(ctx context.Context, key Key, data []byte) error {
	if key.Namespace == "" || key.ID == "" {
		return fmt.Errorf("invalid record key %q", key.String())
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.kv.Put(ctx, natsKey(key), data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get returns the latest revision of key.
func (s *NATSStore) Get(ctx context.Context, key Key) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	entry, err := s.kv.Get(ctx, natsKey(key))
	if stdErrors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Delete purges key.
func (s *NATSStore) Delete(ctx context.Context, key Key) error {
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.kv.Purge(ctx, natsKey(key)); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List returns the sorted IDs of every record of kind in namespace.
func (s *NATSStore) List(ctx context.Context, namespace string, kind RecordKind) ([]string, error) {
	keys, err := s.keys(ctx, namespacePrefix(namespace)+string(kind)+".*")
	if err != nil {
		return nil, err
	}
	prefix := namespacePrefix(namespace) + string(kind) + "."
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		id, err := keyEncoding.DecodeString(strings.TrimPrefix(k, prefix))
		if err != nil {
			continue
		}
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out, nil
}

// Purge removes every record of namespace.
func (s *NATSStore) Purge(ctx context.Context, namespace string) error {
	keys, err := s.keys(ctx, namespacePrefix(namespace)+">")
	if err != nil {
		return err
	}
	for _, k := range keys {
		pctx, cancel := s.withTimeout(ctx)
		err := s.kv.Purge(pctx, k)
		cancel()
		if err != nil {
			return fmt.Errorf("purge %s: %w", k, err)
		}
	}
	return nil
}

func (s *NATSStore) keys(ctx context.Context, filter string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	lister, err := s.kv.ListKeysFiltered(ctx, filter)
	if stdErrors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var out []string
	for k := range lister.Keys() {
		out = append(out, k)
	}
	return out, nil
}

// Close closes the NATS connection.
func (s *NATSStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
