package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories runs the same contract against every RecordStore implementation.
func storeFactories(t *testing.T) map[string]func() RecordStore {
	t.Helper()
	factories := map[string]func() RecordStore{
		"fs": func() RecordStore {
			s, err := NewFSStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"memory": func() RecordStore { return NewMemoryStore() },
		"sqlite": func() RecordStore {
			s, err := NewSQLiteStore(":memory:")
			require.NoError(t, err)
			return s
		},
	}
	// The JetStream store needs a server: RC_TEST_NATS_URL=nats://127.0.0.1:4222
	if url := os.Getenv("RC_TEST_NATS_URL"); url != "" {
		factories["nats"] = func() RecordStore {
			s, err := NewNATSStore(url, "rc-test-"+strings.ToLower(strings.ReplaceAll(t.Name(), "/", "-")))
			require.NoError(t, err)
			return s
		}
	}
	return factories
}

func TestRecordStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer func() { _ = store.Close() }()

			key := Key{Namespace: "ESP", Kind: KindArtifact, ID: "intro/table.py"}

			_, err := store.Get(ctx, key)
			require.Error(t, err)
			assert.True(t, IsNotFound(err))

			require.NoError(t, store.Put(ctx, key, []byte(`{"a":1}`)))
			got, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(got))

			// Overwrite replaces the whole record.
			require.NoError(t, store.Put(ctx, key, []byte(`{}`)))
			got, err = store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, `{}`, string(got))

			fp := Key{Namespace: "ESP", Kind: KindFingerprint, ID: "intro/table.py"}
			require.NoError(t, store.Put(ctx, fp, []byte("x")))
			other := Key{Namespace: "FRA", Kind: KindArtifact, ID: "intro/table.py"}
			require.NoError(t, store.Put(ctx, other, []byte("y")))

			ids, err := store.List(ctx, "ESP", KindArtifact)
			require.NoError(t, err)
			assert.Equal(t, []string{"intro/table.py"}, ids)

			require.NoError(t, store.Purge(ctx, "ESP"))
			_, err = store.Get(ctx, fp)
			assert.True(t, IsNotFound(err))
			got, err = store.Get(ctx, other)
			require.NoError(t, err, "purge must not touch other namespaces")
			assert.Equal(t, "y", string(got))

			require.NoError(t, store.Delete(ctx, other))
			assert.True(t, IsNotFound(store.Delete(ctx, other)))
		})
	}
}

func TestFSStoreLayout(t *testing.T) {
	base := t.TempDir()
	store, err := NewFSStore(base)
	require.NoError(t, err)

	key := Key{Namespace: "ESP", Kind: KindFingerprint, ID: "a/b.py"}
	require.NoError(t, store.Put(context.Background(), key, []byte("h")))

	_, err = os.Stat(filepath.Join(base, "ESP", "hash", "a%2Fb.py.hash"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(base, "ESP", "hash"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may be left behind")
}

func TestFSStoreRejectsEscapingNamespaces(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	for _, ns := range []string{"", "..", "a/b"} {
		err := store.Put(context.Background(), Key{Namespace: ns, Kind: KindArtifact, ID: "x"}, nil)
		assert.Error(t, err, "namespace %q", ns)
	}
	assert.Error(t, store.Purge(context.Background(), ".."))
}

func TestMemoryStoreCalls(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := Key{Namespace: "n", Kind: KindArtifact, ID: "f"}

	require.NoError(t, store.Put(ctx, key, []byte("v")))
	_, _ = store.Get(ctx, key)
	_, _ = store.Get(ctx, key)

	calls := store.GetCalls()
	assert.Equal(t, 1, calls.Put)
	assert.Equal(t, 2, calls.Get)
	assert.Equal(t, 1, store.Size())
}
