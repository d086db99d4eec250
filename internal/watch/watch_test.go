package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hpv-information-centre/reportcompiler/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	calls [][]string
	seen  chan struct{}
}

func newRecorder() *recorder { return &recorder{seen: make(chan struct{}, 16)} }

func (r *recorder) handle(_ context.Context, changed []string) error {
	r.mu.Lock()
	r.calls = append(r.calls, changed)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func (r *recorder) all() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	// Give fsnotify time to register the directories.
	time.Sleep(100 * time.Millisecond)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	templates := filepath.Join(root, "templates")
	require.NoError(t, os.MkdirAll(templates, 0o750))

	rec := newRecorder()
	w := New(rec.handle, root).WithDebounce(200 * time.Millisecond).WithLogger(observability.Discard())
	startWatcher(t, w)

	for _, name := range []string{"a.md", "b.md", ".hidden", "c.md~"} {
		require.NoError(t, os.WriteFile(filepath.Join(templates, name), []byte("x"), 0o600))
	}

	select {
	case <-rec.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}
	calls := rec.all()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], filepath.Join(templates, "a.md"))
	assert.Contains(t, calls[0], filepath.Join(templates, "b.md"))
	assert.NotContains(t, calls[0], filepath.Join(templates, ".hidden"))
	assert.NotContains(t, calls[0], filepath.Join(templates, "c.md~"))
}

func TestWatcherSkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	gen := filepath.Join(root, "gen")
	require.NoError(t, os.MkdirAll(gen, 0o750))

	rec := newRecorder()
	w := New(rec.handle, root).
		WithIgnore(gen).
		WithDebounce(20 * time.Millisecond).
		WithLogger(observability.Discard())
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(gen, "report.md"), []byte("x"), 0o600))
	select {
	case <-rec.seen:
		t.Fatalf("handler called for ignored path: %v", rec.all())
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherMissingRoot(t *testing.T) {
	w := New(newRecorder().handle, filepath.Join(t.TempDir(), "absent"))
	err := w.Run(context.Background())
	require.Error(t, err)
}

func TestShouldIgnoreEvent(t *testing.T) {
	tests := map[string]bool{
		"/spec/templates/report.md": false,
		"/spec/.git":                true,
		"/spec/report.md.swp":       true,
		"/spec/#report.md#":         true,
		"/spec/report.md~":          true,
		"/spec/src/intro.py":        false,
	}
	for path, want := range tests {
		assert.Equal(t, want, shouldIgnoreEvent(path), path)
	}
}

func TestChangeSetDrainIsSortedAndResets(t *testing.T) {
	c := newChangeSet()
	c.add("b")
	c.add("a")
	c.add("b")
	assert.Equal(t, []string{"a", "b"}, c.drain())
	assert.Empty(t, c.drain())
}
