// Package watch regenerates documents when the files of a document
// specification change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
)

// DefaultDebounce is the quiet period after the last event before a
// regeneration starts.
const DefaultDebounce = 300 * time.Millisecond

// Handler runs once per settled burst of changes with the changed paths.
type Handler func(ctx context.Context, changed []string) error

// Watcher observes directory trees and calls a Handler for every burst of
// changes. Handler calls never overlap; changes seen while one runs are
// batched into the next call.
type Watcher struct {
	roots    []string
	ignore   []string
	debounce time.Duration
	handler  Handler
	logger   *slog.Logger
}

// New creates a watcher over roots.
func New(handler Handler, roots ...string) *Watcher {
	return &Watcher{
		roots:    roots,
		debounce: DefaultDebounce,
		handler:  handler,
		logger:   slog.Default(),
	}
}

// WithIgnore skips every path below dirs. Output directories written by the
// handler belong here, otherwise each run triggers the next.
func (w *Watcher) WithIgnore(dirs ...string) *Watcher {
	for _, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			w.ignore = append(w.ignore, abs)
		}
	}
	return w
}

// WithDebounce sets the quiet period.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Run watches until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = fw.Close() }()
	for _, root := range w.roots {
		if err := w.addDirsRecursive(fw, root); err != nil {
			return err
		}
	}

	pending := newChangeSet()
	trigger, stop := debouncer(w.debounce)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.worker(ctx, trigger.requests, pending)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	w.logger.Info("Watching for changes", logfields.Count(len(w.roots)))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.handleEvent(fw, ev) {
				continue
			}
			pending.add(ev.Name)
			trigger.fire()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

// worker drains debounced requests and runs the handler serially.
func (w *Watcher) worker(ctx context.Context, requests <-chan struct{}, pending *changeSet) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-requests:
			changed := pending.drain()
			if len(changed) == 0 {
				continue
			}
			w.logger.Info("Change detected; regenerating", logfields.Count(len(changed)))
			if err := w.handler(ctx, changed); err != nil {
				w.logger.Warn("Regeneration failed", logfields.Error(err))
			}
		}
	}
}

// handleEvent reports whether ev should trigger a run. New directories are
// added to the watch list.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if shouldIgnoreEvent(ev.Name) || w.ignored(ev.Name) {
		return false
	}
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addDirsRecursive(fw, ev.Name)
		}
	}
	w.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	return true
}

func (w *Watcher) ignored(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range w.ignore {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || w.ignored(path)) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			w.logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

// shouldIgnoreEvent returns true for hidden, editor swap and lock files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db"
}

type debounced struct {
	requests chan struct{}
	fire     func()
}

// debouncer returns a trigger that delivers one request after d without
// further calls.
func debouncer(d time.Duration) (debounced, func()) {
	var mu sync.Mutex
	var timer *time.Timer
	requests := make(chan struct{}, 1)

	fire := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(d, func() {
			select {
			case requests <- struct{}{}:
			default:
			}
		})
	}
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}
	return debounced{requests: requests, fire: fire}, stop
}

type changeSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func newChangeSet() *changeSet {
	return &changeSet{paths: make(map[string]struct{})}
}

func (c *changeSet) add(path string) {
	c.mu.Lock()
	c.paths[path] = struct{}{}
	c.mu.Unlock()
}

func (c *changeSet) drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.paths))
	for p := range c.paths {
		out = append(out, p)
	}
	clear(c.paths)
	sort.Strings(out)
	return out
}
