package filesystem

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metrics"
)

// Op is the kind of a filesystem change.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// Change is one coalesced filesystem notification.
type Change struct {
	Op   Op
	Path string
}

// DefaultDebounce is how long changes are collected before they are handed
// to the handler.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches library roots recursively and delivers changes in
// debounced batches. The last notification per path wins.
type Watcher struct {
	roots    []string
	debounce time.Duration
	handle   func([]Change)

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]Op
	watched int
}

// NewWatcher creates a watcher for roots. A debounce of 0 selects
// DefaultDebounce.
func NewWatcher(roots []string, debounce time.Duration, handle func([]Change)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		roots:    roots,
		debounce: debounce,
		handle:   handle,
		fsw:      fsw,
		pending:  make(map[string]Op),
	}, nil
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched
}

// Run adds all root directories and processes notifications until ctx is
// done. The watcher is closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
	}()

	for _, root := range w.roots {
		w.addTree(root)
	}
	logging.Info("Watcher started, watching %d directories", w.Watched())

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.record(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error("Watcher error: %v", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

// addTree adds a directory and all its non-hidden subdirectories.
func (w *Watcher) addTree(root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Watcher cannot access %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			logging.Warn("failed to add path to watcher %s: %v", path, err)
			return nil
		}
		w.mu.Lock()
		w.watched++
		w.mu.Unlock()
		return nil
	})
	if err != nil {
		logging.Error("failed to walk %s for watcher: %v", root, err)
	}
}

func (w *Watcher) record(event fsnotify.Event) {
	if IsHidden(filepath.Base(event.Name)) {
		return
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addTree(event.Name)
		}
	case event.Op&fsnotify.Remove != 0:
		op = OpRemove
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	case event.Op&fsnotify.Write != 0:
		op = OpWrite
	default:
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(string(op)).Inc()

	w.mu.Lock()
	w.pending[event.Name] = op
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	changes := make([]Change, 0, len(w.pending))
	for path, op := range w.pending {
		changes = append(changes, Change{Op: op, Path: path})
	}
	w.pending = make(map[string]Op)
	w.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	w.handle(changes)
}
