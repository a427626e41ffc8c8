package roles

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"missionflow/internal/logging"
)

// DefaultDebounce batches the burst of events a single editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher is a Catalog backed by a YAML file that reloads when the file
// changes. Runs resolve their roles once at preparation time, so a reload only
// affects runs prepared afterwards. A reload that fails to parse keeps the
// previous catalog.
type Watcher struct {
	path     string
	current  atomic.Pointer[Registry]
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	onReload func(*Registry)
}

// NewWatcher loads the catalog at path and prepares a file watcher.
func NewWatcher(path string) (*Watcher, error) {
	reg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		watcher:  fw,
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	w.current.Store(reg)
	return w, nil
}

// OnReload registers a callback invoked after every successful reload.
// Must be called before Start.
func (w *Watcher) OnReload(fn func(*Registry)) { w.onReload = fn }

// Get implements Catalog against the latest loaded registry.
func (w *Watcher) Get(id string) (AgentRole, error) {
	return w.current.Load().Get(id)
}

// Snapshot returns the registry currently in effect.
func (w *Watcher) Snapshot() *Registry { return w.current.Load() }

// Start begins watching. The parent directory is watched because editors
// often replace files by rename.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.running = true
	go w.run(ctx)
	logging.Catalog("watching role catalog %s", w.path)
	return nil
}

// Stop ends the watch loop and releases the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	// Reload once the file has been quiet for w.debounce.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.CatalogWarn("catalog watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	reg, err := LoadFile(w.path)
	if err != nil {
		logging.CatalogWarn("keeping previous catalog, reload failed: %v", err)
		return
	}
	w.current.Store(reg)
	if w.onReload != nil {
		w.onReload(reg)
	}
}
