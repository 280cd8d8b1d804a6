// Package blockwatch hot-reloads the block registry when the custom/user
// block directories or the template directory change on disk.
package blockwatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is called once per debounced burst of filesystem events on a
// watched path.
type ReloadFunc func(path string)

// Watcher debounces fsnotify events per path and calls Reload once the
// burst settles, matching the registry's full-rediscovery reload model
// (readers may see a partially-populated map mid-reload, which is
// acceptable since DiscoverDir/Register replace each entry atomically).
type Watcher struct {
	debounce time.Duration
	reload   ReloadFunc

	w *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped chan struct{}
}

// New creates a Watcher with the given debounce interval (spec default:
// 500ms, overridable via DATAGENFLOW_HOT_RELOAD_DEBOUNCE_MS).
func New(debounce time.Duration, reload ReloadFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		debounce: debounce,
		reload:   reload,
		w:        fw,
		timers:   make(map[string]*time.Timer),
		stopped:  make(chan struct{}),
	}, nil
}

// Add starts watching a directory.
func (w *Watcher) Add(path string) error {
	return w.w.Add(path)
}

// Start runs the event loop in a goroutine until Close is called.
func (w *Watcher) Start() {
	go w.loop()
}

// Close stops the underlying fsnotify watcher and the event loop.
func (w *Watcher) Close() error {
	close(w.stopped)
	return w.w.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopped:
			return
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			slog.Error("block watcher error", "error", err)
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if !isRelevant(ev) {
				continue
			}
			w.debounceEvent(ev.Name)
		}
	}
}

// isRelevant filters to creates/writes/removes/renames — the events that
// can change what the registry would discover.
func isRelevant(ev fsnotify.Event) bool {
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

func (w *Watcher) debounceEvent(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.reload(path)
	})
}
