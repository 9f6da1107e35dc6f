package store

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"vowpact/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// reloader is the part of JSONStore the watcher drives.
type reloader interface {
	Dir() string
	reload(name string) error
}

// Watcher watches the JSON data directory and reloads collections that were
// edited by hand or by another process. Writes made by the store itself are
// recognised by content hash and ignored.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	target      reloader
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity for tests and debugging.
type WatcherStats struct {
	Events        int
	Reloads       int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// NewWatcher creates a watcher for the store's data directory.
func NewWatcher(target reloader) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		target:      target,
		debounceMap: make(map[string]time.Time),
		debounceDur: 200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory, not the files: atomic renames replace the inode.
	if err := w.watcher.Add(w.target.Dir()); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Store("watcher: watching %s", w.target.Dir())

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.StoreError("watcher: close: %v", err)
	}
	logging.Store("watcher: stopped")
}

// Stats returns a snapshot of watcher counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

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
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.StoreWarn("watcher: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	switch name {
	case contractsFile, usersFile, sessionsFile:
	default:
		return // temp files, logs, audit trail
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	logging.StoreDebug("watcher: %s on %s", event.Op, name)

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.debounceMap[name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for name, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			ready = append(ready, name)
			delete(w.debounceMap, name)
		}
	}
	w.mu.Unlock()

	for _, name := range ready {
		err := w.target.reload(name)
		w.mu.Lock()
		if err != nil {
			w.stats.Errors++
		} else {
			w.stats.Reloads++
		}
		w.mu.Unlock()
	}
}
