package project

import (
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a document directory. Each change bumps a
// generation counter, so a caller that captured generation g before saving
// can tell whether the saved copy is still the latest.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	gen atomic.Uint64

	mu        sync.RWMutex
	callbacks []func(gen uint64)

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher starts watching dir. Stop releases it.
func NewWatcher(dir string, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		dir:     dir,
		watcher: fw,
		logger:  slog.Default(),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.loop()
	w.logger.Debug("watching document directory", "dir", dir)
	return w, nil
}

// OnChange registers a callback run after every change with the new
// generation. Callbacks run on the watcher goroutine.
func (w *Watcher) OnChange(callback func(gen uint64)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Generation returns the number of changes seen so far.
func (w *Watcher) Generation() uint64 {
	return w.gen.Load()
}

// Stop stops watching and waits for the watcher goroutine to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		<-w.stopped
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			gen := w.gen.Add(1)
			w.logger.Debug("document changed", "file", event.Name, "op", event.Op.String(), "generation", gen)
			w.notify(gen)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("document watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) notify(gen uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, cb := range w.callbacks {
		cb(gen)
	}
}

// relevant filters out chmod-only events and dot files, which include the
// temporary files Deserialize writes through.
func relevant(event fsnotify.Event) bool {
	if ignored(filepath.Base(event.Name)) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}
