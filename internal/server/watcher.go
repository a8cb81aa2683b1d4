package server

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches a template directory and triggers reload when a widget
// template changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onReload func(fileName string) error
	logger   *zap.Logger
	done     chan struct{}
	exited   chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the *.tmpl files in dir.
func NewWatcher(dir string, onReload func(string) error, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  fsWatcher,
		dir:      dir,
		onReload: onReload,
		logger:   logger.Named("watch"),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(w.exited)
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handle(event)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.Error(err))

			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if filepath.Ext(event.Name) != ".tmpl" {
		return
	}

	name := filepath.Base(event.Name)
	w.logger.Debug("template changed", zap.String("file", name))

	if err := w.onReload(name); err != nil {
		w.logger.Error("reload failed", zap.String("file", name), zap.Error(err))
	}
}

// Stop stops the watcher and waits for the event loop to exit.
// Safe to call multiple times.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	if w.started.Load() {
		<-w.exited
	}
	return err
}
