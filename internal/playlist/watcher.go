package playlist

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher monitors the directories of resident songs and raises a
// file-missing event when one of their files is removed or renamed, so the
// adapter can trigger recovery without waiting for the next play attempt.
type Watcher struct {
	manager *Manager
	watcher *fsnotify.Watcher
	logger  *logrus.Logger

	mu      sync.Mutex
	watched map[string]bool // directories already added
}

// NewWatcher creates and starts a file watcher bound to the engine.
func NewWatcher(manager *Manager, logger *logrus.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		manager: manager,
		watcher: fsw,
		logger:  logger,
		watched: make(map[string]bool),
	}
	go w.run()
	return w, nil
}

// WatchSong ensures the directory containing path is monitored.
func (w *Watcher) WatchSong(path string) {
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[dir] {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.logger.WithError(err).WithField("dir", dir).Warn("Failed to watch directory")
		return
	}
	w.watched[dir] = true
}

// run selects on watcher channels and dispatches events.
func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleEvent raises a file-missing notification when a resident song's
// file disappears.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.manager.PathResident(event.Name) {
		return
	}

	w.logger.WithField("path", event.Name).Warn("Resident song file disappeared")
	w.manager.publish(Event{Kind: EventFileMissing, Path: event.Name})
}

// Close stops the watcher (idempotent).
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
