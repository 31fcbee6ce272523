package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file and re-applies its dynamic settings when
// it changes. Only the settings the apply callback touches take effect; the
// process-shaping ones (port, workspace root, store paths) need a restart.
type Watcher struct {
	path     string
	apply    func(*Config)
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Debounce rapid file changes; editors fire several events per save.
	debounce     time.Duration
	pendingTimer *time.Timer
	timerMu      sync.Mutex
}

// NewWatcher creates a watcher for the config file at path. On each change
// the file is reloaded, validated, and passed to apply; files that fail to
// load or validate are logged and skipped, keeping the last good settings.
func NewWatcher(path string, apply func(*Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		apply:    apply,
		watcher:  fsWatcher,
		stopChan: make(chan struct{}),
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start begins watching. The parent directory is watched rather than the
// file itself: editors save by rename-replace, which drops a watch on the
// file but not on its directory.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		cfgLog.Warn("cannot watch config directory (may not exist yet): %v", err)
		return nil
	}

	w.wg.Add(1)
	go w.run()

	cfgLog.Info("watching config file: %s", w.path)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	w.wg.Wait()

	w.timerMu.Lock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) run() {
	defer w.wg.Done()

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
			cfgLog.Warn("config watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.scheduleReload()
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, w.doReload)
}

func (w *Watcher) doReload() {
	cfg, err := Load(w.path)
	if err != nil {
		cfgLog.Error("config reload skipped, load failed: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		cfgLog.Error("config reload skipped: %v", err)
		return
	}
	cfgLog.Info("config changed, re-applying dynamic settings")
	w.apply(cfg)
}
