package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roelfdiedericks/relaybot/internal/logging"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once

	mu           sync.Mutex
	pendingTimer *time.Timer
}

// Watch starts watching path. The parent directory is watched so editors
// that replace the file by rename are seen too. onChange receives every
// successfully reloaded config; parse failures keep the previous one.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		path:     abs,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
	go w.run()
	logging.L_debug("config: watching", "path", abs)
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
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
			w.triggerReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.L_warn("config: watcher error", "error", err)
		}
	}
}

// triggerReload coalesces bursts of events into one reload
func (w *Watcher) triggerReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.stopCh:
		return
	default:
	}
	cfg, err := Load(w.path)
	if err != nil {
		logging.L_warn("config: reload failed, keeping previous config", "error", err)
		return
	}
	logging.L_info("config: reloaded", "path", w.path)
	w.onChange(cfg)
}

// Stop ends watching
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.pendingTimer != nil {
			w.pendingTimer.Stop()
		}
		w.mu.Unlock()
		w.watcher.Close()
	})
}
