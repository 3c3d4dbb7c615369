package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/logging"
)

// Watcher reloads the config file into a Store when it changes on disk.
// Rapid write bursts (editors often write twice) are debounced.
type Watcher struct {
	mu sync.Mutex

	path    string
	store   *Store
	log     *logging.Logger
	watcher *fsnotify.Watcher

	debounce time.Duration
	pending  *time.Timer

	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher starts watching the config file's directory. Watching the
// directory instead of the file survives rename-based atomic saves.
func NewWatcher(path string, store *Store, log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching config dir: %w", err)
	}

	w := &Watcher{
		path:     abs,
		store:    store,
		log:      log.WithComponent("config-watcher"),
		watcher:  fsw,
		debounce: 100 * time.Millisecond,
		closeCh:  make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.pending != nil {
		w.pending.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error: %v", err)
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Name != w.path {
		return false
	}
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename)
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	settings, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload failed, keeping previous settings: %v", err)
		return
	}
	w.store.Replace(settings)
	w.log.Info("config reloaded from %s", w.path)
}
