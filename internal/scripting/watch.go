package scripting

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadDebounce coalesces the burst of events a single editor save produces.
const ReloadDebounce = 100 * time.Millisecond

// Watcher reloads one VM whenever a .lua file in its directory changes. A
// reload that fails to load leaves the previous VM in place.
type Watcher struct {
	fs       *fsnotify.Watcher
	mgr      *Manager
	key      string
	dir      string
	limit    int
	onReload func(err error)

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// WatchGlobal watches scriptDir and reloads the global VM from it on change.
// onReload, when non-nil, is called from the watcher goroutine after every
// reload attempt.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Returns a running Watcher the caller must Close, or an error.
func (m *Manager) WatchGlobal(scriptDir string, instLimit int, onReload func(err error)) (*Watcher, error) {
	return m.watch(globalAreaID, scriptDir, instLimit, onReload)
}

// WatchArea is WatchGlobal for a single area's VM.
func (m *Manager) WatchArea(areaID, scriptDir string, instLimit int, onReload func(err error)) (*Watcher, error) {
	if areaID == "" {
		return nil, fmt.Errorf("scripting: area id must not be empty")
	}
	return m.watch(areaID, scriptDir, instLimit, onReload)
}

func (m *Manager) watch(key, dir string, instLimit int, onReload func(err error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("scripting: creating watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("scripting: watching %q: %w", dir, err)
	}
	w := &Watcher{
		fs:       fw,
		mgr:      m,
		key:      key,
		dir:      dir,
		limit:    instLimit,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	m.logger.Info("watching scripts", zap.String("area", key), zap.String("dir", dir))
	return w, nil
}

// Close stops the watcher and waits for its goroutine. Safe to call twice.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	var fire <-chan time.Time
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 || !isLuaFile(ev.Name) {
				continue
			}
			fire = time.After(ReloadDebounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.mgr.logger.Warn("scripting: watcher error", zap.String("dir", w.dir), zap.Error(err))
		case <-fire:
			fire = nil
			w.reload()
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	err := w.mgr.loadInto(w.key, w.dir, w.limit)
	if err != nil {
		w.mgr.logger.Warn("scripting: reload failed, keeping previous scripts",
			zap.String("area", w.key),
			zap.Error(err),
		)
	} else {
		w.mgr.logger.Info("scripts reloaded", zap.String("area", w.key))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

func isLuaFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".lua")
}
