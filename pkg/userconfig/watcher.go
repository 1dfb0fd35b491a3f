package userconfig

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the user config file for changes and signals when it is
// modified. It does NOT reload or apply the config itself; the callback runs
// on the watcher goroutine and should hand off to the appropriate place.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	stopChan chan struct{}
	onChange func()
}

// WatchConfig starts watching the user config file. The onChange callback is
// invoked whenever the file is written, created, or renamed.
func WatchConfig(onChange func()) (*Watcher, error) {
	w := &Watcher{
		path:     Path(),
		onChange: onChange,
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory containing the config file. This is more reliable
	// than watching the file itself for editors and for atomic.WriteFile,
	// which replace the file by renaming a temp file over it.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return nil, err
	}

	w.watcher = watcher
	w.stopChan = make(chan struct{})

	go w.watchLoop()

	slog.Debug("Started watching user config file", "path", w.path)
	return w, nil
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("User config file changed", "op", event.Op.String())
			w.onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("User config watcher error", "error", err)
		}
	}
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopChan != nil {
		close(w.stopChan)
		w.stopChan = nil
	}
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
}
