package config

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dataconnect-io/dataconnect/dcerrors"
)

// reloadDebounce coalesces bursts of filesystem events (editors often
// write a file more than once per save) into a single reload, mirroring
// am/watcher.go's debouncePeriod.
const reloadDebounce = 500 * time.Millisecond

// ReloadFunc is called with the freshly loaded document after a change
// is detected. Returning an error only logs; it does not stop the
// watcher.
type ReloadFunc func(*Document) error

// Watcher hot-reloads a configuration file on change, grounded on
// am/watcher.go's ConfigWatcher: fsnotify on the containing directory,
// debounced reload, and a loop-prevention flag for the watcher's own
// persisted writes (see MarkOwnWrite).
type Watcher struct {
	log  *zap.SugaredLogger
	path string

	watcher *fsnotify.Watcher

	mu        sync.Mutex
	callbacks []ReloadFunc
	timer     *time.Timer
	ownWrite  bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a Watcher for path without starting it.
func NewWatcher(log *zap.SugaredLogger, path string) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, dcerrors.Wrap(err, "failed to create filesystem watcher")
	}
	return &Watcher{
		log:     log.Named("config.watcher"),
		path:    path,
		watcher: fw,
		done:    make(chan struct{}),
	}, nil
}

// OnReload registers a callback invoked after each debounced reload.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// MarkOwnWrite tells the watcher to ignore the next filesystem event for
// its own path, so a component that persists back to the config file
// (e.g. tags.persistToFile) does not trigger a self-reload loop.
func (w *Watcher) MarkOwnWrite() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ownWrite = true
}

func (w *Watcher) checkOwnWrite() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ownWrite {
		w.ownWrite = false
		return true
	}
	return false
}

// PersistDefaultTags writes tags to path via PersistDefaultTags. When
// path is the same file this Watcher watches, the write is marked as
// our own first, so the filesystem event the write itself generates
// does not turn around and trigger a self-reload.
func (w *Watcher) PersistDefaultTags(path string, tags map[string]string) error {
	if filepath.Clean(path) == filepath.Clean(w.path) {
		w.MarkOwnWrite()
	}
	return PersistDefaultTags(path, tags)
}

// Start watches the configuration file's directory (fsnotify does not
// reliably track renamed/recreated files directly) and begins the
// watch loop in a background goroutine.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return dcerrors.Wrapf(err, "failed to watch directory %s", dir)
	}
	go w.watchLoop()
	return nil
}

func (w *Watcher) watchLoop() {
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
			w.log.Warnw("config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if isBackupFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if w.checkOwnWrite() {
		return
	}
	w.scheduleReload()
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	doc, err := Load(w.path)
	if err != nil {
		w.log.Errorw("config reload failed", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	callbacks := make([]ReloadFunc, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(doc); err != nil {
			w.log.Errorw("config reload callback failed", "path", w.path, "error", err)
		}
	}
}

// Stop ends the watch loop and releases the underlying fsnotify handle.
// Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func isBackupFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, "~") ||
		strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".bak")
}
