package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/logging"
)

// DefaultDebounce batches bursts of writes (editors often write, chmod and
// rename in quick succession) into one signal.
const DefaultDebounce = 100 * time.Millisecond

// ErrNothingToWatch is returned when none of the files' directories exist.
var ErrNothingToWatch = errors.New("no watchable directories")

// Watcher signals when any of a fixed set of files may have changed.
// Signals are hints only: receivers compare mtimes themselves.
type Watcher struct {
	watcher   *fsnotify.Watcher
	files     map[string]bool
	debounce  time.Duration
	changedCh chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

// canonical resolves symlinks in the directory part of path so event names
// and targets compare equal (e.g. /tmp -> /private/tmp on macOS). The file
// itself may not exist yet.
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	dir, base := filepath.Split(abs)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base)
	}
	return abs
}

// New watches the parent directories of files. Directories that do not exist
// are skipped; at least one must be watchable.
func New(files ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	sw := &Watcher{
		watcher:   w,
		files:     make(map[string]bool, len(files)),
		debounce:  DefaultDebounce,
		changedCh: make(chan struct{}, 1), // Buffered to prevent blocking
		closeCh:   make(chan struct{}),
		log:       logging.ForComponent(logging.CompWatcher),
	}

	watched := make(map[string]bool)
	for _, f := range files {
		path := canonical(f)
		sw.files[path] = true

		// Watch the parent directory: saves via rename replace the file's inode.
		dir := filepath.Dir(path)
		if watched[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			sw.log.Debug("watch_dir_skipped", slog.String("dir", dir), slog.Any("error", err))
			continue
		}
		watched[dir] = true
	}

	if len(watched) == 0 {
		w.Close()
		return nil, ErrNothingToWatch
	}
	return sw, nil
}

// Start begins watching for file changes (non-blocking).
func (sw *Watcher) Start() {
	go sw.watchLoop()
}

func (sw *Watcher) watchLoop() {
	debounce := time.NewTimer(0)
	debounce.Stop()

	for {
		select {
		case <-sw.closeCh:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !sw.files[canonical(event.Name)] {
				continue
			}
			debounce.Reset(sw.debounce)

		case <-debounce.C:
			select {
			case sw.changedCh <- struct{}{}:
			default:
				// A signal is already pending.
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.log.Warn("watch_error", slog.Any("error", err))
		}
	}
}

// Changes returns the channel that signals a possible change.
func (sw *Watcher) Changes() <-chan struct{} {
	return sw.changedCh
}

// Close stops the watcher and releases resources.
func (sw *Watcher) Close() error {
	sw.closeOnce.Do(func() {
		close(sw.closeCh)
	})
	return sw.watcher.Close()
}
