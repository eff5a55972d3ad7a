package compose

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events for one stack.
const DefaultDebounce = 200 * time.Millisecond

// StartWatcher watches the stacks directory tree for compose file changes.
// On change, re-parses the affected stack's compose file and updates the cache.
// Calls onChange(stackName) after each update so the caller can refresh tables.
func StartWatcher(ctx context.Context, stacksDir string, cache *Cache, debounce time.Duration, onChange func(stackName string)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Top-level dir catches new and removed stack subdirs
	if err := watcher.Add(stacksDir); err != nil {
		watcher.Close()
		return err
	}

	entries, err := os.ReadDir(stacksDir)
	if err != nil {
		watcher.Close()
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			subdir := filepath.Join(stacksDir, entry.Name())
			if err := watcher.Add(subdir); err != nil {
				slog.Warn("compose watcher: add subdir", "err", err, "dir", subdir)
			}
		}
	}

	w := &stackWatcher{
		watcher:   watcher,
		stacksDir: filepath.Clean(stacksDir),
		cache:     cache,
		debounce:  debounce,
		onChange:  onChange,
		pending:   make(map[string]*time.Timer),
	}
	go w.run(ctx)

	slog.Info("compose file watcher started", "dir", stacksDir)
	return nil
}

type stackWatcher struct {
	watcher   *fsnotify.Watcher
	stacksDir string
	cache     *Cache
	debounce  time.Duration
	onChange  func(stackName string)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// trigger schedules a reparse of stackName, restarting the timer if one is
// already pending.
func (w *stackWatcher) trigger(stackName string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[stackName]; ok {
		timer.Stop()
	}
	w.pending[stackName] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, stackName)
		w.mu.Unlock()
		w.reload(stackName)
	})
}

func (w *stackWatcher) reload(stackName string) {
	path := FindComposeFile(w.stacksDir, stackName)
	if path == "" {
		w.cache.Delete(stackName)
		slog.Debug("compose watcher: file removed", "stack", stackName)
	} else {
		services, err := ParseFile(path)
		if err != nil {
			slog.Warn("compose watcher: parse", "err", err, "stack", stackName)
			services = map[string]ServiceData{}
		}
		w.cache.Update(stackName, services)
		slog.Debug("compose watcher: file updated", "stack", stackName, "services", len(services))
	}

	if w.onChange != nil {
		w.onChange(stackName)
	}
}

func (w *stackWatcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
}

func (w *stackWatcher) run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("compose watcher error", "err", err)
		}
	}
}

func (w *stackWatcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	dir := filepath.Dir(event.Name)

	// Event in the stacks directory itself
	if dir == w.stacksDir {
		if event.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
			info, err := os.Stat(event.Name)
			if err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					slog.Warn("compose watcher: add new subdir", "err", err, "dir", event.Name)
				}
				w.trigger(name)
				return
			}
		}
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.trigger(name)
		}
		return
	}

	// Only direct children of stacksDir are stacks
	if filepath.Dir(dir) != w.stacksDir || !isComposeFile(name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
		w.trigger(filepath.Base(dir))
	}
}
