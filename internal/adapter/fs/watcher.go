package fs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

// Change is a file that was written, created or removed under the watched
// root.
type Change struct {
	Path    string
	Removed bool
}

// Watcher reports batches of file changes under a directory tree. Events for
// the same path within the debounce window collapse into one change.
type Watcher struct {
	root     string
	walker   *Walker
	debounce time.Duration
	logger   *log.Logger
}

func NewWatcher(root string, walker *Walker, debounce time.Duration, logger *log.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: root, walker: walker, debounce: debounce, logger: logger}
}

// Watch blocks until ctx is done, calling onChange with each settled batch.
// onChange runs on the watch goroutine; events arriving meanwhile queue in
// fsnotify.
func (w *Watcher) Watch(ctx context.Context, onChange func(context.Context, []Change)) error {
	root, err := filepath.Abs(w.root)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, root); err != nil {
		return err
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.logger.Warn("watch directory", "path", ev.Name, "err", err)
					}
					continue
				}
			}

			rel, err := filepath.Rel(root, ev.Name)
			if err != nil || !w.walker.Match(filepath.ToSlash(rel)) {
				continue
			}
			pending[ev.Name] = ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]Change, 0, len(pending))
			for path, removed := range pending {
				batch = append(batch, Change{Path: path, Removed: removed})
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
			clear(pending)
			onChange(ctx, batch)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	root, err := filepath.Abs(w.root)
	if err != nil {
		return err
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(root, path); err == nil && rel != "." {
			if w.walker.shouldExclude(filepath.ToSlash(rel) + "/") {
				return filepath.SkipDir
			}
		}
		return fw.Add(path)
	})
}
