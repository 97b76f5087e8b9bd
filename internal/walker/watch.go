package walker

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay quiet before it is emitted.
const DefaultSettle = 750 * time.Millisecond

// Watch emits documents that appear or change under cfg.RootDir until
// ctx is cancelled. A file is emitted once writes to it have stopped for
// settle. New subdirectories are watched as they appear. The returned
// channel is closed when watching stops.
func Watch(ctx context.Context, cfg Config, settle time.Duration) (<-chan FileInfo, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("walker: resolve root: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("walker: create watcher: %w", err)
	}
	if err := addTree(w, root); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("walker: watch %s: %w", root, err)
	}
	ignore := loadIgnore(filepath.Join(root, IgnoreFile))

	out := make(chan FileInfo, 64)
	go func() {
		defer close(out)
		defer w.Close()

		pending := make(map[string]time.Time)
		tick := time.NewTicker(settle / 3)
		defer tick.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if st, err := os.Stat(ev.Name); err == nil && st.IsDir() && !shouldExcludeDir(st.Name()) {
						if err := addTree(w, ev.Name); err != nil {
							logger.Warn("cannot watch new directory", "path", ev.Name, "error", err)
						}
						continue
					}
				}
				if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
					if _, ok := cfg.accept(root, ev.Name, ignore); ok {
						pending[ev.Name] = time.Now()
					}
				}
				if ev.Has(fsnotify.Remove) {
					delete(pending, ev.Name)
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", "error", err)

			case now := <-tick.C:
				for path, last := range pending {
					if now.Sub(last) < settle {
						continue
					}
					delete(pending, path)
					fi, ok := cfg.accept(root, path, ignore)
					if !ok {
						continue
					}
					st, err := os.Stat(path)
					if err != nil || !st.Mode().IsRegular() {
						continue
					}
					cfg.fill(&fi, st.Size())
					select {
					case out <- fi:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && shouldExcludeDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
