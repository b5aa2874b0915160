package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchFunc receives the outcome of every file Watch imports.
type WatchFunc func(path string, result *Result, err error)

// Watch imports every *.json file already in dir, then each one created or
// rewritten there until ctx is done. A file is imported again only when its
// modification time changes. Failed imports are reported to fn and retried on
// the next write.
func (im *Importer) Watch(ctx context.Context, dir string, fn WatchFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating import watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching import dir: %w", err)
	}

	seen := make(map[string]time.Time)
	importOne := func(path string) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		if last, ok := seen[path]; ok && last.Equal(info.ModTime()) {
			return
		}

		result, err := im.ImportFile(ctx, path)
		if err != nil {
			im.logger.Warn("import failed", "path", path, "error", err)
		} else {
			seen[path] = info.ModTime()
		}
		if fn != nil {
			fn(path, result, err)
		}
	}

	existing, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("listing import dir: %w", err)
	}
	slices.Sort(existing)
	for _, path := range existing {
		importOne(path)
	}

	im.logger.Info("watching for imports", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".json") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			importOne(filepath.Clean(event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("import watcher error: %w", err)
		}
	}
}
