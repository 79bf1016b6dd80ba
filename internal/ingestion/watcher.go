package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval batches bursts of file-system events into one
// update cycle.
const debounceInterval = 2 * time.Second

// Watch monitors the project tree and invokes onBatch once per
// debounced burst of relevant events. It blocks until the context is
// cancelled. onBatch failures are logged, not fatal: the next batch
// gets another chance.
func Watch(ctx context.Context, root string, onBatch func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, root); err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}

	log := slog.Default()
	timer := time.NewTimer(debounceInterval)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if skipWatchPath(root, event.Name) {
				continue
			}
			// New directories need their own watches.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
				}
			}
			pending = true
			timer.Reset(debounceInterval)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if err := onBatch(ctx); err != nil {
				log.Warn("update cycle failed", "error", err)
			}
		}
	}
}

// addRecursive registers a watch on dir and every non-ignored
// directory below it.
func addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if p != dir && skipWatchPath(dir, p) {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}

// skipWatchPath filters events under dot-directories and the common
// junk directories the walker also ignores.
func skipWatchPath(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") || part == "node_modules" || part == "__pycache__" || part == "venv" {
			return true
		}
	}
	return false
}
