package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/sprint/internal/logging"
)

// unblockSuffix marks a file requesting that an agent-blocked task be
// dispatched again, as in "API-001.unblock".
const unblockSuffix = ".unblock"

// unblocker is the part of the engine the watcher drives.
type unblocker interface {
	Unblock(taskID string) error
}

// watchUnblocks calls Unblock for every <task-id>.unblock file created in dir
// until ctx is done. Handled files are removed; a request for a task that is
// not blocked yet stays in place and is retried on the next event.
func watchUnblocks(ctx context.Context, dir string, target unblocker, logger *logging.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create unblock dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	scan := func() {
		matches, _ := filepath.Glob(filepath.Join(dir, "*"+unblockSuffix))
		for _, path := range matches {
			id := strings.TrimSuffix(filepath.Base(path), unblockSuffix)
			if err := target.Unblock(id); err != nil {
				logger.Debug("unblock request pending", "task_id", id, "error", err.Error())
				continue
			}
			logger.Info("task unblocked by marker file", "task_id", id)
			_ = os.Remove(path)
		}
	}
	scan()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				scan()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("unblock watcher error", "error", err.Error())
		}
	}
}
