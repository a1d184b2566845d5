package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the settings file whenever it changes and passes the new
// value to onChange. It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file by rename keep being observed. Parse
// errors are logged and the previous settings stay in effect.
func Watch(ctx context.Context, path string, onChange func(Settings), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logger.Debug("watching settings file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, path) {
				continue
			}
			s, err := Load(path)
			if err != nil {
				logger.Warn("ignoring unreadable settings file", "path", path, "error", err)
				continue
			}
			logger.Info("settings file changed, reloading", "path", path, "op", event.Op.String())
			onChange(s)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("settings watcher error", "error", err)
		}
	}
}

// relevant reports whether event touches the settings file with an
// operation that can change its content.
func relevant(event fsnotify.Event, path string) bool {
	if filepath.Clean(event.Name) != filepath.Clean(path) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
