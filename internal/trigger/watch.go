package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFile raises flag whenever path is written or (re)created. It watches
// the parent directory so that editors replacing the file are still seen.
// Bursts of events need no debouncing: the flag coalesces them.
//
// WatchFile blocks until ctx is done.
func WatchFile(ctx context.Context, path string, flag *Flag, logger *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	logger.Debug("watch_started", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.Debug("watch_trigger", "path", abs, "op", ev.Op.String())
				flag.Set()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			// keep watching
			logger.Warn("watch_error", "path", abs, "error", err)
		}
	}
}
