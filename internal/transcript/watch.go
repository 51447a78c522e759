package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// GrowthFunc receives the full transcript each time it grows
type GrowthFunc func(turns []Turn)

// Watch invokes fn whenever the NDJSON transcript at path gains turns, until ctx
// is cancelled. The parent directory is watched so the file may be created later.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn GrowthFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve transcript path: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	seen := 0
	check := func() {
		turns, err := Load(abs, logger)
		if err != nil {
			// A half-written trailing line fails to decode; the next write completes it
			logger.Debug("transcript not readable yet", "path", abs, "error", err)
			return
		}
		if len(turns) <= seen {
			return
		}
		seen = len(turns)
		fn(turns)
	}

	check()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != abs {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				check()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("transcript watcher error", "path", abs, "error", err)
		}
	}
}
