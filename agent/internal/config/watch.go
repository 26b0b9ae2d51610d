package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events a single save produces.
const settleDelay = 100 * time.Millisecond

// Watch calls onChange with the reloaded Config after path changes.
// It runs until ctx is cancelled.
//
// The directory holding path is watched, so a file replaced by rename is
// still seen, and events for sibling files are ignored. Events are settled for
// settleDelay before reloading. A file that fails to load is logged and
// skipped, so the caller keeps running with its previous sources.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", abs, "dir", dir)

	// settle is nil while no reload is pending.
	var settle <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			settle = time.After(settleDelay)

		case <-settle:
			settle = nil
			cfg, err := Load(abs)
			if err != nil {
				slog.Error("config: reload failed, keeping previous sources",
					"path", abs, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", abs, "sources", len(cfg.Agent.Sources))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
