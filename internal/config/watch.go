package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDelay = 100 * time.Millisecond

// Watch reloads the configuration when one of its files changes and hands
// the new configuration to onChange. It blocks until ctx is done. Editors
// often replace files instead of writing them, so the parent directories are
// watched rather than the files themselves.
func Watch(ctx context.Context, cfg *Config, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	files := configPaths(cfg.workingDir)
	for i, file := range files {
		files[i] = filepath.Clean(file)
	}
	var dirs []string
	for _, file := range files {
		dirs = append(dirs, filepath.Dir(file))
	}
	slices.Sort(dirs)
	for _, dir := range slices.Compact(dirs) {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	reload := time.NewTimer(reloadDelay)
	reload.Stop()
	defer reload.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error", "error", err)
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !slices.Contains(files, filepath.Clean(evt.Name)) {
				continue
			}
			// Coalesce bursts of writes into one reload.
			reload.Reset(reloadDelay)
		case <-reload.C:
			next, err := Load(cfg.workingDir, cfg.Options.Debug)
			if err != nil {
				slog.Error("Failed to reload config", "error", err)
				continue
			}
			slog.Info("Config reloaded", "files", next.LoadedFrom())
			onChange(next)
		}
	}
}
