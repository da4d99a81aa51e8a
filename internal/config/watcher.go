package config

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"teststand/pkg/logging"
)

// debounceInterval is how long the watcher waits after the last write event
// before reloading. Editors and atomic savers emit bursts of events, and a
// truncate-then-write save is only half done when the first event arrives.
const debounceInterval = 100 * time.Millisecond

// Watch reloads the config file whenever it changes and hands the new value
// to onChange. It blocks until ctx is cancelled. If the fsnotify watcher
// cannot be created the file is polled by modification time instead.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("config", "fsnotify unavailable, polling %s: %v", path, err)
		return pollFile(ctx, path, onChange)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		logging.Warn("config", "Cannot watch %s, polling instead: %v", path, err)
		return pollFile(ctx, path, onChange)
	}

	var pending *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(debounceInterval)
				fire = pending.C
			} else {
				if !pending.Stop() {
					<-fire
				}
				pending.Reset(debounceInterval)
			}
		case <-fire:
			pending = nil
			fire = nil
			reload(path, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("config", "Watcher error on %s: %v", path, err)
		}
	}
}

func pollFile(ctx context.Context, path string, onChange func(Config)) error {
	const interval = 2 * time.Second
	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastMod) {
				lastMod = info.ModTime()
				reload(path, onChange)
			}
		}
	}
}

func reload(path string, onChange func(Config)) {
	cfg, err := Load(path)
	if err != nil {
		logging.Warn("config", "Ignoring invalid config change in %s: %v", path, err)
		return
	}
	logging.Info("config", "Reloaded configuration from %s", path)
	onChange(cfg)
}
