package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"pddlsynth/internal/logging"
)

// watchDebounce batches the bursts of events editors emit on save.
const watchDebounce = 300 * time.Millisecond

// watchFile calls onChange after path is written or replaced, until ctx is
// done. The parent directory is watched so that atomic renames are seen.
func watchFile(ctx context.Context, path string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	logging.Eval("watching %s for changes", abs)

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logging.EvalDebug("%s event for %s", event.Op, event.Name)
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			trigger = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.EvalWarn("watcher error: %v", err)

		case <-trigger:
			trigger = nil
			onChange()
		}
	}
}
