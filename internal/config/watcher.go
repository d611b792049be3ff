// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jeranaias/llmbridge/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet before a reload fires.
const DefaultDebounce = 250 * time.Millisecond

// =============================================================================
// WATCHER
// =============================================================================

// Watcher calls a reload function when a config file changes. Editors often
// replace files instead of writing them in place, so the parent directory is
// watched and events are filtered by name.
type Watcher struct {
	path     string
	debounce time.Duration
	reload   func(path string) error
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending time.Time // zero when nothing is pending
}

// NewWatcher creates a watcher for path. reload runs on the watcher's own
// goroutine; a debounce of zero uses DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, reload func(path string) error) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: abs, debounce: debounce, reload: reload, watcher: fw}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Run processes events until ctx is done, then closes the underlying
// watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	tick := w.debounce / 2
	if tick <= 0 {
		tick = w.debounce
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	log := logging.With(zap.String("path", w.path))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.mu.Lock()
				w.pending = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watch error", zap.Error(err))

		case now := <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && now.Sub(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if due {
				if err := w.reload(w.path); err != nil {
					log.Warn("config reload failed", zap.Error(err))
				} else {
					log.Info("config reloaded")
				}
			}
		}
	}
}
