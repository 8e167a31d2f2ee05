// Copyright 2025 The Flowwright Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a catalog override file when it changes on disk. Used by
// long-running modes (mcp serve) so catalog edits take effect without a
// restart.
type Watcher struct {
	fsWatcher *fsnotify.Watcher

	catalog *Catalog

	logger *slog.Logger

	// path is the absolute path of the watched override file
	path string

	// debounceDelay is the delay before reloading after a change
	debounceDelay time.Duration

	// onReload, if set, is called after each reload attempt with its error
	onReload func(error)

	// pending is the debounce timer for an in-flight reload
	pending *time.Timer

	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherConfig configures a catalog watcher.
type WatcherConfig struct {
	// Catalog receives merged node types on reload (required)
	Catalog *Catalog

	// Path is the catalog override file to watch (required)
	Path string

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// DebounceDelay is the delay before reloading after file changes
	// (defaults to 200ms)
	DebounceDelay time.Duration

	// OnReload is called after each reload attempt with its error (optional)
	OnReload func(error)
}

// NewWatcher creates a watcher for a catalog override file and starts its
// event loop.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", cfg.Path, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the parent directory: editors and atomic writers replace the
	// file by rename, which drops a watch on the file itself.
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(absPath), err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounceDelay := cfg.DebounceDelay
	if debounceDelay == 0 {
		debounceDelay = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		fsWatcher:     fsWatcher,
		catalog:       cfg.Catalog,
		logger:        logger,
		path:          absPath,
		debounceDelay: debounceDelay,
		onReload:      cfg.OnReload,
		ctx:           ctx,
		cancel:        cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// processEvents filters filesystem events down to the watched file and
// schedules debounced reloads.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.matchesWatchedFile(event.Name) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug("catalog file changed",
					"file", w.path,
					"op", event.Op.String(),
				)
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("catalog watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

// matchesWatchedFile checks whether an event path refers to the override file.
func (w *Watcher) matchesWatchedFile(eventPath string) bool {
	absPath, err := filepath.Abs(eventPath)
	if err != nil {
		return false
	}
	return absPath == w.path
}

// scheduleReload schedules a debounced reload, resetting any pending timer.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}

	w.pending = time.AfterFunc(w.debounceDelay, w.reload)
}

// reload merges the override file into the catalog.
func (w *Watcher) reload() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	err := w.catalog.MergeFile(w.path)
	if err != nil {
		w.logger.Error("failed to reload catalog",
			"file", w.path,
			"error", err,
		)
	} else {
		w.logger.Info("catalog reloaded",
			"file", w.path,
			"node_types", w.catalog.Len(),
		)
	}

	if w.onReload != nil {
		w.onReload(err)
	}
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.mu.Unlock()

	w.wg.Wait()

	return w.fsWatcher.Close()
}
