// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is how long the watcher waits for the directory to settle
// before reloading.
const defaultDebounce = 500 * time.Millisecond

// Watch begins hot reloading the catalog on file changes.
//
// # Description
//
// Watches the catalog root and the three kind directories. Editors and sync
// tools touch files several times per save, so raw events are batched: each
// relevant event resets a debounce timer and the catalog reloads once when
// the timer fires. The reload swaps the whole snapshot; readers never see a
// half-written catalog.
//
// # Inputs
//
//   - ctx: Context for cancellation. When cancelled, watching stops.
//
// # Outputs
//
//   - error: Non-nil if the underlying watcher could not be created.
//
// A kind directory that does not exist yet is picked up from its create
// event on the root. Watching also stops when Stop is called.
func (c *Catalog) Watch(ctx context.Context) error {
	c.mu.Lock()
	if c.watching {
		c.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	c.watcher = watcher
	c.watching = true
	c.mu.Unlock()

	paths := []string{c.dir}
	for _, sub := range []string{policiesDir, assignmentsDir, profilesDir} {
		paths = append(paths, filepath.Join(c.dir, sub))
	}
	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			c.logger.Debug("not watching path",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	go c.watchLoop(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once and without Watch.
func (c *Catalog) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.watcher != nil {
			c.watcher.Close()
		}
		c.watching = false
		c.mu.Unlock()
	})
}

// Watching reports whether hot reload is active.
func (c *Catalog) Watching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}

// watchLoop batches events and reloads after the debounce window expires.
func (c *Catalog) watchLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	pending := 0

	reload := func() {
		count := pending
		pending = 0
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
		if count == 0 {
			return
		}
		if err := c.Load(ctx); err != nil {
			c.logger.Error("catalog reload failed", slog.String("error", err.Error()))
			return
		}
		c.logger.Info("catalog reloaded", slog.Int("events", count))
		if c.onReload != nil {
			c.onReload()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !relevantEvent(event) {
				continue
			}
			// A kind directory created after Watch needs its own watch
			// before file events inside it arrive.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					c.watcher.Add(event.Name)
				}
			}
			pending++
			if timer == nil {
				timer = time.NewTimer(c.debounce)
				timerC = timer.C
			} else {
				timer.Reset(c.debounce)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("catalog watcher error", slog.String("error", err.Error()))
		case <-timerC:
			reload()
		}
	}
}

// relevantEvent reports whether an event can change catalog contents.
// Chmod is noise; everything else matters for YAML files and directories.
func relevantEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	if ext == ".yaml" || ext == ".yml" {
		return true
	}
	// Extensionless names are assumed to be kind directories appearing or
	// vanishing. Stat cannot confirm after a remove.
	return ext == ""
}
