/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package filewatch calls back when a file or directory on disk changes. Bursts of events are coalesced.
package filewatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
)

// DefaultDebounce is how long events must settle before onChange runs.
const DefaultDebounce = 250 * time.Millisecond

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// Watch calls onChange once events on path have settled for debounce. A directory path reacts to any entry in
// it. A file path watches the enclosing directory so that editors replacing the file and Kubernetes volume updates
// (which swap a "..data" symlink) are both seen. Watch returns once the watch is set up; it ends with ctx.
// onChange is never run concurrently with itself, and never after ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %q: %w", path, err)
	}
	dir, target := path, ""
	if !info.IsDir() {
		dir, target = filepath.Dir(path), filepath.Clean(path)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	logger := log.FromContext(ctx).WithName("file-watcher").WithValues("path", path)
	traceLogger := logger.V(logging.TRACE)

	// mu serializes onChange with itself and with the exit path, so no callback starts once ctx is done.
	var mu sync.Mutex
	done := false
	fire := func() {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		onChange()
	}

	go func() {
		defer w.Close()

		var debounceTimer *time.Timer
		defer func() {
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			mu.Lock()
			done = true
			mu.Unlock()
		}()

		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				traceLogger.Info("File event", "event", ev)
				if ev.Op&relevantOps == 0 || !matches(target, ev.Name) {
					continue
				}
				// Reset the timer if we get another event.
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, fire)

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error(err, "File watcher failed")
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func matches(target, name string) bool {
	if target == "" {
		return true
	}
	return filepath.Clean(name) == target || strings.HasPrefix(filepath.Base(name), "..")
}
