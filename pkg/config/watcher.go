// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package config

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// Watcher polls path for changes and swaps a new Settings snapshot into
// current on every modification, so readers never observe a partially
// applied reload.
type Watcher struct {
	path     string
	current  *atomic.Pointer[Settings]
	interval time.Duration
	logger   *slog.Logger
	lastMod  time.Time
}

// NewWatcher constructs a Watcher over current, which must already hold an
// initial snapshot loaded by Load.
func NewWatcher(path string, current *atomic.Pointer[Settings], logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		current:  current,
		interval: 5 * time.Second,
		logger:   logger,
	}
}

// Watch polls until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				w.logger.Warn("config stat failed", "path", w.path, "error", err)
				continue
			}

			if !info.ModTime().After(w.lastMod) {
				continue
			}
			w.lastMod = info.ModTime()

			settings, err := Load(w.path)
			if err != nil {
				w.logger.Error("config reload failed", "path", w.path, "error", err)
				continue
			}
			settings.WarnExtraSchedules(w.logger)
			w.current.Store(settings)
			w.logger.Info("settings reloaded", "path", w.path)
		}
	}
}
