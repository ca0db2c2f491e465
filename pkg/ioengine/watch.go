// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ioengine

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeKind classifies a FileChangeEvent.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "Created"
	ChangeModified ChangeKind = "Modified"
	ChangeRemoved  ChangeKind = "Removed"
	ChangeRenamed  ChangeKind = "Renamed"
	ChangeOther    ChangeKind = "Other"
)

// FileChangeEvent is broadcast to watcher consumers. Consumers must
// tolerate bursts; events are not deduplicated beyond the debounce window.
type FileChangeEvent struct {
	Path string
	Kind ChangeKind
}

var watchSkipDirs = map[string]bool{
	".git": true, "target": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, ".ploke": true, "bin": true,
}

func fsnotifyOpToKind(op fsnotify.Op) ChangeKind {
	switch {
	case op&fsnotify.Create != 0:
		return ChangeCreated
	case op&fsnotify.Write != 0:
		return ChangeModified
	case op&fsnotify.Remove != 0:
		return ChangeRemoved
	case op&fsnotify.Rename != 0:
		return ChangeRenamed
	default:
		return ChangeOther
	}
}

// Watch walks root recursively, adds every non-skipped directory to an
// fsnotify watcher, and emits debounced FileChangeEvent values on the
// returned channel until stop is called. Mirrors the
// teacher's runWatchAndReindex debounce-then-trigger shape, generalized
// from "trigger a reindex" to "emit the changed paths" so callers (the
// indexer, the edit engine's post-apply rescan) can decide what to do.
func Watch(root string, debounce time.Duration, onError func(error)) (events <-chan FileChangeEvent, stop func(), err error) {
	watcher, werr := fsnotify.NewWatcher()
	if werr != nil {
		return nil, nil, werr
	}

	_ = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsPermission(walkErr) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if watchSkipDirs[base] || (strings.HasPrefix(base, ".") && base != ".") {
			return filepath.SkipDir
		}
		if addErr := watcher.Add(path); addErr != nil && onError != nil {
			onError(addErr)
		}
		return nil
	})

	out := make(chan FileChangeEvent, 64)
	done := make(chan struct{})

	go func() {
		defer close(out)
		defer watcher.Close()

		pending := make(map[string]ChangeKind)
		var timer *time.Timer
		var timerCh <-chan time.Time

		flush := func() {
			for path, kind := range pending {
				select {
				case out <- FileChangeEvent{Path: path, Kind: kind}:
				case <-done:
					return
				}
			}
			pending = make(map[string]ChangeKind)
		}

		for {
			select {
			case <-done:
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				pending[ev.Name] = fsnotifyOpToKind(ev.Op)
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(debounce)
				timerCh = timer.C
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(werr)
				}
			case <-timerCh:
				timerCh = nil
				flush()
			}
		}
	}()

	return out, func() { close(done) }, nil
}
