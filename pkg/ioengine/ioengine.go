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

// Package ioengine is the I/O kernel: batched, hash-validated snippet
// reads and splice-writes behind per-file locking, plus an optional
// fsnotify-backed change watcher. Callers invoke a Manager's batched
// methods directly; each call fans its requests out onto a pool of at most
// Config.Workers goroutines. There is no long-lived manager goroutine and
// no request channel.
package ioengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"
)

// TrackingHash is a content hash used to detect whether a file changed
// since a node's span was last computed.
type TrackingHash string

// HashContent computes the TrackingHash of a byte slice.
func HashContent(b []byte) TrackingHash {
	sum := sha256.Sum256(b)
	return TrackingHash(hex.EncodeToString(sum[:]))
}

// SnippetRequest asks for the bytes of file[start:end], validated against
// expectedHash.
type SnippetRequest struct {
	Path         string
	ExpectedHash TrackingHash
	Start        int
	End          int
}

// WriteSnippetData asks for file[start:end] to be replaced by Replacement,
// validated against ExpectedHash before the splice is applied.
type WriteSnippetData struct {
	Path         string
	ExpectedHash TrackingHash
	Start        int
	End          int
	Replacement  string
}

// WriteResult reports the outcome of one write_snippets_batch entry.
type WriteResult struct {
	Path        string
	NewHash     TrackingHash
	BytesWritten int
}

// FileData is an input to scan_changes_batch: a file and the hash it was
// last seen at.
type FileData struct {
	Path     string
	LastHash TrackingHash
}

// ChangedFileData reports a file whose on-disk hash no longer matches
// LastHash.
type ChangedFileData struct {
	Path    string
	OldHash TrackingHash
	NewHash TrackingHash
}

// ContentMismatchError is returned when a file's current hash doesn't
// match the hash a request expected.
type ContentMismatchError struct {
	Path     string
	Expected TrackingHash
	Actual   TrackingHash
}

func (e *ContentMismatchError) Error() string {
	return fmt.Sprintf("content mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// OutOfRangeError is returned when a requested byte range falls outside
// the file's length.
type OutOfRangeError struct {
	Path       string
	Start, End int
	Len        int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("range [%d:%d) out of bounds for %s (len %d)", e.Start, e.End, e.Path, e.Len)
}

// InvalidCharBoundaryError is returned when start or end falls inside a
// multi-byte UTF-8 rune.
type InvalidCharBoundaryError struct {
	Path   string
	Offset int
}

func (e *InvalidCharBoundaryError) Error() string {
	return fmt.Sprintf("offset %d in %s is not a UTF-8 char boundary", e.Offset, e.Path)
}

// PathOutsideRootsError is returned when a resolved target path escapes
// every configured workspace root.
type PathOutsideRootsError struct {
	Path  string
	Roots []string
}

func (e *PathOutsideRootsError) Error() string {
	return fmt.Sprintf("path %s lies outside configured roots %v", e.Path, e.Roots)
}

func validateRange(path string, data []byte, start, end int) error {
	if start < 0 || end < start || end > len(data) {
		return &OutOfRangeError{Path: path, Start: start, End: end, Len: len(data)}
	}
	if !utf8.RuneStart(byteAt(data, start)) {
		return &InvalidCharBoundaryError{Path: path, Offset: start}
	}
	if end < len(data) && !utf8.RuneStart(byteAt(data, end)) {
		return &InvalidCharBoundaryError{Path: path, Offset: end}
	}
	return nil
}

func byteAt(data []byte, i int) byte {
	if i >= len(data) {
		return 0
	}
	return data[i]
}

// Config configures a Manager.
type Config struct {
	// Roots are the workspace roots writes must resolve within.
	Roots []string
	// Workers is the dispatch pool size; defaults to 4.
	Workers int
}

// Manager is the I/O kernel's single entry point: it holds the per-file
// mutexes, and each batched call dispatches its requests onto a worker pool.
type Manager struct {
	roots   []string
	workers int

	fileMu sync.Map // path -> *sync.Mutex
}

// New creates a Manager. The batched methods below are called directly
// and manage their own concurrency; there is no Run loop to start.
func New(cfg Config) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Manager{roots: append([]string{}, cfg.Roots...), workers: workers}
}

func (m *Manager) lockFor(path string) *sync.Mutex {
	v, _ := m.fileMu.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// resolveWithinRoots ensures path, once made absolute, lies under one of
// the configured roots.
func (m *Manager) resolveWithinRoots(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if len(m.roots) == 0 {
		return abs, nil
	}
	for _, root := range m.roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err == nil && rel != ".." && !hasDotDotPrefix(rel) {
			return abs, nil
		}
	}
	return "", &PathOutsideRootsError{Path: path, Roots: m.roots}
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.' && (len(rel) == 2 || rel[2] == filepath.Separator)
}

// GetSnippetsBatch fetches each request's byte range with content-hash and
// range validation, dispatched across m.workers goroutines.
func (m *Manager) GetSnippetsBatch(ctx context.Context, reqs []SnippetRequest) []Result[string] {
	return dispatch(ctx, reqs, m.workers, func(r SnippetRequest) (string, error) {
		data, err := os.ReadFile(r.Path)
		if err != nil {
			return "", err
		}
		actual := HashContent(data)
		if r.ExpectedHash != "" && actual != r.ExpectedHash {
			return "", &ContentMismatchError{Path: r.Path, Expected: r.ExpectedHash, Actual: actual}
		}
		if err := validateRange(r.Path, data, r.Start, r.End); err != nil {
			return "", err
		}
		return string(data[r.Start:r.End]), nil
	})
}

// ScanChangesBatch rehashes each file and reports entries whose content
// diverged from the hash they were last seen at.
func (m *Manager) ScanChangesBatch(ctx context.Context, files []FileData) ([]ChangedFileData, error) {
	results := dispatch(ctx, files, m.workers, func(f FileData) (ChangedFileData, error) {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return ChangedFileData{}, err
		}
		newHash := HashContent(data)
		return ChangedFileData{Path: f.Path, OldHash: f.LastHash, NewHash: newHash}, nil
	})

	var changed []ChangedFileData
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Value.NewHash != r.Value.OldHash {
			changed = append(changed, r.Value)
		}
	}
	return changed, nil
}

// WriteSnippetsBatch performs the splice-write durability protocol for
// each request: per-file lock, re-read + hash check, in-memory splice,
// write-to-temp + fsync + rename + parent-fsync.
func (m *Manager) WriteSnippetsBatch(ctx context.Context, reqs []WriteSnippetData) []Result[WriteResult] {
	return dispatch(ctx, reqs, m.workers, func(w WriteSnippetData) (WriteResult, error) {
		target, err := m.resolveWithinRoots(w.Path)
		if err != nil {
			return WriteResult{}, err
		}

		mu := m.lockFor(target)
		mu.Lock()
		defer mu.Unlock()

		data, err := os.ReadFile(target)
		if err != nil {
			return WriteResult{}, err
		}
		if w.ExpectedHash != "" {
			if actual := HashContent(data); actual != w.ExpectedHash {
				return WriteResult{}, &ContentMismatchError{Path: target, Expected: w.ExpectedHash, Actual: actual}
			}
		}
		if err := validateRange(target, data, w.Start, w.End); err != nil {
			return WriteResult{}, err
		}

		spliced := make([]byte, 0, len(data)-(w.End-w.Start)+len(w.Replacement))
		spliced = append(spliced, data[:w.Start]...)
		spliced = append(spliced, []byte(w.Replacement)...)
		spliced = append(spliced, data[w.End:]...)
		if !utf8.Valid(spliced) {
			return WriteResult{}, fmt.Errorf("splice result for %s is not valid UTF-8", target)
		}

		if err := atomicWrite(target, spliced); err != nil {
			return WriteResult{}, err
		}
		return WriteResult{Path: target, NewHash: HashContent(spliced), BytesWritten: len(spliced)}, nil
	})
}

// atomicWrite writes data to a sibling temp file, fsyncs it, renames it
// over target, then fsyncs target's parent directory.
func atomicWrite(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".ploke-write-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return err
	}
	parent, err := os.Open(dir)
	if err != nil {
		return nil // best-effort: rename already landed
	}
	defer parent.Close()
	_ = parent.Sync()
	return nil
}

// Result pairs a value with an error for one batch entry, preserving
// input order.
type Result[T any] struct {
	Value T
	Err   error
}

// dispatch fans items out across a worker pool (capped at workers) and
// collects results in input order.
func dispatch[In, Out any](ctx context.Context, items []In, workers int, fn func(In) (Out, error)) []Result[Out] {
	results := make([]Result[Out], len(items))
	if len(items) == 0 {
		return results
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan int, len(items))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					results[i] = Result[Out]{Err: ctx.Err()}
					continue
				default:
				}
				v, err := fn(items[i])
				results[i] = Result[Out]{Value: v, Err: err}
			}
		}()
	}
	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}
