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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestGetSnippetsBatchHappyPath(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "a.rs", "fn main() {}")
	m := New(Config{Roots: []string{dir}})

	data, _ := os.ReadFile(p)
	hash := HashContent(data)

	results := m.GetSnippetsBatch(context.Background(), []SnippetRequest{
		{Path: p, ExpectedHash: hash, Start: 0, End: 8},
	})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "fn main(", results[0].Value)
}

func TestGetSnippetsBatchContentMismatch(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "a.rs", "fn main() {}")
	m := New(Config{Roots: []string{dir}})

	results := m.GetSnippetsBatch(context.Background(), []SnippetRequest{
		{Path: p, ExpectedHash: TrackingHash("deadbeef"), Start: 0, End: 8},
	})
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	var mismatch *ContentMismatchError
	require.ErrorAs(t, results[0].Err, &mismatch)
}

func TestGetSnippetsBatchOutOfRange(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "a.rs", "fn main() {}")
	m := New(Config{Roots: []string{dir}})

	results := m.GetSnippetsBatch(context.Background(), []SnippetRequest{
		{Path: p, Start: 0, End: 999},
	})
	require.Len(t, results, 1)
	var oor *OutOfRangeError
	require.ErrorAs(t, results[0].Err, &oor)
}

func TestWriteSnippetsBatchSplicesAndPersists(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "a.rs", "fn main() {}")
	m := New(Config{Roots: []string{dir}})

	data, _ := os.ReadFile(p)
	hash := HashContent(data)

	results := m.WriteSnippetsBatch(context.Background(), []WriteSnippetData{
		{Path: p, ExpectedHash: hash, Start: 3, End: 7, Replacement: "run"},
	})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	after, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "fn run() {}", string(after))
	assert.Equal(t, HashContent(after), results[0].Value.NewHash)
}

func TestWriteSnippetsBatchRejectsPathOutsideRoots(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	p := writeTempFile(t, outside, "a.rs", "fn main() {}")
	m := New(Config{Roots: []string{dir}})

	results := m.WriteSnippetsBatch(context.Background(), []WriteSnippetData{
		{Path: p, Start: 0, End: 1, Replacement: "x"},
	})
	require.Len(t, results, 1)
	var outsideErr *PathOutsideRootsError
	require.ErrorAs(t, results[0].Err, &outsideErr)
}

func TestScanChangesBatchDetectsChange(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "a.rs", "fn main() {}")
	m := New(Config{Roots: []string{dir}})

	data, _ := os.ReadFile(p)
	oldHash := HashContent(data)
	require.NoError(t, os.WriteFile(p, []byte("fn main() { 1 }"), 0644))

	changed, err := m.ScanChangesBatch(context.Background(), []FileData{{Path: p, LastHash: oldHash}})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, oldHash, changed[0].OldHash)
	assert.NotEqual(t, oldHash, changed[0].NewHash)
}
