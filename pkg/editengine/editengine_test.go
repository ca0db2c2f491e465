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

package editengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ploke/pkg/ioengine"
)

func newTestFile(t *testing.T, dir, name, content string) (string, ioengine.TrackingHash) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	data, _ := os.ReadFile(p)
	return p, ioengine.HashContent(data)
}

func TestApproveAppliesSpliceEdit(t *testing.T) {
	dir := t.TempDir()
	p, hash := newTestFile(t, dir, "a.rs", "fn main() {}")
	io := ioengine.New(ioengine.Config{Roots: []string{dir}})
	e := New(io, nil)

	proposal := e.Create([]Edit{{Kind: KindSplice, File: p, ExpectedHash: hash, Start: 3, End: 7, Replacement: "run"}}, "preview")
	require.NoError(t, e.Approve(context.Background(), proposal.RequestID))

	got, _ := e.Get(proposal.RequestID)
	assert.Equal(t, StatusApplied, got.Status)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "fn run() {}", string(data))
}

func TestDenyTransitionsToDenied(t *testing.T) {
	e := New(ioengine.New(ioengine.Config{}), nil)
	p := e.Create([]Edit{{Kind: KindSplice, File: "x.rs"}}, "preview")
	require.NoError(t, e.Deny(p.RequestID, "not needed"))
	got, _ := e.Get(p.RequestID)
	assert.Equal(t, StatusDenied, got.Status)
	assert.Equal(t, "not needed", got.Reason)
}

func TestApproveAllNewestWinsAndStalesOlderOverlap(t *testing.T) {
	dir := t.TempDir()
	p, hash := newTestFile(t, dir, "a.rs", "fn main() {}")
	io := ioengine.New(ioengine.Config{Roots: []string{dir}})
	e := New(io, nil)

	older := e.Create([]Edit{{Kind: KindSplice, File: p, ExpectedHash: hash, Start: 3, End: 7, Replacement: "old"}}, "old preview")
	time.Sleep(2 * time.Millisecond)
	newer := e.Create([]Edit{{Kind: KindSplice, File: p, ExpectedHash: hash, Start: 3, End: 7, Replacement: "new"}}, "new preview")

	applied, err := e.ApproveAll(context.Background())
	require.NoError(t, err)
	assert.Contains(t, applied, newer.RequestID)
	assert.NotContains(t, applied, older.RequestID)

	oldGot, _ := e.Get(older.RequestID)
	assert.Equal(t, StatusStale, oldGot.Status)
	newGot, _ := e.Get(newer.RequestID)
	assert.Equal(t, StatusApplied, newGot.Status)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "fn new() {}", string(data))
}

func TestApproveRejectsContentMismatchWithoutPartialWrite(t *testing.T) {
	dir := t.TempDir()
	p, _ := newTestFile(t, dir, "a.rs", "fn main() {}")
	io := ioengine.New(ioengine.Config{Roots: []string{dir}})
	e := New(io, nil)

	proposal := e.Create([]Edit{{Kind: KindSplice, File: p, ExpectedHash: "stale-hash", Start: 3, End: 7, Replacement: "run"}}, "preview")
	err := e.Approve(context.Background(), proposal.RequestID)
	require.Error(t, err)

	got, _ := e.Get(proposal.RequestID)
	assert.Equal(t, StatusPending, got.Status, "a failed apply must not transition the proposal")

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}", string(data))
}
