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

package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ploke/pkg/ioengine"
	"github.com/kraklabs/ploke/pkg/rustgraph"
)

func TestBM25RanksExactTermMatchHigher(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	idx := BuildLexicalIndex([]LexicalDoc{
		{NodeID: a, Text: "fn parse_tokens(input: &str) -> Vec<Token>"},
		{NodeID: b, Text: "fn render_widget(ctx: &Context)"},
	})
	hits := idx.Search("parse tokens", 10)
	require.NotEmpty(t, hits)
	assert.Equal(t, a, hits[0].NodeID)
}

func TestFuseCombinesAndBreaksTiesDeterministically(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	dense := []Hit{{NodeID: a, Score: 0.9}, {NodeID: b, Score: 0.1}}
	lexical := []Hit{{NodeID: b, Score: 5}, {NodeID: a, Score: 1}}
	fused := Fuse(dense, lexical, DefaultFusionWeights)
	require.Len(t, fused, 2)
	// a and b each rank first in one list and second in the other, so their
	// fused scores tie and NodeID ascending decides the order.
	assert.Equal(t, fused[0].Score, fused[1].Score)
	first, second := a, b
	if b.String() < a.String() {
		first, second = b, a
	}
	assert.Equal(t, []uuid.UUID{first, second}, []uuid.UUID{fused[0].NodeID, fused[1].NodeID})
}

func TestTokenBudgetTopKHeuristic(t *testing.T) {
	assert.Equal(t, 5, TokenBudget{Total: 100}.TopK())
	assert.Equal(t, 20, TokenBudget{Total: 100000}.TopK())
	assert.Equal(t, 10, TokenBudget{Total: 2000}.TopK())
}

type fixedClassifier struct {
	entries map[uuid.UUID]struct {
		path string
		hash ioengine.TrackingHash
		rng  ByteRange
		kind PartKind
	}
}

func (c *fixedClassifier) Classify(id uuid.UUID) (string, ioengine.TrackingHash, ByteRange, PartKind, bool) {
	e, ok := c.entries[id]
	if !ok {
		return "", "", ByteRange{}, "", false
	}
	return e.path, e.hash, e.rng, e.kind, true
}

func TestAssembleDeduplicatesOverlappingRanges(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.rs")
	require.NoError(t, os.WriteFile(p, []byte("fn main() { println!(\"hi\"); }"), 0644))
	data, _ := os.ReadFile(p)
	hash := ioengine.HashContent(data)

	id1, id2 := uuid.New(), uuid.New()
	classifier := &fixedClassifier{entries: map[uuid.UUID]struct {
		path string
		hash ioengine.TrackingHash
		rng  ByteRange
		kind PartKind
	}{
		id1: {path: p, hash: hash, rng: ByteRange{0, 10}, kind: PartCode},
		id2: {path: p, hash: hash, rng: ByteRange{5, 15}, kind: PartCode}, // overlaps id1
	}}

	io := ioengine.New(ioengine.Config{Roots: []string{dir}})
	result, err := Assemble(context.Background(), []Hit{{NodeID: id1, Score: 1}, {NodeID: id2, Score: 0.5}},
		TokenBudget{Total: 1000, PerPart: 500}, classifier, io)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Parts)
	assert.Equal(t, 1, result.Stats.DedupRemoved)
}

func TestToolsTracePathFindsShortestRoute(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	relations := []rustgraph.Relation{
		{Source: a, Target: b, Kind: rustgraph.RelUses},
		{Source: b, Target: c, Kind: rustgraph.RelUses},
	}
	tools := NewTools(relations, nil, nil, nil)
	path := tools.TracePath(a, c, 5)
	assert.Equal(t, []uuid.UUID{a, b, c}, path)
}

func TestToolsFindCallersCallees(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	relations := []rustgraph.Relation{{Source: a, Target: b, Kind: rustgraph.RelUses}}
	tools := NewTools(relations, nil, nil, nil)
	assert.Equal(t, []uuid.UUID{b}, tools.FindCallees(a))
	assert.Equal(t, []uuid.UUID{a}, tools.FindCallers(b))
}
