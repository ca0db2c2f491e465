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

package embedrt

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ploke/pkg/ioengine"
	"github.com/kraklabs/ploke/pkg/rustgraph"
)

type fakeStore struct {
	registered []rustgraph.EmbeddingSet
	active     rustgraph.EmbeddingSet
}

func (f *fakeStore) RegisterEmbeddingSet(ctx context.Context, set rustgraph.EmbeddingSet) error {
	f.registered = append(f.registered, set)
	return nil
}
func (f *fakeStore) EnsureVectorRelation(ctx context.Context, set rustgraph.EmbeddingSet) error {
	return nil
}
func (f *fakeStore) SetActiveEmbeddingSet(ctx context.Context, set rustgraph.EmbeddingSet) error {
	f.active = set
	return nil
}

type fakeUpserter struct {
	mu   sync.Mutex
	seen map[uuid.UUID][]float32
}

func (f *fakeUpserter) UpsertEmbedding(ctx context.Context, set rustgraph.EmbeddingSet, nodeID uuid.UUID, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[uuid.UUID][]float32)
	}
	f.seen[nodeID] = vector
	return nil
}

func TestGenerateEmbeddingsDimensionMatch(t *testing.T) {
	rt := New(NewMockEmbedder(384), ioengine.New(ioengine.Config{}), nil)
	vectors, err := rt.GenerateEmbeddings(context.Background(), []string{"fn main() {}"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Len(t, vectors[0], 384)
}

func TestActivateSwapsSetAndEmbedder(t *testing.T) {
	rt := New(NewMockEmbedder(384), ioengine.New(ioengine.Config{}), nil)
	store := &fakeStore{}

	newSet := rustgraph.EmbeddingSet{
		ProviderSlug: "openai",
		ModelID:      "text-embedding-3-small",
		Shape:        rustgraph.EmbeddingShape{Dimension: 1536, DType: rustgraph.DTypeF32, Encoding: rustgraph.EncodingRawVector},
	}
	newEmbedder := NewMockEmbedder(1536)

	require.NoError(t, rt.Activate(context.Background(), store, newSet, newEmbedder))
	assert.Equal(t, newSet, rt.CurrentActiveSet())
	assert.Equal(t, newSet, store.active)
	require.Len(t, store.registered, 1)
}

func TestRunBatchSkipsStaleSnippetButContinues(t *testing.T) {
	dir := t.TempDir()
	goodPath := filepath.Join(dir, "good.rs")
	staleePath := filepath.Join(dir, "stale.rs")
	require.NoError(t, os.WriteFile(goodPath, []byte("fn good() {}"), 0644))
	require.NoError(t, os.WriteFile(staleePath, []byte("fn stale() {}"), 0644))

	goodData, _ := os.ReadFile(goodPath)
	goodHash := ioengine.HashContent(goodData)

	io := ioengine.New(ioengine.Config{Roots: []string{dir}})
	rt := New(NewMockEmbedder(384), io, nil)

	nodes := []EmbeddingNode{
		{ID: uuid.New(), Path: goodPath, ContentHash: goodHash, Start: 0, End: 4},
		{ID: uuid.New(), Path: staleePath, ContentHash: ioengine.TrackingHash("wrong-hash"), Start: 0, End: 4},
	}

	up := &fakeUpserter{}
	var progresses []Progress
	err := rt.RunBatch(context.Background(), nodes, up, func(p Progress) { progresses = append(progresses, p) })
	require.NoError(t, err)

	assert.Len(t, up.seen, 1, "only the hash-valid node should be embedded")
	assert.Contains(t, up.seen, nodes[0].ID)
	assert.NotContains(t, up.seen, nodes[1].ID)
	require.NotEmpty(t, progresses)
	assert.Equal(t, 1, progresses[len(progresses)-1].Total)
}
