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
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kraklabs/ploke/pkg/ioengine"
	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// ErrCancelled is returned by the batch algorithm when its context is
// cancelled between items.
var ErrCancelled = errors.New("embedding batch cancelled")

// Store is the subset of graphstore.Store the runtime needs to keep the
// database schema consistent across an Activate swap.
type Store interface {
	RegisterEmbeddingSet(ctx context.Context, set rustgraph.EmbeddingSet) error
	EnsureVectorRelation(ctx context.Context, set rustgraph.EmbeddingSet) error
	SetActiveEmbeddingSet(ctx context.Context, set rustgraph.EmbeddingSet) error
}

// EmbeddingNode is one unit of the bulk indexer's work queue: a node that
// needs its content embedded.
type EmbeddingNode struct {
	ID          uuid.UUID
	Path        string
	ContentHash ioengine.TrackingHash
	Start       int
	End         int
}

// Progress reports batch processing progress to a caller-supplied callback.
type Progress struct {
	Processed int
	Total     int
}

// Runtime is the single source of truth for the active (EmbeddingSet,
// Embedder) pair. Readers take a read lock; Activate swaps both fields
// under write locks, active_set first, then embedder, so no reader ever
// observes a set/embedder pair that didn't co-occur.
type Runtime struct {
	mu        sync.RWMutex
	activeSet rustgraph.EmbeddingSet
	embedder  Embedder

	io     *ioengine.Manager
	logger *slog.Logger
}

// New creates a Runtime with an initial (set, embedder) pair already
// active — callers must still register it with a Store via Activate
// before first use so the schema exists.
func New(initial Embedder, io *ioengine.Manager, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	set := rustgraph.EmbeddingSet{
		ProviderSlug: initial.ProviderSlug(),
		ModelID:      initial.ModelID(),
		Shape: rustgraph.EmbeddingShape{
			Dimension: initial.Dimensions(),
			DType:     rustgraph.DTypeF32,
			Encoding:  rustgraph.EncodingRawVector,
		},
	}
	return &Runtime{activeSet: set, embedder: initial, io: io, logger: logger}
}

// CurrentActiveSet returns a copy of the currently active EmbeddingSet.
func (r *Runtime) CurrentActiveSet() rustgraph.EmbeddingSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeSet
}

// currentEmbedder returns the currently active embedder under a read lock.
func (r *Runtime) currentEmbedder() Embedder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embedder
}

// Activate swaps in newSet/newEmbedder, first ensuring the store's schema
// (set-registry row, vector relation, persisted active flag) is
// consistent, then swapping active_set and embedder in that order under
// write locks so readers never observe a mismatched pair.
func (r *Runtime) Activate(ctx context.Context, store Store, newSet rustgraph.EmbeddingSet, newEmbedder Embedder) error {
	if err := store.RegisterEmbeddingSet(ctx, newSet); err != nil {
		return fmt.Errorf("register embedding set: %w", err)
	}
	if err := store.EnsureVectorRelation(ctx, newSet); err != nil {
		return fmt.Errorf("ensure vector relation: %w", err)
	}
	if err := store.SetActiveEmbeddingSet(ctx, newSet); err != nil {
		return fmt.Errorf("persist active set: %w", err)
	}

	r.mu.Lock()
	r.activeSet = newSet
	r.embedder = newEmbedder
	r.mu.Unlock()
	return nil
}

// GenerateEmbeddings embeds snippets with the active embedder, validating
// that every returned vector matches the active set's declared dimension.
func (r *Runtime) GenerateEmbeddings(ctx context.Context, snippets []string) ([][]float32, error) {
	return r.GenerateEmbeddingsWithCancel(ctx, snippets, nil)
}

// GenerateEmbeddingsWithCancel is GenerateEmbeddings with cooperative
// cancellation checked before dispatch.
func (r *Runtime) GenerateEmbeddingsWithCancel(ctx context.Context, snippets []string, cancel <-chan struct{}) ([][]float32, error) {
	if cancel != nil {
		select {
		case <-cancel:
			return nil, ErrCancelled
		default:
		}
	}

	set := r.CurrentActiveSet()
	embedder := r.currentEmbedder()

	vectors, err := embedder.Embed(ctx, snippets)
	if err != nil {
		return nil, err
	}
	for _, v := range vectors {
		if len(v) != set.Shape.Dimension {
			return nil, &DimensionMismatchError{Expected: set.Shape.Dimension, Actual: len(v)}
		}
	}
	return vectors, nil
}

// Upserter persists a computed embedding for a node; ploke-go's graphstore
// implements this per primary kind's vector relation.
type Upserter interface {
	UpsertEmbedding(ctx context.Context, set rustgraph.EmbeddingSet, nodeID uuid.UUID, vector []float32) error
}

// RunBatch drives the bulk indexer's batch processing algorithm: fetch
// hash-validated snippets via the I/O kernel, embed them, upsert results,
// and report progress. Nodes whose on-disk content no longer matches
// ContentHash are skipped with a logged warning rather than aborting the
// batch; a batch-wide dimension mismatch aborts immediately.
func (r *Runtime) RunBatch(ctx context.Context, nodes []EmbeddingNode, upsert Upserter, onProgress func(Progress)) error {
	set := r.CurrentActiveSet()

	reqs := make([]ioengine.SnippetRequest, len(nodes))
	for i, n := range nodes {
		reqs[i] = ioengine.SnippetRequest{Path: n.Path, ExpectedHash: n.ContentHash, Start: n.Start, End: n.End}
	}
	fetched := r.io.GetSnippetsBatch(ctx, reqs)

	var liveNodes []EmbeddingNode
	var liveSnippets []string
	for i, res := range fetched {
		if res.Err != nil {
			r.logger.Warn("embedrt.snippet_skipped", "node_id", nodes[i].ID, "path", nodes[i].Path, "err", res.Err)
			continue
		}
		liveNodes = append(liveNodes, nodes[i])
		liveSnippets = append(liveSnippets, res.Value)
	}

	const batchSize = 32
	processed := 0
	total := len(liveNodes)
	for start := 0; start < len(liveNodes); start += batchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := start + batchSize
		if end > len(liveNodes) {
			end = len(liveNodes)
		}

		vectors, err := r.GenerateEmbeddings(ctx, liveSnippets[start:end])
		if err != nil {
			var dimErr *DimensionMismatchError
			if errors.As(err, &dimErr) {
				return fmt.Errorf("abort batch: %w", err)
			}
			return err
		}

		for i, v := range vectors {
			node := liveNodes[start+i]
			if err := upsert.UpsertEmbedding(ctx, set, node.ID, v); err != nil {
				return fmt.Errorf("upsert embedding for %s: %w", node.ID, err)
			}
			processed++
			if onProgress != nil {
				onProgress(Progress{Processed: processed, Total: total})
			}
		}
	}
	return nil
}
