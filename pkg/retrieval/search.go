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
	"fmt"

	"github.com/google/uuid"

	"github.com/kraklabs/ploke/pkg/graphstore"
	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// Embedder embeds a single query string; satisfied by embedrt.Runtime's
// GenerateEmbeddings for a 1-element slice.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, snippets []string) ([][]float32, error)
}

// DenseSearcher runs an HNSW nearest-neighbor query; satisfied by
// graphstore.Store.VectorSearch.
type DenseSearcher interface {
	VectorSearch(ctx context.Context, set rustgraph.EmbeddingSet, kind string, query []float32, k int) ([]graphstore.VectorHit, error)
}

// Engine is the hybrid retrieval entry point: embed the query, run the
// dense and lexical paths, fuse, and (optionally) assemble into a budgeted
// context.
type Engine struct {
	embedder Embedder
	dense    DenseSearcher
	lexical  *LexicalIndex
	weights  FusionWeights
}

// NewEngine builds an Engine. lexical may be nil until RebuildLexicalIndex
// is called; queries against a nil index simply skip the lexical path.
func NewEngine(embedder Embedder, dense DenseSearcher, weights FusionWeights) *Engine {
	if weights == (FusionWeights{}) {
		weights = DefaultFusionWeights
	}
	return &Engine{embedder: embedder, dense: dense, weights: weights}
}

// RebuildLexicalIndex replaces the BM25 index. Rebuild is explicit: the
// caller decides when node text has changed enough to warrant it.
func (e *Engine) RebuildLexicalIndex(docs []LexicalDoc) {
	e.lexical = BuildLexicalIndex(docs)
}

// Search runs the hybrid dense+lexical query and returns the fused,
// ranked hit list, truncated to budget's top-k heuristic.
func (e *Engine) Search(ctx context.Context, query string, set rustgraph.EmbeddingSet, kindFilter string, budget TokenBudget) ([]Hit, error) {
	k := budget.TopK()

	vectors, err := e.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query vector, got %d", len(vectors))
	}

	denseHits, err := e.denseSearch(ctx, vectors[0], set, kindFilter, k)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}

	var lexicalHits []Hit
	if e.lexical != nil {
		lexicalHits = e.lexical.Search(query, k)
	}

	fused := Fuse(denseHits, lexicalHits, e.weights)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

func (e *Engine) denseSearch(ctx context.Context, query []float32, set rustgraph.EmbeddingSet, kindFilter string, k int) ([]Hit, error) {
	raw, err := e.dense.VectorSearch(ctx, set, kindFilter, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(raw))
	for _, r := range raw {
		id, perr := uuid.Parse(r.NodeID)
		if perr != nil {
			continue
		}
		// HNSW reports distance (lower is closer); invert so higher score
		// wins, matching Hit/Fuse's best-first convention.
		hits = append(hits, Hit{NodeID: id, Score: -r.Distance})
	}
	sortHits(hits)
	return hits, nil
}
