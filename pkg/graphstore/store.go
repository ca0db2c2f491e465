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

package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cozo "github.com/kraklabs/ploke/pkg/cozodb"
	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// Store wraps an embedded CozoDB instance with the ploke schema: one
// relation per primary/secondary node kind, one relation edges table, and
// one vector relation + HNSW index per active EmbeddingSet. Adapted from
// the teacher's EmbeddedBackend (pkg/storage/embedded.go), generalized
// from a two-kind (function/type) schema to all twelve primary kinds.
type Store struct {
	db     *cozo.CozoDB
	mu     sync.RWMutex
	closed bool
}

// Config configures the embedded store.
type Config struct {
	// DataDir is the directory CozoDB stores its data in.
	DataDir string
	// Engine is the CozoDB storage engine: "rocksdb", "sqlite", or "mem".
	Engine string
	// ProjectID namespaces DataDir when no explicit DataDir is given.
	ProjectID string
}

// Open creates (or opens) the embedded store.
func Open(cfg Config) (*Store, error) {
	if cfg.Engine == "" {
		cfg.Engine = "rocksdb"
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".ploke", "data")
		if cfg.ProjectID != "" {
			cfg.DataDir = filepath.Join(cfg.DataDir, cfg.ProjectID)
		}
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := cozo.New(cfg.Engine, cfg.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open cozodb: %w", err)
	}

	return &Store{db: &db}, nil
}

// Query executes a read-only Datalog query.
func (s *Store) Query(ctx context.Context, script string, params map[string]any) (cozo.NamedRows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cozo.NamedRows{}, fmt.Errorf("store is closed")
	}
	select {
	case <-ctx.Done():
		return cozo.NamedRows{}, ctx.Err()
	default:
	}
	return s.db.RunReadOnly(script, params)
}

// Execute runs a Datalog mutation.
func (s *Store) Execute(ctx context.Context, script string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	_, err := s.db.Run(script, params)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.db.Close()
	return nil
}

// EnsureSchema creates every primary/secondary relation, the relation-edge
// table, and the embedding-set registry, idempotently. Mirrors the
// teacher's EnsureSchema, generalized across PrimaryKindSpecs/
// AllSecondaryKinds instead of a hardcoded function/type pair.
func (s *Store) EnsureSchema(ctx context.Context) error {
	var scripts []string

	for _, spec := range PrimaryKindSpecs {
		cols := make([]string, 0, len(spec.MetaColumns))
		for _, c := range spec.MetaColumns {
			cols = append(cols, c+": String default ''")
		}
		scripts = append(scripts,
			fmt.Sprintf(`:create %s { id: String => %s }`, spec.Relation, strings.Join(cols, ", ")),
			fmt.Sprintf(`:create %s { id: String => code_text: String }`, spec.CodeRelation),
		)
	}

	scripts = append(scripts,
		`:create ploke_relation { source: String, target: String, kind: String => }`,
		`:create ploke_embedding_set { key: String => provider_slug: String, model_id: String, dimension: Int, dtype: String, encoding: String, is_active: Bool default false }`,
		`:create ploke_project_meta { key: String => value: String }`,
		`:create ploke_edit_proposal { request_id: String => parent_id: String, call_id: String, proposed_at_ms: Int, status: String, status_reason: String default '', files: String, preview: String }`,
	)

	for _, sec := range AllSecondaryKinds {
		scripts = append(scripts,
			fmt.Sprintf(`:create ploke_%s { id: String => owner_id: String, data: String }`, sec))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, script := range scripts {
		if _, err := s.db.Run(script, nil); err != nil {
			errStr := err.Error()
			if strings.Contains(errStr, "already exists") || strings.Contains(errStr, "conflicts with an existing one") {
				continue
			}
			return fmt.Errorf("create relation failed (%s): %w", script, err)
		}
	}
	return nil
}

// EnsureVectorRelation creates the vector relation and HNSW index for set,
// across every primary kind's vector-relation-base, following the
// original's per-kind vector relation fan-out (node_specs.rs). A relation
// that already exists is left as it is. A failed HNSW create, whether the
// index already exists or the create failed for another reason, is
// skipped without a warning; no replace is attempted. A dimension outside
// the spec table logs a warning and uses the 768-dim row's parameters.
func (s *Store) EnsureVectorRelation(ctx context.Context, set rustgraph.EmbeddingSet) error {
	dim := set.Shape.Dimension
	dimSpec, ok := DimensionSpecFor(dim)
	if !ok {
		slog.Warn("graphstore.vector_relation.dimension_fallback",
			"dimension", dim, "fallback_dimension", dimSpec.Dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, spec := range PrimaryKindSpecs {
		relName := set.VectorRelationName(spec.VectorRelationBase)
		createScript := fmt.Sprintf(
			`:create %s { node_id: String, embedding_model: String, provider: String => embedding_dims: Int, vector: <F32; %d> }`,
			relName, dim)
		if _, err := s.db.Run(createScript, nil); err != nil {
			errStr := err.Error()
			if !strings.Contains(errStr, "already exists") && !strings.Contains(errStr, "conflicts with an existing one") {
				return fmt.Errorf("create vector relation %s: %w", relName, err)
			}
		}

		hnswScript := fmt.Sprintf(
			`::hnsw create %s:embedding_idx { dim: %d, m: %d, ef_construction: %d, distance: Cosine, fields: [vector] }`,
			relName, dim, dimSpec.M, dimSpec.EfConstruction)
		if _, err := s.db.Run(hnswScript, nil); err != nil {
			// idempotent: ignore "already exists"; a genuine failure is
			// surfaced on the next query against the index instead of
			// aborting schema setup, matching the teacher's best-effort
			// CreateHNSWIndex.
			continue
		}
	}

	return nil
}

// RegisterEmbeddingSet ensures a ploke_embedding_set row exists for set.
func (s *Store) RegisterEmbeddingSet(ctx context.Context, set rustgraph.EmbeddingSet) error {
	query := `?[key, provider_slug, model_id, dimension, dtype, encoding] <- [[$key, $provider, $model, $dim, $dtype, $encoding]]
		:put ploke_embedding_set { key => provider_slug, model_id, dimension, dtype, encoding }`
	params := map[string]any{
		"key":      set.Key(),
		"provider": set.ProviderSlug,
		"model":    set.ModelID,
		"dim":      set.Shape.Dimension,
		"dtype":    string(set.Shape.DType),
		"encoding": string(set.Shape.Encoding),
	}
	return s.Execute(ctx, query, params)
}

// SetActiveEmbeddingSet marks set as the sole active row.
func (s *Store) SetActiveEmbeddingSet(ctx context.Context, set rustgraph.EmbeddingSet) error {
	s.mu.Lock()
	_, err := s.db.Run(`?[key, is_active] := *ploke_embedding_set{key}, is_active = false :put ploke_embedding_set { key => is_active }`, nil)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clear active flags: %w", err)
	}
	query := `?[key, is_active] <- [[$key, true]] :put ploke_embedding_set { key => is_active }`
	return s.Execute(ctx, query, map[string]any{"key": set.Key()})
}

// GetProjectMeta retrieves a metadata value by key; empty string if absent.
func (s *Store) GetProjectMeta(ctx context.Context, key string) (string, error) {
	result, err := s.Query(ctx, `?[value] := *ploke_project_meta{key, value}, key = $key`, map[string]any{"key": key})
	if err != nil {
		return "", err
	}
	if len(result.Rows) == 0 {
		return "", nil
	}
	if val, ok := result.Rows[0][0].(string); ok {
		return val, nil
	}
	return "", nil
}

// SetProjectMeta stores a metadata value by key.
func (s *Store) SetProjectMeta(ctx context.Context, key, value string) error {
	return s.Execute(ctx, `?[key, value] <- [[$key, $value]] :put ploke_project_meta { key, value }`,
		map[string]any{"key": key, "value": value})
}

// DB exposes the underlying CozoDB instance for advanced operations
// (backup/restore/import/export). Use with caution.
func (s *Store) DB() *cozo.CozoDB {
	return s.db
}

// VectorHit is one ANN search result from VectorSearch.
type VectorHit struct {
	NodeID   string
	Distance float64
}

// VectorSearch runs an HNSW nearest-neighbor query against kind's vector
// relation for the given set, returning the k closest node IDs ascending
// by distance. kind is a NodeKind's VectorRelationBase, e.g. "function";
// pass "" to search across every primary kind's vector relation and merge
// (used by the retrieval layer's unfiltered dense path).
func (s *Store) VectorSearch(ctx context.Context, set rustgraph.EmbeddingSet, kind string, query []float32, k int) ([]VectorHit, error) {
	bases := []string{kind}
	if kind == "" {
		bases = make([]string, 0, len(PrimaryKindSpecs))
		for _, spec := range PrimaryKindSpecs {
			bases = append(bases, spec.VectorRelationBase)
		}
	}

	var hits []VectorHit
	for _, base := range bases {
		relName := set.VectorRelationName(base)
		script := fmt.Sprintf(
			`?[node_id, dist] := ~%s:embedding_idx{node_id | query: $q, k: %d, ef: %d, bind_distance: dist}`,
			relName, k, 64)
		rows, err := s.Query(ctx, script, map[string]any{"q": query})
		if err != nil {
			// A kind with no indexed vectors yet is not fatal to a
			// cross-kind search; surface the error only in single-kind mode.
			if kind != "" {
				return nil, fmt.Errorf("vector search %s: %w", relName, err)
			}
			continue
		}
		for _, row := range rows.Rows {
			if len(row) < 2 {
				continue
			}
			id, _ := row[0].(string)
			dist, _ := row[1].(float64)
			hits = append(hits, VectorHit{NodeID: id, Distance: dist})
		}
	}

	sortVectorHits(hits)
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func sortVectorHits(hits []VectorHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Distance < hits[j-1].Distance; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}
