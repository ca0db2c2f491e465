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

package rustgraph

import (
	"fmt"

	"github.com/google/uuid"
)

// EmbeddingDType is the element type of an embedding vector.
type EmbeddingDType string

const (
	DTypeF32 EmbeddingDType = "F32"
	DTypeF64 EmbeddingDType = "F64"
)

// EmbeddingEncoding is the wire encoding used when an embedding vector is
// fetched out of the store.
type EmbeddingEncoding string

const (
	EncodingRawVector EmbeddingEncoding = "RawVector"
	EncodingBytes     EmbeddingEncoding = "Bytes"
	EncodingBase64    EmbeddingEncoding = "Base64"
)

// EmbeddingShape describes the vector geometry of an EmbeddingSet.
type EmbeddingShape struct {
	Dimension int
	DType     EmbeddingDType
	Encoding  EmbeddingEncoding
}

// EmbeddingSet identifies the currently active (or a previously active)
// vector space.
type EmbeddingSet struct {
	ProviderSlug string
	ModelID      string
	Shape        EmbeddingShape
}

// VectorRelationName returns the name of the per-kind vector relation for
// this set, e.g. "function_embedding_vectors_768".
func (s EmbeddingSet) VectorRelationName(relationBase string) string {
	return fmt.Sprintf("%s_embedding_vectors_%d", relationBase, s.Shape.Dimension)
}

// Key returns a stable string uniquely identifying this set, used as a map
// key by the embedding runtime and the graph store's set registry.
func (s EmbeddingSet) Key() string {
	return fmt.Sprintf("%s/%s/%d/%s", s.ProviderSlug, s.ModelID, s.Shape.Dimension, s.Shape.DType)
}

// EmbeddingVector is a single stored row keyed by (node_id, model,
// provider) at a point in logical time.
type EmbeddingVector struct {
	NodeID    uuid.UUID
	Model     string
	Provider  string
	Dims      int
	Vector    []float32
}
