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
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kraklabs/ploke/pkg/rustgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteStringEscapesBackslashAndQuote(t *testing.T) {
	got := quoteString(`it's a \test`)
	assert.Equal(t, `'it\'s a \\test'`, got)
}

func TestQuoteStringDropsNullBytes(t *testing.T) {
	got := quoteString("a\x00b")
	assert.Equal(t, "'ab'", got)
}

func TestFormatFloatArrayEmpty(t *testing.T) {
	assert.Equal(t, "[]", formatFloatArray(nil))
}

func TestFormatFloatArrayNaNFallsBackToZero(t *testing.T) {
	got := formatFloatArray([]float32{1.5, float32(nanValue())})
	assert.True(t, strings.HasPrefix(got, "[1.5, 0"))
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func TestBuilderPutNodesUnknownKind(t *testing.T) {
	b := NewBuilder()
	err := b.PutNodes(NodeKind("bogus"), nil, nil)
	require.Error(t, err)
}

func TestBuilderPutNodesEmitsRelationAndCodeStatements(t *testing.T) {
	b := NewBuilder()
	id := uuid.New()
	rec := NodeRecord{
		ID:       id,
		Meta:     []string{"do_thing", "0", "10", "pub", "", uuid.Nil.String(), "src/lib.rs", "crate", "false", "false", ""},
		CodeText: "fn do_thing() {}",
	}
	err := b.PutNodes(KindFunction, []NodeRecord{rec}, nil)
	require.NoError(t, err)

	script := b.Script()
	assert.Contains(t, script, "ploke_function")
	assert.Contains(t, script, "ploke_function_code")
	assert.Contains(t, script, id.String())
	assert.NotContains(t, script, "embedding_dims")
}

func TestBuilderPutNodesIncludesVectorRowWhenEmbeddingSetGiven(t *testing.T) {
	b := NewBuilder()
	id := uuid.New()
	rec := NodeRecord{
		ID:        id,
		Meta:      make([]string, 11),
		CodeText:  "fn x() {}",
		Embedding: []float32{0.1, 0.2},
	}
	set := &rustgraph.EmbeddingSet{
		ProviderSlug: "local",
		ModelID:      "all-MiniLM-L6-v2",
		Shape:        rustgraph.EmbeddingShape{Dimension: 384, DType: rustgraph.DTypeF32, Encoding: rustgraph.EncodingRawVector},
	}
	err := b.PutNodes(KindFunction, []NodeRecord{rec}, set)
	require.NoError(t, err)

	script := b.Script()
	assert.Contains(t, script, "function_embedding_vectors_384")
	assert.Contains(t, script, "embedding_dims")
}

func TestBuilderPutRelationAndDeleteRelationsFor(t *testing.T) {
	b := NewBuilder()
	src, dst := uuid.New(), uuid.New()
	b.PutRelation(rustgraph.Relation{Source: src, Target: dst, Kind: rustgraph.RelContains})
	b.DeleteRelationsFor(src)

	script := b.Script()
	assert.Contains(t, script, "ploke_relation")
	assert.Contains(t, script, src.String())
	assert.Contains(t, script, dst.String())
}

func TestDimensionSpecForKnownDimensionExactMatch(t *testing.T) {
	spec, ok := DimensionSpecFor(1536)
	require.True(t, ok)
	assert.Equal(t, 32, spec.M)
	assert.Equal(t, 300, spec.EfConstruction)
}

func TestDimensionSpecForUnknownDimensionFallsBackTo768(t *testing.T) {
	spec, ok := DimensionSpecFor(2048)
	assert.False(t, ok)
	assert.Equal(t, 768, spec.Dimension)
}

func TestSpecForKindCoversAllPrimaryKinds(t *testing.T) {
	for _, k := range AllPrimaryKinds {
		spec, ok := SpecForKind(k)
		require.True(t, ok, "missing spec for %s", k)
		assert.NotEmpty(t, spec.Relation)
		assert.NotEmpty(t, spec.CodeRelation)
		assert.NotEmpty(t, spec.VectorRelationBase)
	}
}
