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
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// NodeRecord is a kind-agnostic row destined for a PrimaryKindSpec's
// relation/code-relation/vector-relation trio. Meta holds one string per
// MetaColumns entry of the matching PrimaryKindSpec, in order; missing
// trailing columns default to "". This supersedes the teacher's one
// hardcoded BuildMutations-per-kind method with a single generic builder
// keyed off the PrimaryKindSpecs table (§9 macro-schema replacement).
type NodeRecord struct {
	ID        uuid.UUID
	Meta      []string
	CodeText  string
	Embedding []float32
}

// Builder accumulates Datalog mutation statements across every primary and
// secondary kind, plus relation edges, mirroring the teacher's
// DatalogBuilder but generalized to the full node-kind table.
type Builder struct {
	buf strings.Builder
}

// NewBuilder creates an empty mutation builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Script returns the accumulated CozoScript, one `{ ... }`-wrapped
// statement per line, ready to pass to Store.Execute.
func (b *Builder) Script() string {
	return b.buf.String()
}

// PutNodes emits :put statements for kind's relation and code-relation,
// and (for each record with an Embedding, when set is non-nil) set's
// vector relation.
func (b *Builder) PutNodes(kind NodeKind, records []NodeRecord, set *rustgraph.EmbeddingSet) error {
	spec, ok := SpecForKind(kind)
	if !ok {
		return fmt.Errorf("unknown node kind %q", kind)
	}

	for _, rec := range records {
		cols := append([]string{"id"}, spec.MetaColumns...)
		vals := make([]string, 0, len(cols))
		vals = append(vals, quoteString(rec.ID.String()))
		for i := range spec.MetaColumns {
			v := ""
			if i < len(rec.Meta) {
				v = rec.Meta[i]
			}
			vals = append(vals, quoteString(v))
		}
		b.buf.WriteString(fmt.Sprintf("{ ?[%s] <- [[%s]] :put %s { %s } }\n",
			strings.Join(cols, ", "), strings.Join(vals, ", "), spec.Relation, strings.Join(cols, ", ")))

		b.buf.WriteString(fmt.Sprintf("{ ?[id, code_text] <- [[%s, %s]] :put %s { id, code_text } }\n",
			quoteString(rec.ID.String()), quoteString(rec.CodeText), spec.CodeRelation))

		if set != nil && len(rec.Embedding) > 0 {
			relName := set.VectorRelationName(spec.VectorRelationBase)
			b.buf.WriteString(fmt.Sprintf(
				"{ ?[node_id, embedding_model, provider, embedding_dims, vector] <- [[%s, %s, %s, %d, %s]] :put %s { node_id, embedding_model, provider => embedding_dims, vector } }\n",
				quoteString(rec.ID.String()), quoteString(set.ModelID), quoteString(set.ProviderSlug),
				set.Shape.Dimension, formatFloatArray(rec.Embedding), relName))
		}
	}
	return nil
}

// PutSecondary emits a :put statement for a secondary-kind row. data is an
// opaque JSON-serialized payload (shape varies per secondary kind).
func (b *Builder) PutSecondary(kind SecondaryKind, id, ownerID uuid.UUID, data string) {
	b.buf.WriteString(fmt.Sprintf(
		"{ ?[id, owner_id, data] <- [[%s, %s, %s]] :put ploke_%s { id, owner_id, data } }\n",
		quoteString(id.String()), quoteString(ownerID.String()), quoteString(data), kind))
}

// PutRelation emits a :put statement for a graph edge.
func (b *Builder) PutRelation(rel rustgraph.Relation) {
	b.buf.WriteString(fmt.Sprintf(
		"{ ?[source, target, kind] <- [[%s, %s, %s]] :put ploke_relation { source, target, kind } }\n",
		quoteString(rel.Source.String()), quoteString(rel.Target.String()), quoteString(string(rel.Kind))))
}

// DeleteNode emits :rm statements for a node's relation, code relation,
// and (if set is non-nil) its vector relation row, in that order. Edge
// deletion for this node must happen before calling this, per the
// edges-before-entities discipline the teacher's DeleteEntitiesForFile
// follows.
func (b *Builder) DeleteNode(kind NodeKind, id uuid.UUID, set *rustgraph.EmbeddingSet) error {
	spec, ok := SpecForKind(kind)
	if !ok {
		return fmt.Errorf("unknown node kind %q", kind)
	}
	qid := quoteString(id.String())
	if set != nil {
		relName := set.VectorRelationName(spec.VectorRelationBase)
		b.buf.WriteString(fmt.Sprintf("{ ?[node_id] <- [[%s]] :rm %s {node_id} }\n", qid, relName))
	}
	b.buf.WriteString(fmt.Sprintf("{ ?[id] <- [[%s]] :rm %s {id} }\n", qid, spec.CodeRelation))
	b.buf.WriteString(fmt.Sprintf("{ ?[id] <- [[%s]] :rm %s {id} }\n", qid, spec.Relation))
	return nil
}

// DeleteRelationsFor emits :rm statements for every relation touching
// nodeID as source or target. CozoDB has no OR in a single :rm pattern, so
// this issues two query-driven deletions.
func (b *Builder) DeleteRelationsFor(nodeID uuid.UUID) {
	qid := quoteString(nodeID.String())
	b.buf.WriteString(fmt.Sprintf(
		"{ ?[source, target, kind] := *ploke_relation{source, target, kind}, source = %s :rm ploke_relation {source, target, kind} }\n", qid))
	b.buf.WriteString(fmt.Sprintf(
		"{ ?[source, target, kind] := *ploke_relation{source, target, kind}, target = %s :rm ploke_relation {source, target, kind} }\n", qid))
}

// quoteString escapes a string for a CozoScript single-quoted literal,
// matching the teacher's quoteString exactly (backslash/quote escaping,
// null bytes dropped).
func quoteString(s string) string {
	var buf strings.Builder
	buf.Grow(len(s) + 10)
	buf.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			buf.WriteString("\\\\")
		case '\'':
			buf.WriteString("\\'")
		default:
			if r == 0 {
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('\'')
	return buf.String()
}

// formatFloatArray formats a float32 slice as a CozoScript array literal,
// matching the teacher's formatFloatArray/formatFloat NaN/Inf fallback.
func formatFloatArray(arr []float32) string {
	if len(arr) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(arr))
	for _, v := range arr {
		parts = append(parts, formatFloat(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFloat(f float32) string {
	f64 := float64(f)
	if math.IsNaN(f64) || math.IsInf(f64, 0) {
		return "0"
	}
	return strconv.FormatFloat(f64, 'f', -1, 32)
}
