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

// Package graphstore persists the resolved rustgraph into a CozoDB
// instance: one relation per primary/secondary node kind, one vector
// relation per active EmbeddingSet, and HNSW indices parameterized by
// dims.go's dimension table. This supersedes the macro-generated schema of
// the original source (§9's "replace with a single static schema table")
// with the PrimaryKindSpecs table below.
package graphstore

// NodeKind names one of the twelve primary node kinds the parser can
// produce, per rustgraph's node types.
type NodeKind string

const (
	KindFunction  NodeKind = "function"
	KindConst     NodeKind = "const"
	KindEnum      NodeKind = "enum"
	KindImpl      NodeKind = "impl"
	KindImport    NodeKind = "import"
	KindMacro     NodeKind = "macro"
	KindModule    NodeKind = "module"
	KindStatic    NodeKind = "static"
	KindStruct    NodeKind = "struct"
	KindTrait     NodeKind = "trait"
	KindTypeAlias NodeKind = "type_alias"
	KindUnion     NodeKind = "union"
)

// AllPrimaryKinds lists all twelve primary kinds in a stable order.
var AllPrimaryKinds = []NodeKind{
	KindFunction, KindConst, KindEnum, KindImpl, KindImport, KindMacro,
	KindModule, KindStatic, KindStruct, KindTrait, KindTypeAlias, KindUnion,
}

// SecondaryKind names one of the secondary node kinds, always owned by a
// primary node.
type SecondaryKind string

const (
	SecField           SecondaryKind = "field"
	SecVariant         SecondaryKind = "variant"
	SecAttribute       SecondaryKind = "attribute"
	SecGenericType     SecondaryKind = "generic_type"
	SecGenericLifetime SecondaryKind = "generic_lifetime"
	SecGenericConst    SecondaryKind = "generic_const"
	SecParameter       SecondaryKind = "parameter"
)

// AllSecondaryKinds lists all seven secondary kinds.
var AllSecondaryKinds = []SecondaryKind{
	SecField, SecVariant, SecAttribute, SecGenericType, SecGenericLifetime,
	SecGenericConst, SecParameter,
}

// PrimaryKindSpec names the relation and vector-relation-base for a
// primary kind plus the metadata columns stored in its lightweight
// relation (code text and embeddings live in separate relations, mirroring
// the teacher's vertically-partitioned schema).
type PrimaryKindSpec struct {
	Kind               NodeKind
	Relation           string // e.g. "ploke_function"
	CodeRelation       string // e.g. "ploke_function_code"
	VectorRelationBase string // e.g. "function"
	MetaColumns        []string
}

// PrimaryKindSpecs is the static table superseding the original's
// define_schema! macro (§9). Columns are the metadata fields common to
// every primary node (see rustgraph.PrimaryCommon) plus kind-specific
// columns appended at the end.
var PrimaryKindSpecs = []PrimaryKindSpec{
	{Kind: KindFunction, Relation: "ploke_function", CodeRelation: "ploke_function_code", VectorRelationBase: "function",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path", "is_async", "is_unsafe", "return_type_id"}},
	{Kind: KindConst, Relation: "ploke_const", CodeRelation: "ploke_const_code", VectorRelationBase: "const",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path", "type_id", "value"}},
	{Kind: KindEnum, Relation: "ploke_enum", CodeRelation: "ploke_enum_code", VectorRelationBase: "enum",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path"}},
	{Kind: KindImpl, Relation: "ploke_impl", CodeRelation: "ploke_impl_code", VectorRelationBase: "impl",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path", "self_type_id", "trait_ref_id"}},
	{Kind: KindImport, Relation: "ploke_import", CodeRelation: "ploke_import_code", VectorRelationBase: "import",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path", "path", "is_glob"}},
	{Kind: KindMacro, Relation: "ploke_macro", CodeRelation: "ploke_macro_code", VectorRelationBase: "macro",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path"}},
	{Kind: KindModule, Relation: "ploke_module", CodeRelation: "ploke_module_code", VectorRelationBase: "module",
		MetaColumns: []string{"name", "variant", "file_path", "module_path"}},
	{Kind: KindStatic, Relation: "ploke_static", CodeRelation: "ploke_static_code", VectorRelationBase: "static",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path", "type_id", "mutable"}},
	{Kind: KindStruct, Relation: "ploke_struct", CodeRelation: "ploke_struct_code", VectorRelationBase: "struct",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path", "is_tuple"}},
	{Kind: KindTrait, Relation: "ploke_trait", CodeRelation: "ploke_trait_code", VectorRelationBase: "trait",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path"}},
	{Kind: KindTypeAlias, Relation: "ploke_type_alias", CodeRelation: "ploke_type_alias_code", VectorRelationBase: "type_alias",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path", "aliased_type_id"}},
	{Kind: KindUnion, Relation: "ploke_union", CodeRelation: "ploke_union_code", VectorRelationBase: "union",
		MetaColumns: []string{"name", "span_start", "span_end", "visibility", "docstring", "tracking_hash", "file_path", "module_path"}},
}

// SpecForKind finds the PrimaryKindSpec for a kind; ok is false for an
// unknown kind.
func SpecForKind(k NodeKind) (PrimaryKindSpec, bool) {
	for _, s := range PrimaryKindSpecs {
		if s.Kind == k {
			return s, true
		}
	}
	return PrimaryKindSpec{}, false
}
