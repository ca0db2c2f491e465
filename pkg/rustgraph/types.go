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

// Package rustgraph defines the typed node/edge graph a parsed Rust crate
// is reduced to: primary and secondary nodes, types, relations, and
// modules. These are the in-memory shapes that flow from the parser (C)
// through the module tree resolver (D) into the graph store (E).
package rustgraph

import "github.com/google/uuid"

// Span is a byte range (start, end) into a source file.
type Span struct {
	Start int
	End   int
}

// Visibility mirrors Rust's visibility modifiers.
type Visibility string

const (
	VisPrivate       Visibility = "private"
	VisPublic        Visibility = "pub"
	VisPubCrate      Visibility = "pub(crate)"
	VisPubSuper      Visibility = "pub(super)"
	VisPubIn         Visibility = "pub(in)"
	VisPubRestricted Visibility = "pub(restricted)"
)

// AttributeShape distinguishes the three syntactic forms an attribute can
// take: `#[test]`, `#[derive(A, B)]`, `#[path = "x.rs"]`.
type AttributeShape string

const (
	AttrShapePath      AttributeShape = "path"
	AttrShapeList      AttributeShape = "list"
	AttrShapeNameValue AttributeShape = "name_value"
)

// Attribute is a secondary node owned by exactly one primary node (or a
// Module). Args holds each meta token stringified for AttrShapeList;
// Value holds the literal (or token form) for AttrShapeNameValue.
type Attribute struct {
	ID    uuid.UUID
	Span  Span
	Name  string
	Shape AttributeShape
	Args  []string
	Value *string
}

// TypeKind enumerates the structural forms a Type expression can take.
type TypeKind string

const (
	TypeNamed       TypeKind = "Named"
	TypeReference   TypeKind = "Reference"
	TypeSlice       TypeKind = "Slice"
	TypeArray       TypeKind = "Array"
	TypeTuple       TypeKind = "Tuple"
	TypeFunction    TypeKind = "Function"
	TypeNever       TypeKind = "Never"
	TypeInferred    TypeKind = "Inferred"
	TypeRawPointer  TypeKind = "RawPointer"
	TypeTraitObject TypeKind = "TraitObject"
	TypeImplTrait   TypeKind = "ImplTrait"
	TypeParen       TypeKind = "Paren"
	TypeMacro       TypeKind = "Macro"
	TypeUnknown     TypeKind = "Unknown"
)

// Type is a node describing a Rust type expression. RelatedTypes holds
// argument/return/element types by position (e.g. a Tuple's elements, a
// Function's params+return, a Reference's pointee).
type Type struct {
	ID           uuid.UUID
	Kind         TypeKind
	TokenForm    string // normalized structural token form, the TypeID input
	RelatedTypes []uuid.UUID
	// Named-kind specific: the path segments, e.g. ["std","vec","Vec"].
	Path []string
	// Reference-kind specific.
	Mutable bool
	Lifetime string
}

// RelationKind enumerates edge kinds between nodes in the graph.
type RelationKind string

const (
	RelContains            RelationKind = "Contains"
	RelResolvesToDefinition RelationKind = "ResolvesToDefinition"
	RelCustomPath           RelationKind = "CustomPath"
	RelReExports            RelationKind = "ReExports"
	RelSibling              RelationKind = "Sibling"
	RelUses                 RelationKind = "Uses"
)

// Relation is an edge { source, target, kind } in the graph.
type Relation struct {
	Source uuid.UUID
	Target uuid.UUID
	Kind   RelationKind
}

// ModuleVariant distinguishes the three ways a module can be expressed in
// source.
type ModuleVariant string

const (
	ModuleFileBased   ModuleVariant = "FileBased"
	ModuleInline      ModuleVariant = "Inline"
	ModuleDeclaration ModuleVariant = "Declaration"
)

// Module is a node representing a Rust module, in one of three source
// shapes. Declaration modules carry ResolvedTo once the resolver (D) binds
// them to a definition; FileBased/Inline modules carry Items directly.
type Module struct {
	ID         uuid.UUID
	Name       string
	Path       []string // crate-rooted canonical path, e.g. ["crate","foo"]
	Variant    ModuleVariant
	Visibility Visibility
	Attributes []Attribute
	Cfgs       []string

	// FileBased
	FilePath string
	// Inline
	Span Span
	// Declaration
	DeclSpan    Span
	PathAttr    *string // `#[path="…"]` value, if present
	ResolvedTo  *uuid.UUID

	Items []uuid.UUID // child node IDs, any primary kind or nested Module
}

// Field is a secondary node owned by a Struct, Union, or Variant.
type Field struct {
	ID         uuid.UUID
	Name       string
	TypeID     uuid.UUID
	Visibility Visibility
	Attributes []Attribute
	Span       Span
	OwnerID    uuid.UUID
}

// Variant is a secondary node owned by an Enum.
type Variant struct {
	ID         uuid.UUID
	Name       string
	Fields     []Field
	Discriminant *string
	Attributes []Attribute
	Span       Span
	OwnerID    uuid.UUID
}

// GenericParamKind distinguishes the three generic parameter forms.
type GenericParamKind string

const (
	GenericType     GenericParamKind = "Type"
	GenericLifetime GenericParamKind = "Lifetime"
	GenericConst    GenericParamKind = "Const"
)

// GenericParam is a secondary node owned by any generic-capable primary.
type GenericParam struct {
	ID      uuid.UUID
	Kind    GenericParamKind
	Name    string
	Bounds  []string // trait bounds, or lifetime bounds, stringified
	Default *string
	OwnerID uuid.UUID
}

// Parameter is a secondary node owned by a Function.
type Parameter struct {
	ID      uuid.UUID
	Name    string
	TypeID  uuid.UUID
	IsSelf  bool
	OwnerID uuid.UUID
}

// PrimaryCommon is embedded in every primary node kind: the fields shared
// by all twelve primary kinds (identity, span, visibility, docs, owning
// file/module).
type PrimaryCommon struct {
	ID           uuid.UUID
	CanonID      *uuid.UUID // optional metadata, never the primary key (§9)
	Name         string
	Span         Span
	Visibility   Visibility
	Cfgs         []string
	Attributes   []Attribute
	Docstring    string
	TrackingHash uuid.UUID
	FilePath     string
	ModulePath   []string
}

// Function is a primary node.
type Function struct {
	PrimaryCommon
	Generics   []GenericParam
	Params     []Parameter
	ReturnType *uuid.UUID
	IsAsync    bool
	IsUnsafe   bool
	Receiver   *Parameter // method receiver, if any
}

// Struct is a primary node.
type Struct struct {
	PrimaryCommon
	Generics []GenericParam
	Fields   []Field
	IsTuple  bool
}

// EnumEntity is a primary node. (Named EnumEntity, not Enum, to avoid
// colliding with Go's lack of enum keyword confusion in call sites.)
type EnumEntity struct {
	PrimaryCommon
	Generics []GenericParam
	Variants []Variant
}

// Union is a primary node.
type Union struct {
	PrimaryCommon
	Generics []GenericParam
	Fields   []Field
}

// Trait is a primary node.
type Trait struct {
	PrimaryCommon
	Generics     []GenericParam
	SuperTraits  []uuid.UUID
	AssocItems   []uuid.UUID // function/type_alias/const IDs declared in the trait
}

// Impl is a primary node. TraitRef is nil for an inherent impl.
type Impl struct {
	PrimaryCommon
	Generics []GenericParam
	SelfType uuid.UUID
	TraitRef *uuid.UUID
	Items    []uuid.UUID
}

// TypeAlias is a primary node.
type TypeAlias struct {
	PrimaryCommon
	Generics []GenericParam
	Aliased  uuid.UUID
}

// Const is a primary node.
type Const struct {
	PrimaryCommon
	TypeID uuid.UUID
	Value  string
}

// Static is a primary node.
type Static struct {
	PrimaryCommon
	TypeID  uuid.UUID
	Mutable bool
	Value   string
}

// Macro is a primary node (macro_rules! definitions; macro invocations are
// recorded as Uses relations, not separate nodes).
type Macro struct {
	PrimaryCommon
	Rules string // raw token form of the macro body
}

// Import is a primary node for a flattened `use` path.
// `use a::{b, c as d}` yields two Import nodes with Path ["a","b"] and
// ["a","c"] (the second with VisibleName "d" and OriginalName "c").
type Import struct {
	PrimaryCommon
	Path         []string
	VisibleName  string
	OriginalName *string
	IsGlob       bool
}

// PerFileGraph is the parser's (C) per-file output contract.
type PerFileGraph struct {
	FilePath  string
	Namespace uuid.UUID
	Graph     FileGraph
}

// FileGraph is the untyped-syntax-derived node/edge collection for one
// file, prior to merge into the module tree.
type FileGraph struct {
	Functions     []Function
	Structs       []Struct
	Enums         []EnumEntity
	Unions        []Union
	Traits        []Trait
	Impls         []Impl
	TypeAliases   []TypeAlias
	Consts        []Const
	Statics       []Static
	Macros        []Macro
	UseStatements []Import
	Modules       []Module
	Types         []Type
	Relations     []Relation
}
