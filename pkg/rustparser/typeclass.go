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

package rustparser

import (
	"strings"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// extractType classifies a Tree-sitter type node into a rustgraph.Type,
// appending it (and any nested types it references) to *types. Returns the
// new Type's ID, or nil if node is nil (e.g. an omitted return type).
func (w *walker) extractType(node *sitter.Node, types *[]rustgraph.Type) *uuid.UUID {
	if node == nil {
		return nil
	}
	tok := w.text(node)
	kind := classifyTypeKind(node.Type(), tok)

	var related []uuid.UUID
	switch node.Type() {
	case "reference_type":
		if inner := node.ChildByFieldName("type"); inner != nil {
			if id := w.extractType(inner, types); id != nil {
				related = append(related, *id)
			}
		}
	case "tuple_type":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if id := w.extractType(node.NamedChild(i), types); id != nil {
				related = append(related, *id)
			}
		}
	case "array_type", "slice_type":
		if inner := node.ChildByFieldName("element"); inner != nil {
			if id := w.extractType(inner, types); id != nil {
				related = append(related, *id)
			}
		}
	}

	span := w.span(node)
	t := rustgraph.Type{
		ID:           w.nodeID("type:"+tok, span),
		Kind:         kind,
		TokenForm:    normalizeTokenForm(tok),
		RelatedTypes: related,
	}
	if kind == rustgraph.TypeNamed {
		t.Path = strings.Split(strings.TrimPrefix(tok, "::"), "::")
	}
	if kind == rustgraph.TypeReference {
		t.Mutable = strings.Contains(tok, "mut ")
	}
	*types = append(*types, t)
	id := t.ID
	return &id
}

// classifyTypeKind maps a Tree-sitter Rust grammar node type (and, as a
// fallback, the raw token prefix) onto rustgraph's TypeKind enumeration.
func classifyTypeKind(nodeType, tok string) rustgraph.TypeKind {
	switch nodeType {
	case "reference_type":
		return rustgraph.TypeReference
	case "array_type":
		return rustgraph.TypeArray
	case "slice_type":
		return rustgraph.TypeSlice
	case "tuple_type":
		if strings.TrimSpace(tok) == "()" {
			return rustgraph.TypeNamed
		}
		return rustgraph.TypeTuple
	case "function_type":
		return rustgraph.TypeFunction
	case "never_type":
		return rustgraph.TypeNever
	case "inferred_type", "_":
		return rustgraph.TypeInferred
	case "pointer_type":
		return rustgraph.TypeRawPointer
	case "dynamic_type":
		return rustgraph.TypeTraitObject
	case "abstract_type":
		return rustgraph.TypeImplTrait
	case "bracketed_type", "parenthesized_expression":
		return rustgraph.TypeParen
	case "macro_invocation":
		return rustgraph.TypeMacro
	case "type_identifier", "scoped_type_identifier", "generic_type", "primitive_type":
		return rustgraph.TypeNamed
	default:
		trimmed := strings.TrimSpace(tok)
		switch {
		case trimmed == "":
			return rustgraph.TypeUnknown
		case strings.HasPrefix(trimmed, "&"):
			return rustgraph.TypeReference
		case strings.HasPrefix(trimmed, "[") && strings.Contains(trimmed, ";"):
			return rustgraph.TypeArray
		case strings.HasPrefix(trimmed, "["):
			return rustgraph.TypeSlice
		case strings.HasPrefix(trimmed, "("):
			return rustgraph.TypeTuple
		case strings.HasPrefix(trimmed, "dyn "):
			return rustgraph.TypeTraitObject
		case strings.HasPrefix(trimmed, "impl "):
			return rustgraph.TypeImplTrait
		case strings.HasPrefix(trimmed, "*const") || strings.HasPrefix(trimmed, "*mut"):
			return rustgraph.TypeRawPointer
		case trimmed == "!":
			return rustgraph.TypeNever
		case trimmed == "_":
			return rustgraph.TypeInferred
		default:
			return rustgraph.TypeNamed
		}
	}
}

// normalizeTokenForm collapses whitespace in a type's source token form so
// structurally-identical types produce the same TypeID input regardless of
// incidental formatting.
func normalizeTokenForm(tok string) string {
	fields := strings.Fields(tok)
	return strings.Join(fields, " ")
}
