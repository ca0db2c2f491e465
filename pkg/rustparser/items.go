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
	"fmt"
	"strings"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/ploke/pkg/identity"
	"github.com/kraklabs/ploke/pkg/rustgraph"
)

func (w *walker) extractFunction(item *sitter.Node, types *[]rustgraph.Type) rustgraph.Function {
	name := w.name(item)
	common := w.buildCommon(item, name)
	generics := w.extractGenerics(item, common.ID)

	var params []rustgraph.Parameter
	var receiver *rustgraph.Parameter
	if pl := item.ChildByFieldName("parameters"); pl != nil {
		for i := 0; i < int(pl.NamedChildCount()); i++ {
			p := pl.NamedChild(i)
			switch p.Type() {
			case "self_parameter":
				r := rustgraph.Parameter{ID: w.nodeID("param:self", w.span(p)), Name: "self", IsSelf: true, OwnerID: common.ID}
				receiver = &r
			case "parameter":
				pname := ""
				if pat := p.ChildByFieldName("pattern"); pat != nil {
					pname = w.text(pat)
				}
				var tid uuid.UUID
				if tnode := p.ChildByFieldName("type"); tnode != nil {
					if id := w.extractType(tnode, types); id != nil {
						tid = *id
					}
				}
				params = append(params, rustgraph.Parameter{
					ID: w.nodeID("param:"+pname, w.span(p)), Name: pname, TypeID: tid, OwnerID: common.ID,
				})
			}
		}
	}

	var retType *uuid.UUID
	if rt := item.ChildByFieldName("return_type"); rt != nil {
		retType = w.extractType(rt, types)
	}

	return rustgraph.Function{
		PrimaryCommon: common,
		Generics:      generics,
		Params:        params,
		ReturnType:    retType,
		IsAsync:       w.hasKeyword(item, "async"),
		IsUnsafe:      w.hasKeyword(item, "unsafe"),
		Receiver:      receiver,
	}
}

func (w *walker) extractStruct(item *sitter.Node, types *[]rustgraph.Type) rustgraph.Struct {
	name := w.name(item)
	common := w.buildCommon(item, name)
	generics := w.extractGenerics(item, common.ID)
	fields, isTuple := w.extractFields(item, common.ID, types)
	return rustgraph.Struct{PrimaryCommon: common, Generics: generics, Fields: fields, IsTuple: isTuple}
}

func (w *walker) extractEnum(item *sitter.Node, types *[]rustgraph.Type) rustgraph.EnumEntity {
	name := w.name(item)
	common := w.buildCommon(item, name)
	generics := w.extractGenerics(item, common.ID)
	variants := w.extractVariants(item, common.ID, types)
	return rustgraph.EnumEntity{PrimaryCommon: common, Generics: generics, Variants: variants}
}

func (w *walker) extractUnion(item *sitter.Node, types *[]rustgraph.Type) rustgraph.Union {
	name := w.name(item)
	common := w.buildCommon(item, name)
	generics := w.extractGenerics(item, common.ID)
	fields, _ := w.extractFields(item, common.ID, types)
	return rustgraph.Union{PrimaryCommon: common, Generics: generics, Fields: fields}
}

func (w *walker) extractTrait(item *sitter.Node, types *[]rustgraph.Type, parentFG *rustgraph.FileGraph) rustgraph.Trait {
	name := w.name(item)
	common := w.buildCommon(item, name)
	generics := w.extractGenerics(item, common.ID)

	var superTraits []uuid.UUID
	if b := item.ChildByFieldName("bounds"); b != nil {
		for i := 0; i < int(b.NamedChildCount()); i++ {
			if id := w.extractType(b.NamedChild(i), types); id != nil {
				superTraits = append(superTraits, *id)
			}
		}
	}

	var assoc []uuid.UUID
	if body := item.ChildByFieldName("body"); body != nil {
		assoc = w.walkNestedItems(body, parentFG)
	}

	return rustgraph.Trait{PrimaryCommon: common, Generics: generics, SuperTraits: superTraits, AssocItems: assoc}
}

func (w *walker) extractImpl(item *sitter.Node, types *[]rustgraph.Type, parentFG *rustgraph.FileGraph) rustgraph.Impl {
	selfTypeNode := item.ChildByFieldName("type")
	traitNode := item.ChildByFieldName("trait")

	name := "impl " + w.text(selfTypeNode)
	if traitNode != nil {
		name = "impl " + w.text(traitNode) + " for " + w.text(selfTypeNode)
	}
	common := w.buildCommon(item, name)
	generics := w.extractGenerics(item, common.ID)

	var selfType uuid.UUID
	if id := w.extractType(selfTypeNode, types); id != nil {
		selfType = *id
	}
	var traitRef *uuid.UUID
	if traitNode != nil {
		traitRef = w.extractType(traitNode, types)
	}

	var items []uuid.UUID
	if body := item.ChildByFieldName("body"); body != nil {
		items = w.walkNestedItems(body, parentFG)
	}

	return rustgraph.Impl{PrimaryCommon: common, Generics: generics, SelfType: selfType, TraitRef: traitRef, Items: items}
}

func (w *walker) extractTypeAlias(item *sitter.Node, types *[]rustgraph.Type) rustgraph.TypeAlias {
	name := w.name(item)
	common := w.buildCommon(item, name)
	generics := w.extractGenerics(item, common.ID)
	var aliased uuid.UUID
	if t := item.ChildByFieldName("type"); t != nil {
		if id := w.extractType(t, types); id != nil {
			aliased = *id
		}
	}
	return rustgraph.TypeAlias{PrimaryCommon: common, Generics: generics, Aliased: aliased}
}

func (w *walker) extractConst(item *sitter.Node, types *[]rustgraph.Type) rustgraph.Const {
	name := w.name(item)
	common := w.buildCommon(item, name)
	var tid uuid.UUID
	if t := item.ChildByFieldName("type"); t != nil {
		if id := w.extractType(t, types); id != nil {
			tid = *id
		}
	}
	value := ""
	if v := item.ChildByFieldName("value"); v != nil {
		value = w.text(v)
	}
	return rustgraph.Const{PrimaryCommon: common, TypeID: tid, Value: value}
}

func (w *walker) extractStatic(item *sitter.Node, types *[]rustgraph.Type) rustgraph.Static {
	name := w.name(item)
	common := w.buildCommon(item, name)
	var tid uuid.UUID
	if t := item.ChildByFieldName("type"); t != nil {
		if id := w.extractType(t, types); id != nil {
			tid = *id
		}
	}
	value := ""
	if v := item.ChildByFieldName("value"); v != nil {
		value = w.text(v)
	}
	return rustgraph.Static{
		PrimaryCommon: common, TypeID: tid,
		Mutable: namedChildOfType(item, "mutable_specifier") != nil,
		Value:   value,
	}
}

func (w *walker) extractMacro(item *sitter.Node) rustgraph.Macro {
	name := w.name(item)
	common := w.buildCommon(item, name)
	return rustgraph.Macro{PrimaryCommon: common, Rules: w.text(item)}
}

// extractFields reads either a field_declaration_list (named fields) or an
// ordered_field_declaration_list (tuple fields) from item's "body" field.
// The second return value reports whether the fields were tuple-style.
func (w *walker) extractFields(item *sitter.Node, ownerID uuid.UUID, types *[]rustgraph.Type) ([]rustgraph.Field, bool) {
	body := item.ChildByFieldName("body")
	if body == nil {
		return nil, false
	}
	switch body.Type() {
	case "field_declaration_list":
		var fields []rustgraph.Field
		for i := 0; i < int(body.NamedChildCount()); i++ {
			fd := body.NamedChild(i)
			if fd.Type() != "field_declaration" {
				continue
			}
			name := w.name(fd)
			var tid uuid.UUID
			if tnode := fd.ChildByFieldName("type"); tnode != nil {
				if id := w.extractType(tnode, types); id != nil {
					tid = *id
				}
			}
			attrs, _ := w.precedingAttributesAndDoc(fd)
			fields = append(fields, rustgraph.Field{
				ID: w.nodeID("field:"+name, w.span(fd)), Name: name, TypeID: tid,
				Visibility: w.visibility(fd), Attributes: attrs, Span: w.span(fd), OwnerID: ownerID,
			})
		}
		return fields, false
	case "ordered_field_declaration_list":
		var fields []rustgraph.Field
		idx := 0
		for i := 0; i < int(body.NamedChildCount()); i++ {
			fd := body.NamedChild(i)
			if fd.Type() == "visibility_modifier" || fd.Type() == "attribute_item" {
				continue
			}
			var tid uuid.UUID
			if id := w.extractType(fd, types); id != nil {
				tid = *id
			}
			name := fmt.Sprintf("%d", idx)
			fields = append(fields, rustgraph.Field{
				ID: w.nodeID("field:"+name, w.span(fd)), Name: name, TypeID: tid,
				Visibility: rustgraph.VisPrivate, Span: w.span(fd), OwnerID: ownerID,
			})
			idx++
		}
		return fields, true
	default:
		return nil, false
	}
}

// extractVariants reads an enum_variant_list from item's "body" field.
func (w *walker) extractVariants(item *sitter.Node, ownerID uuid.UUID, types *[]rustgraph.Type) []rustgraph.Variant {
	body := item.ChildByFieldName("body")
	if body == nil || body.Type() != "enum_variant_list" {
		return nil
	}
	var variants []rustgraph.Variant
	for i := 0; i < int(body.NamedChildCount()); i++ {
		v := body.NamedChild(i)
		if v.Type() != "enum_variant" {
			continue
		}
		name := w.name(v)
		vid := w.nodeID("variant:"+name, w.span(v))
		fields, _ := w.extractFields(v, vid, types)
		var disc *string
		if d := v.ChildByFieldName("value"); d != nil {
			s := w.text(d)
			disc = &s
		}
		attrs, _ := w.precedingAttributesAndDoc(v)
		variants = append(variants, rustgraph.Variant{
			ID: vid, Name: name, Fields: fields, Discriminant: disc,
			Attributes: attrs, Span: w.span(v), OwnerID: ownerID,
		})
	}
	return variants
}

// extractGenerics reads item's "type_parameters" field list, covering
// type, lifetime, and const generic parameters.
func (w *walker) extractGenerics(item *sitter.Node, ownerID uuid.UUID) []rustgraph.GenericParam {
	tp := item.ChildByFieldName("type_parameters")
	if tp == nil {
		return nil
	}
	var out []rustgraph.GenericParam
	for i := 0; i < int(tp.NamedChildCount()); i++ {
		c := tp.NamedChild(i)
		switch c.Type() {
		case "lifetime_parameter":
			name := w.text(namedChildOfType(c, "lifetime"))
			out = append(out, rustgraph.GenericParam{
				ID: w.nodeID("generic:"+name, w.span(c)), Kind: rustgraph.GenericLifetime, Name: name, OwnerID: ownerID,
			})
		case "type_parameter":
			name := w.name(c)
			var bounds []string
			if tb := namedChildOfType(c, "trait_bounds"); tb != nil {
				bounds = append(bounds, w.text(tb))
			}
			out = append(out, rustgraph.GenericParam{
				ID: w.nodeID("generic:"+name, w.span(c)), Kind: rustgraph.GenericType, Name: name, Bounds: bounds, OwnerID: ownerID,
			})
		case "const_parameter":
			name := w.name(c)
			out = append(out, rustgraph.GenericParam{
				ID: w.nodeID("generic:"+name, w.span(c)), Kind: rustgraph.GenericConst, Name: name, OwnerID: ownerID,
			})
		}
	}
	return out
}

// useItem is a single flattened leaf of a (possibly nested) use tree.
type useItem struct {
	path         []string
	visibleName  string
	originalName *string
	isGlob       bool
	span         rustgraph.Span
}

// extractUseImports flattens a use_declaration's tree into one Import per
// leaf path, per spec: `use a::{b, c as d}` yields two Import nodes.
func (w *walker) extractUseImports(node *sitter.Node) []rustgraph.Import {
	arg := node.ChildByFieldName("argument")
	items := w.flattenUseTree(arg, nil)
	vis := w.visibility(node)
	attrs, doc := w.precedingAttributesAndDoc(node)

	var out []rustgraph.Import
	for _, it := range items {
		joined := strings.Join(it.path, "::")
		common := rustgraph.PrimaryCommon{
			ID: w.nodeID("use:"+joined, it.span), Name: it.visibleName, Span: it.span,
			Visibility: vis, Cfgs: cfgsOf(attrs), Attributes: attrs, Docstring: doc,
			TrackingHash: identity.TrackingHash(w.namespace, []byte(joined)),
			FilePath:     w.filePath, ModulePath: w.copyModPath(),
		}
		out = append(out, rustgraph.Import{
			PrimaryCommon: common, Path: it.path, VisibleName: it.visibleName,
			OriginalName: it.originalName, IsGlob: it.isGlob,
		})
	}
	return out
}

func (w *walker) flattenUseTree(node *sitter.Node, prefix []string) []useItem {
	if node == nil {
		return nil
	}
	switch node.Type() {
	case "scoped_identifier":
		segs := w.pathSegments(node.ChildByFieldName("path"))
		name := w.text(node.ChildByFieldName("name"))
		full := append(append([]string{}, prefix...), append(segs, name)...)
		return []useItem{{path: full, visibleName: name, span: w.span(node)}}
	case "use_as_clause":
		inner := w.flattenUseTree(node.ChildByFieldName("path"), prefix)
		alias := w.text(node.ChildByFieldName("alias"))
		if len(inner) == 1 {
			orig := inner[0].visibleName
			inner[0].originalName = &orig
			inner[0].visibleName = alias
		}
		return inner
	case "use_list":
		var out []useItem
		for i := 0; i < int(node.NamedChildCount()); i++ {
			out = append(out, w.flattenUseTree(node.NamedChild(i), prefix)...)
		}
		return out
	case "scoped_use_list":
		newPrefix := prefix
		if p := node.ChildByFieldName("path"); p != nil {
			newPrefix = append(append([]string{}, prefix...), w.pathSegments(p)...)
		}
		return w.flattenUseTree(node.ChildByFieldName("list"), newPrefix)
	case "use_wildcard":
		newPrefix := prefix
		if p := node.ChildByFieldName("path"); p != nil {
			newPrefix = append(append([]string{}, prefix...), w.pathSegments(p)...)
		}
		return []useItem{{path: newPrefix, visibleName: "*", isGlob: true, span: w.span(node)}}
	default:
		name := w.text(node)
		full := append(append([]string{}, prefix...), name)
		return []useItem{{path: full, visibleName: name, span: w.span(node)}}
	}
}

// pathSegments flattens a scoped_identifier (or bare identifier) path node
// into its component segments, excluding the final name.
func (w *walker) pathSegments(node *sitter.Node) []string {
	if node == nil {
		return nil
	}
	if node.Type() == "scoped_identifier" {
		segs := w.pathSegments(node.ChildByFieldName("path"))
		return append(segs, w.text(node.ChildByFieldName("name")))
	}
	return []string{w.text(node)}
}
