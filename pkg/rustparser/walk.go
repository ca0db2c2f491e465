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

	"github.com/kraklabs/ploke/pkg/identity"
	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// walker carries per-file state while items are extracted. modPath is the
// crate-rooted canonical path of the module currently being walked; it
// grows/shrinks as inline `mod { ... }` blocks are entered/left.
type walker struct {
	parser    *Parser
	content   []byte
	filePath  string
	namespace uuid.UUID
	modPath   []string
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *walker) span(n *sitter.Node) rustgraph.Span {
	return rustgraph.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func (w *walker) nodeID(name string, span rustgraph.Span) uuid.UUID {
	return identity.NodeID(w.namespace, w.filePath, append([]string{}, w.modPath...), name, span.Start, span.End)
}

func (w *walker) copyModPath() []string {
	out := make([]string, len(w.modPath))
	copy(out, w.modPath)
	return out
}

// buildCommon assembles the fields shared by every primary node kind.
func (w *walker) buildCommon(node *sitter.Node, name string) rustgraph.PrimaryCommon {
	attrs, doc := w.precedingAttributesAndDoc(node)
	span := w.span(node)
	code := w.parser.truncate(w.text(node))
	return rustgraph.PrimaryCommon{
		ID:           w.nodeID(name, span),
		Name:         name,
		Span:         span,
		Visibility:   w.visibility(node),
		Cfgs:         cfgsOf(attrs),
		Attributes:   attrs,
		Docstring:    doc,
		TrackingHash: identity.TrackingHash(w.namespace, []byte(code)),
		FilePath:     w.filePath,
		ModulePath:   w.copyModPath(),
	}
}

// hasKeyword reports whether node carries an unnamed leading keyword token
// (e.g. "async", "unsafe") before its primary introducer keyword.
func (w *walker) hasKeyword(node *sitter.Node, kw string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		if c.IsNamed() {
			continue
		}
		t := w.text(c)
		if t == kw {
			return true
		}
		if t == "fn" || t == "struct" || t == "impl" || t == "trait" || t == "{" {
			break
		}
	}
	return false
}

// walkNestedItems walks body's item list into a scratch FileGraph using
// this walker's current modPath, merges the result into parentFG, and
// returns the IDs of the items found, for use as an owner's Items/
// AssocItems field.
func (w *walker) walkNestedItems(body *sitter.Node, parentFG *rustgraph.FileGraph) []uuid.UUID {
	var nested rustgraph.FileGraph
	topIDs := w.walkItemList(body, &nested)
	mergeInto(parentFG, nested)
	return topIDs
}

// namedChildOfType returns the first named child of node whose grammar
// type matches typ.
func namedChildOfType(node *sitter.Node, typ string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c.Type() == typ {
			return c
		}
	}
	return nil
}

func (w *walker) visibility(node *sitter.Node) rustgraph.Visibility {
	vis := namedChildOfType(node, "visibility_modifier")
	if vis == nil {
		return rustgraph.VisPrivate
	}
	txt := w.text(vis)
	switch {
	case txt == "pub":
		return rustgraph.VisPublic
	case strings.Contains(txt, "crate"):
		return rustgraph.VisPubCrate
	case strings.Contains(txt, "super"):
		return rustgraph.VisPubSuper
	case strings.HasPrefix(txt, "pub(in"):
		return rustgraph.VisPubIn
	case strings.HasPrefix(txt, "pub("):
		return rustgraph.VisPubRestricted
	default:
		return rustgraph.VisPublic
	}
}

// name returns the item's identifier/type_identifier field text.
func (w *walker) name(node *sitter.Node) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return w.text(n)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c.Type() == "identifier" || c.Type() == "type_identifier" {
			return w.text(c)
		}
	}
	return ""
}

// precedingAttributesAndDoc walks backward over node's older siblings,
// collecting attribute_item nodes and contiguous leading `///`/`//!`
// doc-comment lines, stopping at the first non-attribute, non-doc-comment,
// non-blank sibling.
func (w *walker) precedingAttributesAndDoc(node *sitter.Node) ([]rustgraph.Attribute, string) {
	var attrs []rustgraph.Attribute
	var docLines []string

	sib := node.PrevSibling()
	for sib != nil {
		switch sib.Type() {
		case "attribute_item":
			attrs = append([]rustgraph.Attribute{w.parseAttribute(sib)}, attrs...)
		case "line_comment":
			txt := w.text(sib)
			if strings.HasPrefix(txt, "///") {
				docLines = append([]string{strings.TrimPrefix(strings.TrimPrefix(txt, "///"), " ")}, docLines...)
			} else if strings.HasPrefix(txt, "//!") {
				docLines = append([]string{strings.TrimPrefix(strings.TrimPrefix(txt, "//!"), " ")}, docLines...)
			} else {
				sib = nil
				continue
			}
		case "block_comment":
			txt := w.text(sib)
			if strings.HasPrefix(txt, "/**") {
				docLines = append([]string{txt}, docLines...)
			} else {
				sib = nil
				continue
			}
		default:
			sib = nil
			continue
		}
		sib = sib.PrevSibling()
	}

	return attrs, strings.TrimSpace(strings.Join(docLines, "\n"))
}

// parseAttribute turns an attribute_item node (`#[...]`) into an Attribute.
// This is a pragmatic, string-based reading of the attribute body rather
// than a full meta-item parser: enough to recognize `#[path = "..."]`,
// `#[derive(A, B)]`, `#[cfg(...)]`, and bare `#[test]`-style markers.
func (w *walker) parseAttribute(node *sitter.Node) rustgraph.Attribute {
	span := w.span(node)
	raw := w.text(node)
	inner := strings.TrimSuffix(strings.TrimPrefix(raw, "#["), "]")
	inner = strings.TrimSpace(inner)

	if idx := strings.IndexAny(inner, "(="); idx >= 0 {
		name := strings.TrimSpace(inner[:idx])
		if inner[idx] == '=' {
			val := strings.TrimSpace(inner[idx+1:])
			val = strings.Trim(val, `"`)
			return rustgraph.Attribute{
				ID: w.nodeID("attr:"+name, span), Span: span, Name: name,
				Shape: rustgraph.AttrShapeNameValue, Value: &val,
			}
		}
		args := strings.TrimSuffix(inner[idx+1:], ")")
		parts := strings.Split(args, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return rustgraph.Attribute{
			ID: w.nodeID("attr:"+name, span), Span: span, Name: name,
			Shape: rustgraph.AttrShapeList, Args: parts,
		}
	}

	return rustgraph.Attribute{
		ID: w.nodeID("attr:"+inner, span), Span: span, Name: inner,
		Shape: rustgraph.AttrShapePath,
	}
}

// pathAttrValue finds a `#[path = "..."]` attribute's value among attrs.
func pathAttrValue(attrs []rustgraph.Attribute) *string {
	for _, a := range attrs {
		if a.Name == "path" && a.Shape == rustgraph.AttrShapeNameValue {
			return a.Value
		}
	}
	return nil
}

// cfgsOf extracts raw `cfg(...)` argument strings from attrs.
func cfgsOf(attrs []rustgraph.Attribute) []string {
	var out []string
	for _, a := range attrs {
		if a.Name == "cfg" {
			out = append(out, a.Args...)
		}
	}
	return out
}

// walkSourceFile walks the top-level item list of a file and wraps it in a
// synthetic file-level root module, marked file-based, per the parser's
// contract with the module tree resolver.
func (w *walker) walkSourceFile(root *sitter.Node) rustgraph.FileGraph {
	var fg rustgraph.FileGraph
	topIDs := w.walkItemList(root, &fg)

	rootSpan := rustgraph.Span{Start: 0, End: int(root.EndByte())}
	rootName := "crate"
	if len(w.modPath) > 0 {
		rootName = w.modPath[len(w.modPath)-1]
	}
	fg.Modules = append(fg.Modules, rustgraph.Module{
		ID:         w.nodeID("filemod:"+w.filePath, rootSpan),
		Name:       rootName,
		Path:       w.copyModPath(),
		Variant:    rustgraph.ModuleFileBased,
		Visibility: rustgraph.VisPublic,
		FilePath:   w.filePath,
		Items:      topIDs,
	})

	return fg
}

// walkItemList iterates node's named children, dispatching each recognized
// item kind into fg. Recurses into mod_item bodies, extending modPath.
// Returns the IDs of the items found directly at this level (not the IDs of
// items nested inside a recursed-into inline module).
func (w *walker) walkItemList(node *sitter.Node, fg *rustgraph.FileGraph) []uuid.UUID {
	var ids []uuid.UUID
	for i := 0; i < int(node.NamedChildCount()); i++ {
		item := node.NamedChild(i)
		switch item.Type() {
		case "function_item":
			f := w.extractFunction(item, &fg.Types)
			fg.Functions = append(fg.Functions, f)
			ids = append(ids, f.ID)
		case "struct_item":
			s := w.extractStruct(item, &fg.Types)
			fg.Structs = append(fg.Structs, s)
			ids = append(ids, s.ID)
		case "enum_item":
			e := w.extractEnum(item, &fg.Types)
			fg.Enums = append(fg.Enums, e)
			ids = append(ids, e.ID)
		case "union_item":
			u := w.extractUnion(item, &fg.Types)
			fg.Unions = append(fg.Unions, u)
			ids = append(ids, u.ID)
		case "trait_item":
			t := w.extractTrait(item, &fg.Types, fg)
			fg.Traits = append(fg.Traits, t)
			ids = append(ids, t.ID)
		case "impl_item":
			im := w.extractImpl(item, &fg.Types, fg)
			fg.Impls = append(fg.Impls, im)
			ids = append(ids, im.ID)
		case "type_item":
			ta := w.extractTypeAlias(item, &fg.Types)
			fg.TypeAliases = append(fg.TypeAliases, ta)
			ids = append(ids, ta.ID)
		case "const_item":
			c := w.extractConst(item, &fg.Types)
			fg.Consts = append(fg.Consts, c)
			ids = append(ids, c.ID)
		case "static_item":
			s := w.extractStatic(item, &fg.Types)
			fg.Statics = append(fg.Statics, s)
			ids = append(ids, s.ID)
		case "macro_definition":
			m := w.extractMacro(item)
			fg.Macros = append(fg.Macros, m)
			ids = append(ids, m.ID)
		case "use_declaration":
			imports := w.extractUseImports(item)
			fg.UseStatements = append(fg.UseStatements, imports...)
			for _, im := range imports {
				ids = append(ids, im.ID)
			}
		case "mod_item":
			m := w.extractMod(item, fg)
			fg.Modules = append(fg.Modules, m)
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// extractMod handles both `mod foo;` (Declaration) and `mod foo { ... }`
// (Inline), recursing into the latter's item list with an extended
// modPath so nested items get crate-rooted canonical paths.
func (w *walker) extractMod(node *sitter.Node, parentFG *rustgraph.FileGraph) rustgraph.Module {
	attrs, doc := w.precedingAttributesAndDoc(node)
	_ = doc
	name := w.name(node)
	span := w.span(node)
	id := w.nodeID("mod:"+name, span)

	body := namedChildOfType(node, "declaration_list")
	if body == nil {
		return rustgraph.Module{
			ID: id, Name: name, Path: append(w.copyModPath(), name),
			Variant: rustgraph.ModuleDeclaration, Visibility: w.visibility(node),
			Attributes: attrs, Cfgs: cfgsOf(attrs),
			FilePath: w.filePath, DeclSpan: span, PathAttr: pathAttrValue(attrs),
		}
	}

	child := &walker{parser: w.parser, content: w.content, filePath: w.filePath, namespace: w.namespace,
		modPath: append(w.copyModPath(), name)}
	items := child.walkNestedItems(body, parentFG)

	return rustgraph.Module{
		ID: id, Name: name, Path: append(w.copyModPath(), name),
		Variant: rustgraph.ModuleInline, Visibility: w.visibility(node),
		Attributes: attrs, Cfgs: cfgsOf(attrs),
		FilePath: w.filePath, Span: span, Items: items,
	}
}

// mergeInto appends a nested FileGraph's nodes into parent. Flattening into
// one FileGraph per file keeps the per-kind slices simple for the module
// tree resolver and graph store to consume.
func mergeInto(parent *rustgraph.FileGraph, nested rustgraph.FileGraph) {
	parent.Functions = append(parent.Functions, nested.Functions...)
	parent.Structs = append(parent.Structs, nested.Structs...)
	parent.Enums = append(parent.Enums, nested.Enums...)
	parent.Unions = append(parent.Unions, nested.Unions...)
	parent.Traits = append(parent.Traits, nested.Traits...)
	parent.Impls = append(parent.Impls, nested.Impls...)
	parent.TypeAliases = append(parent.TypeAliases, nested.TypeAliases...)
	parent.Consts = append(parent.Consts, nested.Consts...)
	parent.Statics = append(parent.Statics, nested.Statics...)
	parent.Macros = append(parent.Macros, nested.Macros...)
	parent.UseStatements = append(parent.UseStatements, nested.UseStatements...)
	parent.Modules = append(parent.Modules, nested.Modules...)
	parent.Types = append(parent.Types, nested.Types...)
	parent.Relations = append(parent.Relations, nested.Relations...)
}
