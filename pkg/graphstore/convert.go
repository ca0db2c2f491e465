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
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// BuildGraphRecords flattens one file's parsed graph into the per-kind
// NodeRecord slices PutNodes expects, in the exact column order each
// PrimaryKindSpec's MetaColumns lists. CodeText is read directly from the
// node's byte span via src, matching the teacher's code-relation
// population for *_code tables.
func BuildGraphRecords(graph rustgraph.FileGraph, src []byte) map[NodeKind][]NodeRecord {
	out := make(map[NodeKind][]NodeRecord)

	codeOf := func(span rustgraph.Span) string {
		if span.Start < 0 || span.End > len(src) || span.Start > span.End {
			return ""
		}
		return string(src[span.Start:span.End])
	}
	common := func(c rustgraph.PrimaryCommon, extra ...string) NodeRecord {
		meta := []string{
			c.Name,
			strconv.Itoa(c.Span.Start),
			strconv.Itoa(c.Span.End),
			string(c.Visibility),
			c.Docstring,
			c.TrackingHash.String(),
			c.FilePath,
			strings.Join(c.ModulePath, "::"),
		}
		meta = append(meta, extra...)
		return NodeRecord{ID: c.ID, Meta: meta, CodeText: codeOf(c.Span)}
	}
	optID := func(id *uuid.UUID) string {
		if id == nil {
			return ""
		}
		return id.String()
	}

	for _, fn := range graph.Functions {
		out[KindFunction] = append(out[KindFunction], common(fn.PrimaryCommon,
			strconv.FormatBool(fn.IsAsync), strconv.FormatBool(fn.IsUnsafe), optID(fn.ReturnType)))
	}
	for _, c := range graph.Consts {
		out[KindConst] = append(out[KindConst], common(c.PrimaryCommon, c.TypeID.String(), c.Value))
	}
	for _, e := range graph.Enums {
		out[KindEnum] = append(out[KindEnum], common(e.PrimaryCommon))
	}
	for _, im := range graph.Impls {
		out[KindImpl] = append(out[KindImpl], common(im.PrimaryCommon, im.SelfType.String(), optID(im.TraitRef)))
	}
	for _, im := range graph.UseStatements {
		out[KindImport] = append(out[KindImport], common(im.PrimaryCommon, strings.Join(im.Path, "::"), strconv.FormatBool(im.IsGlob)))
	}
	for _, m := range graph.Macros {
		out[KindMacro] = append(out[KindMacro], common(m.PrimaryCommon))
	}
	for _, m := range graph.Modules {
		out[KindModule] = append(out[KindModule], NodeRecord{
			ID:       m.ID,
			Meta:     []string{m.Name, string(m.Variant), m.FilePath, strings.Join(m.Path, "::")},
			CodeText: codeOf(m.Span),
		})
	}
	for _, s := range graph.Statics {
		out[KindStatic] = append(out[KindStatic], common(s.PrimaryCommon, s.TypeID.String(), strconv.FormatBool(s.Mutable)))
	}
	for _, s := range graph.Structs {
		out[KindStruct] = append(out[KindStruct], common(s.PrimaryCommon, strconv.FormatBool(s.IsTuple)))
	}
	for _, t := range graph.Traits {
		out[KindTrait] = append(out[KindTrait], common(t.PrimaryCommon))
	}
	for _, ta := range graph.TypeAliases {
		out[KindTypeAlias] = append(out[KindTypeAlias], common(ta.PrimaryCommon, ta.Aliased.String()))
	}
	for _, u := range graph.Unions {
		out[KindUnion] = append(out[KindUnion], common(u.PrimaryCommon))
	}

	return out
}
