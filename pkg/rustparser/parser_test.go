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
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ploke/pkg/identity"
	"github.com/kraklabs/ploke/pkg/rustgraph"
)

func TestNormalizeTokenFormCollapsesWhitespace(t *testing.T) {
	got := normalizeTokenForm("Vec < \n  String  >")
	assert.Equal(t, "Vec < String >", got)
}

func TestClassifyTypeKindFallsBackOnTokenPrefix(t *testing.T) {
	assert.Equal(t, "Reference", string(classifyTypeKind("unknown_node", "&mut Foo")))
	assert.Equal(t, "Slice", string(classifyTypeKind("unknown_node", "[u8]")))
	assert.Equal(t, "Array", string(classifyTypeKind("unknown_node", "[u8; 4]")))
	assert.Equal(t, "Tuple", string(classifyTypeKind("unknown_node", "(A, B)")))
	assert.Equal(t, "TraitObject", string(classifyTypeKind("unknown_node", "dyn Foo")))
	assert.Equal(t, "ImplTrait", string(classifyTypeKind("unknown_node", "impl Foo")))
	assert.Equal(t, "Never", string(classifyTypeKind("unknown_node", "!")))
	assert.Equal(t, "Inferred", string(classifyTypeKind("unknown_node", "_")))
	assert.Equal(t, "Named", string(classifyTypeKind("unknown_node", "Foo")))
}

func TestParseBytesExtractsTopLevelItems(t *testing.T) {
	src := []byte(`
/// Adds two numbers.
pub fn add(a: i32, b: i32) -> i32 {
    a + b
}

pub struct Point {
    pub x: f64,
    pub y: f64,
}

enum Shape {
    Circle(f64),
    Rect { w: f64, h: f64 },
}

use std::collections::HashMap;
use std::io::{Read, Write as IoWrite};

mod inner {
    pub fn helper() {}
}
`)

	p := New(nil)
	ns := identity.CrateNamespace("/tmp/examplecrate")

	graph, err := p.ParseBytes(context.Background(), ns, "src/lib.rs", []string{"crate"}, src)
	require.NoError(t, err)
	require.NotNil(t, graph)

	assert.Equal(t, "src/lib.rs", graph.FilePath)
	assert.Equal(t, ns, graph.Namespace)

	fg := graph.Graph
	// add, plus inner::helper: inline-module items are flattened into the
	// file's graph.
	require.Len(t, fg.Functions, 2)
	assert.Equal(t, "add", fg.Functions[0].Name)
	assert.Equal(t, "helper", fg.Functions[1].Name)
	assert.Contains(t, fg.Functions[0].Docstring, "Adds two numbers")

	require.Len(t, fg.Structs, 1)
	assert.Equal(t, "Point", fg.Structs[0].Name)
	assert.Len(t, fg.Structs[0].Fields, 2)

	require.Len(t, fg.Enums, 1)
	assert.Equal(t, "Shape", fg.Enums[0].Name)
	assert.Len(t, fg.Enums[0].Variants, 2)

	assert.GreaterOrEqual(t, len(fg.UseStatements), 2)

	require.Len(t, fg.Modules, 2)
	foundInner := false
	foundRoot := false
	for _, m := range fg.Modules {
		if m.Name == "inner" && m.Variant == rustgraph.ModuleInline {
			foundInner = true
		}
		if m.Variant == rustgraph.ModuleFileBased {
			foundRoot = true
			assert.Equal(t, []string{"crate"}, m.Path)
		}
	}
	assert.True(t, foundInner, "expected an inline module named inner")
	assert.True(t, foundRoot, "expected a synthetic file-based root module")
}

func TestParseBytesDeterministicIDs(t *testing.T) {
	src := []byte("pub fn stable() {}\n")
	p := New(nil)
	ns := identity.CrateNamespace("/tmp/examplecrate")

	g1, err := p.ParseBytes(context.Background(), ns, "src/lib.rs", []string{"crate"}, src)
	require.NoError(t, err)
	g2, err := p.ParseBytes(context.Background(), ns, "src/lib.rs", []string{"crate"}, src)
	require.NoError(t, err)

	require.Len(t, g1.Graph.Functions, 1)
	require.Len(t, g2.Graph.Functions, 1)
	assert.Equal(t, g1.Graph.Functions[0].ID, g2.Graph.Functions[0].ID)
	assert.NotEqual(t, uuid.Nil, g1.Graph.Functions[0].ID)
}
