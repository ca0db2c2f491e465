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

package modtree

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ploke/pkg/rustgraph"
)

func TestConventionalPathCrateRoot(t *testing.T) {
	assert.Equal(t, []string{"crate"}, ConventionalPath("src/lib.rs", "src/lib.rs"))
	assert.Equal(t, []string{"crate"}, ConventionalPath("src/main.rs", "src/main.rs"))
}

func TestConventionalPathNestedFile(t *testing.T) {
	assert.Equal(t, []string{"crate", "foo"}, ConventionalPath("src/lib.rs", "src/foo.rs"))
	assert.Equal(t, []string{"crate", "foo"}, ConventionalPath("src/lib.rs", "src/foo/mod.rs"))
	assert.Equal(t, []string{"crate", "foo", "bar"}, ConventionalPath("src/lib.rs", "src/foo/bar.rs"))
}

func fileMod(path []string, filePath string) rustgraph.Module {
	return rustgraph.Module{
		ID:       uuid.New(),
		Name:     path[len(path)-1],
		Path:     append([]string{}, path...),
		Variant:  rustgraph.ModuleFileBased,
		FilePath: filePath,
	}
}

func declMod(name string, parentPath []string, declaringFile string) rustgraph.Module {
	return rustgraph.Module{
		ID:       uuid.New(),
		Name:     name,
		Path:     append(append([]string{}, parentPath...), name),
		Variant:  rustgraph.ModuleDeclaration,
		FilePath: declaringFile,
	}
}

func TestBuildIndexDuplicateModulePathIsFatal(t *testing.T) {
	r := New(Config{CrateRootFile: "src/lib.rs"}, nil)
	graphs := []rustgraph.PerFileGraph{
		{Graph: rustgraph.FileGraph{Modules: []rustgraph.Module{fileMod([]string{"crate", "foo"}, "src/foo.rs")}}},
		{Graph: rustgraph.FileGraph{Modules: []rustgraph.Module{fileMod([]string{"crate", "foo"}, "src/foo/mod.rs")}}},
	}

	_, err := r.Resolve(graphs)
	require.Error(t, err)
	var dup *DuplicateModulePathError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, []string{"crate", "foo"}, dup.Path)
}

func TestResolveDeclarationsConventionalFile(t *testing.T) {
	root := fileMod([]string{"crate"}, "src/lib.rs")
	root.Items = nil
	decl := declMod("foo", []string{"crate"}, "src/lib.rs")
	root.Items = append(root.Items, decl.ID)
	target := fileMod([]string{"crate", "foo"}, "src/foo.rs")

	exists := map[string]bool{"src/foo.rs": true}
	r := New(Config{
		CrateRootFile: "src/lib.rs",
		FileExists:    func(p string) bool { return exists[p] },
	}, nil)

	graphs := []rustgraph.PerFileGraph{
		{Graph: rustgraph.FileGraph{Modules: []rustgraph.Module{root, decl}}},
		{Graph: rustgraph.FileGraph{Modules: []rustgraph.Module{target}}},
	}

	result, err := r.Resolve(graphs)
	require.NoError(t, err)

	var resolvesTo *rustgraph.Relation
	for i := range result.Relations {
		if result.Relations[i].Kind == rustgraph.RelResolvesToDefinition {
			resolvesTo = &result.Relations[i]
		}
	}
	require.NotNil(t, resolvesTo)
	assert.Equal(t, decl.ID, resolvesTo.Source)
	assert.Equal(t, target.ID, resolvesTo.Target)
}

func TestResolveDeclarationsPathAttrOverride(t *testing.T) {
	override := "actual_foo.rs"
	decl := declMod("foo", []string{"crate"}, "src/lib.rs")
	decl.PathAttr = &override
	target := fileMod([]string{"crate", "actual_foo"}, "src/actual_foo.rs")

	exists := map[string]bool{"src/actual_foo.rs": true}
	r := New(Config{
		CrateRootFile: "src/lib.rs",
		FileExists:    func(p string) bool { return exists[p] },
	}, nil)

	graphs := []rustgraph.PerFileGraph{
		{Graph: rustgraph.FileGraph{Modules: []rustgraph.Module{decl, target}}},
	}

	result, err := r.Resolve(graphs)
	require.NoError(t, err)

	require.Len(t, result.Relations, 1)
	assert.Equal(t, rustgraph.RelResolvesToDefinition, result.Relations[0].Kind)
	assert.Equal(t, target.ID, result.Relations[0].Target)

	for _, m := range result.Modules {
		if m.ID == target.ID {
			assert.Equal(t, []string{"crate", "foo"}, m.Path)
		}
	}
}

func TestPruneOrphansRemovesUnreachableFileModule(t *testing.T) {
	root := fileMod([]string{"crate"}, "src/lib.rs")
	orphan := fileMod([]string{"crate", "dead"}, "src/dead.rs")

	r := New(Config{CrateRootFile: "src/lib.rs"}, nil)
	graphs := []rustgraph.PerFileGraph{
		{Graph: rustgraph.FileGraph{Modules: []rustgraph.Module{root, orphan}}},
	}

	result, err := r.Resolve(graphs)
	require.NoError(t, err)

	for _, m := range result.Modules {
		assert.NotEqual(t, orphan.ID, m.ID, "orphan module should have been pruned")
	}
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "orphan module pruned")
}

func TestPruneOrphansKeepsReachableFileModule(t *testing.T) {
	root := fileMod([]string{"crate"}, "src/lib.rs")
	decl := declMod("foo", []string{"crate"}, "src/lib.rs")
	root.Items = append(root.Items, decl.ID)
	target := fileMod([]string{"crate", "foo"}, "src/foo.rs")

	exists := map[string]bool{"src/foo.rs": true}
	r := New(Config{CrateRootFile: "src/lib.rs", FileExists: func(p string) bool { return exists[p] }}, nil)

	graphs := []rustgraph.PerFileGraph{
		{Graph: rustgraph.FileGraph{Modules: []rustgraph.Module{root, decl, target}}},
	}

	result, err := r.Resolve(graphs)
	require.NoError(t, err)

	found := false
	for _, m := range result.Modules {
		if m.ID == target.ID {
			found = true
		}
	}
	assert.True(t, found, "reachable module should survive pruning")
	assert.Empty(t, result.Warnings)
}

func TestAbsoluteUsePathVariants(t *testing.T) {
	crateIm := &rustgraph.Import{Path: []string{"crate", "foo", "Bar"}, ModulePath: []string{"crate", "baz"}}
	assert.Equal(t, []string{"crate", "foo", "Bar"}, absoluteUsePath(crateIm))

	selfIm := &rustgraph.Import{Path: []string{"self", "Bar"}, ModulePath: []string{"crate", "foo"}}
	assert.Equal(t, []string{"crate", "foo", "Bar"}, absoluteUsePath(selfIm))

	superIm := &rustgraph.Import{Path: []string{"super", "Bar"}, ModulePath: []string{"crate", "foo", "baz"}}
	assert.Equal(t, []string{"crate", "foo", "Bar"}, absoluteUsePath(superIm))

	externalIm := &rustgraph.Import{Path: []string{"std", "collections", "HashMap"}, ModulePath: []string{"crate"}}
	assert.Nil(t, absoluteUsePath(externalIm))
}

func TestResolveReExportsSimpleChain(t *testing.T) {
	def := rustgraph.Function{PrimaryCommon: rustgraph.PrimaryCommon{ID: uuid.New(), Name: "real", ModulePath: []string{"crate", "inner"}}}
	reExport := rustgraph.Import{
		PrimaryCommon: rustgraph.PrimaryCommon{ID: uuid.New(), Name: "real", Visibility: rustgraph.VisPublic, ModulePath: []string{"crate"}},
		Path:          []string{"crate", "inner", "real"},
		VisibleName:   "real",
	}

	r := New(Config{CrateRootFile: "src/lib.rs"}, nil)
	graphs := []rustgraph.PerFileGraph{
		{Graph: rustgraph.FileGraph{
			Functions:     []rustgraph.Function{def},
			UseStatements: []rustgraph.Import{reExport},
		}},
	}

	relations, err := r.resolveReExports(graphs)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, reExport.ID, relations[0].Source)
	assert.Equal(t, def.ID, relations[0].Target)
	assert.Equal(t, rustgraph.RelReExports, relations[0].Kind)
}

func TestResolveReExportsChainTooLong(t *testing.T) {
	r := New(Config{CrateRootFile: "src/lib.rs", ReExportDepthLimit: 2}, nil)

	a := rustgraph.Import{
		PrimaryCommon: rustgraph.PrimaryCommon{ID: uuid.New(), Name: "x", Visibility: rustgraph.VisPublic, ModulePath: []string{"crate"}},
		Path:          []string{"crate", "b", "x"}, VisibleName: "x",
	}
	b := rustgraph.Import{
		PrimaryCommon: rustgraph.PrimaryCommon{ID: uuid.New(), Name: "x", Visibility: rustgraph.VisPublic, ModulePath: []string{"crate", "b"}},
		Path:          []string{"crate", "c", "x"}, VisibleName: "x",
	}
	c := rustgraph.Import{
		PrimaryCommon: rustgraph.PrimaryCommon{ID: uuid.New(), Name: "x", Visibility: rustgraph.VisPublic, ModulePath: []string{"crate", "c"}},
		Path:          []string{"crate", "d", "x"}, VisibleName: "x",
	}
	d := rustgraph.Import{
		PrimaryCommon: rustgraph.PrimaryCommon{ID: uuid.New(), Name: "x", Visibility: rustgraph.VisPublic, ModulePath: []string{"crate", "d"}},
		Path:          []string{"crate", "e", "x"}, VisibleName: "x",
	}
	def := rustgraph.Function{PrimaryCommon: rustgraph.PrimaryCommon{ID: uuid.New(), Name: "x", ModulePath: []string{"crate", "e"}}}

	graphs := []rustgraph.PerFileGraph{
		{Graph: rustgraph.FileGraph{
			Functions:     []rustgraph.Function{def},
			UseStatements: []rustgraph.Import{a, b, c, d},
		}},
	}

	_, err := r.resolveReExports(graphs)
	require.Error(t, err)
	var tooLong *ReExportChainTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, 2, tooLong.Limit)
}
