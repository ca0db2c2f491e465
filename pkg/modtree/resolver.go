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

// Package modtree assembles per-file graphs into one typed module tree,
// resolving Declaration modules to their definitions, pruning orphan
// file-based modules, and following pub-use re-export chains. It mirrors
// the two-pass index-then-resolve shape of pkg/ingestion's CallResolver,
// narrowed to Rust's module system instead of Go's call graph.
package modtree

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// DefaultReExportDepthLimit bounds pub-use chain following. A chain longer
// than this is a ReExportChainTooLongError.
const DefaultReExportDepthLimit = 64

// Config configures a Resolver.
type Config struct {
	// CrateRootFile is the crate root's path, e.g. "src/lib.rs" or
	// "src/main.rs", used to derive the conventional layout and the
	// directory `#[path]` overrides are relative to for crate-root
	// declarations.
	CrateRootFile string

	// ReExportDepthLimit overrides DefaultReExportDepthLimit when non-zero.
	ReExportDepthLimit int

	// FileExists overrides the filesystem-backed existence check, for
	// tests. Defaults to os.Stat.
	FileExists func(path string) bool
}

// Resolver links the per-file graphs produced by rustparser into one
// module tree.
type Resolver struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Resolver.
func New(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReExportDepthLimit <= 0 {
		cfg.ReExportDepthLimit = DefaultReExportDepthLimit
	}
	if cfg.FileExists == nil {
		cfg.FileExists = defaultFileExists
	}
	return &Resolver{cfg: cfg, logger: logger}
}

// Result is the module tree resolver's output.
type Result struct {
	Modules   []rustgraph.Module
	Relations []rustgraph.Relation
	Warnings  []string
}

// index holds per-path and per-ID lookups over every module found across
// all per-file graphs, built in the first pass.
type index struct {
	byPath map[string]*rustgraph.Module
	byID   map[uuid.UUID]*rustgraph.Module
}

// Resolve runs the full algorithm: index, resolve declarations, prune
// orphans, resolve re-exports.
func (r *Resolver) Resolve(graphs []rustgraph.PerFileGraph) (*Result, error) {
	idx, err := r.buildIndex(graphs)
	if err != nil {
		return nil, err
	}

	relations, err := r.resolveDeclarations(idx)
	if err != nil {
		return nil, err
	}

	pruned, warnings := r.pruneOrphans(idx)

	reExportRelations, err := r.resolveReExports(graphs)
	if err != nil {
		return nil, err
	}
	relations = append(relations, reExportRelations...)

	relations = scrubRelations(relations, pruned)

	var finalModules []rustgraph.Module
	for _, m := range idx.byID {
		if _, isPruned := pruned[m.ID]; isPruned {
			continue
		}
		finalModules = append(finalModules, *m)
	}

	return &Result{Modules: finalModules, Relations: relations, Warnings: warnings}, nil
}

// buildIndex indexes every module by its canonical path, collected across
// all per-file graphs. A duplicate path is a fatal DuplicateModulePathError.
func (r *Resolver) buildIndex(graphs []rustgraph.PerFileGraph) (*index, error) {
	idx := &index{byPath: make(map[string]*rustgraph.Module), byID: make(map[uuid.UUID]*rustgraph.Module)}

	for gi := range graphs {
		for mi := range graphs[gi].Graph.Modules {
			m := &graphs[gi].Graph.Modules[mi]
			key := joinPath(m.Path)
			if existing, ok := idx.byPath[key]; ok {
				// Two Declaration sites for the same path (`mod foo;` in two
				// different parents resolving to the same conventional
				// file) is legitimate only when one is the Declaration and
				// the other the FileBased/Inline definition it resolves to;
				// two definitions at the same path is the fatal case.
				if existing.Variant != rustgraph.ModuleDeclaration && m.Variant != rustgraph.ModuleDeclaration {
					return nil, &DuplicateModulePathError{Path: m.Path}
				}
			}
			idx.byPath[key] = m
			idx.byID[m.ID] = m
		}
	}
	return idx, nil
}

// resolveDeclarations binds every Declaration module to the file-based
// module it refers to, emitting a ResolvesToDefinition relation per
// binding.
func (r *Resolver) resolveDeclarations(idx *index) ([]rustgraph.Relation, error) {
	srcRoot := filepath.Dir(r.cfg.CrateRootFile)

	var relations []rustgraph.Relation
	for _, m := range idx.byID {
		if m.Variant != rustgraph.ModuleDeclaration {
			continue
		}

		var resolvedPath string
		if m.PathAttr != nil {
			resolvedPath = pathAttrCandidate(m.FilePath, *m.PathAttr)
			if !r.cfg.FileExists(resolvedPath) {
				return nil, &AmbiguousModuleDefinitionError{Path: m.Path, Candidates: []string{resolvedPath}}
			}
		} else {
			candidates := candidateFiles(srcRoot, m.Path)
			found := ""
			matches := 0
			for _, c := range candidates {
				if r.cfg.FileExists(c) {
					found = c
					matches++
				}
			}
			if matches > 1 {
				return nil, &AmbiguousModuleDefinitionError{Path: m.Path, Candidates: candidates}
			}
			if matches == 0 {
				r.logger.Warn("modtree.declaration_unresolved", "path", joinPath(m.Path))
				continue
			}
			resolvedPath = found
		}

		target := findModuleByFilePath(idx, resolvedPath)
		if target == nil {
			r.logger.Warn("modtree.declaration_target_not_parsed", "path", joinPath(m.Path), "file", resolvedPath)
			continue
		}

		// Honor #[path]: the target file's own naive-convention path may
		// differ from the declaration's actual canonical path. Relabel the
		// target (and re-key it in the index) to the declaration's path.
		if joinPath(target.Path) != joinPath(m.Path) {
			delete(idx.byPath, joinPath(target.Path))
			target.Path = append([]string{}, m.Path...)
			idx.byPath[joinPath(target.Path)] = target
		}

		resolved := target.ID
		m.ResolvedTo = &resolved
		relations = append(relations, rustgraph.Relation{Source: m.ID, Target: target.ID, Kind: rustgraph.RelResolvesToDefinition})
	}
	return relations, nil
}

func findModuleByFilePath(idx *index, filePath string) *rustgraph.Module {
	want := filepath.ToSlash(filePath)
	for _, m := range idx.byID {
		if m.Variant == rustgraph.ModuleFileBased && filepath.ToSlash(m.FilePath) == want {
			return m
		}
	}
	return nil
}

// pruneOrphans removes any FileBased module unreachable from the crate
// root, returning the set of pruned module IDs and human-readable warnings.
func (r *Resolver) pruneOrphans(idx *index) (map[uuid.UUID]struct{}, []string) {
	root, ok := idx.byPath[joinPath([]string{"crate"})]
	if !ok {
		return nil, nil
	}

	reachable := make(map[uuid.UUID]struct{})
	var walk func(m *rustgraph.Module)
	walk = func(m *rustgraph.Module) {
		if m == nil {
			return
		}
		if _, seen := reachable[m.ID]; seen {
			return
		}
		reachable[m.ID] = struct{}{}
		for _, childID := range m.Items {
			if child, ok := idx.byID[childID]; ok {
				walk(child)
			}
		}
		if m.Variant == rustgraph.ModuleDeclaration && m.ResolvedTo != nil {
			if target, ok := idx.byID[*m.ResolvedTo]; ok {
				walk(target)
			}
		}
	}
	walk(root)

	pruned := make(map[uuid.UUID]struct{})
	var warnings []string
	for _, m := range idx.byID {
		if m.Variant != rustgraph.ModuleFileBased {
			continue
		}
		if _, ok := reachable[m.ID]; ok {
			continue
		}
		pruned[m.ID] = struct{}{}
		warnings = append(warnings, fmt.Sprintf("orphan module pruned: %s (%s)", joinPath(m.Path), m.FilePath))
	}
	return pruned, warnings
}

// scrubRelations drops any relation whose source or target was pruned, so
// pruning and edge scrubbing happen atomically in the same pass.
func scrubRelations(relations []rustgraph.Relation, pruned map[uuid.UUID]struct{}) []rustgraph.Relation {
	if len(pruned) == 0 {
		return relations
	}
	out := relations[:0]
	for _, rel := range relations {
		if _, ok := pruned[rel.Source]; ok {
			continue
		}
		if _, ok := pruned[rel.Target]; ok {
			continue
		}
		out = append(out, rel)
	}
	return out
}

func joinPath(path []string) string {
	return strings.Join(path, "::")
}
