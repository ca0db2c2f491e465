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
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// symbolTable maps a fully-qualified "module::path::Name" key to the ID of
// the primary node it names, plus a side index of which of those IDs are
// themselves Import nodes (the only kind a re-export chain can hop through).
type symbolTable struct {
	byKey    map[string]uuid.UUID
	imports  map[uuid.UUID]*rustgraph.Import
}

func buildSymbolTable(graphs []rustgraph.PerFileGraph) *symbolTable {
	st := &symbolTable{byKey: make(map[string]uuid.UUID), imports: make(map[uuid.UUID]*rustgraph.Import)}

	reg := func(modulePath []string, name string, id uuid.UUID) {
		if name == "" || name == "*" {
			return
		}
		st.byKey[joinPath(modulePath)+"::"+name] = id
	}

	for gi := range graphs {
		fg := &graphs[gi].Graph
		for i := range fg.Functions {
			reg(fg.Functions[i].ModulePath, fg.Functions[i].Name, fg.Functions[i].ID)
		}
		for i := range fg.Structs {
			reg(fg.Structs[i].ModulePath, fg.Structs[i].Name, fg.Structs[i].ID)
		}
		for i := range fg.Enums {
			reg(fg.Enums[i].ModulePath, fg.Enums[i].Name, fg.Enums[i].ID)
		}
		for i := range fg.Unions {
			reg(fg.Unions[i].ModulePath, fg.Unions[i].Name, fg.Unions[i].ID)
		}
		for i := range fg.Traits {
			reg(fg.Traits[i].ModulePath, fg.Traits[i].Name, fg.Traits[i].ID)
		}
		for i := range fg.TypeAliases {
			reg(fg.TypeAliases[i].ModulePath, fg.TypeAliases[i].Name, fg.TypeAliases[i].ID)
		}
		for i := range fg.Consts {
			reg(fg.Consts[i].ModulePath, fg.Consts[i].Name, fg.Consts[i].ID)
		}
		for i := range fg.Statics {
			reg(fg.Statics[i].ModulePath, fg.Statics[i].Name, fg.Statics[i].ID)
		}
		for i := range fg.Macros {
			reg(fg.Macros[i].ModulePath, fg.Macros[i].Name, fg.Macros[i].ID)
		}
		for i := range fg.Modules {
			reg(fg.Modules[i].Path[:len(fg.Modules[i].Path)-1], fg.Modules[i].Name, fg.Modules[i].ID)
		}
		for i := range fg.UseStatements {
			im := &fg.UseStatements[i]
			reg(im.ModulePath, im.VisibleName, im.ID)
			st.imports[im.ID] = im
		}
	}
	return st
}

// absoluteUsePath resolves an Import's source-form Path (which may start
// with "crate", "self", "super", or an external crate name) against its
// owning module's canonical path. Returns nil if the path leaves the crate
// (an external dependency) and therefore cannot be chased further.
func absoluteUsePath(im *rustgraph.Import) []string {
	if len(im.Path) == 0 {
		return nil
	}
	switch im.Path[0] {
	case "crate":
		return append([]string{"crate"}, im.Path[1:]...)
	case "self":
		return append(append([]string{}, im.ModulePath...), im.Path[1:]...)
	case "super":
		base := append([]string{}, im.ModulePath...)
		rest := im.Path
		for len(rest) > 0 && rest[0] == "super" {
			if len(base) == 0 {
				return nil
			}
			base = base[:len(base)-1]
			rest = rest[1:]
		}
		return append(base, rest...)
	default:
		// An external crate path (e.g. "std", or a sibling dependency) or a
		// 2015-edition-style bare path within the current module; the
		// latter is rare enough in modern crates that it's treated the
		// same as an external path: terminal, not chased further.
		return nil
	}
}

// resolveReExports follows every public `use` item's chain to its eventual
// definition, emitting one ReExports relation per resolved chain. Mirrors
// CallResolver.ResolveCalls's sequential/parallel split by input size.
func (r *Resolver) resolveReExports(graphs []rustgraph.PerFileGraph) ([]rustgraph.Relation, error) {
	st := buildSymbolTable(graphs)

	var starts []*rustgraph.Import
	for gi := range graphs {
		for i := range graphs[gi].Graph.UseStatements {
			im := &graphs[gi].Graph.UseStatements[i]
			if im.IsGlob || im.Visibility == rustgraph.VisPrivate {
				continue
			}
			starts = append(starts, im)
		}
	}

	if len(starts) < 1000 {
		return r.resolveReExportsSequential(starts, st)
	}
	return r.resolveReExportsParallel(starts, st)
}

func (r *Resolver) resolveReExportsSequential(starts []*rustgraph.Import, st *symbolTable) ([]rustgraph.Relation, error) {
	var relations []rustgraph.Relation
	for _, im := range starts {
		rel, err := r.followChain(im, st)
		if err != nil {
			return nil, err
		}
		if rel != nil {
			relations = append(relations, *rel)
		}
	}
	return relations, nil
}

func (r *Resolver) resolveReExportsParallel(starts []*rustgraph.Import, st *symbolTable) ([]rustgraph.Relation, error) {
	numWorkers := runtime.NumCPU()
	if numWorkers > 8 {
		numWorkers = 8
	}

	jobs := make(chan *rustgraph.Import, len(starts))
	type outcome struct {
		rel *rustgraph.Relation
		err error
	}
	results := make(chan outcome, len(starts))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for im := range jobs {
				rel, err := r.followChain(im, st)
				results <- outcome{rel: rel, err: err}
			}
		}()
	}
	for _, im := range starts {
		jobs <- im
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	var relations []rustgraph.Relation
	for o := range results {
		if o.err != nil {
			return nil, o.err
		}
		if o.rel != nil {
			relations = append(relations, *o.rel)
		}
	}
	return relations, nil
}

// followChain walks from a single public `use` item to its eventual
// definition, hopping through intermediate re-export Import nodes.
func (r *Resolver) followChain(start *rustgraph.Import, st *symbolTable) (*rustgraph.Relation, error) {
	abs := absoluteUsePath(start)
	if abs == nil || len(abs) == 0 {
		return nil, nil
	}

	depth := 0
	current := abs
	for {
		key := joinPath(current[:len(current)-1]) + "::" + current[len(current)-1]
		targetID, ok := st.byKey[key]
		if !ok {
			return nil, nil
		}
		if targetID == start.ID {
			return nil, nil
		}
		if nextImport, isImport := st.imports[targetID]; isImport {
			depth++
			if depth > r.cfg.ReExportDepthLimit {
				return nil, &ReExportChainTooLongError{Path: start.Path, Depth: depth, Limit: r.cfg.ReExportDepthLimit}
			}
			next := absoluteUsePath(nextImport)
			if next == nil {
				return nil, nil
			}
			current = next
			continue
		}
		return &rustgraph.Relation{Source: start.ID, Target: targetID, Kind: rustgraph.RelReExports}, nil
	}
}
