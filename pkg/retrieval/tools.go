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

package retrieval

import (
	"github.com/google/uuid"

	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// Tools is the thin tool-calling surface the out-of-core LLM layer
// consumes: graph traversals over an in-memory relation/name index built
// from the resolver's output, kept separate from the hybrid Engine so the
// core retrieval path stays directly unit-testable. Grounded on the
// teacher's pkg/tools/{find_type,trace,search,status}.go, generalized
// from a (function, type) pair to the full twelve-kind graph.
type Tools struct {
	byName      map[string][]uuid.UUID
	byPath      map[string]uuid.UUID
	callers     map[uuid.UUID][]uuid.UUID
	callees     map[uuid.UUID][]uuid.UUID
	files       map[string][]uuid.UUID
}

// NewTools builds the traversal indices from a resolved module tree's
// relations and a name→id, path→id table the caller assembles from its
// FileGraphs (one entry per primary node).
func NewTools(relations []rustgraph.Relation, names map[string][]uuid.UUID, paths map[string]uuid.UUID, files map[string][]uuid.UUID) *Tools {
	t := &Tools{
		byName:  names,
		byPath:  paths,
		callers: make(map[uuid.UUID][]uuid.UUID),
		callees: make(map[uuid.UUID][]uuid.UUID),
		files:   files,
	}
	for _, rel := range relations {
		if rel.Kind != rustgraph.RelUses {
			continue
		}
		t.callees[rel.Source] = append(t.callees[rel.Source], rel.Target)
		t.callers[rel.Target] = append(t.callers[rel.Target], rel.Source)
	}
	return t
}

// FindByName returns every node ID registered under name.
func (t *Tools) FindByName(name string) []uuid.UUID {
	return t.byName[name]
}

// FindByCanonicalPath resolves a "crate::foo::Bar"-style path to its node.
func (t *Tools) FindByCanonicalPath(path string) (uuid.UUID, bool) {
	id, ok := t.byPath[path]
	return id, ok
}

// FindCallers returns the nodes with a Uses edge into id.
func (t *Tools) FindCallers(id uuid.UUID) []uuid.UUID {
	return t.callers[id]
}

// FindCallees returns the nodes id has a Uses edge into.
func (t *Tools) FindCallees(id uuid.UUID) []uuid.UUID {
	return t.callees[id]
}

// TracePath runs a bounded BFS from src to dst over Uses edges, returning
// the shortest path (inclusive of both ends) or nil if unreachable within
// maxDepth hops.
func (t *Tools) TracePath(src, dst uuid.UUID, maxDepth int) []uuid.UUID {
	if src == dst {
		return []uuid.UUID{src}
	}
	type frame struct {
		id   uuid.UUID
		path []uuid.UUID
	}
	visited := map[uuid.UUID]bool{src: true}
	queue := []frame{{id: src, path: []uuid.UUID{src}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.path)-1 >= maxDepth {
			continue
		}
		for _, next := range t.callees[cur.id] {
			if visited[next] {
				continue
			}
			nextPath := append(append([]uuid.UUID{}, cur.path...), next)
			if next == dst {
				return nextPath
			}
			visited[next] = true
			queue = append(queue, frame{id: next, path: nextPath})
		}
	}
	return nil
}

// ListFiles returns every indexed file path.
func (t *Tools) ListFiles() []string {
	out := make([]string, 0, len(t.files))
	for path := range t.files {
		out = append(out, path)
	}
	return out
}

// DirectorySummary counts indexed nodes per file beneath prefix.
func (t *Tools) DirectorySummary(prefix string) map[string]int {
	summary := make(map[string]int)
	for path, ids := range t.files {
		if len(prefix) == 0 || hasPrefixPath(path, prefix) {
			summary[path] = len(ids)
		}
	}
	return summary
}

func hasPrefixPath(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

// IndexStatus reports coarse index coverage: total node count and file
// count, for the CLI's `ploke status` surface.
type IndexStatus struct {
	TotalNodes int
	TotalFiles int
}

// Status summarizes the current index.
func (t *Tools) Status() IndexStatus {
	total := 0
	for _, ids := range t.files {
		total += len(ids)
	}
	return IndexStatus{TotalNodes: total, TotalFiles: len(t.files)}
}
