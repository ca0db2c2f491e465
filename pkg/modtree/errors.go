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

import "fmt"

// DuplicateModulePathError is fatal: two modules were indexed under the same
// canonical path.
type DuplicateModulePathError struct {
	Path []string
}

func (e *DuplicateModulePathError) Error() string {
	return fmt.Sprintf("duplicate module path %q", joinPath(e.Path))
}

// ReExportChainTooLongError is fatal: a `pub use` chain exceeded the
// configured depth limit before reaching a definition.
type ReExportChainTooLongError struct {
	Path  []string
	Depth int
	Limit int
}

func (e *ReExportChainTooLongError) Error() string {
	return fmt.Sprintf("re-export chain at %q exceeded depth limit (%d > %d)", joinPath(e.Path), e.Depth, e.Limit)
}

// AmbiguousModuleDefinitionError is fatal: a Declaration module resolved to
// more than one candidate file, or to a file already bound to another
// declaration.
type AmbiguousModuleDefinitionError struct {
	Path       []string
	Candidates []string
}

func (e *AmbiguousModuleDefinitionError) Error() string {
	return fmt.Sprintf("ambiguous module definition for %q: %v", joinPath(e.Path), e.Candidates)
}

