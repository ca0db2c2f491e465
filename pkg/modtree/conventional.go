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
	"os"
	"path/filepath"
	"strings"
)

// ConventionalPath derives the canonical, crate-rooted module path a file
// occupies under Rust's default layout rules, given the file's path
// relative to the crate root and the name of the crate root file itself
// (e.g. "src/lib.rs" or "src/main.rs").
//
// "src/lib.rs" and "src/main.rs" map to ["crate"]. "src/foo.rs" and
// "src/foo/mod.rs" both map to ["crate", "foo"]. This is what the parser
// (C) is handed as a file's starting module path before a single item is
// walked; the resolver only needs to correct it afterward for the rare
// `#[path = "..."]` override case.
func ConventionalPath(crateRootFile, filePath string) []string {
	crateDir := filepath.Dir(filepath.ToSlash(crateRootFile))
	rel := filepath.ToSlash(filePath)
	if crateDir != "." {
		if trimmed := strings.TrimPrefix(rel, crateDir+"/"); trimmed != rel {
			rel = trimmed
		}
	}

	if filePath == crateRootFile {
		return []string{"crate"}
	}

	rel = strings.TrimSuffix(rel, ".rs")
	rel = strings.TrimSuffix(rel, "/mod")
	if rel == "" {
		return []string{"crate"}
	}

	segs := strings.Split(rel, "/")
	return append([]string{"crate"}, segs...)
}

// candidateFiles returns the file paths the conventional-layout search
// would check for a Declaration module at canonical path declPath, rooted
// under srcRoot (the directory containing the crate root file).
func candidateFiles(srcRoot string, declPath []string) []string {
	if len(declPath) <= 1 {
		return nil
	}
	rel := filepath.Join(declPath[1:]...)
	return []string{
		filepath.ToSlash(filepath.Join(srcRoot, rel+".rs")),
		filepath.ToSlash(filepath.Join(srcRoot, rel, "mod.rs")),
	}
}

// pathAttrCandidate resolves a `#[path = "..."]` override, relative to the
// directory of the file containing the declaration.
func pathAttrCandidate(declaringFile, override string) string {
	dir := filepath.Dir(declaringFile)
	return filepath.ToSlash(filepath.Join(dir, override))
}

// defaultFileExists is the filesystem-backed existence check used outside
// tests.
func defaultFileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
