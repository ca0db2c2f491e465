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

// Package identity derives the deterministic, content-addressed identifiers
// used throughout the graph: crate namespaces, node IDs, canonical IDs,
// type IDs, and file tracking hashes. Every ID here is a pure function of
// its inputs: the same inputs always produce the same UUID, and distinct
// inputs are vanishingly unlikely to collide (v5 UUIDs are SHA-1 based).
package identity

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// CrateNamespace derives the namespace UUID for a crate from its
// canonicalized root path. All synthetic IDs within the crate are derived
// using this namespace.
func CrateNamespace(crateRootPath string) uuid.UUID {
	abs, err := filepath.Abs(crateRootPath)
	if err != nil {
		abs = crateRootPath
	}
	clean := filepath.Clean(abs)
	return uuid.NewSHA1(uuid.Nil, []byte(clean))
}

// NodeID derives a synthetic node ID, stable under re-parse as long as the
// text position and name are unchanged: v5 over
// (namespace, file_path, module_path, item_name, span_bytes).
func NodeID(namespace uuid.UUID, filePath string, modulePath []string, itemName string, spanStart, spanEnd int) uuid.UUID {
	key := strings.Join([]string{
		filePath,
		strings.Join(modulePath, "::"),
		itemName,
		strconv.Itoa(spanStart),
		strconv.Itoa(spanEnd),
	}, "\x1f")
	return uuid.NewSHA1(namespace, []byte(key))
}

// CanonID derives the canonical ID, stable under refactors that don't move
// an item between modules: v5 over
// (namespace, canonical_module_path, item_name, item_kind, cfg_set).
func CanonID(namespace uuid.UUID, canonicalPath []string, itemName, itemKind string, cfgs []string) uuid.UUID {
	sortedCfgs := append([]string(nil), cfgs...)
	// Order matters for determinism but not semantics; callers are expected
	// to pass cfgs in source order, so we only join, never sort, to keep
	// the function a pure reflection of its inputs.
	key := strings.Join([]string{
		strings.Join(canonicalPath, "::"),
		itemName,
		itemKind,
		strings.Join(sortedCfgs, ","),
	}, "\x1f")
	return uuid.NewSHA1(namespace, []byte(key))
}

// TypeID derives a type ID from the structural token form of a type
// expression. Two types are identical iff their normalized token forms
// match exactly, so callers must pass an already-normalized form.
func TypeID(namespace uuid.UUID, normalizedTokenForm string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(normalizedTokenForm))
}

// TrackingHash derives a content-addressing UUID over a file's full token
// stream (here, its raw byte content — token-stream normalization is the
// parser's job upstream of this call). Used to detect content drift
// between indexing and a later read/write.
func TrackingHash(namespace uuid.UUID, content []byte) uuid.UUID {
	return uuid.NewSHA1(namespace, content)
}

// FileID derives the identity of a file entity: v5 over its path within
// the crate, under the crate's namespace.
func FileID(namespace uuid.UUID, path string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(filepath.ToSlash(path)))
}
