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

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrateNamespaceDeterministic(t *testing.T) {
	a := CrateNamespace("/tmp/crate-a")
	b := CrateNamespace("/tmp/crate-a")
	c := CrateNamespace("/tmp/crate-b")

	assert.Equal(t, a, b, "same path must yield same namespace")
	assert.NotEqual(t, a, c, "different paths must yield different namespaces")
}

func TestNodeIDDeterministic(t *testing.T) {
	ns := CrateNamespace("/tmp/crate-a")

	id1 := NodeID(ns, "src/lib.rs", []string{"crate"}, "foo", 0, 15)
	id2 := NodeID(ns, "src/lib.rs", []string{"crate"}, "foo", 0, 15)
	require.Equal(t, id1, id2)

	id3 := NodeID(ns, "src/lib.rs", []string{"crate"}, "foo", 0, 16)
	assert.NotEqual(t, id1, id3, "different span must yield different id")
}

func TestNodeIDsNeverCollideAcrossNames(t *testing.T) {
	ns := CrateNamespace("/tmp/crate-a")
	seen := make(map[string]bool)
	names := []string{"foo", "bar", "baz", "Foo", "foo2"}
	for _, n := range names {
		id := NodeID(ns, "src/lib.rs", []string{"crate"}, n, 0, 10)
		key := id.String()
		assert.False(t, seen[key], "collision for name %s", n)
		seen[key] = true
	}
}

func TestTypeIDStructuralEquality(t *testing.T) {
	ns := CrateNamespace("/tmp/crate-a")

	a := TypeID(ns, "Vec<String>")
	b := TypeID(ns, "Vec<String>")
	c := TypeID(ns, "Vec<i32>")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestTrackingHashChangesWithContent(t *testing.T) {
	ns := CrateNamespace("/tmp/crate-a")

	h1 := TrackingHash(ns, []byte("fn foo() {}\n"))
	h2 := TrackingHash(ns, []byte("fn foo() {}\n"))
	h3 := TrackingHash(ns, []byte("fn bar() {}\n"))

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}
