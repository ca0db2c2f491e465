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

// VectorDimensionSpec parameterizes the HNSW index for a given embedding
// dimension. Values are ported from the dimension-specific spec table used
// across the multi-embedding store: these four rows are the only
// dimensions with dedicated tuning; any other dimension falls back to the
// 768-dim row (DefaultDimensionSpec) with a logged warning.
type VectorDimensionSpec struct {
	Dimension        int
	ProviderExample  string
	M                int
	EfConstruction   int
	SearchEf         int
}

// VectorDimensionSpecs is the full table, ordered by dimension ascending.
var VectorDimensionSpecs = []VectorDimensionSpec{
	{Dimension: 384, ProviderExample: "all-MiniLM-L6-v2", M: 16, EfConstruction: 100, SearchEf: 40},
	{Dimension: 768, ProviderExample: "nomic-embed-text", M: 16, EfConstruction: 200, SearchEf: 64},
	{Dimension: 1024, ProviderExample: "bge-large / cohere-embed", M: 24, EfConstruction: 250, SearchEf: 80},
	{Dimension: 1536, ProviderExample: "text-embedding-3-small", M: 32, EfConstruction: 300, SearchEf: 100},
}

// DimensionSpecFor returns the spec row for dim, or the 768-dim row as a
// fallback (with ok=false to let the caller log a warning).
func DimensionSpecFor(dim int) (spec VectorDimensionSpec, ok bool) {
	for _, s := range VectorDimensionSpecs {
		if s.Dimension == dim {
			return s, true
		}
	}
	for _, s := range VectorDimensionSpecs {
		if s.Dimension == 768 {
			return s, false
		}
	}
	return VectorDimensionSpec{Dimension: dim, M: 16, EfConstruction: 200, SearchEf: 64}, false
}
