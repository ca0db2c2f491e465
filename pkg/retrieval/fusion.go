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
)

// FusionWeights configures reciprocal-rank fusion's per-source weight.
type FusionWeights struct {
	Dense    float64
	Lexical  float64
	RRFConst float64 // the "k" in 1/(k+rank); 60 is the standard RRF constant.
}

// DefaultFusionWeights weighs both sources equally with the standard RRF
// constant.
var DefaultFusionWeights = FusionWeights{Dense: 1, Lexical: 1, RRFConst: 60}

// Fuse combines dense and lexical hit lists (each already ranked
// best-first) via weighted reciprocal-rank fusion, returning one ranked
// list. Ties broken by NodeID ascending for determinism.
func Fuse(dense, lexical []Hit, weights FusionWeights) []Hit {
	if weights.RRFConst <= 0 {
		weights.RRFConst = 60
	}
	scores := make(map[uuid.UUID]float64)
	add := func(hits []Hit, weight float64) {
		for rank, h := range hits {
			scores[h.NodeID] += weight / (weights.RRFConst + float64(rank+1))
		}
	}
	add(dense, weights.Dense)
	add(lexical, weights.Lexical)

	fused := make([]Hit, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, Hit{NodeID: id, Score: score})
	}
	sortHits(fused)
	return fused
}
