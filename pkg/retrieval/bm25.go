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

// Package retrieval implements hybrid dense+lexical search over the graph
// store and token-budgeted context assembly, plus the thin tool-surface
// wrappers the out-of-core tool-calling layer consumes.
package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// BM25 parameters. No pack or original-source pin overrides these, so the
// standard defaults are used (see DESIGN.md Open Questions).
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return tokenPattern.FindAllString(lower, -1)
}

// LexicalDoc is one document in the BM25 index.
type LexicalDoc struct {
	NodeID uuid.UUID
	Text   string
}

// LexicalIndex is an in-memory BM25 index, rebuilt explicitly by the
// caller (e.g. on a schedule or after a reindex) rather than kept live —
// queries must succeed against a stale index.
type LexicalIndex struct {
	docs      []LexicalDoc
	docTokens [][]string
	docLen    []int
	avgDocLen float64
	termDF    map[string]int
	postings  map[string]map[int]int // term -> docIndex -> term frequency
}

// BuildLexicalIndex tokenizes every doc and computes document frequencies
// and term frequencies once, up front.
func BuildLexicalIndex(docs []LexicalDoc) *LexicalIndex {
	idx := &LexicalIndex{
		docs:     docs,
		termDF:   make(map[string]int),
		postings: make(map[string]map[int]int),
	}

	var totalLen int
	for i, d := range docs {
		tokens := tokenize(d.Text)
		idx.docTokens = append(idx.docTokens, tokens)
		idx.docLen = append(idx.docLen, len(tokens))
		totalLen += len(tokens)

		tf := make(map[string]int)
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, freq := range tf {
			idx.termDF[term]++
			if idx.postings[term] == nil {
				idx.postings[term] = make(map[int]int)
			}
			idx.postings[term][i] = freq
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	return idx
}

// Hit is a single scored search result, dense or lexical.
type Hit struct {
	NodeID uuid.UUID
	Score  float64
}

// Search scores query against every document via Okapi BM25 and returns
// the top-k hits descending by score, ties broken by NodeID ascending for
// determinism.
func (idx *LexicalIndex) Search(query string, k int) []Hit {
	n := len(idx.docs)
	if n == 0 {
		return nil
	}
	queryTerms := tokenize(query)

	scores := make(map[int]float64)
	for _, term := range queryTerms {
		df, ok := idx.termDF[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for docIdx, tf := range idx.postings[term] {
			dl := float64(idx.docLen[docIdx])
			denom := float64(tf) + bm25K1*(1-bm25B+bm25B*dl/idx.avgDocLen)
			scores[docIdx] += idf * (float64(tf) * (bm25K1 + 1)) / denom
		}
	}

	hits := make([]Hit, 0, len(scores))
	for docIdx, score := range scores {
		hits = append(hits, Hit{NodeID: idx.docs[docIdx].NodeID, Score: score})
	}
	sortHits(hits)
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].NodeID.String() < hits[j].NodeID.String()
	})
}
