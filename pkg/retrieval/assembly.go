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
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/kraklabs/ploke/pkg/ioengine"
)

// PartKind classifies an assembled context part by what it shows the
// model: the implementation, its doc comment, its signature only, or pure
// metadata (e.g. a module listing) with no source text at all.
type PartKind string

const (
	PartCode     PartKind = "Code"
	PartDoc      PartKind = "Doc"
	PartSignature PartKind = "Signature"
	PartMetadata PartKind = "Metadata"
)

// TokenBudget bounds context assembly: Total caps the whole assembled
// context; PerPart caps any single part before accumulation.
type TokenBudget struct {
	Total   int
	PerPart int
}

// TopK returns the spec's top-k heuristic: clamp(total/200, 5, 20).
func (b TokenBudget) TopK() int {
	k := b.Total / 200
	if k < 5 {
		return 5
	}
	if k > 20 {
		return 20
	}
	return k
}

// estimateTokens approximates token count as the number of
// whitespace-delimited words (1 for non-empty text with no words), without
// depending on a model-specific tokenizer.
func estimateTokens(s string) int {
	n := len(strings.Fields(s))
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// ByteRange identifies a span within a file for dedup purposes.
type ByteRange struct {
	Start, End int
}

// ContextPart is one piece of assembled context.
type ContextPart struct {
	NodeID uuid.UUID
	Path   string
	Range  ByteRange
	Kind   PartKind
	Text   string
	Tokens int
}

// ContextStats summarizes an AssembledContext.
type ContextStats struct {
	TotalTokens    int
	Files          int
	Parts          int
	TruncatedParts int
	DedupRemoved   int
}

// AssembledContext is the retrieval layer's final output: the ranked,
// budgeted, deduplicated set of parts plus summary stats.
type AssembledContext struct {
	Parts []ContextPart
	Stats ContextStats
}

// SnippetSource fetches the text for a (path, byte range), matching the
// I/O kernel's batched get operation.
type SnippetSource interface {
	GetSnippetsBatch(ctx context.Context, reqs []ioengine.SnippetRequest) []ioengine.Result[string]
}

// Classifier maps a hit's node ID to the file path, byte range, content
// hash, and part kind to assemble for it.
type Classifier interface {
	Classify(nodeID uuid.UUID) (path string, hash ioengine.TrackingHash, rng ByteRange, kind PartKind, ok bool)
}

// Assemble fetches each hit's snippet, classifies it, trims to PerPart by
// whole-line boundaries, deduplicates overlapping (file, byte_range)
// spans, and accumulates until Total is exhausted.
func Assemble(ctx context.Context, hits []Hit, budget TokenBudget, classifier Classifier, source SnippetSource) (*AssembledContext, error) {
	type pending struct {
		hit   Hit
		path  string
		hash  ioengine.TrackingHash
		rng   ByteRange
		kind  PartKind
	}

	var plan []pending
	var reqs []ioengine.SnippetRequest
	for _, h := range hits {
		path, hash, rng, kind, ok := classifier.Classify(h.NodeID)
		if !ok {
			continue
		}
		plan = append(plan, pending{hit: h, path: path, hash: hash, rng: rng, kind: kind})
		reqs = append(reqs, ioengine.SnippetRequest{Path: path, ExpectedHash: hash, Start: rng.Start, End: rng.End})
	}

	fetched := source.GetSnippetsBatch(ctx, reqs)

	seen := make(map[string][]ByteRange)
	stats := ContextStats{}
	var parts []ContextPart
	filesSeen := make(map[string]struct{})

	budgetRemaining := budget.Total
	for i, p := range plan {
		if fetched[i].Err != nil {
			continue
		}
		text := fetched[i].Value

		if overlaps(seen[p.path], p.rng) {
			stats.DedupRemoved++
			continue
		}

		truncated := false
		if budget.PerPart > 0 && estimateTokens(text) > budget.PerPart {
			text = trimToTokenBudget(text, budget.PerPart)
			truncated = true
		}

		tokens := estimateTokens(text)
		if budgetRemaining > 0 && tokens > budgetRemaining {
			text = trimToTokenBudget(text, budgetRemaining)
			tokens = estimateTokens(text)
			truncated = true
		}
		if tokens == 0 {
			break
		}

		seen[p.path] = append(seen[p.path], p.rng)
		filesSeen[p.path] = struct{}{}
		parts = append(parts, ContextPart{
			NodeID: p.hit.NodeID, Path: p.path, Range: p.rng, Kind: p.kind, Text: text, Tokens: tokens,
		})
		stats.TotalTokens += tokens
		if truncated {
			stats.TruncatedParts++
		}

		if budget.Total > 0 {
			budgetRemaining -= tokens
			if budgetRemaining <= 0 {
				break
			}
		}
	}

	stats.Parts = len(parts)
	stats.Files = len(filesSeen)
	return &AssembledContext{Parts: parts, Stats: stats}, nil
}

func overlaps(existing []ByteRange, rng ByteRange) bool {
	for _, e := range existing {
		if rng.Start < e.End && e.Start < rng.End {
			return true
		}
	}
	return false
}

// trimToTokenBudget trims text to at most budget whitespace-delimited
// tokens, cutting at whole-line boundaries so truncation never splits a
// line mid-statement.
func trimToTokenBudget(text string, budget int) string {
	lines := strings.Split(text, "\n")
	var out []string
	tokens := 0
	for _, line := range lines {
		lineTokens := estimateTokens(line)
		if tokens+lineTokens > budget && len(out) > 0 {
			break
		}
		out = append(out, line)
		tokens += lineTokens
		if tokens >= budget {
			break
		}
	}
	return strings.Join(out, "\n")
}
