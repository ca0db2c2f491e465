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

// Package editengine turns model-proposed edits into reviewable,
// atomically applicable mutations: a Pending/Denied/Applied/Stale state
// machine over EditProposal values, applied in batch through the I/O
// kernel.
package editengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/ploke/pkg/ioengine"
)

// Status is a proposal's state-machine state.
type Status string

const (
	StatusPending Status = "Pending"
	StatusDenied  Status = "Denied"
	StatusApplied Status = "Applied"
	StatusStale   Status = "Stale"
)

// EditKind distinguishes the two edit variants.
type EditKind string

const (
	KindCanonical EditKind = "Canonical"
	KindSplice    EditKind = "Splice"
)

// Edit is one proposed mutation, either a Canonical (resolved against an
// existing node's current span) or a raw Splice.
type Edit struct {
	Kind EditKind

	// Canonical fields.
	CanonicalPath string
	NodeType      string

	// Shared/Splice fields.
	File         string
	ExpectedHash ioengine.TrackingHash
	Start        int
	End          int
	Replacement  string
	Namespace    string

	// Code is the replacement text for a Canonical edit; Replacement is
	// used directly for Splice.
	Code string
}

// ByteRange returns the edit's target (file, byte range), used for
// overlap detection.
func (e Edit) ByteRange() (file string, start, end int) {
	return e.File, e.Start, e.End
}

// Proposal is a reviewable group of edits with preview text, tracked
// through the Pending→Denied/Applied/Stale state machine.
type Proposal struct {
	RequestID  uuid.UUID
	CallID     string
	Edits      []Edit
	Preview    string
	ProposedAt time.Time
	Status     Status
	Reason     string
}

func (p *Proposal) overlapsFile(file string, start, end int) bool {
	for _, e := range p.Edits {
		if e.File != file {
			continue
		}
		if start < e.End && e.Start < end {
			return true
		}
	}
	return false
}

func (p *Proposal) overlaps(other *Proposal) bool {
	for _, e := range other.Edits {
		if p.overlapsFile(e.File, e.Start, e.End) {
			return true
		}
	}
	return false
}

// NodeResolver resolves a Canonical edit's (file, canonical_path,
// node_type) to the node's current (start, end) span and content hash, so
// Canonical edits can be rewritten into Splice edits before apply.
type NodeResolver interface {
	ResolveSpan(file, canonicalPath, nodeType string) (hash ioengine.TrackingHash, start, end int, ok bool)
}

// Engine owns the proposal set and drives the state machine. All methods
// are safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	proposals map[uuid.UUID]*Proposal
	io        *ioengine.Manager
	resolver  NodeResolver
}

// New creates an Engine.
func New(io *ioengine.Manager, resolver NodeResolver) *Engine {
	return &Engine{proposals: make(map[uuid.UUID]*Proposal), io: io, resolver: resolver}
}

// Create registers a new Pending proposal.
func (e *Engine) Create(edits []Edit, preview string) *Proposal {
	p := &Proposal{
		RequestID:  uuid.New(),
		Edits:      edits,
		Preview:    preview,
		ProposedAt: nowProvider(),
		Status:     StatusPending,
	}
	e.mu.Lock()
	e.proposals[p.RequestID] = p
	e.mu.Unlock()
	return p
}

// nowProvider is indirected so tests can observe ordering without relying
// on wall-clock time; production code leaves it as time.Now.
var nowProvider = time.Now

// Get returns a proposal by ID.
func (e *Engine) Get(id uuid.UUID) (*Proposal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.proposals[id]
	return p, ok
}

// List returns every tracked proposal in no particular order.
func (e *Engine) List() []*Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Proposal, 0, len(e.proposals))
	for _, p := range e.proposals {
		out = append(out, p)
	}
	return out
}

// Load registers a previously-created Proposal as-is, for a process that
// rehydrates proposal state persisted by an earlier one (the CLI's
// propose/approve commands run as separate processes and have no
// long-lived Engine to share).
func (e *Engine) Load(p *Proposal) {
	e.mu.Lock()
	e.proposals[p.RequestID] = p
	e.mu.Unlock()
}

// Deny transitions a Pending proposal to the terminal Denied state.
func (e *Engine) Deny(id uuid.UUID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.proposals[id]
	if !ok {
		return fmt.Errorf("unknown proposal %s", id)
	}
	if p.Status != StatusPending {
		return fmt.Errorf("proposal %s is %s, not Pending", id, p.Status)
	}
	p.Status = StatusDenied
	p.Reason = reason
	return nil
}

// Approve applies a single Pending proposal's edits via the I/O kernel in
// one batch. On any per-file failure, none of that proposal's edits are
// committed and the proposal remains Pending.
func (e *Engine) Approve(ctx context.Context, id uuid.UUID) error {
	e.mu.Lock()
	p, ok := e.proposals[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown proposal %s", id)
	}
	if p.Status != StatusPending {
		return fmt.Errorf("proposal %s is %s, not Pending", id, p.Status)
	}

	writes, err := e.resolveWrites(p.Edits)
	if err != nil {
		return err
	}

	results := e.io.WriteSnippetsBatch(ctx, writes)
	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("apply proposal %s: %w", id, r.Err)
		}
	}

	e.mu.Lock()
	p.Status = StatusApplied
	e.mu.Unlock()
	return nil
}

// ApproveAll approves every Pending proposal, newest proposal per file
// winning: for each file, the most recently proposed overlapping
// proposal is applied and all older overlapping Pending proposals are
// marked Stale before any writes happen.
func (e *Engine) ApproveAll(ctx context.Context) ([]uuid.UUID, error) {
	e.mu.Lock()
	var pending []*Proposal
	for _, p := range e.proposals {
		if p.Status == StatusPending {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ProposedAt.After(pending[j].ProposedAt) })

	var winners []*Proposal
	staled := make(map[uuid.UUID]bool)
	for _, p := range pending {
		if staled[p.RequestID] {
			continue
		}
		winners = append(winners, p)
		for _, other := range pending {
			if other.RequestID == p.RequestID || staled[other.RequestID] {
				continue
			}
			if p.overlaps(other) {
				staled[other.RequestID] = true
			}
		}
	}
	for id := range staled {
		e.proposals[id].Status = StatusStale
	}
	e.mu.Unlock()

	var applied []uuid.UUID
	for _, p := range winners {
		if err := e.Approve(ctx, p.RequestID); err != nil {
			return applied, err
		}
		applied = append(applied, p.RequestID)
	}
	return applied, nil
}

// resolveWrites turns each edit into a WriteSnippetData, resolving
// Canonical edits against the current node span via resolver.
func (e *Engine) resolveWrites(edits []Edit) ([]ioengine.WriteSnippetData, error) {
	out := make([]ioengine.WriteSnippetData, 0, len(edits))
	for _, ed := range edits {
		switch ed.Kind {
		case KindSplice:
			out = append(out, ioengine.WriteSnippetData{
				Path: ed.File, ExpectedHash: ed.ExpectedHash, Start: ed.Start, End: ed.End, Replacement: ed.Replacement,
			})
		case KindCanonical:
			if e.resolver == nil {
				return nil, fmt.Errorf("canonical edit for %s requires a NodeResolver", ed.CanonicalPath)
			}
			hash, start, end, ok := e.resolver.ResolveSpan(ed.File, ed.CanonicalPath, ed.NodeType)
			if !ok {
				return nil, fmt.Errorf("cannot resolve canonical target %s (%s) in %s", ed.CanonicalPath, ed.NodeType, ed.File)
			}
			out = append(out, ioengine.WriteSnippetData{
				Path: ed.File, ExpectedHash: hash, Start: start, End: end, Replacement: ed.Code,
			})
		default:
			return nil, fmt.Errorf("unknown edit kind %q", ed.Kind)
		}
	}
	return out, nil
}

// Rescan re-hashes every file touched by a just-applied proposal's edits,
// the post-apply step §4.7 requires so downstream node spans and tracking
// hashes stay consistent with what's on disk.
func (e *Engine) Rescan(ctx context.Context, p *Proposal, lastKnown map[string]ioengine.TrackingHash) ([]ioengine.ChangedFileData, error) {
	seen := make(map[string]struct{})
	var files []ioengine.FileData
	for _, ed := range p.Edits {
		if _, ok := seen[ed.File]; ok {
			continue
		}
		seen[ed.File] = struct{}{}
		files = append(files, ioengine.FileData{Path: ed.File, LastHash: lastKnown[ed.File]})
	}
	return e.io.ScanChangesBatch(ctx, files)
}
