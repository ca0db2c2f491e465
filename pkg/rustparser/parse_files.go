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

package rustparser

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// parallelFileThreshold mirrors the teacher's parseFilesParallel: below
// this many files, the worker-pool setup cost isn't worth it and parsing
// runs sequentially on the calling goroutine.
const parallelFileThreshold = 10

// FileJob is one file to parse: its path and the canonical module path the
// module-tree resolver's conventional layout rules assigned it.
type FileJob struct {
	Path    string
	ModPath []string
}

// FileError pairs a failed job with the error ParseFile returned for it.
type FileError struct {
	Path string
	Err  error
}

// ParseFilesResult is ParseFiles's aggregate output: one PerFileGraph per
// successfully parsed file (order matches jobs, with failed entries
// omitted) plus the per-file errors encountered.
type ParseFilesResult struct {
	Graphs []rustgraph.PerFileGraph
	Errors []FileError
}

// ParseFiles parses every job, choosing a sequential or worker-pool
// dispatch strategy by file count exactly as the teacher's
// parseFilesParallel/parseFilesSequential split does for its Go/Python/
// JS/TS pipeline (pkg/ingestion/local_pipeline.go). The parallel path uses
// golang.org/x/sync/errgroup, capped at runtime.NumCPU() (max 8) workers,
// matching the worker-cap convention pkg/modtree's re-export resolver
// already uses for the same reason: bound native-parser/CGO-adjacent
// concurrency regardless of core count.
func (p *Parser) ParseFiles(ctx context.Context, namespace uuid.UUID, jobs []FileJob) *ParseFilesResult {
	if len(jobs) < parallelFileThreshold {
		return p.parseFilesSequential(ctx, namespace, jobs)
	}
	return p.parseFilesParallel(ctx, namespace, jobs)
}

func (p *Parser) parseFilesSequential(ctx context.Context, namespace uuid.UUID, jobs []FileJob) *ParseFilesResult {
	result := &ParseFilesResult{}
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			result.Errors = append(result.Errors, FileError{Path: job.Path, Err: ctx.Err()})
			continue
		default:
		}

		fg, err := p.ParseFile(ctx, namespace, job.Path, job.ModPath)
		if err != nil {
			p.logger.Warn("rustparser.parse_file.error", "path", job.Path, "err", err)
			result.Errors = append(result.Errors, FileError{Path: job.Path, Err: err})
			continue
		}
		result.Graphs = append(result.Graphs, *fg)
	}
	return result
}

func (p *Parser) parseFilesParallel(ctx context.Context, namespace uuid.UUID, jobs []FileJob) *ParseFilesResult {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if workers < 1 {
		workers = 1
	}

	graphs := make([]*rustgraph.PerFileGraph, len(jobs))
	errs := make([]*FileError, len(jobs))

	// errgroup.WithContext cancels the shared context on the first
	// returned error, but a per-file parse failure is recorded, not
	// propagated, so one bad file doesn't abort the rest of the batch —
	// only a ctx cancellation (caller-driven, or process shutdown) does.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			select {
			case <-gctx.Done():
				errs[i] = &FileError{Path: job.Path, Err: gctx.Err()}
				return nil
			default:
			}

			fg, err := p.ParseFile(gctx, namespace, job.Path, job.ModPath)
			if err != nil {
				p.logger.Warn("rustparser.parse_file.error", "path", job.Path, "err", err)
				errs[i] = &FileError{Path: job.Path, Err: err}
				return nil
			}
			graphs[i] = fg
			return nil
		})
	}
	_ = g.Wait() // jobs never return a non-nil error themselves; Wait only surfaces ctx cancellation, already recorded per-file above.

	result := &ParseFilesResult{}
	for i := range jobs {
		if graphs[i] != nil {
			result.Graphs = append(result.Graphs, *graphs[i])
		}
		if errs[i] != nil {
			result.Errors = append(result.Errors, *errs[i])
		}
	}
	return result
}
