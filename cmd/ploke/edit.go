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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ploke/internal/plokeerr"
	"github.com/kraklabs/ploke/internal/ui"
	"github.com/kraklabs/ploke/pkg/editengine"
	"github.com/kraklabs/ploke/pkg/graphstore"
	"github.com/kraklabs/ploke/pkg/ioengine"
)

// proposalsDir returns <data_dir>/proposals, where each pending/resolved
// Proposal is persisted as one JSON file keyed by its RequestID. The
// editengine.Engine that tracks proposal state lives only for the
// duration of one CLI invocation, so the proposal set has to survive
// between a `propose` call and a later `approve`/`deny` call some other
// process makes.
func proposalsDir(projectID string) (string, error) {
	dataDir, err := DataDir(projectID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "proposals"), nil
}

func proposalPath(dir string, id uuid.UUID) string {
	return filepath.Join(dir, id.String()+".json")
}

func saveProposal(dir string, p *editengine.Proposal) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(proposalPath(dir, p.RequestID), data, 0600)
}

func loadProposal(dir string, id uuid.UUID) (*editengine.Proposal, error) {
	data, err := os.ReadFile(proposalPath(dir, id)) //nolint:gosec // G304: path built from a validated UUID
	if err != nil {
		return nil, err
	}
	var p editengine.Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func loadAllProposals(dir string) ([]*editengine.Proposal, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*editengine.Proposal
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		data, readErr := os.ReadFile(filepath.Join(dir, ent.Name())) //nolint:gosec // G304: dir is our own data dir, names are our own
		if readErr != nil {
			continue
		}
		var p editengine.Proposal
		if jsonErr := json.Unmarshal(data, &p); jsonErr != nil {
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}

// storeNodeResolver satisfies editengine.NodeResolver by querying the
// relation of the given node type for a (file_path, module_path, name)
// match, the same relation-probe shape query.go's storeClassifier uses for
// node IDs.
type storeNodeResolver struct {
	ctx   context.Context
	store *graphstore.Store
}

func (r *storeNodeResolver) ResolveSpan(file, canonicalPath, nodeType string) (ioengine.TrackingHash, int, int, bool) {
	spec, ok := graphstore.SpecForKind(graphstore.NodeKind(nodeType))
	if !ok {
		return "", 0, 0, false
	}
	modulePath, name := "", canonicalPath
	if idx := strings.LastIndex(canonicalPath, "::"); idx >= 0 {
		modulePath, name = canonicalPath[:idx], canonicalPath[idx+2:]
	}
	script := fmt.Sprintf(
		"?[span_start, span_end] := *%s{file_path: $file, module_path: $mod, name: $name, span_start, span_end}",
		spec.Relation)
	rows, err := r.store.Query(r.ctx, script, map[string]any{"file": file, "mod": modulePath, "name": name})
	if err != nil || len(rows.Rows) == 0 {
		return "", 0, 0, false
	}
	row := rows.Rows[0]
	start, _ := strconv.Atoi(fmt.Sprintf("%v", row[0]))
	end, _ := strconv.Atoi(fmt.Sprintf("%v", row[1]))
	data, readErr := os.ReadFile(file) //nolint:gosec // G304: file path comes from the graph store, populated by our own indexer
	if readErr != nil {
		return "", 0, 0, false
	}
	return ioengine.HashContent(data), start, end, true
}

// runEditPropose executes the 'propose' CLI command: build one Edit,
// either a raw byte-range Splice (--file/--start/--end/--replace) or a
// Canonical edit resolved against the current node span
// (--file/--canonical/--kind/--code), and persist the resulting Pending
// Proposal for a later `ploke approve`.
func runEditPropose(args []string, configPath string, globals GlobalFlags) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}

	fs := flag.NewFlagSet("propose", flag.ExitOnError)
	file := fs.String("file", "", "File the edit targets (required)")
	start := fs.Int("start", -1, "Byte offset start (splice mode)")
	end := fs.Int("end", -1, "Byte offset end, exclusive (splice mode)")
	replace := fs.String("replace", "", "Replacement text (splice mode)")
	canonical := fs.String("canonical", "", "Canonical path, e.g. crate::foo::Bar (canonical mode)")
	kind := fs.String("kind", "", "Node kind for --canonical (function, struct, enum, ...)")
	code := fs.String("code", "", "Replacement source text (canonical mode)")
	preview := fs.String("preview", "", "Human-readable preview shown by 'ploke edits'")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage:
  ploke propose --file F --start N --end N --replace TEXT [--preview TEXT]
  ploke propose --file F --canonical PATH --kind KIND --code TEXT [--preview TEXT]

Description:
  Register a Pending edit proposal against the indexed crate. Splice mode
  replaces a raw byte range; canonical mode resolves PATH (a "crate::a::B"
  style path) of the given KIND against its current span in the graph
  store before registering the edit. Neither mode writes to disk; run
  'ploke approve <id>' to apply.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *file == "" {
		plokeerr.FatalError(plokeerr.NewInputError(
			"--file is required",
			"No target file provided",
			"Provide --file pointing at a file within the indexed crate",
			nil,
		), globals.JSON)
	}
	absFile, err := filepath.Abs(*file)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}

	var edit editengine.Edit
	switch {
	case *canonical != "":
		if *kind == "" || *code == "" {
			plokeerr.FatalError(plokeerr.NewInputError(
				"Canonical mode requires --kind and --code",
				"Both flags must be set alongside --canonical",
				"Example: ploke propose --file src/lib.rs --canonical crate::foo --kind function --code 'fn foo() {}'",
				nil,
			), globals.JSON)
		}
		dataDir, dirErr := DataDir(cfg.ProjectID)
		if dirErr != nil {
			plokeerr.FatalError(dirErr, globals.JSON)
		}
		store, openErr := graphstore.Open(graphstore.Config{DataDir: dataDir, ProjectID: cfg.ProjectID})
		if openErr != nil {
			plokeerr.FatalError(plokeerr.NewDatabaseError("Cannot open graph store", openErr.Error(), "Run 'ploke index' first", openErr), globals.JSON)
		}
		defer func() { _ = store.Close() }()

		resolver := &storeNodeResolver{ctx: context.Background(), store: store}
		hash, spanStart, spanEnd, ok := resolver.ResolveSpan(absFile, *canonical, *kind)
		if !ok {
			plokeerr.FatalError(plokeerr.NewInputError(
				"Cannot resolve canonical target",
				fmt.Sprintf("No %s node named %q found in %s", *kind, *canonical, absFile),
				"Check the canonical path, kind, and that the crate has been indexed",
				nil,
			), globals.JSON)
		}
		edit = editengine.Edit{Kind: editengine.KindSplice, File: absFile, ExpectedHash: hash, Start: spanStart, End: spanEnd, Replacement: *code}

	case *start >= 0 && *end >= 0 && *replace != "":
		data, readErr := os.ReadFile(absFile) //nolint:gosec // G304: user-supplied edit target, same trust boundary as the file they asked to edit
		if readErr != nil {
			plokeerr.FatalError(plokeerr.NewInputError("Cannot read target file", readErr.Error(), "Check that --file points at an existing file", readErr), globals.JSON)
		}
		edit = editengine.Edit{Kind: editengine.KindSplice, File: absFile, ExpectedHash: ioengine.HashContent(data), Start: *start, End: *end, Replacement: *replace}

	default:
		fs.Usage()
		plokeerr.FatalError(plokeerr.NewInputError(
			"Incomplete edit",
			"Neither splice mode (--start/--end/--replace) nor canonical mode (--canonical/--kind/--code) was fully specified",
			"See 'ploke propose --help'",
			nil,
		), globals.JSON)
	}

	previewText := *preview
	if previewText == "" {
		previewText = fmt.Sprintf("%s[%d:%d] -> %d bytes", edit.File, edit.Start, edit.End, len(edit.Replacement))
	}

	ioMgr := ioengine.New(ioengine.Config{Roots: []string{cfg.CrateRoot}, Workers: cfg.Indexing.Workers})
	eng := editengine.New(ioMgr, nil)
	proposal := eng.Create([]editengine.Edit{edit}, previewText)

	dir, err := proposalsDir(cfg.ProjectID)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}
	if err := saveProposal(dir, proposal); err != nil {
		plokeerr.FatalError(plokeerr.NewPermissionError("Cannot persist proposal", err.Error(), "Check permissions on the project data directory", err), globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(proposal)
		return
	}
	ui.Success(fmt.Sprintf("Proposal %s created (Pending)", proposal.RequestID))
	fmt.Println(proposal.Preview)
}

// runEditApprove executes 'ploke approve <id>'.
func runEditApprove(args []string, configPath string, globals GlobalFlags) {
	withReloadedProposal(args, configPath, globals, "approve", func(eng *editengine.Engine, id uuid.UUID) error {
		return eng.Approve(context.Background(), id)
	})
}

// runEditDeny executes 'ploke deny <id> [--reason TEXT]'.
func runEditDeny(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("deny", flag.ExitOnError)
	reason := fs.String("reason", "", "Reason the proposal was denied")
	fs.Usage = func() { fmt.Fprintf(os.Stderr, "Usage: ploke deny <id> [--reason TEXT]\n") }
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	withReloadedProposal(fs.Args(), configPath, globals, "deny", func(eng *editengine.Engine, id uuid.UUID) error {
		return eng.Deny(id, *reason)
	})
}

// withReloadedProposal loads the proposal named by args[0] from disk into
// a fresh Engine, runs action against it, and persists the result back.
func withReloadedProposal(args []string, configPath string, globals GlobalFlags, verb string, action func(*editengine.Engine, uuid.UUID) error) {
	if len(args) == 0 {
		plokeerr.FatalError(plokeerr.NewInputError(
			fmt.Sprintf("Proposal ID required for %s", verb),
			"No proposal ID provided",
			"Run 'ploke edits' to list proposal IDs",
			nil,
		), globals.JSON)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		plokeerr.FatalError(plokeerr.NewInputError("Invalid proposal ID", err.Error(), "Pass the UUID printed by 'ploke propose' or 'ploke edits'", err), globals.JSON)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}
	dir, err := proposalsDir(cfg.ProjectID)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}
	proposal, err := loadProposal(dir, id)
	if err != nil {
		plokeerr.FatalError(plokeerr.NewInputError("Unknown proposal", err.Error(), "Run 'ploke edits' to list known proposal IDs", err), globals.JSON)
	}

	ioMgr := ioengine.New(ioengine.Config{Roots: []string{cfg.CrateRoot}, Workers: cfg.Indexing.Workers})
	eng := editengine.New(ioMgr, nil)
	eng.Load(proposal)

	if actErr := action(eng, id); actErr != nil {
		plokeerr.FatalError(plokeerr.NewInputError(fmt.Sprintf("Cannot %s proposal", verb), actErr.Error(), "Check the proposal's current status with 'ploke edits'", actErr), globals.JSON)
	}

	updated, _ := eng.Get(id)
	if err := saveProposal(dir, updated); err != nil {
		plokeerr.FatalError(plokeerr.NewPermissionError("Cannot persist updated proposal", err.Error(), "Check permissions on the project data directory", err), globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(updated)
		return
	}
	ui.Success(fmt.Sprintf("Proposal %s is now %s", id, updated.Status))
}

// runEditApproveAll executes 'ploke approve-all': newest-proposal-per-file
// wins, older overlapping Pending proposals go Stale.
func runEditApproveAll(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("approve-all", flag.ExitOnError)
	fs.Usage = func() { fmt.Fprintf(os.Stderr, "Usage: ploke approve-all\n") }
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}
	dir, err := proposalsDir(cfg.ProjectID)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}
	proposals, err := loadAllProposals(dir)
	if err != nil {
		plokeerr.FatalError(plokeerr.NewInternalError("Cannot read proposals directory", err.Error(), "This is a bug", err), globals.JSON)
	}

	ioMgr := ioengine.New(ioengine.Config{Roots: []string{cfg.CrateRoot}, Workers: cfg.Indexing.Workers})
	eng := editengine.New(ioMgr, nil)
	for _, p := range proposals {
		eng.Load(p)
	}

	applied, err := eng.ApproveAll(context.Background())
	if err != nil {
		plokeerr.FatalError(plokeerr.NewInputError("approve-all failed partway through", err.Error(), "Some proposals may now be Stale; check 'ploke edits'", err), globals.JSON)
	}

	for _, p := range eng.List() {
		if saveErr := saveProposal(dir, p); saveErr != nil {
			ui.Warningf("failed to persist proposal %s: %v", p.RequestID, saveErr)
		}
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{"applied": applied})
		return
	}
	ui.Success(fmt.Sprintf("Applied %d proposal(s)", len(applied)))
}

// runEditList executes 'ploke edits', printing every tracked proposal.
func runEditList(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("edits", flag.ExitOnError)
	fs.Usage = func() { fmt.Fprintf(os.Stderr, "Usage: ploke edits\n\nList all tracked edit proposals.\n") }
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}
	dir, err := proposalsDir(cfg.ProjectID)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}
	proposals, err := loadAllProposals(dir)
	if err != nil {
		plokeerr.FatalError(plokeerr.NewInternalError("Cannot read proposals directory", err.Error(), "This is a bug", err), globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(proposals)
		return
	}
	if len(proposals) == 0 {
		fmt.Println("No proposals")
		return
	}
	ui.Header("Edit Proposals")
	for _, p := range proposals {
		fmt.Printf("%s  %-8s  %s  (%d edit(s), proposed %s)\n",
			p.RequestID, p.Status, p.Preview, len(p.Edits), p.ProposedAt.Format(time.RFC3339))
	}
}
