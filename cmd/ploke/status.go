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
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ploke/internal/plokeerr"
	"github.com/kraklabs/ploke/internal/ui"
	"github.com/kraklabs/ploke/pkg/graphstore"
)

// StatusResult represents the project status for JSON output.
type StatusResult struct {
	ProjectID string         `json:"project_id"`
	DataDir   string         `json:"data_dir"`
	Connected bool           `json:"connected"`
	Nodes     map[string]int `json:"nodes"`
	Relations int            `json:"relations"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// runStatus executes the 'status' CLI command, displaying project index
// statistics: per-kind node counts and relation edges in the local graph
// store. Adapted from the teacher's cie status (remote-delegation path
// dropped, there being no hub mode in this engine's scope).
func runStatus(args []string, configPath string, globals GlobalFlags) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}

	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ploke status [--json]\n\nDisplay indexing statistics for the current project.\n")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dataDir, err := DataDir(cfg.ProjectID)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}

	result := &StatusResult{ProjectID: cfg.ProjectID, DataDir: dataDir, Timestamp: time.Now(), Nodes: map[string]int{}}

	if _, statErr := os.Stat(dataDir); os.IsNotExist(statErr) {
		result.Error = "Project not indexed yet. Run 'ploke index' first."
		if globals.JSON {
			outputStatusJSON(result)
		} else {
			ui.Warningf("Project '%s' not indexed yet.", cfg.ProjectID)
			ui.Info("Run 'ploke index' to index the crate.")
		}
		return
	}

	store, err := graphstore.Open(graphstore.Config{DataDir: dataDir, ProjectID: cfg.ProjectID})
	if err != nil {
		plokeerr.FatalError(plokeerr.NewDatabaseError(
			"Cannot open graph store",
			"The database file may be corrupted, locked by another process, or permission denied",
			"Try running 'ploke status' again, or run 'ploke reset --force' to rebuild the index",
			err,
		), globals.JSON)
	}
	defer func() { _ = store.Close() }()

	result.Connected = true
	ctx := context.Background()

	for _, spec := range graphstore.PrimaryKindSpecs {
		result.Nodes[string(spec.Kind)] = queryCount(ctx, store, spec.Relation, "id", "id")
	}
	result.Relations = queryCount(ctx, store, "ploke_relation", "source, target, kind", "source")

	if globals.JSON {
		outputStatusJSON(result)
	} else {
		printLocalStatus(result)
	}
}

func queryCount(ctx context.Context, store *graphstore.Store, relation, pkFields, countField string) int {
	script := fmt.Sprintf("?[count(%s)] := *%s { %s }", countField, relation, pkFields)
	rows, err := store.Query(ctx, script, nil)
	if err != nil || len(rows.Rows) == 0 || len(rows.Rows[0]) == 0 {
		return 0
	}
	switch v := rows.Rows[0][0].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func outputStatusJSON(result *StatusResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

func printLocalStatus(result *StatusResult) {
	ui.Header("ploke Project Status")
	fmt.Printf("%s %s\n", ui.Label("Project ID:"), result.ProjectID)
	fmt.Printf("%s   %s\n", ui.Label("Data Dir:"), ui.DimText(result.DataDir))
	fmt.Println()

	ui.SubHeader("Nodes:")
	for _, spec := range graphstore.PrimaryKindSpecs {
		fmt.Printf("  %-16s %s\n", string(spec.Kind)+":", ui.CountText(result.Nodes[string(spec.Kind)]))
	}
	fmt.Printf("  %-16s %s\n", "relations:", ui.CountText(result.Relations))

	if result.Error != "" {
		fmt.Println()
		ui.Warning(result.Error)
	}
}
