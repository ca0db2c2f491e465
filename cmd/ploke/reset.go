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
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ploke/internal/plokeerr"
	"github.com/kraklabs/ploke/internal/ui"
)

// runReset executes the 'reset' CLI command, deleting all local indexed
// data for the current project.
func runReset(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	confirm := fs.Bool("yes", false, "Confirm the reset (required)")
	force := fs.Bool("force", false, "Alias for --yes")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ploke reset [options]

Description:
  WARNING: This is a destructive operation that deletes all locally
  indexed data for the current project.

  Removes the project's data directory (default:
  ~/.ploke/data/<project_id>/), including every node relation, the
  vector relations, and the relation edge table.

  Configuration (.ploke/project.yaml) is not touched; re-run
  'ploke index' afterward to rebuild.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if !*confirm && !*force {
		plokeerr.FatalError(plokeerr.NewInputError(
			"Confirmation required",
			"The --yes flag is required to confirm this destructive operation",
			"Run 'ploke reset --yes' to confirm that you want to delete all indexed data",
			nil,
		), globals.JSON)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}

	dataDir, err := DataDir(cfg.ProjectID)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}

	if _, statErr := os.Stat(dataDir); os.IsNotExist(statErr) {
		fmt.Fprintf(os.Stderr, "No local data found for project %s\n", cfg.ProjectID)
		return
	}

	fmt.Printf("Resetting project %s (deleting %s)...\n", cfg.ProjectID, dataDir)
	if err := os.RemoveAll(dataDir); err != nil {
		plokeerr.FatalError(plokeerr.NewPermissionError(
			"Cannot delete data directory",
			fmt.Sprintf("Failed to remove %s - permission denied or file locked", dataDir),
			"Check directory permissions, ensure no other ploke processes are running, and try again",
			err,
		), globals.JSON)
	}

	ui.Success("Reset complete. All local indexed data has been deleted.")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  ploke index    Reindex the crate")
}
