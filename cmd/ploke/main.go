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

// Package main implements the ploke CLI: a Rust-source-aware retrieval and
// editing engine over a local CozoDB graph store.
//
// Usage:
//
//	ploke init                     Create .ploke/project.yaml configuration
//	ploke index                    Parse and index the crate
//	ploke status [--json]          Show project status
//	ploke query <text> [--json]    Run a hybrid retrieval query
//	ploke watch                    Watch the crate and reindex on change
//	ploke reset                    Reset local project data (destructive!)
//	ploke serve [--metrics-addr]   Run the event bus's Prometheus /metrics endpoint
//	ploke propose ...              Register a Pending edit proposal
//	ploke approve <id>             Apply a Pending proposal
//	ploke deny <id>                Deny a Pending proposal
//	ploke approve-all              Apply all Pending proposals (newest-per-file wins)
//	ploke edits                    List tracked edit proposals
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ploke/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds CLI flags shared across every subcommand.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to .ploke/project.yaml (default: auto-discover)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)

	flag.SetInterspersed(false)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `ploke - Rust-source-aware retrieval and editing engine

Usage:
  ploke <command> [options]

Commands:
  init         Create .ploke/project.yaml configuration
  index        Parse and index the crate rooted at crate_root
  status       Show project status
  query        Run a hybrid (dense + lexical) retrieval query
  watch        Watch the crate and reindex on change
  reset        Reset local project data (destructive!)
  serve        Run the event bus's Prometheus /metrics endpoint
  propose      Register a Pending edit proposal
  approve      Apply a Pending proposal
  deny         Deny a Pending proposal
  approve-all  Apply all Pending proposals (newest-per-file wins)
  edits        List tracked edit proposals

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  -c, --config      Path to .ploke/project.yaml
  -V, --version     Show version and exit

For detailed command help: ploke <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("ploke version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(2)
	}
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "index":
		runIndex(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	case "query":
		runQuery(cmdArgs, *configPath, globals)
	case "watch":
		runWatch(cmdArgs, *configPath, globals)
	case "reset":
		runReset(cmdArgs, *configPath, globals)
	case "serve":
		runServe(cmdArgs, *configPath, globals)
	case "propose":
		runEditPropose(cmdArgs, *configPath, globals)
	case "approve":
		runEditApprove(cmdArgs, *configPath, globals)
	case "deny":
		runEditDeny(cmdArgs, *configPath, globals)
	case "approve-all":
		runEditApproveAll(cmdArgs, *configPath, globals)
	case "edits":
		runEditList(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(2)
	}
}
