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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ploke/internal/plokeerr"
	"github.com/kraklabs/ploke/internal/ui"
)

type initFlags struct {
	force, nonInteractive bool
	projectID             string
	crateRoot             string
	embeddingProvider     string
}

func runInit(args []string, globals GlobalFlags) {
	flags := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		plokeerr.FatalError(plokeerr.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"This is unexpected. Please report this issue if it persists",
			err,
		), globals.JSON)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !flags.force {
		plokeerr.FatalError(plokeerr.NewInputError(
			"Configuration already exists",
			fmt.Sprintf("%s already exists in this directory", configPath),
			"Use 'ploke init --force' to overwrite the existing configuration",
			nil,
		), globals.JSON)
	}

	cfg := createInitConfig(cwd, flags)
	if !flags.nonInteractive {
		reader := bufio.NewReader(os.Stdin)
		runInteractiveConfig(reader, cfg)
	}

	saveInitConfig(cwd, configPath, cfg)
	printInitNextSteps()
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite existing configuration")
	fs.BoolVarP(&f.nonInteractive, "yes", "y", false, "Non-interactive mode (use defaults)")
	fs.StringVar(&f.projectID, "project-id", "", "Project identifier")
	fs.StringVar(&f.crateRoot, "crate-root", ".", "Path to the crate root to index")
	fs.StringVar(&f.embeddingProvider, "embedding-provider", "", "Embedding provider (mock, local, openai, huggingface, openrouter)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ploke init [options]

Create a .ploke/project.yaml configuration file for the current crate.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

func createInitConfig(cwd string, f initFlags) *Config {
	pid := f.projectID
	if pid == "" {
		pid = filepath.Base(cwd)
	}
	crateRoot := f.crateRoot
	if crateRoot == "" {
		crateRoot = "."
	}
	cfg := DefaultConfig(pid, crateRoot)
	if f.embeddingProvider != "" {
		cfg.Embedding.Provider = f.embeddingProvider
	}
	return cfg
}

func runInteractiveConfig(reader *bufio.Reader, cfg *Config) {
	ui.Header("ploke Project Configuration")
	fmt.Println()
	cfg.ProjectID = prompt(reader, "Project ID", cfg.ProjectID)
	cfg.CrateRoot = prompt(reader, "Crate root", cfg.CrateRoot)
	fmt.Println()
	ui.Info("Embedding providers: mock, local, openai, huggingface, openrouter")
	cfg.Embedding.Provider = prompt(reader, "Embedding provider", cfg.Embedding.Provider)
	if cfg.Embedding.Provider != "mock" {
		cfg.Embedding.Model = prompt(reader, "Embedding model", cfg.Embedding.Model)
	}
	fmt.Println()
}

func saveInitConfig(cwd, configPath string, cfg *Config) {
	dir := ConfigDir(cwd)
	if err := os.MkdirAll(dir, 0750); err != nil {
		plokeerr.FatalError(plokeerr.NewPermissionError(
			"Cannot create .ploke directory",
			fmt.Sprintf("Permission denied creating directory: %s", dir),
			"Check directory permissions or run with appropriate privileges",
			err,
		), false)
	}
	if err := SaveConfig(cfg, configPath); err != nil {
		plokeerr.FatalError(plokeerr.NewPermissionError(
			"Cannot save configuration file",
			fmt.Sprintf("Failed to write %s", configPath),
			"Check directory permissions and available disk space",
			err,
		), false)
	}
	ui.Successf("Created %s", configPath)
	addToGitignore(cwd)
}

func printInitNextSteps() {
	fmt.Println()
	ui.SubHeader("Next steps:")
	fmt.Printf("  1. Review and edit %s if needed\n", ui.DimText(".ploke/project.yaml"))
	fmt.Printf("  2. Run '%s' to index your crate\n", ui.Cyan.Sprint("ploke index"))
	fmt.Printf("  3. Run '%s' to verify indexing\n", ui.Cyan.Sprint("ploke status"))
}

func prompt(reader *bufio.Reader, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func addToGitignore(dir string) {
	gitignorePath := filepath.Join(dir, ".gitignore")
	content, err := os.ReadFile(gitignorePath) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == ".ploke/" || line == ".ploke" || line == "/.ploke/" || line == "/.ploke" {
			return
		}
	}
	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0600) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, _ = f.WriteString("\n")
	}
	_, _ = f.WriteString("\n# ploke configuration\n.ploke/\n")
	fmt.Println("Added .ploke/ to .gitignore")
}
