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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	progressbar "github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ploke/internal/output"
	"github.com/kraklabs/ploke/internal/plokeerr"
	"github.com/kraklabs/ploke/internal/ui"
	"github.com/kraklabs/ploke/pkg/embedrt"
	"github.com/kraklabs/ploke/pkg/eventbus"
	"github.com/kraklabs/ploke/pkg/graphstore"
	"github.com/kraklabs/ploke/pkg/identity"
	"github.com/kraklabs/ploke/pkg/ioengine"
	"github.com/kraklabs/ploke/pkg/modtree"
	"github.com/kraklabs/ploke/pkg/rustgraph"
	"github.com/kraklabs/ploke/pkg/rustparser"
)

func runIndex(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	full := fs.Bool("full", false, "Full re-index (every run is a full re-index; there is no incremental mode)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ploke index [--full]\n\nParse and index the configured crate into the local graph store.\n")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	_ = full // incremental re-index is out of scope for this pass; always full.

	cfg, err := LoadConfig(configPath)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	bus := eventbus.New(eventbus.DefaultCaps, nil)

	if abs, absErr := filepath.Abs(cfg.CrateRoot); absErr == nil {
		cfg.CrateRoot = abs
	}

	crateRootFile, files, err := discoverRustFiles(cfg.CrateRoot, cfg.Indexing.Exclude)
	if err != nil {
		plokeerr.FatalError(plokeerr.NewInputError(
			"Cannot discover crate files",
			err.Error(),
			"Check that crate_root points at a directory containing a Cargo crate",
			err,
		), globals.JSON)
	}
	if len(files) == 0 {
		plokeerr.FatalError(plokeerr.NewInputError(
			"No Rust source files found",
			fmt.Sprintf("No .rs files found under %s", cfg.CrateRoot),
			"Check the crate_root setting in .ploke/project.yaml",
			nil,
		), globals.JSON)
	}

	bus.PublishIndex(eventbus.Event{Kind: eventbus.EventIndexProgress, Payload: fmt.Sprintf("discovered %d .rs files under %s", len(files), cfg.CrateRoot)})

	namespace := identity.CrateNamespace(cfg.CrateRoot)

	jobs := make([]rustparser.FileJob, 0, len(files))
	for _, f := range files {
		rel, relErr := filepath.Rel(cfg.CrateRoot, f)
		if relErr != nil {
			rel = f
		}
		rel = filepath.ToSlash(rel)
		jobs = append(jobs, rustparser.FileJob{Path: f, ModPath: modtree.ConventionalPath(crateRootFile, rel)})
	}

	bar := newIndexProgressBar(globals, len(jobs), "Parsing")
	parser := rustparser.New(logger)
	result := parser.ParseFiles(context.Background(), namespace, jobs)
	_ = bar.Finish()

	for _, fe := range result.Errors {
		ui.Warningf("parse error in %s: %v", fe.Path, fe.Err)
	}
	if len(result.Graphs) == 0 {
		plokeerr.FatalError(plokeerr.NewInputError(
			"No files parsed successfully",
			"Every file in the crate failed to parse",
			"Re-run with a Rust toolchain-validated crate, or check the parse errors above",
			nil,
		), globals.JSON)
	}

	bus.PublishIndex(eventbus.Event{Kind: eventbus.EventIndexProgress, Payload: fmt.Sprintf("parsed %d files (%d errors)", len(result.Graphs), len(result.Errors))})

	resolver := modtree.New(modtree.Config{CrateRootFile: crateRootFile}, logger)
	resolved, err := resolver.Resolve(result.Graphs)
	if err != nil {
		plokeerr.FatalError(plokeerr.NewInternalError(
			"Module resolution failed",
			err.Error(),
			"This may indicate a duplicate module path or a malformed #[path] attribute",
			err,
		), globals.JSON)
	}
	for _, w := range resolved.Warnings {
		ui.Warning(w)
	}
	bus.PublishIndex(eventbus.Event{Kind: eventbus.EventIndexProgress, Payload: fmt.Sprintf("resolved %d modules, %d cross-file relations", len(resolved.Modules), len(resolved.Relations))})

	dataDir, err := DataDir(cfg.ProjectID)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}

	store, err := graphstore.Open(graphstore.Config{DataDir: dataDir, ProjectID: cfg.ProjectID})
	if err != nil {
		plokeerr.FatalError(plokeerr.NewDatabaseError(
			"Cannot open graph store",
			err.Error(),
			"Try 'ploke reset' to rebuild the database, or close other ploke instances",
			err,
		), globals.JSON)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		plokeerr.FatalError(plokeerr.NewDatabaseError("Cannot ensure schema", err.Error(), "Try 'ploke reset --force'", err), globals.JSON)
	}

	embedder, set, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}
	if err := store.EnsureVectorRelation(ctx, set); err != nil {
		plokeerr.FatalError(plokeerr.NewDatabaseError("Cannot ensure vector relation", err.Error(), "Try 'ploke reset --force'", err), globals.JSON)
	}
	if err := store.RegisterEmbeddingSet(ctx, set); err != nil {
		plokeerr.FatalError(plokeerr.NewDatabaseError("Cannot register embedding set", err.Error(), "Try 'ploke reset --force'", err), globals.JSON)
	}
	if err := store.SetActiveEmbeddingSet(ctx, set); err != nil {
		plokeerr.FatalError(plokeerr.NewDatabaseError("Cannot persist active embedding set", err.Error(), "Try 'ploke reset --force'", err), globals.JSON)
	}

	ioMgr := ioengine.New(ioengine.Config{Roots: []string{cfg.CrateRoot}, Workers: cfg.Indexing.Workers})
	runtime := embedrt.New(embedder, ioMgr, logger)

	builder := graphstore.NewBuilder()
	nodeCount, embedBar := 0, newIndexProgressBar(globals, totalPrimaryNodes(result.Graphs), "Embedding")
	for _, pg := range result.Graphs {
		src, readErr := os.ReadFile(pg.FilePath) //nolint:gosec // G304: path from our own crate walk
		if readErr != nil {
			ui.Warningf("cannot re-read %s for embedding: %v", pg.FilePath, readErr)
			continue
		}
		records := graphstore.BuildGraphRecords(pg.Graph, src)
		for kind, recs := range records {
			texts := make([]string, len(recs))
			for i, r := range recs {
				texts[i] = r.CodeText
			}
			vectors, embedErr := runtime.GenerateEmbeddings(ctx, texts)
			if embedErr != nil {
				ui.Warningf("embedding batch failed for %s: %v", kind, embedErr)
			} else {
				for i := range recs {
					recs[i].Embedding = vectors[i]
				}
			}
			if err := builder.PutNodes(kind, recs, &set); err != nil {
				plokeerr.FatalError(plokeerr.NewInternalError("Cannot build mutation", err.Error(), "This is a bug", err), globals.JSON)
			}
			nodeCount += len(recs)
			_ = embedBar.Add(len(recs))
		}
	}
	_ = embedBar.Finish()

	for _, m := range resolved.Modules {
		builder.PutNodes(graphstore.KindModule, []graphstore.NodeRecord{{ID: m.ID, Meta: []string{m.Name, string(m.Variant), m.FilePath, strings.Join(m.Path, "::")}}}, nil) //nolint:errcheck // module kind is always valid
	}
	for _, rel := range resolved.Relations {
		builder.PutRelation(rel)
	}
	for _, pg := range result.Graphs {
		for _, rel := range pg.Graph.Relations {
			builder.PutRelation(rel)
		}
	}

	if err := store.Execute(ctx, builder.Script(), nil); err != nil {
		plokeerr.FatalError(plokeerr.NewDatabaseError("Cannot write to graph store", err.Error(), "Try 'ploke reset --force'", err), globals.JSON)
	}
	bus.PublishIndex(eventbus.Event{Kind: eventbus.EventIndexProgress, Payload: fmt.Sprintf("wrote %d nodes to %s", nodeCount, dataDir)})

	if globals.Verbose > 0 {
		drainIndexEvents(bus)
	}

	if globals.JSON {
		_ = output.JSON(map[string]any{
			"files_processed": len(result.Graphs),
			"parse_errors":    len(result.Errors),
			"nodes_written":   nodeCount,
		})
		return
	}
	ui.Header("Indexing Complete")
	fmt.Printf("%s %s\n", ui.Label("Project ID:"), cfg.ProjectID)
	fmt.Printf("Files Processed: %s\n", ui.CountText(len(result.Graphs)))
	fmt.Printf("Parse Errors: %s\n", ui.CountText(len(result.Errors)))
	fmt.Printf("Nodes Written: %s\n", ui.CountText(nodeCount))
}

// drainIndexEvents prints every buffered progress event from the index
// channel without blocking, for -v/-vv runs.
func drainIndexEvents(bus *eventbus.Bus) {
	for {
		select {
		case ev := <-bus.Index():
			ui.Infof("%v", ev.Payload)
		default:
			return
		}
	}
}

func totalPrimaryNodes(graphs []rustgraph.PerFileGraph) int {
	total := 0
	for _, pg := range graphs {
		g := pg.Graph
		total += len(g.Functions) + len(g.Structs) + len(g.Enums) + len(g.Unions) + len(g.Traits) +
			len(g.Impls) + len(g.TypeAliases) + len(g.Consts) + len(g.Statics) + len(g.Macros) + len(g.UseStatements)
	}
	return total
}

// buildEmbedder selects and constructs an embedrt.Embedder plus its
// EmbeddingSet descriptor from cfg, defaulting to the mock embedder so
// `ploke index` works without any external model dependency.
func buildEmbedder(cfg EmbeddingConfig) (embedrt.Embedder, rustgraph.EmbeddingSet, error) {
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 384
	}
	var embedder embedrt.Embedder
	provider := cfg.Provider
	switch provider {
	case "", "mock":
		provider = "mock"
		embedder = embedrt.NewMockEmbedder(dims)
	case "local":
		embedder = embedrt.NewLocalEmbedder(embedrt.LocalModelConfig{ModelPath: cfg.ModelPath, Dimensions: dims})
	case "openai":
		embedder = embedrt.NewOpenAIEmbedder(embedrt.OpenAIConfig{Model: cfg.Model, APIKeyEnv: cfg.APIKeyEnv, Dimensions: dims})
	case "huggingface":
		embedder = embedrt.NewHuggingFaceEmbedder(embedrt.HuggingFaceConfig{ModelID: cfg.Model, APIKeyEnv: cfg.APIKeyEnv, Dimensions: dims})
	case "openrouter":
		embedder = embedrt.NewOpenRouterEmbedder(embedrt.DefaultOpenRouterConfig(cfg.Model, cfg.APIKeyEnv, dims))
	default:
		return nil, rustgraph.EmbeddingSet{}, plokeerr.NewConfigError(
			"Unknown embedding provider",
			fmt.Sprintf("'%s' is not a supported embedding provider", provider),
			"Use one of: mock, local, openai, huggingface, openrouter",
			nil,
		)
	}
	set := rustgraph.EmbeddingSet{
		ModelID:      embedder.ModelID(),
		ProviderSlug: embedder.ProviderSlug(),
		Shape: rustgraph.EmbeddingShape{
			Dimension: dims,
			DType:     rustgraph.DTypeF32,
			Encoding:  rustgraph.EncodingRawVector,
		},
	}
	return embedder, set, nil
}

// discoverRustFiles walks crateRoot for .rs files, honoring exclude globs,
// and returns the conventional crate-root file (src/lib.rs, falling back
// to src/main.rs) alongside every discovered file path.
func discoverRustFiles(crateRoot string, excludes []string) (crateRootFile string, files []string, err error) {
	var globs []glob.Glob
	for _, pattern := range excludes {
		g, gerr := glob.Compile(pattern, '/')
		if gerr != nil {
			continue
		}
		globs = append(globs, g)
	}

	walkErr := filepath.WalkDir(crateRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(crateRoot, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		for _, g := range globs {
			if g.Match(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".rs") {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return "", nil, walkErr
	}

	for _, candidate := range []string{"src/lib.rs", "src/main.rs"} {
		full := filepath.Join(crateRoot, candidate)
		if _, statErr := os.Stat(full); statErr == nil {
			return candidate, files, nil
		}
	}
	if len(files) > 0 {
		return filepath.ToSlash(files[0]), files, nil
	}
	return "src/lib.rs", files, nil
}

func newIndexProgressBar(globals GlobalFlags, total int, label string) *progressbar.ProgressBar {
	if globals.Quiet {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions64(int64(total),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
