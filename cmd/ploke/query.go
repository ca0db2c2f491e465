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
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ploke/internal/plokeerr"
	"github.com/kraklabs/ploke/pkg/embedrt"
	"github.com/kraklabs/ploke/pkg/graphstore"
	"github.com/kraklabs/ploke/pkg/ioengine"
	"github.com/kraklabs/ploke/pkg/retrieval"
	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// runQuery executes the 'query' CLI command. Default mode runs a hybrid
// dense+lexical retrieval search and assembles a budgeted context, wiring
// retrieval.Engine/Assemble against the local graph store. --raw switches
// to the teacher's original direct-CozoScript mode for debugging and
// schema inspection.
func runQuery(args []string, configPath string, globals GlobalFlags) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}

	fs := flag.NewFlagSet("query", flag.ExitOnError)
	raw := fs.Bool("raw", false, "Execute the argument as a raw CozoScript query instead of a hybrid search")
	kindFilter := fs.String("kind", "", "Restrict hybrid search to one node kind (function, struct, ...)")
	budgetTokens := fs.Int("budget", 4000, "Total token budget for assembled context (hybrid mode)")
	limit := fs.Int("limit", 0, "Add :limit to query (raw mode, 0 = no limit)")
	timeout := fs.Duration("timeout", 30*time.Second, "Query timeout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ploke query [options] <text>

Description:
  Run a hybrid (dense + lexical) retrieval search over the indexed crate
  and print the assembled, budgeted context. With --raw, run the
  argument as a CozoScript query against the graph store directly.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		plokeerr.FatalError(plokeerr.NewInputError(
			"Query argument required",
			"No query text provided",
			"Provide a query: ploke query \"parse a function signature\"",
			nil,
		), globals.JSON)
	}

	dataDir, err := DataDir(cfg.ProjectID)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}
	if _, statErr := os.Stat(dataDir); os.IsNotExist(statErr) {
		plokeerr.FatalError(plokeerr.NewDatabaseError(
			fmt.Sprintf("Project '%s' not indexed yet", cfg.ProjectID),
			"The graph store does not exist for this project",
			"Run 'ploke index' to index the crate first",
			nil,
		), globals.JSON)
	}

	store, err := graphstore.Open(graphstore.Config{DataDir: dataDir, ProjectID: cfg.ProjectID})
	if err != nil {
		plokeerr.FatalError(plokeerr.NewDatabaseError(
			"Cannot open graph store",
			"The database file may be corrupted or locked by another process",
			"Try running 'ploke status' to check database health, or 'ploke reset' to rebuild",
			err,
		), globals.JSON)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *raw {
		runRawQuery(ctx, store, fs.Arg(0), *limit, globals)
		return
	}
	runHybridQuery(ctx, store, cfg, fs.Arg(0), *kindFilter, *budgetTokens, globals)
}

func runRawQuery(ctx context.Context, store *graphstore.Store, script string, limit int, globals GlobalFlags) {
	if limit > 0 {
		script = strings.TrimSpace(script)
		if !strings.Contains(strings.ToLower(script), ":limit") {
			script = fmt.Sprintf("%s :limit %d", script, limit)
		}
	}

	result, err := store.Query(ctx, script, nil)
	if err != nil {
		if strings.Contains(err.Error(), "parse") || strings.Contains(err.Error(), "syntax") {
			plokeerr.FatalError(plokeerr.NewInputError(
				"Invalid CozoScript query syntax",
				fmt.Sprintf("Query parsing failed: %v", err),
				"Check CozoScript syntax or run 'ploke query --help' for examples",
				err,
			), globals.JSON)
		}
		plokeerr.FatalError(plokeerr.NewDatabaseError(
			"Query execution failed",
			fmt.Sprintf("Database returned an error: %v", err),
			"Check your query syntax and ensure the database is not corrupted",
			err,
		), globals.JSON)
	}

	if len(result.Rows) == 0 && !globals.JSON {
		fmt.Fprintf(os.Stderr, "Warning: Query returned no results\n")
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{"headers": result.Headers, "rows": result.Rows, "count": len(result.Rows)})
		return
	}
	printRawRows(result.Headers, result.Rows)
}

func printRawRows(headers []string, rows [][]any) {
	if len(rows) == 0 {
		fmt.Println("No results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			_, _ = fmt.Fprint(w, "\t")
		}
		_, _ = fmt.Fprint(w, strings.ToUpper(h))
	}
	_, _ = fmt.Fprintln(w)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				_, _ = fmt.Fprint(w, "\t")
			}
			_, _ = fmt.Fprint(w, formatCell(cell))
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()
	fmt.Printf("\n(%d rows)\n", len(rows))
}

func formatCell(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > 60 {
			return val[:57] + "..."
		}
		return val
	case float64:
		if val == float64(int(val)) {
			return fmt.Sprintf("%d", int(val))
		}
		return fmt.Sprintf("%.2f", val)
	case nil:
		return "<null>"
	default:
		s := fmt.Sprintf("%v", val)
		if len(s) > 60 {
			return s[:57] + "..."
		}
		return s
	}
}

func runHybridQuery(ctx context.Context, store *graphstore.Store, cfg *Config, query, kindFilter string, budgetTokens int, globals GlobalFlags) {
	set, err := activeEmbeddingSet(ctx, store)
	if err != nil {
		plokeerr.FatalError(plokeerr.NewDatabaseError(
			"No active embedding set",
			err.Error(),
			"Run 'ploke index' to populate embeddings before querying",
			err,
		), globals.JSON)
	}

	embedder, _, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ioMgr := ioengine.New(ioengine.Config{Roots: []string{cfg.CrateRoot}, Workers: cfg.Indexing.Workers})
	runtime := embedrt.New(embedder, ioMgr, logger)

	engine := retrieval.NewEngine(runtime, store, retrieval.DefaultFusionWeights)

	budget := retrieval.TokenBudget{Total: budgetTokens, PerPart: budgetTokens / 4}
	hits, err := engine.Search(ctx, query, set, kindFilter, budget)
	if err != nil {
		plokeerr.FatalError(plokeerr.NewDatabaseError("Hybrid search failed", err.Error(), "Check that the project is indexed", err), globals.JSON)
	}

	classifier := &storeClassifier{ctx: ctx, store: store}
	assembled, err := retrieval.Assemble(ctx, hits, budget, classifier, ioMgr)
	if err != nil {
		plokeerr.FatalError(plokeerr.NewInternalError("Context assembly failed", err.Error(), "This is a bug", err), globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(assembled)
		return
	}
	printAssembled(assembled)
}

func activeEmbeddingSet(ctx context.Context, store *graphstore.Store) (rustgraph.EmbeddingSet, error) {
	rows, err := store.Query(ctx, `?[provider_slug, model_id, dimension, dtype, encoding] := *ploke_embedding_set{provider_slug, model_id, dimension, dtype, encoding, is_active: true}`, nil)
	if err != nil {
		return rustgraph.EmbeddingSet{}, err
	}
	if len(rows.Rows) == 0 {
		return rustgraph.EmbeddingSet{}, fmt.Errorf("no active embedding set registered")
	}
	row := rows.Rows[0]
	dim, _ := strconv.Atoi(fmt.Sprintf("%v", row[2]))
	return rustgraph.EmbeddingSet{
		ProviderSlug: fmt.Sprintf("%v", row[0]),
		ModelID:      fmt.Sprintf("%v", row[1]),
		Shape: rustgraph.EmbeddingShape{
			Dimension: dim,
			DType:     rustgraph.EmbeddingDType(fmt.Sprintf("%v", row[3])),
			Encoding:  rustgraph.EmbeddingEncoding(fmt.Sprintf("%v", row[4])),
		},
	}, nil
}

// storeClassifier satisfies retrieval.Classifier by probing each primary
// kind's relation for a hit's node ID, in AllPrimaryKinds order. Module
// nodes have no byte span and are skipped (ok=false).
type storeClassifier struct {
	ctx   context.Context
	store *graphstore.Store
}

func (c *storeClassifier) Classify(nodeID uuid.UUID) (string, ioengine.TrackingHash, retrieval.ByteRange, retrieval.PartKind, bool) {
	for _, spec := range graphstore.PrimaryKindSpecs {
		if spec.Kind == graphstore.KindModule {
			continue
		}
		script := fmt.Sprintf("?[file_path, span_start, span_end] := *%s{ id: $id, file_path, span_start, span_end }", spec.Relation)
		rows, err := c.store.Query(c.ctx, script, map[string]any{"id": nodeID.String()})
		if err != nil || len(rows.Rows) == 0 {
			continue
		}
		row := rows.Rows[0]
		path := fmt.Sprintf("%v", row[0])
		start, _ := strconv.Atoi(fmt.Sprintf("%v", row[1]))
		end, _ := strconv.Atoi(fmt.Sprintf("%v", row[2]))
		return path, "", retrieval.ByteRange{Start: start, End: end}, retrieval.PartCode, true
	}
	return "", "", retrieval.ByteRange{}, "", false
}

func printAssembled(a *retrieval.AssembledContext) {
	for _, part := range a.Parts {
		fmt.Printf("--- %s (%s) ---\n", part.Path, part.Kind)
		fmt.Println(part.Text)
		fmt.Println()
	}
	fmt.Printf("(%d parts, %d files, %d tokens, %d deduplicated)\n",
		a.Stats.Parts, a.Stats.Files, a.Stats.TotalTokens, a.Stats.DedupRemoved)
}
