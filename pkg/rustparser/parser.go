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

// Package rustparser turns Rust source files into rustgraph.PerFileGraph
// values using Tree-sitter. Parsers come from a sync.Pool so each goroutine
// parses with its own parser (parsers are not thread-safe), the same pattern the teacher uses for its
// Go/Python/JS/TS pools, narrowed here to the single Rust grammar.
package rustparser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/kraklabs/ploke/pkg/rustgraph"
)

// Parser extracts a PerFileGraph from Rust source.
type Parser struct {
	logger *slog.Logger

	maxCodeTextSize int64
	truncatedCount  int
	mu              sync.Mutex

	pool     sync.Pool
	poolInit sync.Once
}

// New creates a Rust Tree-sitter parser.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:          logger,
		maxCodeTextSize: 102400,
	}
}

func (p *Parser) initPool() {
	p.poolInit.Do(func() {
		p.pool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(rust.GetLanguage())
			return parser
		}
	})
}

// SetMaxCodeTextSize bounds the node source text hashed into each
// TrackingHash, truncating past it.
func (p *Parser) SetMaxCodeTextSize(size int64) {
	p.maxCodeTextSize = size
}

// TruncatedCount reports how many node texts were truncated so far.
func (p *Parser) TruncatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.truncatedCount
}

func (p *Parser) truncate(text string) string {
	if p.maxCodeTextSize > 0 && int64(len(text)) > p.maxCodeTextSize {
		p.mu.Lock()
		p.truncatedCount++
		p.mu.Unlock()
		return text[:p.maxCodeTextSize]
	}
	return text
}

// ParseFile reads filePath and parses it into a PerFileGraph scoped to
// namespace (the crate's v5 UUID namespace, from identity.CrateNamespace).
// modPath is the file's own canonical module path (e.g. []string{"crate"}
// for the crate root, []string{"crate", "foo"} for src/foo.rs or
// src/foo/mod.rs) as assigned by the module tree resolver's conventional
// layout rules; the parser itself has no opinion on crate layout.
func (p *Parser) ParseFile(ctx context.Context, namespace uuid.UUID, filePath string, modPath []string) (*rustgraph.PerFileGraph, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return p.ParseBytes(ctx, namespace, filePath, modPath, content)
}

// ParseBytes parses already-loaded Rust source content.
func (p *Parser) ParseBytes(ctx context.Context, namespace uuid.UUID, filePath string, modPath []string, content []byte) (*rustgraph.PerFileGraph, error) {
	p.initPool()

	parserObj := p.pool.Get()
	parser, ok := parserObj.(*sitter.Parser)
	if !ok {
		return nil, fmt.Errorf("invalid parser type from rust pool")
	}
	defer p.pool.Put(parser)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if n := countErrors(root); n > 0 {
			p.logger.Warn("rustparser.syntax_errors", "path", filePath, "count", n)
		}
	}

	if len(modPath) == 0 {
		modPath = []string{"crate"}
	}
	w := &walker{
		parser:    p,
		content:   content,
		filePath:  filePath,
		namespace: namespace,
		modPath:   append([]string{}, modPath...),
	}
	graph := w.walkSourceFile(root)

	return &rustgraph.PerFileGraph{
		FilePath:  filePath,
		Namespace: namespace,
		Graph:     graph,
	}, nil
}

func countErrors(node *sitter.Node) int {
	count := 0
	if node.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrors(node.Child(i))
	}
	return count
}
