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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ploke/internal/plokeerr"
	"github.com/kraklabs/ploke/internal/ui"
	"github.com/kraklabs/ploke/pkg/eventbus"
)

// runServe executes the 'serve' CLI command: it starts a long-lived
// process that exposes the Component I event bus's Prometheus metrics
// (queue depth per channel, drop counters) over HTTP, mirroring the
// teacher's optional metrics-http block in cmd/cie's index command but
// as its own standalone, foreground command rather than a side effect
// of indexing.
func runServe(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	metricsAddr := fs.String("metrics-addr", ":9090", "HTTP listen address for Prometheus metrics")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ploke serve [--metrics-addr addr]

Description:
  Runs in the foreground and exposes Prometheus metrics for the event
  bus (eventbus.Bus) at /metrics, until interrupted.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if _, err := LoadConfig(configPath); err != nil {
		plokeerr.FatalError(err, globals.JSON)
	}

	reg := prometheus.NewRegistry()
	_ = eventbus.New(eventbus.DefaultCaps, reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	ui.Infof("metrics server listening on %s (path /metrics)", *metricsAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		ui.Infof("received %s, shutting down", sig)
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			plokeerr.FatalError(plokeerr.NewNetworkError(
				"Metrics server failed",
				err.Error(),
				fmt.Sprintf("Check that %s is not already in use", *metricsAddr),
				err,
			), globals.JSON)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		ui.Warningf("graceful shutdown failed: %v", err)
	}
}
