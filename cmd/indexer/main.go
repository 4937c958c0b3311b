// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command indexer runs the Bitcoin chain indexer: it streams blocks
// from a node, maintains the UTXO/TXO index in chainkv, and serves
// /graphql, /healthz, and /metrics for as long as it runs -- one
// long-running process, exit 0 only on clean shutdown.
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
	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"

	"github.com/luxfi/btcindex/internal/api"
	"github.com/luxfi/btcindex/internal/chainkv"
	"github.com/luxfi/btcindex/internal/config"
	"github.com/luxfi/btcindex/internal/pipeline"
	"github.com/luxfi/btcindex/internal/query"
	"github.com/luxfi/btcindex/internal/source"
	"github.com/luxfi/btcindex/internal/xlog"
	"github.com/luxfi/btcindex/internal/xmetrics"
)

var logger xlog.Logger

// cliFlags is the app.Flags list, grounded on the teacher's
// cmd/evm-node/main.go shape; its values are copied into a
// pflag.FlagSet after parsing so internal/config's viper binding sees
// them alongside environment variables and an optional config file.
var cliFlags = []cli.Flag{
	&cli.StringFlag{Name: "datadir", Usage: "directory for the index database (required)"},
	&cli.StringFlag{Name: "node-url", Usage: "Bitcoin Core REST endpoint (required)"},
	&cli.StringFlag{Name: "blocks-dir", Usage: "optional local directory of pre-extracted raw blocks"},
	&cli.StringFlag{Name: "listen-addr", Value: ":8080", Usage: "address serving /graphql and /metrics"},
	&cli.StringFlag{Name: "config", Usage: "optional YAML/TOML config file"},
	&cli.IntFlag{Name: "header-batch-size", Value: 100},
	&cli.IntFlag{Name: "header-batch-buffer", Value: 0},
	&cli.DurationFlag{Name: "header-retry-delay", Value: 5 * time.Second},
	&cli.Int64Flag{Name: "block-fetch-concurrency", Value: 2},
	&cli.IntFlag{Name: "block-batch-size", Value: 100},
	&cli.IntFlag{Name: "block-batch-concurrency", Value: 0},
}

func main() {
	fs := pflag.NewFlagSet("indexer", pflag.ContinueOnError)
	config.BindFlags(fs)

	app := &cli.App{
		Name:  "indexer",
		Usage: "Bitcoin chain indexer and balance-query engine",
		Flags: cliFlags,
		Before: func(ctx *cli.Context) error {
			logger = xlog.New(xlog.Options{Level: "info"})
			return copyCliFlagsToPflag(ctx, fs)
		},
		Action: func(ctx *cli.Context) error {
			return runIndexer(ctx.Context, fs)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// copyCliFlagsToPflag mirrors every recognized cli.Context value into fs
// so internal/config.Load, which binds to a pflag.FlagSet, observes the
// same values urfave/cli parsed from argv.
func copyCliFlagsToPflag(ctx *cli.Context, fs *pflag.FlagSet) error {
	for _, name := range []string{"datadir", "node-url", "blocks-dir", "listen-addr", "config"} {
		if err := fs.Set(name, ctx.String(name)); err != nil {
			return fmt.Errorf("indexer: set flag %s: %w", name, err)
		}
	}
	if err := fs.Set("header-batch-size", fmt.Sprint(ctx.Int("header-batch-size"))); err != nil {
		return err
	}
	if err := fs.Set("header-batch-buffer", fmt.Sprint(ctx.Int("header-batch-buffer"))); err != nil {
		return err
	}
	if err := fs.Set("header-retry-delay", ctx.Duration("header-retry-delay").String()); err != nil {
		return err
	}
	if err := fs.Set("block-fetch-concurrency", fmt.Sprint(ctx.Int64("block-fetch-concurrency"))); err != nil {
		return err
	}
	if err := fs.Set("block-batch-size", fmt.Sprint(ctx.Int("block-batch-size"))); err != nil {
		return err
	}
	return fs.Set("block-batch-concurrency", fmt.Sprint(ctx.Int("block-batch-concurrency")))
}

func runIndexer(ctx context.Context, fs *pflag.FlagSet) error {
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := chainkv.Open(cfg.DataDir, chainkv.Options{})
	if err != nil {
		return fmt.Errorf("indexer: open storage: %w", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	metrics := xmetrics.New(registry)

	layer := chainkv.NewLayer(db, logger)
	layer.SetObserver(metrics)

	var local source.BlockSource
	if cfg.BlocksDir != "" {
		local = source.NewLocalFileSource(cfg.BlocksDir)
	}
	remote := source.NewRESTSource(cfg.NodeURL, nil)
	blockSource := source.NewCompositeSource(local, remote)

	p := &pipeline.Pipeline{
		Source:  blockSource,
		Writer:  layer,
		Config:  cfg.Pipeline,
		Logger:  logger,
		Metrics: metrics,
	}

	fromHash, nextHeight, err := resumePoint(ctx, db, blockSource)
	if err != nil {
		return fmt.Errorf("indexer: resolve resume point: %w", err)
	}

	reader := query.NewReader(db)
	handler, err := api.NewHandler(reader)
	if err != nil {
		return fmt.Errorf("indexer: build graphql handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", handler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", healthzHandler(db))

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	pipelineErr := make(chan error, 1)
	go func() { pipelineErr <- p.Run(ctx, fromHash, nextHeight) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-pipelineErr:
		if err != nil {
			logger.Crit("pipeline failed", "error", err)
			_ = httpServer.Close()
			return err
		}
	case err := <-serveErr:
		logger.Crit("http server failed", "error", err)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	<-pipelineErr
	return nil
}

const shutdownGrace = 10 * time.Second

// healthzHandler reports whether the storage engine is reachable by
// delegating to chainkv.DB.HealthCheck, returning it as the /healthz
// readiness probe body.
func healthzHandler(db *chainkv.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := db.HealthCheck()
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "unhealthy: %v", err)
			return
		}
		fmt.Fprintf(w, "%v", status)
	}
}

// resumePoint decides the pipeline's starting hash and next height: the
// current tip's hash and tip+1 if the store already has blocks, or the
// node's genesis hash and 0 for an empty store.
func resumePoint(ctx context.Context, db *chainkv.DB, src source.BlockSource) (fromHash [32]byte, nextHeight uint32, err error) {
	height, hash, ok, err := db.Tip()
	if err != nil {
		return [32]byte{}, 0, err
	}
	if ok {
		return hash, height + 1, nil
	}
	genesis, err := src.FetchHash(ctx, 0)
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("fetch genesis hash: %w", err)
	}
	return genesis, 0, nil
}
