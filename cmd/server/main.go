// Copyright (c) 2026 The Argus Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Argus — Unified Feed Service
//
// Entry point for the feed service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Wires the classification engine, enrichment cache, and query layer
//  4. Starts the background enricher
//  5. Serves the feed HTTP API
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/prcodex/Argus/internal/aiclient"
	"github.com/prcodex/Argus/internal/api"
	"github.com/prcodex/Argus/internal/blocklist"
	"github.com/prcodex/Argus/internal/cache"
	"github.com/prcodex/Argus/internal/charts"
	"github.com/prcodex/Argus/internal/classify"
	"github.com/prcodex/Argus/internal/config"
	"github.com/prcodex/Argus/internal/dedup"
	"github.com/prcodex/Argus/internal/enrich"
	"github.com/prcodex/Argus/internal/feed"
	"github.com/prcodex/Argus/internal/queue"
	"github.com/prcodex/Argus/internal/rules"
	"github.com/prcodex/Argus/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting Argus feed service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"display_timezone", cfg.DisplayTimezone,
		"enrich_interval", cfg.EnrichInterval,
		"rule_overrides", len(cfg.RuleOverrides),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	backend := cache.NewRedisBackend(rdb)
	if err := backend.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Stores ---
	feedStore, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise feed store", "error", err)
		os.Exit(1)
	}
	blocks, err := blocklist.NewManager(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise block list", "error", err)
		os.Exit(1)
	}

	// --- Enrichment Cache ---
	enrichCache := cache.New(backend)

	// --- AI Client ---
	var ai classify.AIDetector
	var vision charts.Vision
	if cfg.AI.BaseURL != "" {
		client := aiclient.New(ctx, aiclient.Config{
			BaseURL:      cfg.AI.BaseURL,
			TokenURL:     cfg.AI.TokenURL,
			ClientID:     cfg.AI.ClientID,
			ClientSecret: cfg.AI.ClientSecret,
			Token:        cfg.AI.Token,
			Timeout:      cfg.AI.Timeout,
		})
		ai = client
		vision = client
		slog.Info("AI service configured", "base_url", cfg.AI.BaseURL)
	} else {
		slog.Warn("no AI service configured — classification is rule-only")
	}

	// --- Classification Engine ---
	table := rules.NewTable(cfg.RuleOverrides)
	engine := classify.New(table, ai, enrichCache)
	slog.Info("sender rule table loaded", "rules", len(table.Rules()))

	// --- Feed Query Layer ---
	displayTZ, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		slog.Warn("invalid display timezone, serving UTC",
			"timezone", cfg.DisplayTimezone, "error", err)
		displayTZ = time.UTC
	}
	feedSvc := feed.NewService(feedStore, engine, displayTZ)

	// --- Ingestion Plumbing ---
	filter := dedup.NewFilter(rdb)
	publisher := queue.NewPublisher(rdb, cfg.EnrichmentQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to reach enrichment queue", "error", err)
		os.Exit(1)
	}

	// --- Chart Intelligence ---
	var chartSvc api.ChartService
	if cfg.ChartExtractorURL != "" && vision != nil {
		extractor := charts.NewClient(nil, cfg.ChartExtractorURL)
		chartSvc = charts.NewAnalyzer(extractor, vision, enrichCache)
		slog.Info("chart intelligence configured", "extractor", cfg.ChartExtractorURL)
	}

	// --- Background Enricher ---
	enricher := enrich.New(feedStore, engine, cfg.EnrichInterval, cfg.EnrichConcurrency)
	enricher.Start(ctx)

	// --- API Server ---
	handler := api.NewHandler(feedSvc, feedStore, blocks, filter, publisher, chartSvc)
	ready, err := api.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start API server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // stops the API server and background loops

	enricher.Stop()

	// Give the server's shutdown goroutine a moment to drain.
	time.Sleep(time.Second)

	rdb.Close()
	pgPool.Close()

	slog.Info("feed service stopped")
}
