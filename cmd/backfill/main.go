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

// Argus — Classification Backfill Command
//
// Standalone CLI tool that runs one classification pass over every
// untagged item in the feed store. Intended for seeding sender tags on
// deployments with pre-existing data, or after extending the rule table.
//
// Usage:
//
//	go run ./cmd/backfill/ [--concurrency 8] [--no-ai]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/prcodex/Argus/internal/aiclient"
	"github.com/prcodex/Argus/internal/cache"
	"github.com/prcodex/Argus/internal/classify"
	"github.com/prcodex/Argus/internal/config"
	"github.com/prcodex/Argus/internal/enrich"
	"github.com/prcodex/Argus/internal/rules"
	"github.com/prcodex/Argus/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	concurrencyFlag := flag.Int("concurrency", 8, "Concurrent classifications")
	noAIFlag := flag.Bool("no-ai", false, "Rule-based classification only, skip the AI fallback")
	flag.Parse()

	slog.Info("starting classification backfill",
		"concurrency", *concurrencyFlag,
		"no_ai", *noAIFlag,
	)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

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

	feedStore, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise feed store", "error", err)
		os.Exit(1)
	}

	// --- AI Client and Cache (optional) ---
	var ai classify.AIDetector
	var enrichCache *cache.Cache
	if !*noAIFlag && cfg.AI.BaseURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		backend := cache.NewRedisBackend(rdb)
		if err := backend.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		enrichCache = cache.New(backend)

		ai = aiclient.New(ctx, aiclient.Config{
			BaseURL:      cfg.AI.BaseURL,
			TokenURL:     cfg.AI.TokenURL,
			ClientID:     cfg.AI.ClientID,
			ClientSecret: cfg.AI.ClientSecret,
			Token:        cfg.AI.Token,
			Timeout:      cfg.AI.Timeout,
		})
	}

	// --- Run the Pass ---
	engine := classify.New(rules.NewTable(cfg.RuleOverrides), ai, enrichCache)
	enricher := enrich.New(feedStore, engine, time.Minute, *concurrencyFlag)

	start := time.Now()
	n, err := enricher.RunOnce(ctx)
	if err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	slog.Info("backfill complete",
		"tagged", n,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}
