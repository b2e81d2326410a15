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

// Package enrich runs the background classification pass: it
// periodically scans the feed for items without a stored sender tag,
// resolves them through the classification engine, and persists the
// result so read paths never pay for classification twice.
package enrich

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/prcodex/Argus/internal/classify"
	"github.com/prcodex/Argus/internal/models"
)

// ItemStore is the slice of the feed store the enricher needs.
type ItemStore interface {
	List(ctx context.Context) ([]models.FeedItem, error)
	SetClassification(ctx context.Context, id, senderTag, feedTypeFlag string) error
}

// Enricher periodically classifies untagged feed items.
type Enricher struct {
	store       ItemStore
	engine      *classify.Engine
	interval    time.Duration
	concurrency int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an enricher. interval is how often a full pass runs;
// concurrency bounds in-flight classifications within a pass.
func New(store ItemStore, engine *classify.Engine, interval time.Duration, concurrency int) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Enricher{
		store:       store,
		engine:      engine,
		interval:    interval,
		concurrency: int64(concurrency),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the periodic enrichment loop in a background
// goroutine. The first pass runs immediately.
func (e *Enricher) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		slog.Info("enricher started", "interval", e.interval, "concurrency", e.concurrency)

		if n, err := e.RunOnce(ctx); err != nil {
			slog.Error("enrichment pass failed", "error", err)
		} else if n > 0 {
			slog.Info("enrichment pass complete", "enriched", n)
		}

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := e.RunOnce(ctx)
				if err != nil {
					slog.Error("enrichment pass failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("enrichment pass complete", "enriched", n)
				}
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it.
func (e *Enricher) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	slog.Info("enricher stopped")
}

// RunOnce performs a single enrichment pass and returns how many items
// were tagged. Items the engine cannot resolve stay untagged — writing
// Unknown would make it authoritative and block later re-detection.
func (e *Enricher) RunOnce(ctx context.Context) (int, error) {
	items, err := e.store.List(ctx)
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(e.concurrency)
	var wg sync.WaitGroup
	var enriched atomic.Int64

	for _, item := range items {
		if strings.TrimSpace(item.Custom.SenderTag) != "" {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(item models.FeedItem) {
			defer wg.Done()
			defer sem.Release(1)

			result := e.engine.Classify(ctx, item)
			if result.SenderTag == "" || result.SenderTag == classify.TagUnknown {
				return
			}

			flag := e.engine.FeedTypeFlag(item, result.SenderTag)
			if err := e.store.SetClassification(ctx, item.ID, result.SenderTag, flag); err != nil {
				slog.Warn("persist classification failed",
					"item_id", item.ID,
					"sender_tag", result.SenderTag,
					"error", err,
				)
				return
			}
			enriched.Add(1)
		}(item)
	}

	wg.Wait()
	return int(enriched.Load()), nil
}
