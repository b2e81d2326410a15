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

// Package cache provides the content-addressed enrichment cache. It
// guarantees that the expensive external computation for a given key
// runs at most once across the cache's lifetime: concurrent misses on
// the same key share a single in-flight call, and successful payloads
// are persisted so later lookups never recompute.
//
// Failed computations are never written to the cache. A transient
// external-service failure surfaces to the caller and the next lookup
// retries, rather than freezing an error payload forever.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/prcodex/Argus/internal/models"
)

// Backend is the persisted key → value mapping behind the cache.
type Backend interface {
	// Get returns the stored value for key, with ok=false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores the value for key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes a single key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and reports
	// how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// ComputeFunc produces the enrichment payload for a key. It is the
// expensive part — typically a blocking call to the AI service.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Cache is the enrichment cache. Safe for concurrent use.
type Cache struct {
	backend Backend
	group   singleflight.Group
}

// New creates an enrichment cache over the given backend.
func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

// GetOrCompute returns the cached payload for key, computing and
// storing it on a miss. Two concurrent misses on the same key invoke
// compute once; the second caller waits on the first's result.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (json.RawMessage, error) {
	if payload, ok, err := c.lookup(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return payload, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have finished
		// computing between our miss and joining the group.
		if payload, ok, err := c.lookup(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return payload, nil
		}

		payload, err := compute(ctx)
		if err != nil {
			// Not cached — the next lookup retries.
			return nil, fmt.Errorf("compute %s: %w", key, err)
		}

		entry := models.CacheEntry{
			Key:        key,
			Payload:    payload,
			ComputedAt: time.Now().UTC(),
		}
		buf, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("marshal cache entry: %w", err)
		}
		if err := c.backend.Set(ctx, key, buf); err != nil {
			// The payload is good; losing the write only costs a
			// recompute later.
			slog.Warn("cache write failed", "key", key, "error", err)
		}
		return json.RawMessage(payload), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Lookup returns the cached payload for key without computing.
func (c *Cache) Lookup(ctx context.Context, key string) (json.RawMessage, bool, error) {
	return c.lookup(ctx, key)
}

// Clear removes a single key so the next lookup recomputes.
func (c *Cache) Clear(ctx context.Context, key string) error {
	if err := c.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache clear %s: %w", key, err)
	}
	return nil
}

// ClearPrefix removes every key under prefix and returns the count.
func (c *Cache) ClearPrefix(ctx context.Context, prefix string) (int, error) {
	n, err := c.backend.DeletePrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("cache clear prefix %s: %w", prefix, err)
	}
	return n, nil
}

func (c *Cache) lookup(ctx context.Context, key string) (json.RawMessage, bool, error) {
	value, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return entry.Payload, true, nil
}
