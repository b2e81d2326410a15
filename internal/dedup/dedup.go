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

// Package dedup provides ingest deduplication using Redis keys with a
// TTL. Collectors poll with overlapping lookback windows, so the same
// item id can arrive several times in quick succession; this filter
// short-circuits the repeats before they reach the store.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a seen item id is remembered. The store's
	// idempotent upsert is the real duplicate guard; this only has to
	// cover a collector's lookback window.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "argus:seen:"
)

// Filter tracks which item ids have already been ingested recently.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the item id has NOT been seen before.
// If true, the id is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, itemID string) (bool, error) {
	key := fmt.Sprintf("%s%s", keyPrefix, itemID)

	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}

// Forget drops the seen marker for an item id. IsNew marks the id as a
// side effect, so a caller whose ingestion fails afterwards must forget
// the id or a retry within the TTL would be swallowed as a duplicate.
func (f *Filter) Forget(ctx context.Context, itemID string) error {
	if err := f.rdb.Del(ctx, keyPrefix+itemID).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
