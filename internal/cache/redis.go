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

package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces enrichment cache keys in Redis.
const keyPrefix = "argus:enrich:"

// RedisBackend persists cache entries as Redis string values with no
// TTL — entries live until an explicit clear.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend creates a Redis-backed cache store.
func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := b.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set implements Backend. Entries do not expire.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.rdb.Set(ctx, keyPrefix+key, value, 0).Err()
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, keyPrefix+key).Err()
}

// DeletePrefix implements Backend using SCAN so a large keyspace does
// not block Redis.
func (b *RedisBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var deleted int
	iter := b.rdb.Scan(ctx, 0, keyPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := b.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Ping checks the Redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}
