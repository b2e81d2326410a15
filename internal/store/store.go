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

// Package store provides the Postgres-backed unified feed table:
// idempotent upserts keyed by item id, full scans for the query layer,
// and keyed point updates for classification results and user ratings.
//
// Rating updates are a single row UPDATE plus a mirror row in the
// ratings table — no table rewrite, so concurrent ingestion cannot be
// lost during a rating write.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prcodex/Argus/internal/models"
)

// ErrNotFound is returned when no item exists for the given id.
var ErrNotFound = errors.New("item not found")

const itemColumns = `id, source_type, author, author_email, title,
	content_text, content_html, created_at, custom_fields,
	ai_relevance_score, ai_sentiment, ai_summary, ai_category,
	ai_market_impact, ai_reasoning, user_rating`

// Store provides CRUD operations for feed items in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a feed store backed by the given Postgres pool. It
// ensures the feed and ratings tables exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure feed schema: %w", err)
	}
	slog.Info("unified feed store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS unified_feed (
			id                 TEXT PRIMARY KEY,
			source_type        TEXT NOT NULL DEFAULT 'other',
			author             TEXT NOT NULL DEFAULT '',
			author_email       TEXT NOT NULL DEFAULT '',
			title              TEXT NOT NULL DEFAULT '',
			content_text       TEXT NOT NULL DEFAULT '',
			content_html       TEXT NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ,
			custom_fields      JSONB NOT NULL DEFAULT '{}'::jsonb,
			ai_relevance_score DOUBLE PRECISION,
			ai_sentiment       TEXT NOT NULL DEFAULT '',
			ai_summary         TEXT NOT NULL DEFAULT '',
			ai_category        TEXT NOT NULL DEFAULT '',
			ai_market_impact   TEXT NOT NULL DEFAULT '',
			ai_reasoning       TEXT NOT NULL DEFAULT '',
			user_rating        DOUBLE PRECISION,
			ingested_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_feed_created ON unified_feed(created_at DESC NULLS LAST);
		CREATE INDEX IF NOT EXISTS idx_feed_source ON unified_feed(source_type);
		CREATE TABLE IF NOT EXISTS ratings (
			item_id  TEXT PRIMARY KEY,
			rating   DOUBLE PRECISION NOT NULL,
			rated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// Upsert inserts an item if its id is absent and does nothing when it
// is already present, so re-ingesting the same item never duplicates a
// row. Returns true when a row was inserted.
func (s *Store) Upsert(ctx context.Context, item models.FeedItem) (bool, error) {
	custom, err := json.Marshal(item.Custom)
	if err != nil {
		return false, fmt.Errorf("marshal custom fields: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO unified_feed
			(id, source_type, author, author_email, title, content_text,
			 content_html, created_at, custom_fields, ai_relevance_score,
			 ai_sentiment, ai_summary, ai_category, ai_market_impact,
			 ai_reasoning, user_rating)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.SourceType, item.Author, item.AuthorEmail, item.Title,
		item.ContentText, item.ContentHTML, item.CreatedAt, custom,
		item.AIRelevanceScore, item.AISentiment, item.AISummary,
		item.AICategory, item.AIMarketImpact, item.AIReasoning, item.UserRating)
	if err != nil {
		return false, fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get retrieves a single item by id. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, id string) (*models.FeedItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM unified_feed
		WHERE id = $1
	`, id)
	item, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

// List returns every item in the store, newest first with missing
// timestamps last. Filtering is the query layer's concern.
func (s *Store) List(ctx context.Context) ([]models.FeedItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM unified_feed
		ORDER BY created_at DESC NULLS LAST
	`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// SetClassification persists the resolved sender tag and feed-type flag
// into the item's custom fields. Other custom fields are preserved.
func (s *Store) SetClassification(ctx context.Context, id, senderTag, feedTypeFlag string) error {
	patch, err := json.Marshal(models.CustomFields{
		SenderTag:    senderTag,
		FeedTypeFlag: feedTypeFlag,
	})
	if err != nil {
		return fmt.Errorf("marshal classification patch: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE unified_feed
		SET custom_fields = COALESCE(custom_fields, '{}'::jsonb) || $1::jsonb
		WHERE id = $2
	`, patch, id)
	if err != nil {
		return fmt.Errorf("set classification for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRating stores the user rating as a keyed point update on the item
// row and mirrors it into the ratings table with the rating time.
func (s *Store) SetRating(ctx context.Context, id string, rating float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rating update: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE unified_feed SET user_rating = $1 WHERE id = $2
	`, rating, id)
	if err != nil {
		return fmt.Errorf("update rating for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ratings (item_id, rating, rated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (item_id) DO UPDATE SET
			rating   = EXCLUDED.rating,
			rated_at = NOW()
	`, id, rating)
	if err != nil {
		return fmt.Errorf("mirror rating for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rating update: %w", err)
	}
	return nil
}

// CountItems returns the number of items in the store.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM unified_feed`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// scanItem scans a single row into a FeedItem.
func scanItem(row pgx.Row) (*models.FeedItem, error) {
	var (
		item      models.FeedItem
		createdAt *time.Time
		custom    []byte
	)
	err := row.Scan(
		&item.ID, &item.SourceType, &item.Author, &item.AuthorEmail,
		&item.Title, &item.ContentText, &item.ContentHTML, &createdAt,
		&custom, &item.AIRelevanceScore, &item.AISentiment,
		&item.AISummary, &item.AICategory, &item.AIMarketImpact,
		&item.AIReasoning, &item.UserRating,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	item.CreatedAt = createdAt
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &item.Custom); err != nil {
			return nil, fmt.Errorf("decode custom fields for %s: %w", item.ID, err)
		}
	}
	return &item, nil
}

// collectItems scans multiple rows into a slice of FeedItems.
func collectItems(rows pgx.Rows) ([]models.FeedItem, error) {
	var items []models.FeedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
