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

// Package blocklist manages the sender block list: a keyed set of
// blocking patterns with add, remove, and list. Entries are never
// mutated in place — changing one means remove and re-add. Enforcement
// happens at the ingest boundary, which consults IsBlocked and records
// a hit for each suppressed item.
package blocklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prcodex/Argus/internal/models"
)

var (
	// ErrExists is returned when blocking a pattern already present.
	ErrExists = errors.New("pattern already blocked")
	// ErrNotFound is returned when unblocking an absent pattern.
	ErrNotFound = errors.New("pattern not blocked")
)

// Manager provides block-list operations over Postgres.
type Manager struct {
	pool *pgxpool.Pool
}

// NewManager creates a block-list manager and ensures its table exists.
func NewManager(ctx context.Context, pool *pgxpool.Pool) (*Manager, error) {
	m := &Manager{pool: pool}
	if err := m.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure block list schema: %w", err)
	}
	slog.Info("block list initialised")
	return m, nil
}

func (m *Manager) ensureSchema(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS blocked_senders (
			pattern      TEXT PRIMARY KEY,
			pattern_type TEXT NOT NULL DEFAULT 'exact',
			reason       TEXT NOT NULL DEFAULT '',
			added_by     TEXT NOT NULL DEFAULT 'user',
			added_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			block_count  BIGINT NOT NULL DEFAULT 0
		);
	`)
	return err
}

// Block adds a pattern to the block list. Returns ErrExists when the
// pattern is already present.
func (m *Manager) Block(ctx context.Context, pattern, patternType, reason string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	if patternType == "" {
		patternType = models.PatternExact
	}

	tag, err := m.pool.Exec(ctx, `
		INSERT INTO blocked_senders (pattern, pattern_type, reason, added_by)
		VALUES ($1, $2, $3, 'user')
		ON CONFLICT (pattern) DO NOTHING
	`, pattern, patternType, reason)
	if err != nil {
		return fmt.Errorf("block %s: %w", pattern, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}

	slog.Info("blocked sender pattern", "pattern", pattern, "type", patternType)
	return nil
}

// Unblock removes a pattern. Returns ErrNotFound when absent.
func (m *Manager) Unblock(ctx context.Context, pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("pattern is required")
	}

	tag, err := m.pool.Exec(ctx, `
		DELETE FROM blocked_senders WHERE pattern = $1
	`, pattern)
	if err != nil {
		return fmt.Errorf("unblock %s: %w", pattern, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	slog.Info("unblocked sender pattern", "pattern", pattern)
	return nil
}

// List returns all blocked patterns, oldest first.
func (m *Manager) List(ctx context.Context) ([]models.BlockedPattern, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT pattern, pattern_type, reason, added_by, added_at, block_count
		FROM blocked_senders
		ORDER BY added_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list blocked patterns: %w", err)
	}
	defer rows.Close()

	var patterns []models.BlockedPattern
	for rows.Next() {
		var p models.BlockedPattern
		if err := rows.Scan(&p.Pattern, &p.PatternType, &p.Reason,
			&p.AddedBy, &p.AddedAt, &p.BlockCount); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// RecordHit increments the block counter for a pattern. Called by the
// ingest boundary when a pattern actually suppresses an item.
func (m *Manager) RecordHit(ctx context.Context, pattern string) error {
	_, err := m.pool.Exec(ctx, `
		UPDATE blocked_senders SET block_count = block_count + 1 WHERE pattern = $1
	`, pattern)
	if err != nil {
		return fmt.Errorf("record hit for %s: %w", pattern, err)
	}
	return nil
}

// IsBlocked checks the active block list against a sender and returns
// the first matching pattern.
func (m *Manager) IsBlocked(ctx context.Context, author, authorEmail string) (string, bool, error) {
	patterns, err := m.List(ctx)
	if err != nil {
		return "", false, err
	}
	for _, p := range patterns {
		if Match(p, author, authorEmail) {
			return p.Pattern, true, nil
		}
	}
	return "", false, nil
}

// Match reports whether one blocked pattern applies to a sender. Exact
// patterns compare the whole author or author_email; domain patterns
// are substring matches; regex patterns are matched case-insensitively
// and an uncompilable pattern never matches.
func Match(p models.BlockedPattern, author, authorEmail string) bool {
	pattern := strings.ToLower(strings.TrimSpace(p.Pattern))
	if pattern == "" {
		return false
	}
	author = strings.ToLower(strings.TrimSpace(author))
	authorEmail = strings.ToLower(strings.TrimSpace(authorEmail))

	switch p.PatternType {
	case models.PatternDomain:
		return strings.Contains(authorEmail, pattern) || strings.Contains(author, pattern)
	case models.PatternRegex:
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(authorEmail) || re.MatchString(author)
	default:
		return authorEmail == pattern || author == pattern
	}
}
