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

// Package models defines the data structures shared across the feed service.
package models

import (
	"encoding/json"
	"time"
)

// Source types for FeedItem.SourceType.
const (
	SourceMessage    = "message"
	SourceSocialPost = "social-post"
	SourceNews       = "news"
	SourceOther      = "other"
)

// Feed type flags for CustomFields.FeedTypeFlag.
const (
	FeedTypeNewsfeed = "newsfeed"
	FeedTypeOther    = "other"
)

// SenderMeta is nested sender metadata attached by a collector at
// ingestion time. All fields are optional.
type SenderMeta struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// TagFields holds free-text tags attached by collectors or enrichment.
type TagFields struct {
	CustomTags []string `json:"custom_tags,omitempty"`
}

// CustomFields is the per-item attribute bag. It replaces the open
// map the collectors historically wrote with an explicit optional-field
// schema; the JSON key spelling is the legacy one and must not change.
type CustomFields struct {
	SenderTag    string      `json:"SenderTag,omitempty"`
	FeedTypeFlag string      `json:"Feed_Type_Flag,omitempty"`
	Tags         *TagFields  `json:"tags,omitempty"`
	Sender       *SenderMeta `json:"sender,omitempty"`
}

// FeedItem represents one ingested unit of content: an inbound message,
// a social post, a news article, or anything else a collector delivers.
//
// ID is globally unique across the store; re-ingesting an existing ID
// must not create a duplicate row.
type FeedItem struct {
	ID          string       `json:"id"`
	SourceType  string       `json:"source_type"`
	Author      string       `json:"author"`
	AuthorEmail string       `json:"author_email,omitempty"`
	Title       string       `json:"title"`
	ContentText string       `json:"content_text"`
	ContentHTML string       `json:"content_html"`
	CreatedAt   *time.Time   `json:"created_at,omitempty"`
	Custom      CustomFields `json:"custom_fields"`

	// AI-derived scalars populated by the enrichment pipeline.
	AIRelevanceScore *float64 `json:"ai_relevance_score,omitempty"`
	AISentiment      string   `json:"ai_sentiment,omitempty"`
	AISummary        string   `json:"ai_summary,omitempty"`
	AICategory       string   `json:"ai_category,omitempty"`
	AIMarketImpact   string   `json:"ai_market_impact,omitempty"`
	AIReasoning      string   `json:"ai_reasoning,omitempty"`

	// UserRating is the one user-mutable field (0..10).
	UserRating *float64 `json:"user_rating,omitempty"`
}

// Confidence levels attached to a classification result.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ClassificationResult is the outcome of sender classification, either
// deterministic (rule match) or from the external AI service.
type ClassificationResult struct {
	SenderTag  string     `json:"sender_tag"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
}

// Pattern types for BlockedPattern.PatternType.
const (
	PatternExact  = "exact"
	PatternDomain = "domain"
	PatternRegex  = "regex"
)

// BlockedPattern is one entry in the sender block list.
type BlockedPattern struct {
	Pattern     string    `json:"pattern"`
	PatternType string    `json:"pattern_type"`
	Reason      string    `json:"reason,omitempty"`
	AddedBy     string    `json:"added_by,omitempty"`
	AddedAt     time.Time `json:"added_at"`
	BlockCount  int64     `json:"block_count"`
}

// CacheEntry is a persisted enrichment payload addressed by content key.
// Once written, Payload is immutable; a refresh is an explicit clear
// followed by recompute, never an in-place overwrite.
type CacheEntry struct {
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	ComputedAt time.Time       `json:"computed_at"`
}

// ChartAnalysis is the cached result of analyzing one chart extracted
// from a research document. It carries enough source identity to be
// grouped and displayed without re-reading the origin document.
type ChartAnalysis struct {
	ID         string    `json:"id"`
	DocName    string    `json:"doc_name"`
	Ordinal    int       `json:"ordinal"`
	Caption    string    `json:"caption,omitempty"`
	PageNumber int       `json:"page_number,omitempty"`
	Analysis   string    `json:"analysis"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}
