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

// Package feed composes the store and the classification engine into
// filtered, paginated feed views.
//
// Stored sender tags always win over dynamic detection; dynamic
// detection on read paths is rule-based only, so serving a page never
// triggers AI calls. Display timestamps are converted from UTC to the
// configured display timezone at response time — the stored value is
// never mutated.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/prcodex/Argus/internal/classify"
	"github.com/prcodex/Argus/internal/models"
)

// snippetLen bounds content_text in list responses; the full text is
// available from the single-item endpoint.
const snippetLen = 500

// ItemSource is the slice of the store the query layer needs.
type ItemSource interface {
	List(ctx context.Context) ([]models.FeedItem, error)
	Get(ctx context.Context, id string) (*models.FeedItem, error)
}

// Item is one feed entry shaped for API responses.
type Item struct {
	ID             string   `json:"id"`
	SourceType     string   `json:"source_type"`
	CreatedAt      string   `json:"created_at"`
	Author         string   `json:"author"`
	OriginalAuthor string   `json:"original_author"`
	SenderTag      string   `json:"sender_tag,omitempty"`
	AuthorEmail    string   `json:"author_email,omitempty"`
	Title          string   `json:"title"`
	ContentText    string   `json:"content_text"`
	ContentHTML    string   `json:"content_html"`
	AIScore        *float64 `json:"ai_score,omitempty"`
	AISentiment    string   `json:"ai_sentiment,omitempty"`
	AISummary      string   `json:"ai_summary,omitempty"`
	AICategory     string   `json:"ai_category,omitempty"`
	AIMarketImpact string   `json:"ai_market_impact,omitempty"`
	AIReasoning    string   `json:"ai_reasoning,omitempty"`
	UserRating     *float64 `json:"user_rating,omitempty"`
	FilterTags     []string `json:"filter_tags"`
}

// Page is one page of feed results.
type Page struct {
	Items   []Item `json:"items"`
	Total   int    `json:"total"`
	HasMore bool   `json:"has_more"`
}

// Service answers feed queries.
type Service struct {
	source    ItemSource
	engine    *classify.Engine
	displayTZ *time.Location
}

// NewService creates a feed query service. displayTZ may be nil, in
// which case timestamps are served in UTC.
func NewService(source ItemSource, engine *classify.Engine, displayTZ *time.Location) *Service {
	if displayTZ == nil {
		displayTZ = time.UTC
	}
	return &Service{source: source, engine: engine, displayTZ: displayTZ}
}

// Query returns page (offset, limit) of items matching filter, newest
// first with missing timestamps last. A store failure degrades to an
// empty page rather than failing the request.
func (s *Service) Query(ctx context.Context, filter string, limit, offset int) *Page {
	items, err := s.source.List(ctx)
	if err != nil {
		slog.Error("feed scan failed", "filter", filter, "error", err)
		return &Page{Items: []Item{}}
	}

	matched := items[:0:0]
	for _, item := range items {
		if s.matches(item, filter) {
			matched = append(matched, item)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].CreatedAt, matched[j].CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	if offset < 0 {
		offset = 0
	}

	total := len(matched)
	page := &Page{
		Items:   []Item{},
		Total:   total,
		HasMore: offset+limit < total,
	}

	if limit <= 0 || offset >= total {
		return page
	}
	end := offset + limit
	if end > total {
		end = total
	}
	for _, item := range matched[offset:end] {
		page.Items = append(page.Items, s.format(item, true))
	}
	return page
}

// Item returns a single item by id, untruncated.
func (s *Service) Item(ctx context.Context, id string) (*Item, error) {
	item, err := s.source.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	formatted := s.format(*item, false)
	return &formatted, nil
}

// SenderCounts returns item counts per resolved sender tag. Stored
// tags win; untagged items fall back to rule-based detection and are
// skipped when nothing matches.
func (s *Service) SenderCounts(ctx context.Context) (map[string]int, error) {
	items, err := s.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("sender counts: %w", err)
	}
	counts := make(map[string]int)
	for _, item := range items {
		if tag, ok := s.engine.Detect(item); ok {
			counts[tag]++
		}
	}
	return counts, nil
}

// FeedTypeCounts returns item counts per derived feed-type flag.
func (s *Service) FeedTypeCounts(ctx context.Context) (map[string]int, error) {
	items, err := s.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed type counts: %w", err)
	}
	counts := map[string]int{
		models.FeedTypeNewsfeed: 0,
		models.FeedTypeOther:    0,
	}
	for _, item := range items {
		counts[s.flagOf(item)]++
	}
	return counts, nil
}

// matches applies the filter vocabulary. Unrecognised filters match
// everything, mirroring "all".
func (s *Service) matches(item models.FeedItem, filter string) bool {
	switch filter {
	case "", "all":
		return true
	case models.SourceMessage, models.SourceSocialPost, models.SourceNews, models.SourceOther:
		return item.SourceType == filter
	case models.FeedTypeNewsfeed:
		return s.flagOf(item) == models.FeedTypeNewsfeed
	case "goldman_sachs":
		return s.engine.IsGoldmanSachs(item)
	}
	if name, ok := strings.CutPrefix(filter, "sender:"); ok {
		name = strings.TrimSpace(name)
		// Stored tag first, dynamic detection only for untagged items.
		if stored := strings.TrimSpace(item.Custom.SenderTag); stored != "" {
			return stored == name
		}
		tag, ok := s.engine.Detect(item)
		return ok && tag == name
	}
	return true
}

// flagOf derives the feed-type flag from the resolved sender tag.
func (s *Service) flagOf(item models.FeedItem) string {
	tag, _ := s.engine.Detect(item)
	return s.engine.FeedTypeFlag(item, tag)
}

// format shapes an item for the API, resolving the display author and
// converting the timestamp to the display timezone.
func (s *Service) format(item models.FeedItem, truncate bool) Item {
	senderTag := strings.TrimSpace(item.Custom.SenderTag)

	displayAuthor := item.Author
	if senderTag != "" {
		displayAuthor = senderTag
	}

	createdAt := time.Now()
	if item.CreatedAt != nil {
		createdAt = *item.CreatedAt
	}

	content := item.ContentText
	if truncate && len(content) > snippetLen {
		content = content[:snippetLen]
	}

	authorEmail := item.AuthorEmail
	if authorEmail == "" && item.Custom.Sender != nil {
		authorEmail = item.Custom.Sender.Email
	}

	filterTags := []string{}
	if item.SourceType != "" {
		filterTags = append(filterTags, item.SourceType)
	}
	if s.engine.IsGoldmanSachs(item) {
		filterTags = append(filterTags, "goldman_sachs")
	}

	return Item{
		ID:             item.ID,
		SourceType:     item.SourceType,
		CreatedAt:      createdAt.In(s.displayTZ).Format(time.RFC3339),
		Author:         displayAuthor,
		OriginalAuthor: item.Author,
		SenderTag:      senderTag,
		AuthorEmail:    authorEmail,
		Title:          item.Title,
		ContentText:    content,
		ContentHTML:    item.ContentHTML,
		AIScore:        item.AIRelevanceScore,
		AISentiment:    item.AISentiment,
		AISummary:      item.AISummary,
		AICategory:     item.AICategory,
		AIMarketImpact: item.AIMarketImpact,
		AIReasoning:    item.AIReasoning,
		UserRating:     item.UserRating,
		FilterTags:     filterTags,
	}
}
