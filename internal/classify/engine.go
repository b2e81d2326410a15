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

// Package classify assigns a canonical sender identity to feed items.
//
// Resolution is layered, first match wins:
//
//  1. A stored SenderTag is authoritative and returned verbatim.
//  2. Name fragments in a fixed priority order. Itau is checked before
//     anything else because its mails arrive via shared infrastructure
//     whose domains would otherwise tag them as the wrong sender;
//     Substack next, then the direct brand fragments.
//  3. Domain rules across author, author_email, content_text.
//  4. Domain rules against nested sender metadata.
//  5. The external AI classifier, cached per item so the call happens
//     at most once per item. AI failures degrade to Unknown/LOW.
//
// Two senders split into sub-variants on content, not just domain:
// WSJ-family mail with an "Opinion:" title prefix is "WSJ Opinion",
// and Rosenberg mail that is the Early Morning edition is
// "Rosenberg_EM". Those checks run before the plain domain rules can
// reach either sender's base tag, otherwise the sub-variant would be
// unreachable.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/prcodex/Argus/internal/cache"
	"github.com/prcodex/Argus/internal/models"
	"github.com/prcodex/Argus/internal/rules"
)

// Sender tags with special handling.
const (
	TagUnknown       = "Unknown"
	TagWSJ           = "Wall Street Journal"
	TagWSJOpinion    = "WSJ Opinion"
	TagRosenberg     = "Rosenberg Research"
	TagRosenbergEM   = "Rosenberg_EM"
	TagBloombergFeed = "Bloomberg Feed"
	TagGoldmanSachs  = "Goldman Sachs"
)

// wsjDomains are the Dow Jones family domains sharing the opinion split.
var wsjDomains = []string{"@wsj.com", "@dowjones.com", "@barrons.com"}

const rosenbergDomain = "@rosenbergresearch.com"

// gsHeaderPattern finds forwarded mail headers pointing at Goldman
// Sachs inside raw content.
var gsHeaderPattern = regexp.MustCompile(`(?i)(?:From|Sender|Reply-To):[^\n]*@gs\.com`)

// AIDetector is the external fallback classifier.
type AIDetector interface {
	ClassifySender(ctx context.Context, item models.FeedItem) (models.ClassificationResult, error)
}

// Engine resolves sender identity, the feed-type flag, and the
// organization detectors for feed items.
type Engine struct {
	table *rules.Table
	ai    AIDetector   // nil disables the AI fallback
	cache *cache.Cache // nil disables AI result caching
}

// New creates a classification engine. ai and enrichCache may be nil;
// the engine then resolves rules only.
func New(table *rules.Table, ai AIDetector, enrichCache *cache.Cache) *Engine {
	return &Engine{table: table, ai: ai, cache: enrichCache}
}

// Classify resolves the sender of an item. It never returns an error:
// when everything else fails the result is Unknown with LOW confidence
// and the failure text as reasoning.
func (e *Engine) Classify(ctx context.Context, item models.FeedItem) models.ClassificationResult {
	// Stored tag is authoritative.
	if tag := strings.TrimSpace(item.Custom.SenderTag); tag != "" {
		return models.ClassificationResult{
			SenderTag:  tag,
			Confidence: models.ConfidenceHigh,
			Reasoning:  "stored",
		}
	}

	if tag, reason, ok := e.detect(item); ok {
		return models.ClassificationResult{
			SenderTag:  tag,
			Confidence: models.ConfidenceHigh,
			Reasoning:  reason,
		}
	}

	return e.classifyWithAI(ctx, item)
}

// Detect runs only the deterministic layers (fragments, domain rules,
// nested metadata) and reports whether anything matched. Read paths use
// this so filtering never triggers network calls.
func (e *Engine) Detect(item models.FeedItem) (string, bool) {
	if tag := strings.TrimSpace(item.Custom.SenderTag); tag != "" {
		return tag, true
	}
	tag, _, ok := e.detect(item)
	return tag, ok
}

func (e *Engine) detect(item models.FeedItem) (tag, reason string, ok bool) {
	author := strings.ToLower(item.Author)
	title := strings.ToLower(item.Title)

	// Priority 1: Itau before anything sharing its mail infrastructure.
	if containsAny(author, "itau", "itaú") || containsAny(title, "itau", "itaú") {
		return "Itau", "name fragment", true
	}

	// Priority 2: Substack newsletters.
	if strings.Contains(author, "substack") || strings.Contains(title, "substack") {
		return "Substack Newsletters", "name fragment", true
	}
	if strings.Contains(head(item.ContentText, 2000), "substack.com") ||
		strings.Contains(head(item.ContentHTML, 2000), "substack.com") {
		return "Substack Newsletters", "substack.com in content", true
	}

	// Priority 3: direct brand fragments.
	if containsAny(author, "gs macro", "goldman sachs", "gs research") {
		return TagGoldmanSachs, "name fragment", true
	}
	if strings.Contains(author, "bloomberg") {
		return "Bloomberg", "name fragment", true
	}
	if containsAny(author, "wsj", "wall street journal") {
		return e.wsjVariant(item), "name fragment", true
	}
	if strings.Contains(author, "rosenberg") {
		return e.rosenbergVariant(item), "name fragment", true
	}
	if containsAny(author, "ft.com", "financial times") {
		return "Financial Times", "name fragment", true
	}
	if containsAny(author, "jpmorgan", "j.p. morgan", "jp morgan") {
		return "J.P. Morgan", "name fragment", true
	}

	// Domain rules, field by field. Sub-variant domains are intercepted
	// ahead of the table so their base tags cannot shadow the variants.
	fields := []struct {
		name  string
		value string
	}{
		{"author", item.Author},
		{"author_email", item.AuthorEmail},
		{"content_text", item.ContentText},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if tag, ok := e.domainLookup(item, f.value); ok {
			return tag, fmt.Sprintf("domain rule in %s", f.name), true
		}
	}

	// Nested sender metadata from the collector.
	if item.Custom.Sender != nil && item.Custom.Sender.Email != "" {
		if tag, ok := e.domainLookup(item, item.Custom.Sender.Email); ok {
			return tag, "domain rule in sender metadata", true
		}
	}

	return "", "", false
}

func (e *Engine) domainLookup(item models.FeedItem, value string) (string, bool) {
	lower := strings.ToLower(value)
	for _, d := range wsjDomains {
		if strings.Contains(lower, d) {
			return e.wsjVariant(item), true
		}
	}
	if strings.Contains(lower, rosenbergDomain) {
		return e.rosenbergVariant(item), true
	}
	return e.table.Lookup(value)
}

// wsjVariant splits Dow Jones family mail into opinion vs news on the
// title prefix.
func (e *Engine) wsjVariant(item models.FeedItem) string {
	title := strings.ToLower(strings.TrimSpace(item.Title))
	if strings.HasPrefix(title, "opinion:") {
		return TagWSJOpinion
	}
	return TagWSJ
}

// rosenbergVariant splits Rosenberg mail into the Early Morning edition
// vs the headline product. Two triggers for the EM edition: the subject
// names it, or the content carries its recommendations section.
func (e *Engine) rosenbergVariant(item models.FeedItem) string {
	if strings.Contains(strings.ToLower(item.Title), "early morning with dave") {
		return TagRosenbergEM
	}
	if strings.Contains(head(item.ContentText, 1000), "fundamental recommendations") {
		return TagRosenbergEM
	}
	return TagRosenberg
}

// classifyWithAI invokes the external classifier, caching the result
// per item so the call happens at most once per item identity.
func (e *Engine) classifyWithAI(ctx context.Context, item models.FeedItem) models.ClassificationResult {
	if e.ai == nil {
		return models.ClassificationResult{
			SenderTag:  TagUnknown,
			Confidence: models.ConfidenceLow,
			Reasoning:  "no AI classifier configured",
		}
	}

	compute := func(ctx context.Context) ([]byte, error) {
		result, err := e.ai.ClassifySender(ctx, item)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}

	var payload json.RawMessage
	var err error
	if e.cache != nil && item.ID != "" {
		payload, err = e.cache.GetOrCompute(ctx, "classify:"+item.ID, compute)
	} else {
		payload, err = compute(ctx)
	}
	if err != nil {
		slog.Warn("AI sender classification failed", "item_id", item.ID, "error", err)
		return models.ClassificationResult{
			SenderTag:  TagUnknown,
			Confidence: models.ConfidenceLow,
			Reasoning:  err.Error(),
		}
	}

	var result models.ClassificationResult
	if err := json.Unmarshal(payload, &result); err != nil {
		slog.Warn("undecodable cached classification", "item_id", item.ID, "error", err)
		return models.ClassificationResult{
			SenderTag:  TagUnknown,
			Confidence: models.ConfidenceLow,
			Reasoning:  "undecodable classification payload",
		}
	}
	return result
}

// FeedTypeFlag derives the binary feed category. Social posts are
// always newsfeed; otherwise only the Bloomberg wire-alert variant
// qualifies — Bloomberg editorial stays "other". Recomputed per read,
// never stored as history.
func (e *Engine) FeedTypeFlag(item models.FeedItem, resolvedTag string) string {
	if item.SourceType == models.SourceSocialPost {
		return models.FeedTypeNewsfeed
	}
	if resolvedTag == TagBloombergFeed {
		return models.FeedTypeNewsfeed
	}
	return models.FeedTypeOther
}

// IsGoldmanSachs reports whether an item originates from Goldman Sachs.
// It ORs independent detectors, cheapest first, short-circuiting on the
// first hit; the content-header regex is the most expensive and runs
// last.
func (e *Engine) IsGoldmanSachs(item models.FeedItem) bool {
	if strings.Contains(strings.ToLower(item.AuthorEmail), "@gs.com") {
		return true
	}
	if strings.Contains(strings.ToLower(item.Author), "@gs.com") {
		return true
	}
	if s := item.Custom.Sender; s != nil {
		if strings.Contains(strings.ToLower(s.Email), "@gs.com") {
			return true
		}
		if strings.EqualFold(s.Tag, "goldman sachs") {
			return true
		}
	}
	if t := item.Custom.Tags; t != nil {
		for _, tag := range t.CustomTags {
			if strings.Contains(strings.ToLower(tag), "goldman") {
				return true
			}
		}
	}
	if item.ContentText != "" && gsHeaderPattern.MatchString(item.ContentText) {
		return true
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func head(s string, n int) string {
	if len(s) > n {
		s = s[:n]
	}
	return strings.ToLower(s)
}
