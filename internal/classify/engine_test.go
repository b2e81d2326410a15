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

package classify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prcodex/Argus/internal/models"
	"github.com/prcodex/Argus/internal/rules"
)

// fakeAI is a scripted AIDetector.
type fakeAI struct {
	calls  int32
	result models.ClassificationResult
	err    error
}

func (f *fakeAI) ClassifySender(context.Context, models.FeedItem) (models.ClassificationResult, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.result, f.err
}

func newEngine(ai AIDetector) *Engine {
	return New(rules.NewTable(nil), ai, nil)
}

// TestClassify_StoredTagWins verifies that a stored SenderTag always
// wins, regardless of what the rules would produce.
func TestClassify_StoredTagWins(t *testing.T) {
	e := newEngine(nil)

	item := models.FeedItem{
		ID:          "m1",
		Author:      "alerts@bloomberg.net",
		AuthorEmail: "alerts@bloomberg.net",
		Custom:      models.CustomFields{SenderTag: "X"},
	}

	got := e.Classify(context.Background(), item)
	if got.SenderTag != "X" {
		t.Errorf("SenderTag = %q, want %q", got.SenderTag, "X")
	}
	if got.Confidence != models.ConfidenceHigh {
		t.Errorf("Confidence = %q, want HIGH", got.Confidence)
	}
	if got.Reasoning != "stored" {
		t.Errorf("Reasoning = %q, want %q", got.Reasoning, "stored")
	}
}

// TestClassify_WSJOpinionSplit verifies the priority invariant: a WSJ
// domain with an "Opinion:" title prefix must yield the opinion
// sub-variant, never the base tag.
func TestClassify_WSJOpinionSplit(t *testing.T) {
	e := newEngine(nil)

	tests := []struct {
		name string
		item models.FeedItem
		want string
	}{
		{
			name: "opinion prefix",
			item: models.FeedItem{
				AuthorEmail: "newsletters@wsj.com",
				Title:       "Opinion: Trump Strikes",
			},
			want: TagWSJOpinion,
		},
		{
			name: "news briefing",
			item: models.FeedItem{
				AuthorEmail: "newsletters@wsj.com",
				Title:       "The 10-Point",
			},
			want: TagWSJ,
		},
		{
			name: "barrons opinion",
			item: models.FeedItem{
				AuthorEmail: "editors@barrons.com",
				Title:       "Opinion: Nobody Ever Got Younger",
			},
			want: TagWSJOpinion,
		},
		{
			name: "author fragment with opinion title",
			item: models.FeedItem{
				Author: "The Wall Street Journal",
				Title:  "Opinion: On Rates",
			},
			want: TagWSJOpinion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Classify(context.Background(), tt.item)
			if got.SenderTag != tt.want {
				t.Errorf("SenderTag = %q, want %q", got.SenderTag, tt.want)
			}
			if got.Confidence != models.ConfidenceHigh {
				t.Errorf("Confidence = %q, want HIGH", got.Confidence)
			}
		})
	}
}

// TestClassify_RosenbergEarlyMorningSplit verifies both triggers of the
// early-morning sub-variant and the base-tag fallback.
func TestClassify_RosenbergEarlyMorningSplit(t *testing.T) {
	e := newEngine(nil)

	tests := []struct {
		name string
		item models.FeedItem
		want string
	}{
		{
			name: "subject trigger",
			item: models.FeedItem{
				AuthorEmail: "research@rosenbergresearch.com",
				Title:       "Early Morning with Dave — July 3",
			},
			want: TagRosenbergEM,
		},
		{
			name: "content trigger",
			item: models.FeedItem{
				AuthorEmail: "research@rosenbergresearch.com",
				Title:       "Daily Note",
				ContentText: "Overview...\nFundamental Recommendations\n1. ...",
			},
			want: TagRosenbergEM,
		},
		{
			name: "unrelated subject",
			item: models.FeedItem{
				AuthorEmail: "research@rosenbergresearch.com",
				Title:       "Market Wrap",
			},
			want: TagRosenberg,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Classify(context.Background(), tt.item)
			if got.SenderTag != tt.want {
				t.Errorf("SenderTag = %q, want %q", got.SenderTag, tt.want)
			}
		})
	}
}

// TestClassify_FragmentPriority verifies Itau wins over later rules
// even when the item also carries another sender's infrastructure
// domain.
func TestClassify_FragmentPriority(t *testing.T) {
	e := newEngine(nil)

	item := models.FeedItem{
		Author:      "Itaú Research",
		AuthorEmail: "noreply@email.amazonses.com",
		ContentText: "via substack.com",
	}
	if got := e.Classify(context.Background(), item); got.SenderTag != "Itau" {
		t.Errorf("SenderTag = %q, want Itau", got.SenderTag)
	}
}

// TestClassify_DomainRule verifies the table lookup across fields.
func TestClassify_DomainRule(t *testing.T) {
	e := newEngine(nil)

	tests := []struct {
		name string
		item models.FeedItem
		want string
	}{
		{
			name: "author email",
			item: models.FeedItem{AuthorEmail: "macro@gs.com"},
			want: TagGoldmanSachs,
		},
		{
			name: "content text",
			item: models.FeedItem{ContentText: "From: research@citi.com"},
			want: "Citigroup",
		},
		{
			name: "nested sender metadata",
			item: models.FeedItem{
				Custom: models.CustomFields{
					Sender: &models.SenderMeta{Email: "updates@ft.com"},
				},
			},
			want: "Financial Times",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Classify(context.Background(), tt.item); got.SenderTag != tt.want {
				t.Errorf("SenderTag = %q, want %q", got.SenderTag, tt.want)
			}
		})
	}
}

// TestClassify_AIFallback verifies the AI result is accepted verbatim
// when no rule matches.
func TestClassify_AIFallback(t *testing.T) {
	ai := &fakeAI{result: models.ClassificationResult{
		SenderTag:  "Adam Tooze",
		Confidence: models.ConfidenceMedium,
		Reasoning:  "chartbook footer",
	}}
	e := newEngine(ai)

	item := models.FeedItem{ID: "m2", Author: "Chartbook", Title: "Chartbook #512"}
	got := e.Classify(context.Background(), item)
	if got.SenderTag != "Adam Tooze" || got.Confidence != models.ConfidenceMedium {
		t.Errorf("result = %+v, want AI result verbatim", got)
	}
	if atomic.LoadInt32(&ai.calls) != 1 {
		t.Errorf("AI calls = %d, want 1", ai.calls)
	}
}

// TestClassify_AIFailureDegrades verifies an AI failure never surfaces
// as a hard error.
func TestClassify_AIFailureDegrades(t *testing.T) {
	ai := &fakeAI{err: errors.New("rate limited")}
	e := newEngine(ai)

	got := e.Classify(context.Background(), models.FeedItem{ID: "m3", Author: "nobody"})
	if got.SenderTag != TagUnknown {
		t.Errorf("SenderTag = %q, want Unknown", got.SenderTag)
	}
	if got.Confidence != models.ConfidenceLow {
		t.Errorf("Confidence = %q, want LOW", got.Confidence)
	}
}

// TestFeedTypeFlag verifies the two-state feed classifier.
func TestFeedTypeFlag(t *testing.T) {
	e := newEngine(nil)

	tests := []struct {
		name string
		item models.FeedItem
		tag  string
		want string
	}{
		{
			name: "social post always newsfeed",
			item: models.FeedItem{SourceType: models.SourceSocialPost},
			tag:  "",
			want: models.FeedTypeNewsfeed,
		},
		{
			name: "bloomberg wire alerts",
			item: models.FeedItem{SourceType: models.SourceMessage},
			tag:  TagBloombergFeed,
			want: models.FeedTypeNewsfeed,
		},
		{
			name: "bloomberg editorial stays other",
			item: models.FeedItem{SourceType: models.SourceMessage},
			tag:  "Bloomberg",
			want: models.FeedTypeOther,
		},
		{
			name: "plain message",
			item: models.FeedItem{SourceType: models.SourceMessage},
			tag:  TagGoldmanSachs,
			want: models.FeedTypeOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.FeedTypeFlag(tt.item, tt.tag); got != tt.want {
				t.Errorf("FeedTypeFlag = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestIsGoldmanSachs exercises each detector of the OR check.
func TestIsGoldmanSachs(t *testing.T) {
	e := newEngine(nil)

	tests := []struct {
		name string
		item models.FeedItem
		want bool
	}{
		{
			name: "author email",
			item: models.FeedItem{AuthorEmail: "desk@GS.com"},
			want: true,
		},
		{
			name: "author field",
			item: models.FeedItem{Author: "Macro Desk <macro@gs.com>"},
			want: true,
		},
		{
			name: "content header",
			item: models.FeedItem{ContentText: "FYI\nFrom: Jan Hatzius <jan@gs.com>\nSent: Monday"},
			want: true,
		},
		{
			name: "nested sender tag",
			item: models.FeedItem{Custom: models.CustomFields{
				Sender: &models.SenderMeta{Tag: "Goldman Sachs"},
			}},
			want: true,
		},
		{
			name: "custom tag",
			item: models.FeedItem{Custom: models.CustomFields{
				Tags: &models.TagFields{CustomTags: []string{"macro", "Goldman research"}},
			}},
			want: true,
		},
		{
			name: "unrelated",
			item: models.FeedItem{Author: "FT", AuthorEmail: "a@ft.com", ContentText: "markets"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.IsGoldmanSachs(tt.item); got != tt.want {
				t.Errorf("IsGoldmanSachs = %v, want %v", got, tt.want)
			}
		})
	}
}
