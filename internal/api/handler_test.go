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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prcodex/Argus/internal/blocklist"
	"github.com/prcodex/Argus/internal/feed"
	"github.com/prcodex/Argus/internal/models"
	"github.com/prcodex/Argus/internal/store"
)

type fakeFeed struct {
	lastFilter string
	lastLimit  int
	lastOffset int
	page       *feed.Page
	item       *feed.Item
	itemErr    error
}

func (f *fakeFeed) Query(_ context.Context, filter string, limit, offset int) *feed.Page {
	f.lastFilter, f.lastLimit, f.lastOffset = filter, limit, offset
	if f.page != nil {
		return f.page
	}
	return &feed.Page{Items: []feed.Item{}}
}

func (f *fakeFeed) Item(context.Context, string) (*feed.Item, error) {
	return f.item, f.itemErr
}

func (f *fakeFeed) SenderCounts(context.Context) (map[string]int, error) {
	return map[string]int{"Itau": 3}, nil
}

func (f *fakeFeed) FeedTypeCounts(context.Context) (map[string]int, error) {
	return map[string]int{"newsfeed": 1, "other": 2}, nil
}

type fakeItemStore struct {
	upserted  []models.FeedItem
	inserted  bool
	upsertErr error
	ratings   map[string]float64
	ratingErr error
	total     int
}

func (f *fakeItemStore) Upsert(_ context.Context, item models.FeedItem) (bool, error) {
	if f.upsertErr != nil {
		err := f.upsertErr
		f.upsertErr = nil
		return false, err
	}
	f.upserted = append(f.upserted, item)
	return f.inserted, nil
}

func (f *fakeItemStore) SetRating(_ context.Context, id string, rating float64) error {
	if f.ratingErr != nil {
		return f.ratingErr
	}
	if f.ratings == nil {
		f.ratings = make(map[string]float64)
	}
	f.ratings[id] = rating
	return nil
}

func (f *fakeItemStore) CountItems(context.Context) (int, error) {
	return f.total, nil
}

type fakeBlocks struct {
	patterns []models.BlockedPattern
	blockErr error
	unErr    error
	hits     map[string]int
}

func (f *fakeBlocks) Block(_ context.Context, pattern, patternType, reason string) error {
	return f.blockErr
}

func (f *fakeBlocks) Unblock(context.Context, string) error {
	return f.unErr
}

func (f *fakeBlocks) List(context.Context) ([]models.BlockedPattern, error) {
	return f.patterns, nil
}

func (f *fakeBlocks) IsBlocked(_ context.Context, author, authorEmail string) (string, bool, error) {
	for _, p := range f.patterns {
		if blocklist.Match(p, author, authorEmail) {
			return p.Pattern, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeBlocks) RecordHit(_ context.Context, pattern string) error {
	if f.hits == nil {
		f.hits = make(map[string]int)
	}
	f.hits[pattern]++
	return nil
}

// fakeDedup mirrors the Redis filter: checking an id marks it seen.
type fakeDedup struct {
	seen map[string]bool
}

func (f *fakeDedup) IsNew(_ context.Context, id string) (bool, error) {
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}

func (f *fakeDedup) Forget(_ context.Context, id string) error {
	delete(f.seen, id)
	return nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) PublishItem(_ context.Context, item *models.FeedItem) error {
	f.published = append(f.published, item.ID)
	return nil
}

type fakeCharts struct {
	analyses    []models.ChartAnalysis
	invalidated int
}

func (f *fakeCharts) List(context.Context) ([]models.ChartAnalysis, error) {
	return f.analyses, nil
}

func (f *fakeCharts) Refresh(context.Context) (int, error) {
	return f.invalidated, nil
}

func newTestHandler() (*Handler, *fakeFeed, *fakeItemStore, *fakeBlocks, *fakePublisher) {
	feedSvc := &fakeFeed{}
	itemStore := &fakeItemStore{inserted: true}
	blocks := &fakeBlocks{}
	pub := &fakePublisher{}
	h := NewHandler(feedSvc, itemStore, blocks, &fakeDedup{seen: map[string]bool{}}, pub, nil)
	return h, feedSvc, itemStore, blocks, pub
}

func doRequest(t *testing.T, h *Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return m
}

func TestFeedEndpoint(t *testing.T) {
	h, feedSvc, _, _, _ := newTestHandler()

	rec := doRequest(t, h, http.MethodGet, "/feed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if feedSvc.lastFilter != "all" || feedSvc.lastLimit != defaultPageSize || feedSvc.lastOffset != 0 {
		t.Errorf("defaults = (%q, %d, %d)", feedSvc.lastFilter, feedSvc.lastLimit, feedSvc.lastOffset)
	}

	doRequest(t, h, http.MethodGet, "/feed?filter=goldman_sachs&limit=10&offset=20", "")
	if feedSvc.lastFilter != "goldman_sachs" || feedSvc.lastLimit != 10 || feedSvc.lastOffset != 20 {
		t.Errorf("params = (%q, %d, %d)", feedSvc.lastFilter, feedSvc.lastLimit, feedSvc.lastOffset)
	}

	// Garbage numerics fall back to defaults rather than erroring.
	doRequest(t, h, http.MethodGet, "/feed?limit=abc", "")
	if feedSvc.lastLimit != defaultPageSize {
		t.Errorf("limit = %d, want default", feedSvc.lastLimit)
	}
}

func TestItemEndpoint(t *testing.T) {
	h, feedSvc, _, _, _ := newTestHandler()

	feedSvc.item = &feed.Item{ID: "abc"}
	rec := doRequest(t, h, http.MethodGet, "/item/abc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	feedSvc.item = nil
	feedSvc.itemErr = store.ErrNotFound
	rec = doRequest(t, h, http.MethodGet, "/item/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRatingEndpoint(t *testing.T) {
	h, _, itemStore, _, _ := newTestHandler()

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"missing id", `{"rating": 5}`, http.StatusBadRequest},
		{"missing rating", `{"id": "a"}`, http.StatusBadRequest},
		{"negative", `{"id": "a", "rating": -1}`, http.StatusBadRequest},
		{"too high", `{"id": "a", "rating": 10.5}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"boundary low", `{"id": "a", "rating": 0}`, http.StatusOK},
		{"boundary high", `{"id": "a", "rating": 10}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/rating", tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}

	rec := doRequest(t, h, http.MethodPost, "/rating", `{"id": "a", "rating": 7.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["rating"] != 7.5 {
		t.Errorf("body = %v", body)
	}
	if itemStore.ratings["a"] != 7.5 {
		t.Errorf("stored rating = %v", itemStore.ratings["a"])
	}

	itemStore.ratingErr = store.ErrNotFound
	rec = doRequest(t, h, http.MethodPost, "/rating", `{"id": "ghost", "rating": 5}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestBlockEndpoints(t *testing.T) {
	h, _, _, blocks, _ := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/block", `{"pattern": "spam@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/block", `{"pattern": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty pattern status = %d, want 400", rec.Code)
	}

	blocks.blockErr = blocklist.ErrExists
	rec = doRequest(t, h, http.MethodPost, "/block", `{"pattern": "spam@example.com"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}

	blocks.unErr = blocklist.ErrNotFound
	rec = doRequest(t, h, http.MethodPost, "/unblock", `{"pattern": "nobody"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unblock status = %d, want 404", rec.Code)
	}

	blocks.patterns = []models.BlockedPattern{{Pattern: "spam@example.com"}}
	rec = doRequest(t, h, http.MethodGet, "/blocked", "")
	body := decodeBody(t, rec)
	if body["total_blocked"] != float64(1) {
		t.Errorf("total_blocked = %v", body["total_blocked"])
	}
}

func TestStatsAndHealth(t *testing.T) {
	h, _, itemStore, _, _ := newTestHandler()
	itemStore.total = 42

	rec := doRequest(t, h, http.MethodGet, "/stats/sender-counts", "")
	body := decodeBody(t, rec)
	if body["Itau"] != float64(3) {
		t.Errorf("sender counts = %v", body)
	}

	rec = doRequest(t, h, http.MethodGet, "/stats/feed-type-counts", "")
	body = decodeBody(t, rec)
	if body["newsfeed"] != float64(1) || body["other"] != float64(2) {
		t.Errorf("feed type counts = %v", body)
	}

	rec = doRequest(t, h, http.MethodGet, "/health", "")
	body = decodeBody(t, rec)
	if body["status"] != "ok" || body["total_items"] != float64(42) {
		t.Errorf("health = %v", body)
	}
}

func TestIngestEndpoint(t *testing.T) {
	h, _, itemStore, _, pub := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/ingest",
		`{"id": "m1", "source_type": "message", "title": "hello"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["duplicate"] != false || body["id"] != "m1" {
		t.Errorf("body = %v", body)
	}
	if len(itemStore.upserted) != 1 || itemStore.upserted[0].CreatedAt == nil {
		t.Fatalf("upserted = %+v, want one item with defaulted created_at", itemStore.upserted)
	}
	if len(pub.published) != 1 || pub.published[0] != "m1" {
		t.Errorf("published = %v", pub.published)
	}

	// Missing id gets generated; missing source_type defaults.
	rec = doRequest(t, h, http.MethodPost, "/ingest", `{"title": "anon"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["id"] == "" {
		t.Error("id was not generated")
	}
	if itemStore.upserted[1].SourceType != models.SourceOther {
		t.Errorf("source_type = %q, want other", itemStore.upserted[1].SourceType)
	}

	rec = doRequest(t, h, http.MethodPost, "/ingest", `{"source_type": "carrier-pigeon"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown source_type status = %d, want 400", rec.Code)
	}
}

func TestIngestDuplicates(t *testing.T) {
	feedSvc := &fakeFeed{}
	itemStore := &fakeItemStore{inserted: true}
	pub := &fakePublisher{}
	dedup := &fakeDedup{seen: map[string]bool{"known": true}}
	h := NewHandler(feedSvc, itemStore, &fakeBlocks{}, dedup, pub, nil)

	// Dedup hit: no store write, no publish.
	rec := doRequest(t, h, http.MethodPost, "/ingest", `{"id": "known"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["duplicate"] != true {
		t.Errorf("body = %v", body)
	}
	if len(itemStore.upserted) != 0 || len(pub.published) != 0 {
		t.Error("duplicate reached the store or the queue")
	}

	// Dedup miss but row already present: upsert reports no insert.
	itemStore.inserted = false
	rec = doRequest(t, h, http.MethodPost, "/ingest", `{"id": "racing"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["duplicate"] != true {
		t.Errorf("body = %v", body)
	}
	if len(pub.published) != 0 {
		t.Error("existing row was republished")
	}
}

// TestIngestRetryAfterStoreFailure verifies that a failed upsert
// releases the dedup marker, so a collector retry of the same item is
// ingested instead of being answered as a duplicate.
func TestIngestRetryAfterStoreFailure(t *testing.T) {
	itemStore := &fakeItemStore{inserted: true, upsertErr: errors.New("postgres unavailable")}
	pub := &fakePublisher{}
	h := NewHandler(&fakeFeed{}, itemStore, &fakeBlocks{}, &fakeDedup{seen: map[string]bool{}}, pub, nil)

	rec := doRequest(t, h, http.MethodPost, "/ingest", `{"id": "item-1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("first attempt status = %d, want 500", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/ingest", `{"id": "item-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("retry status = %d (%s), want 201", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["duplicate"] != false {
		t.Errorf("retry body = %v, want duplicate=false", body)
	}
	if len(itemStore.upserted) != 1 {
		t.Errorf("stored items = %d, want 1", len(itemStore.upserted))
	}
	if len(pub.published) != 1 {
		t.Errorf("published items = %d, want 1", len(pub.published))
	}
}

// TestIngestBlockedSender verifies blocked senders are suppressed at
// the ingest boundary with the pattern's hit counter incremented.
func TestIngestBlockedSender(t *testing.T) {
	itemStore := &fakeItemStore{inserted: true}
	pub := &fakePublisher{}
	blocks := &fakeBlocks{patterns: []models.BlockedPattern{
		{Pattern: "spam@example.com", PatternType: models.PatternExact},
	}}
	h := NewHandler(&fakeFeed{}, itemStore, blocks, &fakeDedup{seen: map[string]bool{}}, pub, nil)

	rec := doRequest(t, h, http.MethodPost, "/ingest",
		`{"id": "junk", "author_email": "spam@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["blocked"] != true {
		t.Errorf("body = %v", body)
	}
	if len(itemStore.upserted) != 0 || len(pub.published) != 0 {
		t.Error("blocked item reached the store or the queue")
	}
	if blocks.hits["spam@example.com"] != 1 {
		t.Errorf("hits = %v, want one for the matched pattern", blocks.hits)
	}

	// An unblocked sender passes through untouched.
	rec = doRequest(t, h, http.MethodPost, "/ingest",
		`{"id": "fine", "author_email": "desk@bloomberg.net"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(itemStore.upserted) != 1 {
		t.Errorf("stored items = %d, want 1", len(itemStore.upserted))
	}
}

func TestChartEndpoints(t *testing.T) {
	h, _, _, _, _ := newTestHandler()

	// No chart service configured.
	rec := doRequest(t, h, http.MethodGet, "/charts", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	charts := &fakeCharts{
		analyses:    []models.ChartAnalysis{{ID: "chart:doc.pdf_1", Analysis: "up and to the right"}},
		invalidated: 1,
	}
	h = NewHandler(&fakeFeed{}, &fakeItemStore{}, &fakeBlocks{}, nil, nil, charts)

	rec = doRequest(t, h, http.MethodGet, "/charts", "")
	body := decodeBody(t, rec)
	if body["success"] != true || body["total_charts"] != float64(1) {
		t.Errorf("charts = %v", body)
	}

	rec = doRequest(t, h, http.MethodPost, "/charts/refresh", "")
	body = decodeBody(t, rec)
	if body["success"] != true || body["invalidated"] != float64(1) {
		t.Errorf("refresh = %v", body)
	}
}
