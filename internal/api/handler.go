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

// Package api exposes the feed over HTTP: paginated queries, single
// items, user ratings, the sender block list, aggregate stats, the
// ingest boundary for collectors, and the chart intelligence views.
// All responses are JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prcodex/Argus/internal/blocklist"
	"github.com/prcodex/Argus/internal/feed"
	"github.com/prcodex/Argus/internal/models"
	"github.com/prcodex/Argus/internal/store"
)

// defaultPageSize is the feed page size when the client does not ask
// for one.
const defaultPageSize = 50

// FeedService answers feed queries.
type FeedService interface {
	Query(ctx context.Context, filter string, limit, offset int) *feed.Page
	Item(ctx context.Context, id string) (*feed.Item, error)
	SenderCounts(ctx context.Context) (map[string]int, error)
	FeedTypeCounts(ctx context.Context) (map[string]int, error)
}

// ItemStore is the slice of the store the API writes through.
type ItemStore interface {
	Upsert(ctx context.Context, item models.FeedItem) (bool, error)
	SetRating(ctx context.Context, id string, rating float64) error
	CountItems(ctx context.Context) (int, error)
}

// BlockList manages blocked sender patterns and answers whether a
// sender is currently blocked.
type BlockList interface {
	Block(ctx context.Context, pattern, patternType, reason string) error
	Unblock(ctx context.Context, pattern string) error
	List(ctx context.Context) ([]models.BlockedPattern, error)
	IsBlocked(ctx context.Context, author, authorEmail string) (string, bool, error)
	RecordHit(ctx context.Context, pattern string) error
}

// Deduper short-circuits repeated ingestion of the same item id.
// IsNew marks the id seen as a side effect; Forget undoes the marker
// when ingestion fails after the check.
type Deduper interface {
	IsNew(ctx context.Context, itemID string) (bool, error)
	Forget(ctx context.Context, itemID string) error
}

// Publisher hands newly ingested items to the enrichment workers.
type Publisher interface {
	PublishItem(ctx context.Context, item *models.FeedItem) error
}

// ChartService serves cached chart analyses.
type ChartService interface {
	List(ctx context.Context) ([]models.ChartAnalysis, error)
	Refresh(ctx context.Context) (int, error)
}

// Handler serves the feed HTTP API.
type Handler struct {
	feed   FeedService
	store  ItemStore
	blocks BlockList
	dedup  Deduper
	queue  Publisher
	charts ChartService
}

// NewHandler creates the API handler. dedup, queue, and charts may be
// nil: ingestion then skips the corresponding step, and the chart
// endpoints report the service as unconfigured.
func NewHandler(feedSvc FeedService, itemStore ItemStore, blocks BlockList,
	dedup Deduper, queue Publisher, charts ChartService) *Handler {
	return &Handler{
		feed:   feedSvc,
		store:  itemStore,
		blocks: blocks,
		dedup:  dedup,
		queue:  queue,
		charts: charts,
	}
}

// Router builds the route table.
func (h *Handler) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /feed", h.handleFeed)
	mux.HandleFunc("GET /item/{id}", h.handleItem)
	mux.HandleFunc("POST /rating", h.handleRating)
	mux.HandleFunc("POST /block", h.handleBlock)
	mux.HandleFunc("POST /unblock", h.handleUnblock)
	mux.HandleFunc("GET /blocked", h.handleBlocked)
	mux.HandleFunc("GET /stats/sender-counts", h.handleSenderCounts)
	mux.HandleFunc("GET /stats/feed-type-counts", h.handleFeedTypeCounts)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /ingest", h.handleIngest)
	mux.HandleFunc("GET /charts", h.handleCharts)
	mux.HandleFunc("POST /charts/refresh", h.handleChartsRefresh)
	return mux
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := q.Get("filter")
	if filter == "" {
		filter = "all"
	}
	limit := intParam(q.Get("limit"), defaultPageSize)
	offset := intParam(q.Get("offset"), 0)

	page := h.feed.Query(r.Context(), filter, limit, offset)
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	item, err := h.feed.Item(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("item %s not found", id))
		return
	}
	if err != nil {
		slog.Error("item fetch failed", "item_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "item fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type ratingRequest struct {
	ID     string   `json:"id"`
	Rating *float64 `json:"rating"`
}

func (h *Handler) handleRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if req.Rating == nil {
		writeError(w, http.StatusBadRequest, "rating is required")
		return
	}
	if *req.Rating < 0 || *req.Rating > 10 {
		writeError(w, http.StatusBadRequest, "rating must be between 0 and 10")
		return
	}

	err := h.store.SetRating(r.Context(), req.ID, *req.Rating)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("item %s not found", req.ID))
		return
	}
	if err != nil {
		slog.Error("rating update failed", "item_id", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "rating update failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"rating":  *req.Rating,
	})
}

type blockRequest struct {
	Pattern     string `json:"pattern"`
	PatternType string `json:"pattern_type"`
	Reason      string `json:"reason"`
}

func (h *Handler) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Pattern) == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}

	err := h.blocks.Block(r.Context(), req.Pattern, req.PatternType, req.Reason)
	if errors.Is(err, blocklist.ErrExists) {
		writeError(w, http.StatusConflict, "pattern already blocked")
		return
	}
	if err != nil {
		slog.Error("block failed", "pattern", req.Pattern, "error", err)
		writeError(w, http.StatusInternalServerError, "block failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) handleUnblock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Pattern) == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}

	err := h.blocks.Unblock(r.Context(), req.Pattern)
	if errors.Is(err, blocklist.ErrNotFound) {
		writeError(w, http.StatusNotFound, "pattern not blocked")
		return
	}
	if err != nil {
		slog.Error("unblock failed", "pattern", req.Pattern, "error", err)
		writeError(w, http.StatusInternalServerError, "unblock failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) handleBlocked(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.blocks.List(r.Context())
	if err != nil {
		slog.Error("block list fetch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "block list fetch failed")
		return
	}
	if patterns == nil {
		patterns = []models.BlockedPattern{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"blocked_senders": patterns,
		"total_blocked":   len(patterns),
	})
}

func (h *Handler) handleSenderCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.feed.SenderCounts(r.Context())
	if err != nil {
		slog.Error("sender counts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sender counts failed")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) handleFeedTypeCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.feed.FeedTypeCounts(r.Context())
	if err != nil {
		slog.Error("feed type counts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "feed type counts failed")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, err := h.store.CountItems(r.Context())
	if err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":    "degraded",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"total_items": total,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var item models.FeedItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	switch item.SourceType {
	case models.SourceMessage, models.SourceSocialPost, models.SourceNews, models.SourceOther:
	case "":
		item.SourceType = models.SourceOther
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source_type %q", item.SourceType))
		return
	}
	if item.CreatedAt == nil {
		now := time.Now().UTC()
		item.CreatedAt = &now
	}

	ctx := r.Context()

	if h.blocks != nil {
		pattern, blocked, err := h.blocks.IsBlocked(ctx, item.Author, item.AuthorEmail)
		if err != nil {
			slog.Warn("block list check failed, proceeding", "item_id", item.ID, "error", err)
		} else if blocked {
			if err := h.blocks.RecordHit(ctx, pattern); err != nil {
				slog.Warn("block hit count failed", "pattern", pattern, "error", err)
			}
			slog.Info("ingest suppressed by block list", "item_id", item.ID, "pattern", pattern)
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"id":      item.ID,
				"blocked": true,
			})
			return
		}
	}

	if h.dedup != nil {
		isNew, err := h.dedup.IsNew(ctx, item.ID)
		if err != nil {
			// The store upsert is idempotent anyway.
			slog.Warn("dedup check failed, proceeding", "item_id", item.ID, "error", err)
		} else if !isNew {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success":   true,
				"id":        item.ID,
				"duplicate": true,
			})
			return
		}
	}

	inserted, err := h.store.Upsert(ctx, item)
	if err != nil {
		// The dedup check above already marked the id seen; undo it so a
		// collector retry is not swallowed as a duplicate.
		if h.dedup != nil {
			if ferr := h.dedup.Forget(ctx, item.ID); ferr != nil {
				slog.Warn("dedup forget failed", "item_id", item.ID, "error", ferr)
			}
		}
		slog.Error("ingest failed", "item_id", item.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "ingest failed")
		return
	}

	if inserted && h.queue != nil {
		if err := h.queue.PublishItem(ctx, &item); err != nil {
			// The enricher pass will still pick the item up.
			slog.Warn("enrichment publish failed", "item_id", item.ID, "error", err)
		}
	}

	status := http.StatusCreated
	if !inserted {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"success":   true,
		"id":        item.ID,
		"duplicate": !inserted,
	})
}

func (h *Handler) handleCharts(w http.ResponseWriter, r *http.Request) {
	if h.charts == nil {
		writeError(w, http.StatusServiceUnavailable, "chart service not configured")
		return
	}
	analyses, err := h.charts.List(r.Context())
	if err != nil {
		slog.Error("chart listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "chart listing failed")
		return
	}
	if analyses == nil {
		analyses = []models.ChartAnalysis{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"total_charts": len(analyses),
		"charts":       analyses,
	})
}

func (h *Handler) handleChartsRefresh(w http.ResponseWriter, r *http.Request) {
	if h.charts == nil {
		writeError(w, http.StatusServiceUnavailable, "chart service not configured")
		return
	}
	n, err := h.charts.Refresh(r.Context())
	if err != nil {
		slog.Error("chart refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "chart refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"invalidated": n,
	})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the API server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// accepting connections; the server shuts down when ctx is cancelled.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind API port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	go func() {
		slog.Info("API server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	return ready, nil
}
