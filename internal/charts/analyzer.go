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

package charts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prcodex/Argus/internal/cache"
	"github.com/prcodex/Argus/internal/models"
)

// chartKeyPrefix namespaces chart analyses in the enrichment cache so
// they can be invalidated without touching sender classifications.
const chartKeyPrefix = "chart:"

// Lister lists extracted charts.
type Lister interface {
	ListCharts(ctx context.Context) ([]Chart, error)
}

// Vision is the image interpretation model.
type Vision interface {
	AnalyzeChart(ctx context.Context, imageBase64, chartContext string) (string, error)
}

// Analyzer pairs the extraction service with the vision model and
// caches each chart's analysis. A chart is identified by its document
// name and its ordinal within the document; the same chart is never
// sent to the model twice.
type Analyzer struct {
	lister Lister
	vision Vision
	cache  *cache.Cache
}

// NewAnalyzer creates a chart analyzer.
func NewAnalyzer(lister Lister, vision Vision, c *cache.Cache) *Analyzer {
	return &Analyzer{lister: lister, vision: vision, cache: c}
}

// chartKey builds the cache key for a chart.
func chartKey(docName string, ordinal int) string {
	return fmt.Sprintf("%s%s_%d", chartKeyPrefix, docName, ordinal)
}

// List returns the analysis of every currently extracted chart,
// computing and caching any that have not been analyzed yet. A chart
// whose analysis fails is skipped with a warning rather than failing
// the whole listing.
func (a *Analyzer) List(ctx context.Context) ([]models.ChartAnalysis, error) {
	charts, err := a.lister.ListCharts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}

	analyses := make([]models.ChartAnalysis, 0, len(charts))
	for _, chart := range charts {
		analysis, err := a.analyze(ctx, chart)
		if err != nil {
			slog.Warn("chart analysis failed",
				"doc", chart.DocName,
				"ordinal", chart.Ordinal,
				"error", err,
			)
			continue
		}
		analyses = append(analyses, *analysis)
	}
	return analyses, nil
}

// Refresh drops every cached chart analysis so the next listing
// recomputes them. Returns how many entries were invalidated.
func (a *Analyzer) Refresh(ctx context.Context) (int, error) {
	return a.cache.ClearPrefix(ctx, chartKeyPrefix)
}

func (a *Analyzer) analyze(ctx context.Context, chart Chart) (*models.ChartAnalysis, error) {
	key := chartKey(chart.DocName, chart.Ordinal)

	payload, err := a.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		chartContext := chart.Caption
		if chartContext == "" {
			chartContext = fmt.Sprintf("%s, page %d", chart.DocName, chart.PageNumber)
		}
		text, err := a.vision.AnalyzeChart(ctx, chart.ImageBase64, chartContext)
		if err != nil {
			return nil, err
		}
		return json.Marshal(models.ChartAnalysis{
			ID:         key,
			DocName:    chart.DocName,
			Ordinal:    chart.Ordinal,
			Caption:    chart.Caption,
			PageNumber: chart.PageNumber,
			Analysis:   text,
			AnalyzedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	var analysis models.ChartAnalysis
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return nil, fmt.Errorf("decode cached analysis: %w", err)
	}
	return &analysis, nil
}
