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

// Package charts turns extracted research-document charts into cached
// AI analyses. The extraction service pulls chart images out of PDFs;
// this package lists them, runs each through the vision model once, and
// serves the cached interpretation afterwards.
package charts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Chart is one extracted chart image as reported by the extraction
// service.
type Chart struct {
	DocName     string `json:"doc_name"`
	Ordinal     int    `json:"ordinal"`
	Caption     string `json:"caption"`
	PageNumber  int    `json:"page_number"`
	ImageBase64 string `json:"image_base64"`
}

// Client talks to the chart extraction service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an extraction service client. httpClient may be
// nil, in which case a client with a 30s timeout is used.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ListCharts returns every chart the extraction service currently
// holds, newest documents first.
func (c *Client) ListCharts(ctx context.Context) ([]Chart, error) {
	u := c.baseURL + "/v1/charts"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list charts failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var charts []Chart
	if err := json.NewDecoder(resp.Body).Decode(&charts); err != nil {
		return nil, fmt.Errorf("decode chart list: %w", err)
	}
	return charts, nil
}
