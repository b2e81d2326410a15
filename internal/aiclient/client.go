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

// Package aiclient talks to the external AI classification and vision
// service. The service is called, not built: this client only shapes
// requests, enforces a per-call timeout, and decodes responses.
//
// Authentication follows the gateway's OAuth2 client-credentials flow;
// a static bearer token is accepted for dev setups.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/prcodex/Argus/internal/models"
)

// DefaultTimeout bounds a single classification or vision call. A call
// that exceeds it fails soft at the classify boundary instead of
// blocking the caller.
const DefaultTimeout = 30 * time.Second

// Config holds connection settings for the AI service.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Token is a static bearer token used when no client credentials
	// are configured.
	Token   string
	Timeout time.Duration
}

// Client calls the external AI service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// New creates an AI service client. With client credentials configured
// it uses an auto-refreshing OAuth2 client; otherwise a static token.
func New(ctx context.Context, cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var httpClient *http.Client
	switch {
	case cfg.ClientID != "" && cfg.ClientSecret != "":
		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = creds.Client(ctx)
	case cfg.Token != "":
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: cfg.Token},
		))
	default:
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		timeout:    timeout,
	}
}

// classifyRequest is the metadata sent for sender identification.
type classifyRequest struct {
	Author         string `json:"author"`
	AuthorEmail    string `json:"author_email,omitempty"`
	Title          string `json:"title"`
	ContentSnippet string `json:"content_snippet,omitempty"`
}

// classifyResponse mirrors the service's JSON result.
type classifyResponse struct {
	SenderTag  string `json:"sender_tag"`
	Confidence string `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// ClassifySender asks the AI service to identify the sender of an item
// whose metadata did not match any rule. The result is accepted
// verbatim; callers decide what to do with low confidence.
func (c *Client) ClassifySender(ctx context.Context, item models.FeedItem) (models.ClassificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	snippet := item.ContentText
	if len(snippet) > 2000 {
		snippet = snippet[:2000]
	}
	reqBody := classifyRequest{
		Author:         item.Author,
		AuthorEmail:    item.AuthorEmail,
		Title:          item.Title,
		ContentSnippet: snippet,
	}

	var resp classifyResponse
	if err := c.post(ctx, "/v1/classify-sender", reqBody, &resp); err != nil {
		return models.ClassificationResult{}, err
	}

	result := models.ClassificationResult{
		SenderTag:  resp.SenderTag,
		Confidence: models.Confidence(resp.Confidence),
		Reasoning:  resp.Reasoning,
	}
	if result.SenderTag == "" {
		result.SenderTag = "Unknown"
	}
	if result.Confidence == "" {
		result.Confidence = models.ConfidenceLow
	}
	return result, nil
}

// visionRequest carries one chart image for analysis.
type visionRequest struct {
	ImageBase64 string `json:"image_base64"`
	MediaType   string `json:"media_type"`
	Context     string `json:"context,omitempty"`
}

type visionResponse struct {
	Analysis string `json:"analysis"`
}

// AnalyzeChart sends a base64 PNG to the vision endpoint and returns
// the textual analysis.
func (c *Client) AnalyzeChart(ctx context.Context, imageBase64, chartContext string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := visionRequest{
		ImageBase64: imageBase64,
		MediaType:   "image/png",
		Context:     chartContext,
	}

	var resp visionResponse
	if err := c.post(ctx, "/v1/analyze-chart", reqBody, &resp); err != nil {
		return "", err
	}
	if resp.Analysis == "" {
		return "", fmt.Errorf("vision service returned empty analysis")
	}
	return resp.Analysis, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call AI service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("AI service returned HTTP %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
