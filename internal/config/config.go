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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prcodex/Argus/internal/rules"
)

// AIConfig holds credentials for the external classification/vision service.
type AIConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Token        string
	Timeout      time.Duration
}

// Config holds all configuration for the feed service.
type Config struct {
	// Postgres
	DatabaseURL string

	// Redis
	RedisURL        string
	EnrichmentQueue string

	// External AI service
	AI AIConfig

	// Chart extraction service (optional; chart endpoints go dark
	// without it)
	ChartExtractorURL string

	// Presentation
	DisplayTimezone string

	// Background enricher
	EnrichInterval    time.Duration
	EnrichConcurrency int

	// Sender rule overrides merged in front of the built-in table
	RuleOverrides []rules.Rule

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Enrichment string `yaml:"enrichment"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	AI struct {
		BaseURL      string `yaml:"base_url"`
		TokenURL     string `yaml:"token_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		Token        string `yaml:"token"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"ai"`
	Charts struct {
		ExtractorURL string `yaml:"extractor_url"`
	} `yaml:"charts"`
	Display struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"display"`
	Enrich struct {
		Interval    string `yaml:"interval"`
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"enrich"`
	Rules struct {
		Overrides []struct {
			Match string `yaml:"match"`
			Tag   string `yaml:"tag"`
		} `yaml:"overrides"`
	} `yaml:"rules"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

// Load reads configuration from config.yaml (with env var expansion)
// and environment variables. A missing config file is not an error —
// everything can come from the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		// Env-only configuration
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		DatabaseURL:     firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:        firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		EnrichmentQueue: firstNonEmpty(raw.Redis.Queues.Enrichment, envOrDefault("ENRICHMENT_QUEUE", "enrichment")),
		AI: AIConfig{
			BaseURL:      firstNonEmpty(raw.AI.BaseURL, os.Getenv("AI_BASE_URL")),
			TokenURL:     firstNonEmpty(raw.AI.TokenURL, os.Getenv("AI_TOKEN_URL")),
			ClientID:     firstNonEmpty(raw.AI.ClientID, os.Getenv("AI_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.AI.ClientSecret, os.Getenv("AI_CLIENT_SECRET")),
			Token:        firstNonEmpty(raw.AI.Token, os.Getenv("AI_TOKEN")),
			Timeout:      durationOrDefault(raw.AI.Timeout, envOrDefaultDuration("AI_TIMEOUT", 30*time.Second)),
		},
		ChartExtractorURL: firstNonEmpty(raw.Charts.ExtractorURL, os.Getenv("CHART_EXTRACTOR_URL")),
		DisplayTimezone:   firstNonEmpty(raw.Display.Timezone, envOrDefault("DISPLAY_TIMEZONE", "America/New_York")),
		EnrichInterval:    durationOrDefault(raw.Enrich.Interval, envOrDefaultDuration("ENRICH_INTERVAL", 5*time.Minute)),
		EnrichConcurrency: raw.Enrich.Concurrency,
		Port:              raw.Server.Port,
	}

	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = envOrDefaultInt("ENRICH_CONCURRENCY", 4)
	}
	if cfg.Port == 0 {
		cfg.Port = envOrDefaultInt("PORT", 8540)
	}

	for _, r := range raw.Rules.Overrides {
		if r.Match == "" || r.Tag == "" {
			continue
		}
		cfg.RuleOverrides = append(cfg.RuleOverrides, rules.Rule{Match: r.Match, Tag: r.Tag})
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required — set it in config.yaml or the environment")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func durationOrDefault(raw string, fallback time.Duration) time.Duration {
	if raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
