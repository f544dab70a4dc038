// Package config loads engine configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		URL      string `yaml:"url"`
		RedisURL string `yaml:"redis_url"`
	} `yaml:"database"`
	Scoring struct {
		HistoryDays int `yaml:"history_days"`
		BatchLimit  int `yaml:"batch_limit"`
		Weights     struct {
			Performance     float64 `yaml:"performance"`
			Engagement      float64 `yaml:"engagement"`
			Credibility     float64 `yaml:"credibility"`
			MarketRelevance float64 `yaml:"market_relevance"`
		} `yaml:"weights"`
	} `yaml:"scoring"`
	Schedule struct {
		SnapshotCron string `yaml:"snapshot_cron"`
		RescoreCron  string `yaml:"rescore_cron"`
	} `yaml:"schedule"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides. A missing file is fine; everything has a default.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Database.RedisURL = v
	}
	if v := os.Getenv("CRON_SNAPSHOT"); v != "" {
		cfg.Schedule.SnapshotCron = v
	}
	if v := os.Getenv("CRON_RESCORE"); v != "" {
		cfg.Schedule.RescoreCron = v
	}

	// Defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Scoring.HistoryDays == 0 {
		cfg.Scoring.HistoryDays = 30
	}
	if cfg.Scoring.BatchLimit == 0 {
		cfg.Scoring.BatchLimit = 4
	}
	w := &cfg.Scoring.Weights
	if w.Performance == 0 && w.Engagement == 0 && w.Credibility == 0 && w.MarketRelevance == 0 {
		w.Performance = 0.4
		w.Engagement = 0.3
		w.Credibility = 0.2
		w.MarketRelevance = 0.1
	}
	if cfg.Schedule.SnapshotCron == "" {
		cfg.Schedule.SnapshotCron = "@every 1h"
	}
	if cfg.Schedule.RescoreCron == "" {
		cfg.Schedule.RescoreCron = "@every 6h"
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535]")
	}
	w := c.Scoring.Weights
	sum := w.Performance + w.Engagement + w.Credibility + w.MarketRelevance
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring.weights must sum to 1.0, got %g", sum)
	}
	if c.Scoring.BatchLimit < 1 {
		return fmt.Errorf("scoring.batch_limit must be at least 1")
	}
	return nil
}
