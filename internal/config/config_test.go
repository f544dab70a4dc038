package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Scoring.HistoryDays != 30 {
		t.Errorf("history days = %d, want 30", cfg.Scoring.HistoryDays)
	}
	if cfg.Scoring.BatchLimit != 4 {
		t.Errorf("batch limit = %d, want 4", cfg.Scoring.BatchLimit)
	}
	if cfg.Scoring.Weights.Performance != 0.4 || cfg.Scoring.Weights.MarketRelevance != 0.1 {
		t.Errorf("unexpected default weights: %+v", cfg.Scoring.Weights)
	}
	if cfg.Schedule.SnapshotCron != "@every 1h" || cfg.Schedule.RescoreCron != "@every 6h" {
		t.Errorf("unexpected default schedule: %+v", cfg.Schedule)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9090
scoring:
  history_days: 60
  weights:
    performance: 0.5
    engagement: 0.2
    credibility: 0.2
    market_relevance: 0.1
schedule:
  snapshot_cron: "@every 30m"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Scoring.HistoryDays != 60 {
		t.Errorf("history days = %d, want 60", cfg.Scoring.HistoryDays)
	}
	if cfg.Scoring.Weights.Performance != 0.5 {
		t.Errorf("performance weight = %v, want 0.5", cfg.Scoring.Weights.Performance)
	}
	if cfg.Schedule.SnapshotCron != "@every 30m" {
		t.Errorf("snapshot cron = %q", cfg.Schedule.SnapshotCron)
	}
	// Unset fields still fall back to defaults.
	if cfg.Schedule.RescoreCron != "@every 6h" {
		t.Errorf("rescore cron = %q, want default", cfg.Schedule.RescoreCron)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://localhost/matador")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("CRON_SNAPSHOT", "@every 5m")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/matador" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if cfg.Database.RedisURL != "redis://localhost:6379" {
		t.Errorf("redis url = %q", cfg.Database.RedisURL)
	}
	if cfg.Schedule.SnapshotCron != "@every 5m" {
		t.Errorf("snapshot cron = %q", cfg.Schedule.SnapshotCron)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"weights do not sum to one", func(c *Config) { c.Scoring.Weights.Performance = 0.9 }},
		{"batch limit below one", func(c *Config) { c.Scoring.BatchLimit = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
