package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsMatchEngineConstants(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	tc := cfg.Indexer.TokenizerConfig()
	if tc.WordWeight != 20 || tc.PrefixWeight != 5 || tc.PrefixMinLength != 4 || tc.NGramWeight != 1 || tc.NGramSize != 3 {
		t.Errorf("unexpected tokenizer defaults: %+v", tc)
	}
	if cfg.Indexer.FieldWeight != 10 {
		t.Errorf("expected field weight 10, got %d", cfg.Indexer.FieldWeight)
	}
	if cfg.Redis.BreakerThreshold != 5 || cfg.Ingest.Port != 8081 {
		t.Errorf("unexpected redis/ingest defaults: %+v %+v", cfg.Redis, cfg.Ingest)
	}
	if cfg.Search.MaxQueryTokens != 300 || cfg.Search.DefaultLimit != 10 || cfg.Search.MinQueryLength != 3 {
		t.Errorf("unexpected search defaults: %+v", cfg.Search)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
store:
  driver: sqlite
  sqlitePath: /tmp/news.db
indexer:
  prefix:
    weight: 7
    minLength: 3
redis:
  cacheTTL: 2m
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NI_LOGGING_LEVEL", "debug")
	t.Setenv("NI_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.SQLitePath != "/tmp/news.db" {
		t.Errorf("store section not applied: %+v", cfg.Store)
	}
	if cfg.Indexer.Prefix.Weight != 7 || cfg.Indexer.Prefix.MinLength != 3 {
		t.Errorf("prefix section not applied: %+v", cfg.Indexer.Prefix)
	}
	if cfg.Indexer.Word.Weight != 20 {
		t.Errorf("unset word weight should keep default, got %d", cfg.Indexer.Word.Weight)
	}
	if cfg.Redis.CacheTTL != 2*time.Minute {
		t.Errorf("expected 2m ttl, got %v", cfg.Redis.CacheTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env override not applied: %q", cfg.Logging.Level)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("expected 2 brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"sqlite without path", func(c *Config) { c.Store.Driver = "sqlite"; c.Store.SQLitePath = "" }},
		{"zero field weight", func(c *Config) { c.Indexer.FieldWeight = 0 }},
		{"negative ngram size", func(c *Config) { c.Indexer.NGram.Size = -1 }},
		{"zero token cap", func(c *Config) { c.Search.MaxQueryTokens = 0 }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
		{"zero ingest body size", func(c *Config) { c.Ingest.MaxBodyBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
