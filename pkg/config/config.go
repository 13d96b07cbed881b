// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Store, Postgres, Kafka, Redis, Indexer, Search, Ingest, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/tokenizer"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the number of API requests per minute allowed per client
	// address. Zero disables limiting.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// StoreConfig selects the backend holding documents, tokens and postings.
type StoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlitePath"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentEvents string `yaml:"documentEvents"`
	IndexComplete  string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// The cache is bypassed for BreakerCooldown after BreakerThreshold
	// consecutive Redis failures.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

// IndexerConfig controls posting weights and the tokenizer family. Any change
// here invalidates the existing index and requires a full reindex.
type IndexerConfig struct {
	FieldWeight int                   `yaml:"fieldWeight"`
	Word        WordTokenizerConfig   `yaml:"word"`
	Prefix      PrefixTokenizerConfig `yaml:"prefix"`
	NGram       NGramTokenizerConfig  `yaml:"ngram"`
}

type WordTokenizerConfig struct {
	Weight int `yaml:"weight"`
}

type PrefixTokenizerConfig struct {
	Weight    int `yaml:"weight"`
	MinLength int `yaml:"minLength"`
}

type NGramTokenizerConfig struct {
	Weight int `yaml:"weight"`
	Size   int `yaml:"size"`
}

// TokenizerConfig converts the indexer section into the tokenizer family
// configuration shared by indexing and search.
func (c IndexerConfig) TokenizerConfig() tokenizer.Config {
	return tokenizer.Config{
		WordWeight:      c.Word.Weight,
		PrefixWeight:    c.Prefix.Weight,
		PrefixMinLength: c.Prefix.MinLength,
		NGramWeight:     c.NGram.Weight,
		NGramSize:       c.NGram.Size,
	}
}

// SearchConfig controls query limits.
type SearchConfig struct {
	DefaultLimit   int `yaml:"defaultLimit"`
	MaxResults     int `yaml:"maxResults"`
	MaxQueryTokens int `yaml:"maxQueryTokens"`
	MinQueryLength int `yaml:"minQueryLength"`
}

// IngestConfig controls the document intake API served by the indexer.
type IngestConfig struct {
	Port           int `yaml:"port"`
	MaxBodyBytes   int `yaml:"maxBodyBytes"`
	MaxLabelLength int `yaml:"maxLabelLength"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("store.driver must be postgres, sqlite or memory, got %q", c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlitePath is required for the sqlite driver")
	}
	if c.Indexer.FieldWeight <= 0 {
		return fmt.Errorf("indexer.fieldWeight must be positive")
	}
	if err := c.Indexer.TokenizerConfig().Validate(); err != nil {
		return fmt.Errorf("indexer: %w", err)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.defaultLimit and search.maxResults must be positive")
	}
	if c.Search.MaxQueryTokens <= 0 {
		return fmt.Errorf("search.maxQueryTokens must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative")
	}
	if c.Ingest.MaxBodyBytes <= 0 || c.Ingest.MaxLabelLength <= 0 {
		return fmt.Errorf("ingest.maxBodyBytes and ingest.maxLabelLength must be positive")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
			CORSOrigins:     []string{"*"},
		},
		Store: StoreConfig{
			Driver:     "postgres",
			SQLitePath: "newsindex.db",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "newsindex",
			User:            "newsindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       true,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "newsindex-group",
			Topics: KafkaTopics{
				DocumentEvents: "document-events",
				IndexComplete:  "index.complete",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,

			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Indexer: IndexerConfig{
			FieldWeight: 10,
			Word:        WordTokenizerConfig{Weight: tokenizer.DefaultWordWeight},
			Prefix: PrefixTokenizerConfig{
				Weight:    tokenizer.DefaultPrefixWeight,
				MinLength: tokenizer.DefaultPrefixMinLength,
			},
			NGram: NGramTokenizerConfig{
				Weight: tokenizer.DefaultNGramWeight,
				Size:   tokenizer.DefaultNGramSize,
			},
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			MaxResults:     100,
			MaxQueryTokens: 300,
			MinQueryLength: 3,
		},
		Ingest: IngestConfig{
			Port:           8081,
			MaxBodyBytes:   1 << 20,
			MaxLabelLength: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads NI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NI_SERVER_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = limit
		}
	}
	if v := os.Getenv("NI_INGEST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Port = port
		}
	}
	if v := os.Getenv("NI_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("NI_STORE_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("NI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("NI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("NI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("NI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("NI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("NI_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("NI_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("NI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("NI_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("NI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
