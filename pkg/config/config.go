// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Schema, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Schema   SchemaConfig   `yaml:"schema"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RateLimit is the per-client request budget per minute on the
	// ingestion API; 0 disables limiting.
	RateLimit int `yaml:"rateLimit"`
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SearchConfig holds read-side settings.
type SearchConfig struct {
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxResults      int           `yaml:"maxResults"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// Pool kinds accepted by IndexerConfig.PoolKind.
const (
	PoolTempfile = "tempfile"
	PoolMemory   = "memory"
	PoolSQLite   = "sqlite"
	PoolPostgres = "postgres"
)

// IndexerConfig controls the posting pool's memory budget, the segment
// writer's block layout, and the flush policy.
type IndexerConfig struct {
	DataDir           string        `yaml:"dataDir"`
	TempDir           string        `yaml:"tempDir"`
	PoolKind          string        `yaml:"poolKind"`
	PoolLimitMB       int           `yaml:"poolLimitMB"`
	InlineLimit       int           `yaml:"inlineLimit"`
	BlockSize         int           `yaml:"blockSize"`
	FlushInterval     time.Duration `yaml:"flushInterval"`
	MaxDocsPerSegment int           `yaml:"maxDocsPerSegment"`
}

// PoolLimitBytes returns the pool budget in bytes.
func (c IndexerConfig) PoolLimitBytes() int64 {
	return int64(c.PoolLimitMB) * 1024 * 1024
}

// SchemaConfig declares the indexed fields.
type SchemaConfig struct {
	Fields []FieldConfig `yaml:"fields"`
}

// FieldConfig declares one field. Type is one of id, stored, keyword, text,
// ngram; Format overrides the type's posting format.
type FieldConfig struct {
	Name       string  `yaml:"name"`
	Type       string  `yaml:"type"`
	Format     string  `yaml:"format"`
	Vector     string  `yaml:"vector"`
	Analyzer   string  `yaml:"analyzer"`
	Stored     bool    `yaml:"stored"`
	Scorable   *bool   `yaml:"scorable"`
	FieldBoost float64 `yaml:"fieldBoost"`
	Comma      bool    `yaml:"comma"`
	MinGram    int     `yaml:"minGram"`
	MaxGram    int     `yaml:"maxGram"`
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
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
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

// Validate checks values that would otherwise fail deep inside the indexer.
func (c *Config) Validate() error {
	switch c.Indexer.PoolKind {
	case PoolTempfile, PoolMemory, PoolSQLite, PoolPostgres:
	default:
		return fmt.Errorf("indexer.poolKind: unknown pool kind %q", c.Indexer.PoolKind)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Indexer.PoolLimitMB <= 0 {
		return fmt.Errorf("indexer.poolLimitMB must be positive, got %d", c.Indexer.PoolLimitMB)
	}
	if c.Indexer.InlineLimit < 0 {
		return fmt.Errorf("indexer.inlineLimit must not be negative, got %d", c.Indexer.InlineLimit)
	}
	if c.Indexer.BlockSize <= 0 {
		return fmt.Errorf("indexer.blockSize must be positive, got %d", c.Indexer.BlockSize)
	}
	return nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateLimit:       600,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "postingcore",
			User:            "postingcore",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "postingcore-indexer",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:           "data/index",
			PoolKind:          PoolTempfile,
			PoolLimitMB:       32,
			InlineLimit:       1,
			BlockSize:         128,
			FlushInterval:     30 * time.Second,
			MaxDocsPerSegment: 100_000,
		},
		Search: SearchConfig{
			DefaultLimit:    20,
			MaxResults:      1000,
			RefreshInterval: 5 * time.Second,
		},
		Schema: SchemaConfig{
			Fields: []FieldConfig{
				{Name: "id", Type: "id", Stored: true},
				{Name: "title", Type: "text", Stored: true},
				{Name: "content", Type: "text", Format: "positions"},
			},
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

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SP_INDEXER_TEMP_DIR"); v != "" {
		cfg.Indexer.TempDir = v
	}
	if v := os.Getenv("SP_INDEXER_POOL_KIND"); v != "" {
		cfg.Indexer.PoolKind = v
	}
	if v := os.Getenv("SP_INDEXER_POOL_LIMIT_MB"); v != "" {
		if mb, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.PoolLimitMB = mb
		}
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
