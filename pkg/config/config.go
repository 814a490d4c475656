// Package config loads and validates textindex configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// index engine, search, ingestion and the optional service dependencies
// (Postgres, Kafka, Redis).
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
	Index    IndexConfig    `yaml:"index"`
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
	RequestTimeout  time.Duration `yaml:"requestTimeout"`

	// RateLimit caps requests per second across all clients; 0 disables.
	RateLimit   float64  `yaml:"rateLimit"`
	RateBurst   int      `yaml:"rateBurst"`
	CORSOrigins []string `yaml:"corsOrigins"`

	// APIKeys guard the write endpoints; empty disables authentication.
	APIKeys []string `yaml:"apiKeys"`
}

// PostgresConfig holds PostgreSQL connection parameters for the commit
// catalog. An empty Host disables the catalog.
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
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexConfig controls storage, the writer's memory budget and the reader
// reload policy.
type IndexConfig struct {
	DataDir        string        `yaml:"dataDir"`
	SchemaFile     string        `yaml:"schemaFile"`
	Compression    string        `yaml:"compression"`
	HeapBytes      int64         `yaml:"heapBytes"`
	Threads        int           `yaml:"threads"`
	ReloadPolicy   string        `yaml:"reloadPolicy"`
	ReloadDelay    time.Duration `yaml:"reloadDelay"`
	MaxReloadWait  time.Duration `yaml:"maxReloadWait"`
	CommitInterval time.Duration `yaml:"commitInterval"`
}

// SearchConfig controls query parsing defaults and result limits.
type SearchConfig struct {
	MaxResults    int      `yaml:"maxResults"`
	DefaultLimit  int      `yaml:"defaultLimit"`
	DefaultFields []string `yaml:"defaultFields"`
	Scorer        string   `yaml:"scorer"`
	Conjunction   bool     `yaml:"conjunction"`
}

// IngestConfig controls bulk ingestion from files and Kafka.
type IngestConfig struct {
	Include          []string `yaml:"include"`
	Exclude          []string `yaml:"exclude"`
	MaxDocsPerSecond float64  `yaml:"maxDocsPerSecond"`
	CommitEvery      int      `yaml:"commitEvery"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
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

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Index.Compression) {
	case "zstd", "lz4", "none", "":
	default:
		return fmt.Errorf("index.compression: unsupported codec %q", c.Index.Compression)
	}
	switch strings.ToLower(c.Index.ReloadPolicy) {
	case "manual", "oncommit", "":
	default:
		return fmt.Errorf("index.reloadPolicy: unsupported policy %q", c.Index.ReloadPolicy)
	}
	switch strings.ToLower(c.Search.Scorer) {
	case "bm25", "tf", "":
	default:
		return fmt.Errorf("search.scorer: unsupported scorer %q", c.Search.Scorer)
	}
	if c.Server.RateLimit < 0 || c.Ingest.MaxDocsPerSecond < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.Index.Threads < 0 {
		return fmt.Errorf("index.threads must not be negative")
	}
	if c.Search.DefaultLimit > c.Search.MaxResults && c.Search.MaxResults > 0 {
		return fmt.Errorf("search.defaultLimit (%d) exceeds search.maxResults (%d)",
			c.Search.DefaultLimit, c.Search.MaxResults)
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
			RequestTimeout:  10 * time.Second,
			RateBurst:       50,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "textindex",
			User:            "textindex",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "textindex-indexer",
			Topics: KafkaTopics{
				DocumentIngest: "textindex-documents",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Index: IndexConfig{
			DataDir:        "data/index",
			Compression:    "zstd",
			HeapBytes:      50 << 20,
			Threads:        1,
			ReloadPolicy:   "manual",
			ReloadDelay:    100 * time.Millisecond,
			MaxReloadWait:  5 * time.Second,
			CommitInterval: 5 * time.Second,
		},
		Search: SearchConfig{
			MaxResults:   100,
			DefaultLimit: 10,
			Scorer:       "bm25",
		},
		Ingest: IngestConfig{
			Include:     []string{"**/*.json", "**/*.ndjson"},
			CommitEvery: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// applyEnvOverrides reads TI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TI_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("TI_SERVER_API_KEYS"); v != "" {
		cfg.Server.APIKeys = strings.Split(v, ",")
	}
	if v := os.Getenv("TI_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("TI_INDEX_SCHEMA_FILE"); v != "" {
		cfg.Index.SchemaFile = v
	}
	if v := os.Getenv("TI_INDEX_COMPRESSION"); v != "" {
		cfg.Index.Compression = v
	}
	if v := os.Getenv("TI_INDEX_HEAP_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Index.HeapBytes = n
		}
	}
	if v := os.Getenv("TI_INDEX_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Threads = n
		}
	}
	if v := os.Getenv("TI_INDEX_RELOAD_POLICY"); v != "" {
		cfg.Index.ReloadPolicy = v
	}
	if v := os.Getenv("TI_INDEX_RELOAD_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Index.ReloadDelay = d
		}
	}
	if v := os.Getenv("TI_SEARCH_DEFAULT_FIELDS"); v != "" {
		cfg.Search.DefaultFields = strings.Split(v, ",")
	}
	if v := os.Getenv("TI_SEARCH_SCORER"); v != "" {
		cfg.Search.Scorer = v
	}
	if v := os.Getenv("TI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TI_INGEST_MAX_DOCS_PER_SECOND"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ingest.MaxDocsPerSecond = n
		}
	}
	if v := os.Getenv("TI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
