// Package config loads process configuration from MEDISUPPLY_* environment
// variables. Sections nest: Database.URL is read from MEDISUPPLY_DATABASE_URL.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "MEDISUPPLY"

// Config is the full process configuration shared by the server and the
// compliance job. Each binary reads the sections it needs.
type Config struct {
	Server     Server
	Database   Database
	Redis      RedisConfig
	Kafka      KafkaConfig
	Catalog    CatalogConfig
	Orders     OrdersConfig
	Compliance ComplianceConfig
	Archive    ArchiveConfig
	Log        LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	SeedDemoData    bool          `envconfig:"SEED_DEMO_DATA" default:"true"`
}

// Database configures the Postgres pool. An empty URL selects in-memory stores.
type Database struct {
	URL             string        `envconfig:"URL"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"5m"`
	ApplySchema     bool          `envconfig:"APPLY_SCHEMA" default:"false"`
}

// RedisConfig configures the shared Redis client. An empty URL disables it.
type RedisConfig struct {
	URL          string        `envconfig:"URL"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

// KafkaConfig configures the snapshot feeds and the audit outbox relay.
// No brokers disables both.
type KafkaConfig struct {
	Brokers        []string      `envconfig:"BROKERS"`
	ConsumerGroup  string        `envconfig:"CONSUMER_GROUP" default:"medisupply-compliance"`
	SalesTopic     string        `envconfig:"SALES_TOPIC" default:"sales-snapshots"`
	PlanTopic      string        `envconfig:"PLAN_TOPIC" default:"plan-snapshots"`
	AuditTopic     string        `envconfig:"AUDIT_TOPIC" default:"audit-events"`
	Partitions     int32         `envconfig:"PARTITIONS" default:"3"`
	RelayInterval  time.Duration `envconfig:"RELAY_INTERVAL" default:"2s"`
	RelayBatchSize int           `envconfig:"RELAY_BATCH_SIZE" default:"100"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// CatalogConfig controls the read-through product cache.
type CatalogConfig struct {
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"5m"`
}

// OrdersConfig controls order intake.
type OrdersConfig struct {
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
}

// ComplianceConfig holds the status thresholds (percent) and run fan-out.
type ComplianceConfig struct {
	OKThreshold      float64 `envconfig:"OK_THRESHOLD" default:"100"`
	WarningThreshold float64 `envconfig:"WARNING_THRESHOLD" default:"80"`
	Concurrency      int     `envconfig:"CONCURRENCY" default:"8"`
}

// ArchiveConfig selects where computed compliance reports are archived.
// Bucket wins over Dir; neither disables archiving.
type ArchiveConfig struct {
	Dir             string `envconfig:"DIR"`
	Bucket          string `envconfig:"S3_BUCKET"`
	Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	Endpoint        string `envconfig:"S3_ENDPOINT"`
	PathStyle       bool   `envconfig:"S3_PATH_STYLE" default:"false"`
	AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	Prefix          string `envconfig:"PREFIX" default:"compliance"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns development defaults without reading the environment.
func Default() *Config {
	return &Config{
		Server: Server{Addr: ":8080", ShutdownTimeout: 10 * time.Second, SeedDemoData: true},
		Database: Database{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			ConsumerGroup:  "medisupply-compliance",
			SalesTopic:     "sales-snapshots",
			PlanTopic:      "plan-snapshots",
			AuditTopic:     "audit-events",
			Partitions:     3,
			RelayInterval:  2 * time.Second,
			RelayBatchSize: 100,
		},
		Catalog:    CatalogConfig{CacheTTL: 5 * time.Minute},
		Orders:     OrdersConfig{IdempotencyTTL: 24 * time.Hour},
		Compliance: ComplianceConfig{OKThreshold: 100, WarningThreshold: 80, Concurrency: 8},
		Archive:    ArchiveConfig{Region: "us-east-1", Prefix: "compliance"},
		Log:        LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.Compliance.WarningThreshold > c.Compliance.OKThreshold {
		return fmt.Errorf("compliance warning threshold %.2f exceeds ok threshold %.2f",
			c.Compliance.WarningThreshold, c.Compliance.OKThreshold)
	}
	if c.Compliance.Concurrency < 1 {
		return fmt.Errorf("compliance concurrency must be at least 1")
	}
	return nil
}
