// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// ReportStore persists validation reports and hands them back for full scans.
// Implementations must enumerate reports in lexicographic key order.
type ReportStore interface {
	// Save writes the whole report, replacing any report with the same filename.
	Save(ctx context.Context, report *ValidationReport) error

	// Get returns the raw document stored for an input filename.
	Get(ctx context.Context, filename string) (*StoredReport, error)

	// Scan returns every stored document. Documents are returned raw so
	// consumers can skip the ones that fail to parse.
	Scan(ctx context.Context) ([]StoredReport, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// StoredReport is one raw report document and the key it is stored under.
type StoredReport struct {
	Key  string
	Data []byte
}

// RepositoryConfig holds configuration for report store initialization.
type RepositoryConfig struct {
	// Driver is the store backend: "file", "sqlite", "postgres", "badger" or "redis"
	Driver string `mapstructure:"driver"`

	// File driver: the shared quality directory
	QualityDir string `mapstructure:"quality_dir"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Badger specific
	BadgerPath     string `mapstructure:"badger_path"`
	BadgerInMemory bool   `mapstructure:"badger_in_memory"`

	// Redis specific
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
