package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	// Store settings
	StoreDriver string
	DuckDB      *DuckDBConfig
	Postgres    *PostgresConfig

	// Optional warehouse source, set when SNOWFLAKE_ACCOUNT is present
	Snowflake *SnowflakeConfig

	// Ingest settings
	ChunkSize         int
	PersistEnrichment bool
	AuditCleaning     bool
	QueryLogPath      string
	MetricsPath       string
	QueryTimeout      time.Duration // Bound on reading a source table

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadDotEnv loads variables from .env style files into the environment.
// Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		// Default values
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", DriverDuckDB)),
		ChunkSize:         getEnvAsInt("CHUNK_SIZE", 1000),
		PersistEnrichment: getEnvAsBool("PERSIST_ENRICHMENT", true),
		AuditCleaning:     getEnvAsBool("AUDIT_CLEANING", false),
		QueryLogPath:      getEnv("QUERY_LOG_PATH", ""),
		MetricsPath:       getEnv("METRICS_PATH", ""),
		QueryTimeout:      time.Duration(getEnvAsInt("QUERY_TIMEOUT_SECONDS", 300)) * time.Second,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "console"),
	}

	switch cfg.StoreDriver {
	case DriverDuckDB:
		cfg.DuckDB = LoadDuckDBConfig()
	case DriverPostgres:
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load PostgreSQL configuration: %w", err)
		}
		cfg.Postgres = pgConfig
	}

	if os.Getenv("SNOWFLAKE_ACCOUNT") != "" {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load Snowflake configuration: %w", err)
		}
		cfg.Snowflake = snowConfig
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverDuckDB:
		if c.DuckDB == nil {
			return errors.New("duckdb configuration is required")
		}
	case DriverPostgres:
		if c.Postgres == nil {
			return errors.New("postgreSQL configuration is required")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.StoreDriver)
	}

	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	if c.QueryTimeout <= 0 {
		return errors.New("query timeout must be positive")
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
