package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/David-Botos/vaccine-ingress/pkg/config"
)

// DuckDBConnector implements the DatabaseConnector interface for an embedded DuckDB file
type DuckDBConnector struct {
	baseConnector
	cfg *config.DuckDBConfig
}

// NewDuckDBConnector opens (and creates if missing) the DuckDB database
func NewDuckDBConnector(ctx context.Context, cfg *config.DuckDBConfig, logger *zap.Logger) (*DuckDBConnector, error) {
	logger = logger.Named("duckdb-connector")

	name := cfg.Path
	if name == "" {
		name = ":memory:"
	}
	logger.Info("Opening DuckDB", zap.String("path", name), zap.Int("threads", cfg.Threads))

	db, err := sql.Open(DriverDuckDB, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}

	// An in-memory database lives in a single connection
	maxOpen := cfg.MaxOpenConns
	if cfg.Path == "" {
		maxOpen = 1
	}
	ApplyConnectionSettings(db, maxOpen, 0, 0, 0)

	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	connector := &DuckDBConnector{
		baseConnector: baseConnector{db: db, driver: DriverDuckDB, name: name, logger: logger},
		cfg:           cfg,
	}

	LogConnectionStats(logger, name, db)
	return connector, nil
}

// Validate verifies the database answers and is writable
func (c *DuckDBConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query DuckDB version: %w", err)
	}
	c.logger.Info("Connected to DuckDB", zap.String("version", version))

	if _, err := c.ExecWithTimeout(ctx, "CREATE TEMP TABLE IF NOT EXISTS _permission_check (test VARCHAR)", validateTimeout); err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}
	if _, err := c.ExecWithTimeout(ctx, "DROP TABLE _permission_check", validateTimeout); err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}
	return nil
}
