package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/David-Botos/vaccine-ingress/pkg/config"
)

// SnowflakeConnector reads the raw vaccination table from a Snowflake warehouse
type SnowflakeConnector struct {
	baseConnector
	cfg *config.SnowflakeConfig
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig, logger *zap.Logger) (*SnowflakeConnector, error) {
	logger = logger.Named("snowflake-connector")

	sfConfig := &sf.Config{
		Account:       cfg.Account,
		User:          cfg.User,
		Password:      cfg.Password,
		Database:      cfg.Database,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	}

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	db, err := sql.Open(DriverSnowflake, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	if cfg.QueryTimeout > 0 {
		_, err = db.ExecContext(
			ctx,
			fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d",
				int(cfg.QueryTimeout.Seconds())),
		)
		if err != nil {
			logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}

	connector := &SnowflakeConnector{
		baseConnector: baseConnector{db: db, driver: DriverSnowflake, name: cfg.Database, logger: logger},
		cfg:           cfg,
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// SourceTable returns the configured raw table name
func (c *SnowflakeConnector) SourceTable() string {
	return c.cfg.SourceTable
}

// Validate verifies the session database and that the source table is visible
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	var role, database, warehouse sql.NullString
	err := c.db.QueryRowContext(ctx, "SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role.String),
		zap.String("database", database.String),
		zap.String("warehouse", warehouse.String))

	if !strings.EqualFold(database.String, c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database.String, c.cfg.Database)
	}

	catalog, schema, table := splitTableName(c.cfg.SourceTable)
	tables := "INFORMATION_SCHEMA.TABLES"
	if catalog != "" {
		tables = pq.QuoteIdentifier(strings.ToUpper(catalog)) + "." + tables
	}

	var count int
	err = c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tables+" WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?",
		strings.ToUpper(schema), strings.ToUpper(table),
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to look up source table: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("source table %s not found in %s", c.cfg.SourceTable, c.cfg.Database)
	}

	return nil
}

// splitTableName splits "[database.][schema.]table". The database is empty
// when not given and the schema defaults to PUBLIC.
func splitTableName(name string) (database, schema, table string) {
	parts := strings.Split(name, ".")
	switch len(parts) {
	case 1:
		return "", "PUBLIC", parts[0]
	case 2:
		return "", parts[0], parts[1]
	default:
		n := len(parts)
		return strings.Join(parts[:n-2], "."), parts[n-2], parts[n-1]
	}
}
