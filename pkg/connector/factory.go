package connector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/vaccine-ingress/pkg/config"
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStoreConnector opens the configured vaccinations store
func (f *ConnectorFactory) CreateStoreConnector(ctx context.Context) (DatabaseConnector, error) {
	f.logger.Info("Creating store connector", zap.String("driver", f.cfg.StoreDriver))

	switch f.cfg.StoreDriver {
	case config.DriverDuckDB:
		conn, err := NewDuckDBConnector(ctx, f.cfg.DuckDB, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
		}
		return conn, nil
	case config.DriverPostgres:
		conn, err := NewPostgresConnector(ctx, f.cfg.Postgres, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", f.cfg.StoreDriver)
	}
}

// CreateSnowflakeConnector creates a new Snowflake connector
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	if f.cfg.Snowflake == nil {
		return nil, errors.New("snowflake is not configured (set SNOWFLAKE_ACCOUNT)")
	}
	f.logger.Info("Creating Snowflake connector")

	connector, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}

	return connector, nil
}
