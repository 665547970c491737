package cleaner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// DataCleaner records the cleaning decisions of Normalize into the
// cleaned_on_ingress tracking table
type DataCleaner struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDataCleaner creates a new DataCleaner instance and ensures tracking table exists
func NewDataCleaner(ctx context.Context, db *sql.DB, logger *zap.Logger) (*DataCleaner, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	cleaner := &DataCleaner{
		db:     db,
		logger: logger,
	}

	// Ensure the cleaning table exists
	if err := cleaner.setupCleaningTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup cleaning table: %w", err)
	}

	return cleaner, nil
}

// setupCleaningTable ensures the cleaned_on_ingress tracking table exists
func (c *DataCleaner) setupCleaningTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS cleaned_on_ingress (
			run_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			column_name TEXT,
			original_value TEXT,
			new_value TEXT NOT NULL,
			row_identifier TEXT NOT NULL,
			cleaning_operation TEXT NOT NULL,
			cleaning_reason TEXT NOT NULL,
			cleaned_at TIMESTAMP NOT NULL
		)
	`
	_, err := c.db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create tracking table: %w", err)
	}

	c.logger.Info("Ensured cleaned_on_ingress table exists")
	return nil
}

// RecordCleaningOperations batch inserts cleaning operations into tracking table
func (c *DataCleaner) RecordCleaningOperations(ctx context.Context, runID string, operations []model.CleaningOperation) (err error) {
	if len(operations) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cleaned_on_ingress
		(run_id, table_name, column_name, original_value, new_value,
		 row_identifier, cleaning_operation, cleaning_reason, cleaned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	cleanedAt := time.Now().UTC()
	for _, op := range operations {
		_, err = stmt.ExecContext(ctx,
			runID,
			model.VaccinationsTable,
			toNullString(op.ColumnName),
			toNullableValue(op.OriginalValue),
			op.NewValue,
			op.RowIdentifier,
			op.CleaningOperation,
			op.CleaningReason,
			cleanedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cleaning operation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.logger.Info("Recorded cleaning operations",
		zap.String("run_id", runID),
		zap.Int("count", len(operations)))
	return nil
}

// CountOperations returns how many operations were recorded for a run
func (c *DataCleaner) CountOperations(ctx context.Context, runID string) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cleaned_on_ingress WHERE run_id = $1", runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cleaning operations: %w", err)
	}
	return count, nil
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// toNullableValue safely converts an interface to a nullable string
func toNullableValue(v interface{}) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	switch val := v.(type) {
	case string:
		return sql.NullString{String: val, Valid: true}
	case []byte:
		return sql.NullString{String: string(val), Valid: true}
	default:
		return sql.NullString{String: fmt.Sprintf("%v", val), Valid: true}
	}
}
