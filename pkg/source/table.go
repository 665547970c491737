package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// tableNamePattern accepts table, schema.table and database.schema.table
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

// Querier runs a query whose rows stay readable until timeout.
// Every connector.DatabaseConnector is a Querier.
type Querier interface {
	QueryWithTimeout(ctx context.Context, query string, timeout time.Duration, args ...interface{}) (*sql.Rows, error)
}

// TableSource reads raw records from a warehouse table
type TableSource struct {
	db      Querier
	table   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewTableSource creates a source over a fully qualified table name.
// A read, including scanning every row, must finish within timeout.
func NewTableSource(db Querier, table string, timeout time.Duration, logger *zap.Logger) (*TableSource, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("query timeout must be positive, got %v", timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableSource{db: db, table: table, timeout: timeout, logger: logger}, nil
}

// Name identifies the source in logs
func (s *TableSource) Name() string {
	return "table:" + s.table
}

// Read loads every row of the table. Column names are lower-cased so
// upper-case warehouse identifiers match the dataset's column names.
func (s *TableSource) Read(ctx context.Context) (*model.RawBatch, error) {
	start := time.Now()

	rows, err := s.db.QueryWithTimeout(ctx, "SELECT * FROM "+s.table, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", s.table, err)
	}

	columns := make([]string, len(names))
	for i, n := range names {
		columns[i] = strings.ToLower(n)
	}

	batch := &model.RawBatch{Columns: columns}
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", s.table, err)
		}
		rec := make(model.RawRecord, len(columns))
		for i, col := range columns {
			rec[col] = toString(values[i])
		}
		batch.Records = append(batch.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows of %s: %w", s.table, err)
	}

	s.logger.Info("Read source table",
		zap.String("table", s.table),
		zap.Int("rows", len(batch.Records)),
		zap.Int("columns", len(columns)),
		zap.Duration("duration", time.Since(start)))

	return batch, nil
}

// toString renders a scanned driver value as raw text; nil becomes ""
func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
