// Package gateway persists cleaned vaccination records and answers the
// fixed range, count and chart queries against them.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/vaccine-ingress/pkg/model"
	"github.com/David-Botos/vaccine-ingress/pkg/querylog"
)

// maxBindParams is the PostgreSQL limit on parameters per statement
const maxBindParams = 65535

// Options tunes a Gateway
type Options struct {
	// PersistEnrichment adds the manufacturer and ratio columns to the table
	PersistEnrichment bool

	// ChunkSize is the number of rows per INSERT statement. Default: 1000
	ChunkSize int

	// Recorder receives the text and timing of every query. Default: discard
	Recorder querylog.Recorder
}

// Gateway reads and writes the vaccinations table
type Gateway struct {
	db       *sqlx.DB
	logger   *zap.Logger
	opts     Options
	metadata *model.TableMetadata
}

// New wraps an open connection. driverName is the database/sql driver the
// connection was opened with and selects the placeholder style.
func New(db *sql.DB, driverName string, logger *zap.Logger, opts Options) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.Recorder == nil {
		opts.Recorder = querylog.Nop{}
	}

	return &Gateway{
		db:       sqlx.NewDb(db, driverName),
		logger:   logger.Named("gateway"),
		opts:     opts,
		metadata: model.VaccinationsMetadata(),
	}
}

// record forwards a finished query to the recorder
func (g *Gateway) record(function, query string, start time.Time, err error) {
	took := time.Since(start)
	g.opts.Recorder.Record(function, query, took, err)
	if err != nil {
		g.logger.Debug("Query failed",
			zap.String("function", function),
			zap.Duration("took", took),
			zap.Error(err))
	}
}

// EnsureSchema creates the vaccinations table if it does not exist
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	defs := make([]string, len(g.metadata.Columns))
	for i, col := range g.metadata.Columns {
		defs[i] = fmt.Sprintf("%s %s", pq.QuoteIdentifier(col.Name), col.SQLType)
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		pq.QuoteIdentifier(g.metadata.Table), strings.Join(defs, ",\n\t"))

	start := time.Now()
	_, err := g.db.ExecContext(ctx, query)
	g.record("EnsureSchema", query, start, err)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", g.metadata.Table, err)
	}

	g.logger.Info("Schema ready", zap.String("table", g.metadata.Table))
	return nil
}

// Columns returns the current column names of the vaccinations table in ordinal order
func (g *Gateway) Columns(ctx context.Context) ([]string, error) {
	query := g.db.Rebind(`SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = ?
ORDER BY ordinal_position`)

	var columns []string
	start := time.Now()
	err := g.db.SelectContext(ctx, &columns, query, g.metadata.Table)
	g.record("Columns", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", g.metadata.Table, err)
	}
	return columns, nil
}

// ensureEnrichment adds any manufacturer or ratio column the table lacks and
// returns the table's spelling of each manufacturer column. Columns are
// matched ignoring case, so a later batch's "vaccine_moderna" lands in an
// existing "vaccine_Moderna" on every store.
func (g *Gateway) ensureEnrichment(ctx context.Context, manufacturerColumns []string) (map[string]string, error) {
	existing, err := g.Columns(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]string, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c)] = c
	}

	type addition struct{ name, ddl string }
	var additions []addition
	for _, col := range manufacturerColumns {
		additions = append(additions, addition{col, "BOOLEAN DEFAULT FALSE"})
	}
	additions = append(additions, addition{model.ColFullyVaccinatedRatio, "DOUBLE PRECISION"})

	for _, a := range additions {
		if _, ok := have[strings.ToLower(a.name)]; ok {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			pq.QuoteIdentifier(g.metadata.Table), pq.QuoteIdentifier(a.name), a.ddl)

		start := time.Now()
		_, err := g.db.ExecContext(ctx, query)
		g.record("EnsureEnrichment", query, start, err)
		if err != nil {
			return nil, fmt.Errorf("failed to add column %s: %w", a.name, err)
		}
		have[strings.ToLower(a.name)] = a.name
		g.logger.Info("Added enrichment column", zap.String("column", a.name))
	}

	tableColumns := make(map[string]string, len(manufacturerColumns))
	for _, col := range manufacturerColumns {
		tableColumns[col] = have[strings.ToLower(col)]
	}
	return tableColumns, nil
}

// Append writes every record of the batch in one transaction and returns
// the number of rows written.
func (g *Gateway) Append(ctx context.Context, batch *model.CleanedBatch) (int64, error) {
	if batch == nil || len(batch.Records) == 0 {
		return 0, nil
	}

	columns := g.metadata.ColumnNames()
	var manufacturers []string
	if g.opts.PersistEnrichment {
		manufacturers = batch.ManufacturerColumns()
		tableColumns, err := g.ensureEnrichment(ctx, manufacturers)
		if err != nil {
			return 0, err
		}
		for _, col := range manufacturers {
			columns = append(columns, tableColumns[col])
		}
		columns = append(columns, model.ColFullyVaccinatedRatio)
	}

	chunk := g.opts.ChunkSize
	if limit := maxBindParams / len(columns); chunk > limit {
		chunk = limit
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		pq.QuoteIdentifier(g.metadata.Table), strings.Join(quoted, ", "))
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var written int64
	for i := 0; i < len(batch.Records); i += chunk {
		end := i + chunk
		if end > len(batch.Records) {
			end = len(batch.Records)
		}
		records := batch.Records[i:end]

		placeholders := make([]string, len(records))
		args := make([]interface{}, 0, len(records)*len(columns))
		for j := range records {
			placeholders[j] = rowPlaceholder
			args = append(args, g.rowValues(&records[j], manufacturers)...)
		}
		query := tx.Rebind(prefix + strings.Join(placeholders, ", "))

		start := time.Now()
		result, err := tx.ExecContext(ctx, query, args...)
		g.record("Append", prefix+"...", start, err)
		if err != nil {
			return 0, fmt.Errorf("failed to insert rows %d-%d: %w", i+1, end, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			affected = int64(len(records))
		}
		written += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit append: %w", err)
	}

	g.logger.Info("Appended records",
		zap.String("table", g.metadata.Table),
		zap.Int64("rows", written),
		zap.Bool("enrichment", g.opts.PersistEnrichment))
	return written, nil
}

// rowValues returns the insert arguments of one record in column order
func (g *Gateway) rowValues(rec *model.CleanedRecord, manufacturers []string) []interface{} {
	values := []interface{}{
		nullableText(rec.ISOCode),
		nullableText(rec.Country),
		nullableText(rec.Location),
		nullableText(rec.DateString()),
		integerValue(rec.TotalVaccinations),
		integerValue(rec.PeopleVaccinated),
		integerValue(rec.PeopleFullyVaccinated),
		integerValue(rec.DailyVaccinationsRaw),
		integerValue(rec.DailyVaccinations),
		realValue(rec.TotalVaccinationsPerHundred),
		realValue(rec.PeopleVaccinatedPerHundred),
		realValue(rec.PeopleFullyVaccinatedPerHundred),
		realValue(rec.DailyVaccinationsPerMillion),
		textValue(rec.Vaccines),
		textValue(rec.SourceName),
		textValue(rec.SourceWebsite),
	}
	if !g.opts.PersistEnrichment {
		return values
	}

	for _, col := range manufacturers {
		values = append(values, rec.Manufacturers[col])
	}
	return append(values, realValue(rec.FullyVaccinatedRatio))
}

// integerValue rounds to the nearest whole number for INTEGER columns
func integerValue(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return int64(math.Round(*v))
}

func realValue(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func textValue(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
