// Package ingest runs a source through normalization into the store and
// checks the result.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/vaccine-ingress/pkg/cleaner"
	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// Source yields a whole raw batch
type Source interface {
	Name() string
	Read(ctx context.Context) (*model.RawBatch, error)
}

// Store is the part of the persistence gateway a run writes through
type Store interface {
	RowCounter
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, batch *model.CleanedBatch) (int64, error)
}

// Auditor records the cleaning decisions of a run
type Auditor interface {
	RecordCleaningOperations(ctx context.Context, runID string, operations []model.CleaningOperation) error
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// Pipeline loads sources into a store
type Pipeline struct {
	store         Store
	auditor       Auditor
	verifyTimeout time.Duration
	logger        *zap.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithAuditor records each run's cleaning operations once the cleaned
// records are appended
func WithAuditor(a Auditor) Option {
	return func(p *Pipeline) {
		p.auditor = a
	}
}

// WithVerifyTimeout bounds the post-append row count check
func WithVerifyTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) {
		p.verifyTimeout = timeout
	}
}

// NewPipeline creates a pipeline writing to store
func NewPipeline(store Store, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		store:  store,
		logger: logger.Named("ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run reads src, normalizes it, appends it and checks that the store grew
// by exactly the rows written. An empty runID gets a generated one.
func (p *Pipeline) Run(ctx context.Context, runID string, src Source) (metrics *RunMetrics, err error) {
	if runID == "" {
		runID = NewRunID()
	}
	metrics = NewRunMetrics(runID, src.Name())
	logger := p.logger.With(zap.String("run_id", runID), zap.String("source", src.Name()))

	defer func() {
		metrics.Complete(err)
		if err != nil {
			logger.Error("Ingest run failed",
				zap.String("category", metrics.ErrorCategory.String()),
				zap.Bool("retryable", metrics.Retryable),
				zap.Error(err))
			return
		}
		logger.Info("Ingest run completed",
			zap.Int64("rows_written", metrics.RowsWritten),
			zap.Duration("duration", metrics.Duration()))
	}()

	logger.Info("Starting ingest run")

	if err := p.store.EnsureSchema(ctx); err != nil {
		return metrics, &StageError{Stage: StageSchema, Err: err}
	}

	before, err := p.store.RowCount(ctx)
	if err != nil {
		return metrics, &StageError{Stage: StageSchema, Err: err}
	}
	metrics.RowCountBefore = before

	raw, err := src.Read(ctx)
	if err != nil {
		return metrics, &StageError{Stage: StageRead, Err: err}
	}
	metrics.RowsRead = len(raw.Records)

	cleaned, err := cleaner.Normalize(raw)
	if err != nil {
		return metrics, &StageError{Stage: StageNormalize, Err: err}
	}
	metrics.Report = cleaned.Report
	metrics.CleaningOperations = len(cleaned.Operations)
	metrics.Manufacturers = len(cleaned.Manufacturers)

	logger.Info("Normalized batch",
		zap.Int("input_rows", cleaned.Report.InputRows),
		zap.Int("output_rows", cleaned.Report.OutputRows),
		zap.Int("dropped_empty", cleaned.Report.DroppedEmpty),
		zap.Int("dropped_duplicates", cleaned.Report.DroppedDuplicates),
		zap.Int("manufacturers", len(cleaned.Manufacturers)))

	written, err := p.store.Append(ctx, cleaned)
	if err != nil {
		return metrics, &StageError{Stage: StageAppend, Err: err}
	}
	metrics.RowsWritten = written

	// Only operations behind stored rows are audited
	if p.auditor != nil && len(cleaned.Operations) > 0 {
		if err := p.auditor.RecordCleaningOperations(ctx, runID, cleaned.Operations); err != nil {
			return metrics, &StageError{Stage: StageAudit, Err: err}
		}
	}

	verifier := NewVerifier(p.store, logger)
	if p.verifyTimeout > 0 {
		verifier.WithTimeout(p.verifyTimeout)
	}
	report, err := verifier.VerifyRowCount(ctx, before+int64(len(cleaned.Records)))
	if err != nil {
		return metrics, &StageError{Stage: StageVerify, Err: err}
	}
	metrics.RowCountAfter = report.StoreRowCount

	if !report.RowCountMatches || written != int64(len(cleaned.Records)) {
		return metrics, &StageError{Stage: StageVerify, Err: fmt.Errorf(
			"%w: expected %d rows (%d before + %d cleaned), store has %d, append reported %d",
			ErrRowCountMismatch, report.ExpectedRowCount, before, len(cleaned.Records), report.StoreRowCount, written)}
	}

	return metrics, nil
}
