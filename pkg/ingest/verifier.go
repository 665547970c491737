package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RowCounter reports how many rows the store holds
type RowCounter interface {
	RowCount(ctx context.Context) (int64, error)
}

// VerificationReport contains the result of a row count check
type VerificationReport struct {
	ExpectedRowCount int64     `json:"expectedRowCount"`
	StoreRowCount    int64     `json:"storeRowCount"`
	RowCountMatches  bool      `json:"rowCountMatches"`
	VerifiedAt       time.Time `json:"verifiedAt"`
}

// Verifier checks the store against what an ingest should have produced
type Verifier struct {
	store   RowCounter
	logger  *zap.Logger
	timeout time.Duration
}

// NewVerifier creates a new verifier
func NewVerifier(store RowCounter, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		store:   store,
		logger:  logger,
		timeout: time.Minute * 5,
	}
}

// WithTimeout sets a custom timeout for verification queries
func (v *Verifier) WithTimeout(timeout time.Duration) *Verifier {
	v.timeout = timeout
	return v
}

// VerifyRowCount compares the store row count with expected.
// A mismatch is reported, not returned as an error.
func (v *Verifier) VerifyRowCount(ctx context.Context, expected int64) (*VerificationReport, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	count, err := v.store.RowCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count store rows: %w", err)
	}

	report := &VerificationReport{
		ExpectedRowCount: expected,
		StoreRowCount:    count,
		RowCountMatches:  count == expected,
		VerifiedAt:       time.Now(),
	}

	if report.RowCountMatches {
		v.logger.Info("Row count verification successful", zap.Int64("count", count))
	} else {
		v.logger.Warn("Row count mismatch",
			zap.Int64("expected", expected),
			zap.Int64("store", count),
			zap.Int64("difference", expected-count))
	}
	return report, nil
}
