package ingest

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/David-Botos/vaccine-ingress/pkg/model"
)

// RunMetrics tracks one ingest run
type RunMetrics struct {
	RunID     string
	Source    string
	StartTime time.Time
	EndTime   time.Time

	RowsRead           int
	RowsWritten        int64
	CleaningOperations int
	Manufacturers      int
	Report             model.CleaningReport

	RowCountBefore int64
	RowCountAfter  int64

	ErrorCategory ErrorCategory
	Error         string
	Retryable     bool
}

// NewRunMetrics starts tracking a run
func NewRunMetrics(runID, sourceName string) *RunMetrics {
	return &RunMetrics{
		RunID:     runID,
		Source:    sourceName,
		StartTime: time.Now(),
	}
}

// Complete stamps the end of the run and records err, if any
func (m *RunMetrics) Complete(err error) {
	m.EndTime = time.Now()
	m.ErrorCategory = CategorizeError(err)
	m.Retryable = IsRetryableError(err)
	if err != nil {
		m.Error = err.Error()
	}
}

// Duration returns the run time so far, or in total once complete
func (m *RunMetrics) Duration() time.Duration {
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// Throughput returns rows written per second
func (m *RunMetrics) Throughput() float64 {
	seconds := m.Duration().Seconds()
	if seconds == 0 {
		return 0
	}
	return float64(m.RowsWritten) / seconds
}

// Succeeded reports whether the run completed without error
func (m *RunMetrics) Succeeded() bool {
	return !m.EndTime.IsZero() && m.ErrorCategory == ErrorCategoryNone
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// percentage avoids division by zero
func percentage(value, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(value) / float64(total) * 100
}

// GenerateReport creates a human-readable run report
func (m *RunMetrics) GenerateReport() string {
	status := "succeeded"
	if m.ErrorCategory != ErrorCategoryNone {
		status = fmt.Sprintf("failed (%s): %s", m.ErrorCategory, m.Error)
		if m.Retryable {
			status += " [retryable]"
		}
	}

	return fmt.Sprintf(`
Ingest Run Report
=================
Run ID:                  %s
Source:                  %s
Status:                  %s
Duration:                %s

Cleaning Summary
----------------
Input Rows:              %d
Unparsable Dates:        %d
Unparsable Numbers:      %d
Dropped (no counts):     %d (%.1f%%)
Dropped (duplicates):    %d (%.1f%%)
Output Rows:             %d
Manufacturer Columns:    %d
Cleaning Operations:     %d

Store Summary
-------------
Rows Written:            %d
Rows Before:             %d
Rows After:              %d
Average Throughput:      %.2f rows/sec
`,
		m.RunID,
		m.Source,
		status,
		formatDuration(m.Duration()),

		m.Report.InputRows,
		m.Report.UnparsableDates,
		m.Report.UnparsableNumbers,
		m.Report.DroppedEmpty, percentage(m.Report.DroppedEmpty, m.Report.InputRows),
		m.Report.DroppedDuplicates, percentage(m.Report.DroppedDuplicates, m.Report.InputRows),
		m.Report.OutputRows,
		m.Manufacturers,
		m.CleaningOperations,

		m.RowsWritten,
		m.RowCountBefore,
		m.RowCountAfter,
		m.Throughput(),
	)
}

// ToJSON serializes metrics to JSON
func (m *RunMetrics) ToJSON() ([]byte, error) {
	return json.Marshal(struct {
		RunID              string               `json:"runId"`
		Source             string               `json:"source"`
		Duration           string               `json:"duration"`
		RowsRead           int                  `json:"rowsRead"`
		RowsWritten        int64                `json:"rowsWritten"`
		CleaningOperations int                  `json:"cleaningOperations"`
		Manufacturers      int                  `json:"manufacturers"`
		Cleaning           model.CleaningReport `json:"cleaning"`
		RowCountBefore     int64                `json:"rowCountBefore"`
		RowCountAfter      int64                `json:"rowCountAfter"`
		Throughput         float64              `json:"throughput"`
		ErrorCategory      ErrorCategory        `json:"errorCategory"`
		Error              string               `json:"error,omitempty"`
		Retryable          bool                 `json:"retryable"`
	}{
		RunID:              m.RunID,
		Source:             m.Source,
		Duration:           formatDuration(m.Duration()),
		RowsRead:           m.RowsRead,
		RowsWritten:        m.RowsWritten,
		CleaningOperations: m.CleaningOperations,
		Manufacturers:      m.Manufacturers,
		Cleaning:           m.Report,
		RowCountBefore:     m.RowCountBefore,
		RowCountAfter:      m.RowCountAfter,
		Throughput:         m.Throughput(),
		ErrorCategory:      m.ErrorCategory,
		Error:              m.Error,
		Retryable:          m.Retryable,
	})
}
