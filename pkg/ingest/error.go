package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/David-Botos/vaccine-ingress/pkg/cleaner"
	"github.com/David-Botos/vaccine-ingress/pkg/source"
)

// ErrRowCountMismatch is returned when the store did not grow by the rows appended
var ErrRowCountMismatch = errors.New("row count mismatch")

// Stage names a step of an ingest run
type Stage string

const (
	StageSchema    Stage = "schema"
	StageRead      Stage = "read"
	StageNormalize Stage = "normalize"
	StageAudit     Stage = "audit"
	StageAppend    Stage = "append"
	StageVerify    Stage = "verify"
)

// StageError tags an error with the stage that produced it
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrorCategory classifies why a run failed
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	// ErrorCategoryStructural covers input that cannot be treated as a table of records
	ErrorCategoryStructural
	// ErrorCategorySource covers failures reading the input
	ErrorCategorySource
	// ErrorCategoryPersistence covers store failures
	ErrorCategoryPersistence
	// ErrorCategoryVerification covers a store that disagrees with what was written
	ErrorCategoryVerification
	ErrorCategoryUnknown
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryStructural:
		return "Structural"
	case ErrorCategorySource:
		return "Source"
	case ErrorCategoryPersistence:
		return "Persistence"
	case ErrorCategoryVerification:
		return "Verification"
	case ErrorCategoryUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// MarshalText lets categories key JSON objects by name
func (ec ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(ec.String()), nil
}

// CategorizeError determines the category of an error returned by a run
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	switch {
	case errors.Is(err, cleaner.ErrBadSchema), errors.Is(err, source.ErrNotTabular):
		return ErrorCategoryStructural
	case errors.Is(err, ErrRowCountMismatch):
		return ErrorCategoryVerification
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case StageRead:
			return ErrorCategorySource
		case StageSchema, StageAudit, StageAppend, StageVerify:
			return ErrorCategoryPersistence
		case StageNormalize:
			return ErrorCategoryStructural
		}
	}

	return ErrorCategoryUnknown
}

// IsRetryableError reports whether rerunning the same input may succeed
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if category := CategorizeError(err); category == ErrorCategoryStructural || category == ErrorCategoryVerification {
		return false
	}

	errorMsg := strings.ToLower(err.Error())
	return strings.Contains(errorMsg, "connection") ||
		strings.Contains(errorMsg, "timeout") ||
		strings.Contains(errorMsg, "temporary") ||
		strings.Contains(errorMsg, "try again")
}
