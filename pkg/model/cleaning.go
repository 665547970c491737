package model

// Cleaning operation kinds
const (
	OpDateParseFailed    = "date_parse_failed"
	OpNumericParseFailed = "numeric_parse_failed"
	OpDroppedEmptySignal = "dropped_empty_signal"
	OpDroppedDuplicate   = "dropped_duplicate"
)

// CleaningOperation represents a single data cleaning decision
type CleaningOperation struct {
	ColumnName        string      // Column that was cleaned, empty for whole-row operations
	OriginalValue     interface{} // Original value (may be nil)
	NewValue          string      // New value after cleaning
	RowIdentifier     string      // iso_code@date#row
	CleaningOperation string      // Type of cleaning performed (e.g., "dropped_duplicate")
	CleaningReason    string      // Reason for cleaning (e.g., "no_vaccination_counts")
}
