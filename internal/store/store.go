// Package store persists optimization run records: one directory per run
// holding record.json and, optionally, a trace.jsonl of progress snapshots.
package store

// Store defines run record persistence. Implementations must be safe for
// concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the record doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecord atomically writes the record, replacing an earlier one with the same ID.
	SaveRecord(record *Record) error

	// LoadRecord retrieves the record of a run.
	LoadRecord(runID string) (*Record, error)

	// ListRecords returns metadata for all readable records. Corrupted
	// records are skipped.
	ListRecords() ([]RecordInfo, error)

	// DeleteRecord removes the run directory with all its files.
	DeleteRecord(runID string) error
}

// ErrNotFound is returned when a requested record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run record.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run record not found: " + e.RunID
	}
	return "run record not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
