package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned before any I/O for bad batch
	// sizes, separators or destination names
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrSourceUnavailable is returned when the source cannot be opened or read
	ErrSourceUnavailable = errors.New("source unavailable")
)

// WriteError reports a failed destination write. Batches before BatchIndex
// were committed and may already be visible at the destination.
type WriteError struct {
	Destination   string
	BatchIndex    int
	RowsAttempted int
	RowsCommitted int64
	Err           error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write batch %d (%d rows) to %s after %d rows committed: %v",
		e.BatchIndex, e.RowsAttempted, e.Destination, e.RowsCommitted, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// SchemaMismatchError reports a row or re-inferred schema that disagrees
// with the schema frozen at the start of the stream
type SchemaMismatchError struct {
	BatchIndex int
	// Row is the 1-based data row in the source, 0 when the whole schema differs
	Row int64
	Err error
}

func (e *SchemaMismatchError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("schema mismatch in batch %d: %v", e.BatchIndex, e.Err)
	}
	return fmt.Sprintf("schema mismatch in batch %d at row %d: %v", e.BatchIndex, e.Row, e.Err)
}

func (e *SchemaMismatchError) Unwrap() error {
	return e.Err
}
