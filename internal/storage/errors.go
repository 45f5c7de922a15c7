package storage

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrStorage marks a failure of the store itself (disk full, I/O error,
// lock, corruption). It is fatal to a load run.
var ErrStorage = errors.New("storage failure")

// BatchError describes a batch that was rolled back because of its
// content. The run continues with the next batch.
type BatchError struct {
	Table       string
	Source      string
	FirstOffset int64
	LastOffset  int64
	Rows        int
	Err         error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch of %d rows for %s from %s records %d-%d failed: %v",
		e.Rows, e.Table, e.Source, e.FirstOffset, e.LastOffset, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// isBatchLevel reports whether err is caused by the rows of a batch
// rather than by the store. Only constraint and data-shape errors
// qualify; everything else, including errors that are not SQLite errors
// at all, is treated as a storage failure.
func isBatchLevel(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT,
		sqlite3.SQLITE_MISMATCH,
		sqlite3.SQLITE_TOOBIG,
		sqlite3.SQLITE_RANGE:
		return true
	}
	return false
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
