package store

import "errors"

var (
	// ErrStorageUnavailable means the database could not be opened or
	// migrated at all (bad path, permissions, held lock, corruption).
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrWriteFailed wraps a transaction-level failure on a mutating operation.
	ErrWriteFailed = errors.New("write failed")

	// ErrReadFailed wraps a transaction-level failure on a query. A missing
	// record is not a read failure: single-record lookups return (nil, nil).
	ErrReadFailed = errors.New("read failed")
)
