// Package wal implements the operation journal: an append-only, CRC-framed log
// of multi-step versioning operations used to clean up after a crash
package wal

import "errors"

var (
	// ErrCorrupted indicates a corrupted journal entry (CRC mismatch)
	ErrCorrupted = errors.New("wal: corrupted entry")

	// ErrInvalidEntry indicates an entry with an unknown record type
	ErrInvalidEntry = errors.New("wal: invalid entry")

	// ErrLogClosed indicates an operation on a closed journal
	ErrLogClosed = errors.New("wal: log closed")

	// ErrTruncated indicates a truncated journal entry
	ErrTruncated = errors.New("wal: truncated entry")

	// ErrOperationActive tells Recover to leave an operation alone because
	// its process may still be running
	ErrOperationActive = errors.New("wal: operation still active")

	// ErrUnknownOperation indicates a commit or abort without a matching begin
	ErrUnknownOperation = errors.New("wal: unknown operation")
)
