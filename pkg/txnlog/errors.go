// Package txnlog implements the write-ahead log manager and lock-manager
// stub the storage core invokes at well-defined mutation points: every
// table-heap insert/delete/update appends a log record before its page
// mutation is considered durable-ready.
package txnlog

import "errors"

var (
	// ErrCorrupted indicates a corrupted log entry (CRC mismatch).
	ErrCorrupted = errors.New("txnlog: corrupted entry")

	// ErrInvalidEntry indicates an invalid log entry format.
	ErrInvalidEntry = errors.New("txnlog: invalid entry")

	// ErrLogClosed indicates an operation on a closed log.
	ErrLogClosed = errors.New("txnlog: log closed")

	// ErrLogNotFound indicates log files don't exist.
	ErrLogNotFound = errors.New("txnlog: log not found")

	// ErrInvalidLSN indicates an invalid Log Sequence Number.
	ErrInvalidLSN = errors.New("txnlog: invalid LSN")

	// ErrTruncated indicates a truncated log entry.
	ErrTruncated = errors.New("txnlog: truncated entry")
)
