package walrec

import "errors"

var (
	// ErrCorrupted indicates a CRC32 mismatch on a decoded record.
	ErrCorrupted = errors.New("walrec: corrupted record")

	// ErrTruncated indicates a record whose declared field lengths run
	// past the available bytes (a partial write at the tail of the log).
	ErrTruncated = errors.New("walrec: truncated record")
)
