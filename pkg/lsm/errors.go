package lsm

import "errors"

var (
	// ErrNotFound is returned by Read/View lookups when the key is
	// absent, or is present only as a tombstone.
	ErrNotFound = errors.New("lsm: key not found")

	// ErrCorruptRun is returned when a sorted run file's header or
	// entry table fails its self-describing length checks.
	ErrCorruptRun = errors.New("lsm: corrupt sorted run file")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("lsm: tree closed")
)
