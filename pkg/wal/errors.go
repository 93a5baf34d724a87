// Package wal implements the Log Writer (spec.md component A): an
// append-only, group-committing record stream built on top of
// pkg/walrec's tagged record format. LSNs are byte offsets into the
// logical (possibly multi-segment) log stream and are never reset, so
// they uniquely identify a record's position for the lifetime of the
// database.
//
// Grounded on the teacher's pkg/wal (file rotation, CRC-checked framed
// records, corruption-tolerant scanning) but generalized: the teacher
// assigns LSNs from an independent atomic counter, one per logical
// entry; spec.md requires LSN == byte offset, so this version tracks a
// running byte-offset counter across segment boundaries and interposes
// a producer/consumer ring buffer per spec.md §4.A.
package wal

import "errors"

var (
	// ErrClosed indicates an operation on a WAL that has been Finish()'d.
	ErrClosed = errors.New("wal: closed")

	// ErrNoSegments indicates a Reader was asked to read an empty log.
	ErrNoSegments = errors.New("wal: no segments")
)
