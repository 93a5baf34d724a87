// Package page implements the on-disk page format from spec.md §3: a
// fixed 32 KiB unit with a common header (page id, page LSN, recovery
// LSN, type, checksum) and a typed, slotted body — meta, free, row,
// leaf, and branch.
//
// Grounded on the teacher's pkg/btree/node.go (byte-slice node encoding,
// HEADER offset scheme, BTREE_PAGE_SIZE constant) generalized from a
// single copy-on-write node shape to the five page types spec.md §3
// calls for, each with its own slotted layout, plus the row page's
// DeFragment operation (supplemented from original_source/Page.hpp,
// which the distilled spec dropped but a complete storage engine
// needs: without it, a page with tombstoned rows can never reclaim
// their space for a later insert).
package page

import "errors"

var (
	// ErrChecksum indicates a page's stored checksum does not match its
	// body — the page manager passes it on to its caller, which treats
	// it as a single-page-recovery trigger rather than a hard failure.
	ErrChecksum = errors.New("page: checksum mismatch")

	// ErrNoSpace indicates a slotted page has no room for an insert even
	// after defragmentation; the caller must split.
	ErrNoSpace = errors.New("page: no space")

	// ErrTooBig indicates a payload exceeds the per-page soft limit
	// (approximately body size / 6) and must not be retried by
	// splitting — spec.md §7's too_big_data.
	ErrTooBig = errors.New("page: payload too big")

	// ErrSlotEmpty indicates a read/delete addressed a tombstoned or
	// out-of-range slot.
	ErrSlotEmpty = errors.New("page: slot empty")

	// ErrWrongType indicates an operation was attempted against a page
	// whose Type doesn't support it (e.g. reading fences on a row page).
	ErrWrongType = errors.New("page: wrong page type")

	// ErrIsInfinity indicates a fence-key accessor was called on a ±∞
	// sentinel fence — spec.md §7's is_infinity.
	ErrIsInfinity = errors.New("page: fence is infinity")
)
