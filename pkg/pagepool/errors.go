// Package pagepool implements the Page Pool (spec.md component B): a
// bounded in-memory buffer of pages backed by the database file, with
// per-page pinning/latching and LRU eviction.
//
// Grounded on the teacher's pkg/storage/kv.go (pageRead/pageWrite
// pread/pwrite-at-offset access to a flat page file, updateFile commit
// discipline) generalized from the teacher's whole-file mmap and
// copy-on-write page versions to a pinned, mutable, in-place buffer
// pool with an explicit write-back path honoring the WAL rule
// (log.committed_lsn ≥ page.page_lsn) per spec.md §5. The LRU list uses
// the standard library's container/list: none of the retrieved repos
// carry a cache/LRU dependency, and the eviction discipline here is
// spec.md's own linear-scan-from-head policy rather than a generic
// cache, so no third-party cache library has a natural home here.
package pagepool

import "errors"

var (
	// ErrFull indicates every page in the pool is pinned, so eviction
	// cannot make room for a miss.
	ErrFull = errors.New("pagepool: pool full, all pages pinned")

	// ErrPinned is returned by ReplacePage when the page it would
	// overwrite is currently pinned by another caller.
	ErrPinned = errors.New("pagepool: page pinned, cannot replace")
)
