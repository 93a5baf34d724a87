// Package lock implements the Lock Manager (spec.md component D):
// row-granularity shared/exclusive locking with a no-wait policy. There
// is no deadlock detection — a request that cannot be granted
// immediately fails, and the caller (the transaction manager, or a
// B+-tree operation retrying under a fresh latch) decides whether to
// retry or abort.
//
// Grounded on spec.md §4.D directly: none of the retrieved repos carry
// a row-lock manager (the teacher's KV store serializes writers via a
// single commit path instead), so this package follows the spec's
// explicit data model — a multiset of shared holders keyed by row
// position, a set of exclusive holders — guarded by one mutex, the way
// the teacher guards its own in-memory tables (e.g. kv.go's page.temp)
// with a single lock rather than fine-grained ones.
package lock

import "errors"

// ErrWouldBlock is returned by every acquire operation that cannot be
// granted immediately under the no-wait policy.
var ErrWouldBlock = errors.New("lock: would block, no-wait policy")
