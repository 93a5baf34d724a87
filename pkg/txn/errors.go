// Package txn implements the Transaction Manager (spec.md component
// E): transaction lifecycle (begin/precommit/commit_wait/abort) and a
// typed log emitter for every page-mutating operation kind, so callers
// never hand-encode a walrec.Record themselves.
//
// Grounded on spec.md §4.E directly, composed from primitives built in
// earlier packages: pkg/wal for durability, pkg/walrec for the record
// vocabulary, pkg/lock for releasing row locks at precommit/abort, and
// pkg/logapply for replaying a transaction's own undo images during
// abort (the same redo/undo dispatch crash recovery will reuse).
package txn

import "errors"

// ErrNotActive is returned by any operation on a transaction that has
// already precommitted or aborted.
var ErrNotActive = errors.New("txn: not active")
