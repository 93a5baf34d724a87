// Package logapply is the one place that knows how to turn a walrec
// record back into a page mutation, in either direction: Redo
// reinstalls a record's effect, Undo reverses it. Both the live abort
// path (pkg/txn) and crash recovery (pkg/recovery) drive the same page
// mutations from the same log records, so the mapping lives here once
// rather than being duplicated.
//
// Grounded on spec.md §4.H/§4.I, which describes redo/undo as
// "type-specific mutation" dispatched on the record's kind; there is no
// teacher precedent (the teacher has no WAL-driven redo/undo at all),
// so this package is built directly from the B+-tree and row-page
// operations in pkg/page.
package logapply

import "errors"

// ErrUnsupportedKind is returned for any walrec.Kind this package does
// not know how to apply (begin/commit/abort/checkpoint records, which
// never mutate a page and so are never passed here).
var ErrUnsupportedKind = errors.New("logapply: unsupported record kind")
