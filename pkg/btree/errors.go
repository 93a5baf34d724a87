// Package btree implements the B+-tree (spec.md component H): a
// persistent ordered string→string map with foster-parent concurrent
// splits, backing both the primary table index and secondary indexes.
//
// Grounded on the teacher's pkg/btree/btree.go: the recursive
// treeInsert/treeGet descent and nodeLookupLE binary search are kept in
// spirit (largest index whose key is ≤ the target), but the teacher's
// copy-on-write node rebuilding (treeInsert always builds a fresh node,
// tree.new/tree.del swap pointers) is replaced with foster-parent
// splits directly against the page pool's pinned, latched pages via
// pkg/pagestore and logged through pkg/txn, per spec.md §4.H.
package btree

import "errors"

var (
	// ErrDuplicateKey is returned by Insert when key already exists.
	ErrDuplicateKey = errors.New("btree: duplicate key")

	// ErrNotFound is returned by Read, Update and Delete when key does
	// not exist.
	ErrNotFound = errors.New("btree: key not found")

	// ErrValueTooBig is returned when a single entry's key+value cannot
	// possibly fit on an empty page, so no amount of splitting helps.
	ErrValueTooBig = errors.New("btree: entry too large for a page")
)
