package btree

import (
	"bytes"

	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/page"
)

// Iterator walks a key range in ascending or descending order.
//
// Simplification: pages only carry a forward sibling link (NextPID,
// per spec.md §4.H), so a backward scan has no cheap way to find the
// leaf preceding the current one without either a second link field or
// re-descending from the root for every step. Rather than either of
// those, Begin materializes the whole [low, high) range into memory
// once by walking the leaf chain forward, then Next/Prev just walks an
// index into that slice. This trades streaming for simplicity; see
// DESIGN.md.
type Iterator struct {
	entries []entry
	idx     int
	asc     bool
}

type entry struct {
	key, val []byte
}

// Begin opens an iterator over [low, high). A nil low means unbounded
// below; a nil high means unbounded above. ascending selects the
// direction Next/Key/Value walk in.
func (t *Tree) Begin(low, high []byte, ascending bool) (*Iterator, error) {
	it := &Iterator{asc: ascending}
	if t.root == common.InvalidPageID {
		it.idx = -1
		return it, nil
	}

	startKey := low
	if startKey == nil {
		startKey = high
	}
	var pid common.PageID
	var err error
	if low != nil {
		_, pid, err = t.descendToLeaf(low)
	} else {
		pid, err = t.edgeLeaf()
	}
	if err != nil {
		return nil, err
	}

	for pid != common.InvalidPageID {
		ref, err := t.pages.GetPage(pid)
		if err != nil {
			return nil, err
		}
		n, err := page.KeyCount(ref.Page())
		if err != nil {
			ref.Release()
			return nil, err
		}
		for i := uint16(0); i < n; i++ {
			k, err := page.Key(ref.Page(), i)
			if err != nil {
				ref.Release()
				return nil, err
			}
			if low != nil && bytes.Compare(k, low) < 0 {
				continue
			}
			if high != nil && bytes.Compare(k, high) >= 0 {
				ref.Release()
				pid = common.InvalidPageID
				break
			}
			v, err := page.Value(ref.Page(), i)
			if err != nil {
				ref.Release()
				return nil, err
			}
			it.entries = append(it.entries, entry{key: k, val: v})
		}
		if pid == common.InvalidPageID {
			break
		}
		next, err := page.NextPID(ref.Page())
		ref.Release()
		if err != nil {
			return nil, err
		}
		pid = next
	}

	if ascending {
		it.idx = 0
	} else {
		it.idx = len(it.entries) - 1
	}
	return it, nil
}

// edgeLeaf descends to the tree's leftmost leaf, always following
// lowest_page.
func (t *Tree) edgeLeaf() (common.PageID, error) {
	cur := t.root
	for {
		ref, err := t.pages.GetPage(cur)
		if err != nil {
			return 0, err
		}
		if ref.Page().Type == page.TypeLeaf {
			ref.Release()
			return cur, nil
		}
		next, err := page.LowestPage(ref.Page())
		ref.Release()
		if err != nil {
			return 0, err
		}
		cur = next
	}
}

// Valid reports whether Key/Value return meaningful data.
func (it *Iterator) Valid() bool { return it.idx >= 0 && it.idx < len(it.entries) }

// Key returns the current entry's key.
func (it *Iterator) Key() []byte { return it.entries[it.idx].key }

// Value returns the current entry's value.
func (it *Iterator) Value() []byte { return it.entries[it.idx].val }

// Next advances an ascending iterator. Calling it on a descending
// iterator is a programming error and panics.
func (it *Iterator) Next() {
	if !it.asc {
		panic("btree: Next called on a descending iterator")
	}
	it.idx++
}

// Prev advances a descending iterator. Calling it on an ascending
// iterator is a programming error and panics.
func (it *Iterator) Prev() {
	if it.asc {
		panic("btree: Prev called on an ascending iterator")
	}
	it.idx--
}
