package lsm

import (
	"bytes"
	"container/heap"
)

// View is a snapshot of the run list and blob file taken by GetView,
// letting a reader scan independently of further mutations to the
// tree (spec.md §4.J).
type View struct {
	runs []*SortedRun
	blob *BlobFile
}

// Runs exposes the snapshotted run list, newest generation first.
func (v *View) Runs() []*SortedRun { return v.runs }

// Lookup searches the view's runs in descending generation order,
// mirroring Tree.Read's on-disk fallback path.
func (v *View) Lookup(key []byte) (runEntry, bool) {
	for _, r := range v.runs {
		if e, ok := r.lookup(key); ok {
			return e, true
		}
	}
	return runEntry{}, false
}

type cursor struct {
	run *SortedRun
	idx int
}

func (c cursor) entry() runEntry { return c.run.entries[c.idx] }

type cursorHeap []cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	ci, cj := h[i].entry(), h[j].entry()
	if c := bytes.Compare(ci.key, cj.key); c != 0 {
		return c < 0
	}
	// Same key: newest generation (largest Generation, i.e. smallest
	// -generation) sorts first.
	return h[i].run.Generation > h[j].run.Generation
}
func (h cursorHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)        { *h = append(*h, x.(cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Iterator walks a View in ascending key order, yielding the newest
// generation's value for each key and skipping tombstoned keys
// entirely (spec.md §4.J "Range iteration").
type Iterator struct {
	h cursorHeap
}

// NewIterator builds a min-heap of per-run cursors, one per non-empty
// run in v.
func (v *View) NewIterator() *Iterator {
	it := &Iterator{}
	for _, r := range v.runs {
		if len(r.entries) > 0 {
			it.h = append(it.h, cursor{run: r, idx: 0})
		}
	}
	heap.Init(&it.h)
	return it
}

func (it *Iterator) advance(c cursor) {
	c.idx++
	if c.idx < len(c.run.entries) {
		heap.Push(&it.h, cursor{run: c.run, idx: c.idx})
	}
}

// Next returns the next live (key, value) pair, or ok=false once
// exhausted.
func (it *Iterator) Next() (key, value []byte, ok bool) {
	for it.h.Len() > 0 {
		top := heap.Pop(&it.h).(cursor)
		e := top.entry()
		it.advance(top)

		for it.h.Len() > 0 && bytes.Equal(it.h[0].entry().key, e.key) {
			dup := heap.Pop(&it.h).(cursor)
			it.advance(dup)
		}

		if e.tombstone {
			continue
		}
		return e.key, e.value, true
	}
	return nil, nil, false
}
