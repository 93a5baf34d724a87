package btree

import (
	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/page"
)

// descendToLeaf walks from start down to the leaf that should hold
// key, following branch children and any foster pointers encountered
// along the way. It returns the ancestor branch page ids visited, in
// root-to-parent order, as path, and the leaf id separately as leaf (the
// leaf is not included in path) — callers fetch the leaf with their own
// latch.
//
// Each page is pinned and released one at a time rather than held
// latch-coupled for the whole descent: the page pool already
// serializes all access to a given page behind one latch, and per
// spec.md §4.H a concurrent writer that observes a stale foster
// pointer simply re-resolves it, so holding only one latch at a time
// during descent is sufficient here.
func (t *Tree) descendToLeaf(key []byte) (path []common.PageID, leaf common.PageID, err error) {
	cur := t.root
	for {
		ref, err := t.pages.GetPage(cur)
		if err != nil {
			return nil, 0, err
		}
		if fc, ok, err := fosterTarget(ref.Page(), key); err != nil {
			ref.Release()
			return nil, 0, err
		} else if ok {
			ref.Release()
			cur = fc
			continue
		}

		typ := ref.Page().Type
		if typ == page.TypeLeaf {
			ref.Release()
			return path, cur, nil
		}

		pick, err := branchDescend(ref.Page())
		if err != nil {
			ref.Release()
			return nil, 0, err
		}
		child, err := pick(key)
		ref.Release()
		if err != nil {
			return nil, 0, err
		}
		path = append(path, cur)
		cur = child
	}
}
