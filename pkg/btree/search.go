package btree

import (
	"bytes"

	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/page"
)

// leafSearch returns the position of key among p's ordered entries: if
// exact, index is key's own slot; otherwise index is where key would
// be inserted to keep the page ordered.
func leafSearch(p *page.Page, key []byte) (index uint16, exact bool, err error) {
	n, err := page.KeyCount(p)
	if err != nil {
		return 0, false, err
	}
	lo, hi := uint16(0), n
	for lo < hi {
		mid := (lo + hi) / 2
		k, err := page.Key(p, mid)
		if err != nil {
			return 0, false, err
		}
		switch bytes.Compare(k, key) {
		case 0:
			return mid, true, nil
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false, nil
}

// branchDescend picks which child of a branch page to visit for key.
// Keys on a branch page are the low fence (minimum key, inclusive) of
// the child that follows them: branchDescend finds the rightmost key
// ≤ key and returns its child, or lowest_page if key is below every
// key on the page. Grounded on the teacher's nodeLookupLE (largest
// index whose key is ≤ the target).
func branchDescend(p *page.Page) (func(key []byte) (common.PageID, error), error) {
	n, err := page.KeyCount(p)
	if err != nil {
		return nil, err
	}
	return func(key []byte) (common.PageID, error) {
		lo, hi := uint16(0), n
		for lo < hi {
			mid := (lo + hi) / 2
			k, err := page.Key(p, mid)
			if err != nil {
				return 0, err
			}
			if bytes.Compare(k, key) > 0 {
				hi = mid
			} else {
				lo = mid + 1
			}
		}
		if lo == 0 {
			return page.LowestPage(p)
		}
		return page.ChildPageID(p, lo-1)
	}, nil
}

// fosterTarget reports the foster child to visit instead of p itself,
// when key falls in the range the foster child has already taken over
// (spec.md §4.H: the foster key is the new sibling's low fence, so any
// key ≥ it belongs there rather than in p).
func fosterTarget(p *page.Page, key []byte) (common.PageID, bool, error) {
	fk, fc, ok, err := page.Foster(p)
	if err != nil || !ok {
		return 0, false, err
	}
	if bytes.Compare(key, fk) >= 0 {
		return fc, true, nil
	}
	return 0, false, nil
}
