package btree

import (
	"bytes"

	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/page"
	"github.com/nainya/corekv/pkg/pagepool"
	"github.com/nainya/corekv/pkg/txn"
)

// splitNode splits a full leaf or branch page in two, per spec.md §4.H:
// the right half moves to a freshly allocated page of the same type,
// and the original page gets a foster pointer to it rather than an
// immediate parent update — decoupling the split from the parent
// insert that will later absorb it. The returned splitKey is the new
// page's low fence, i.e. the smallest key it now owns.
//
// Grounded on spec.md §4.H's split description; every structural change
// (new page's fences/lowest-page, moved entries, shrunk high fence,
// sibling link, foster pointer) is logged as its own record so redo can
// replay the split even if recovery stops partway through it.
func (t *Tree) splitNode(tx *txn.Transaction, ref *pagepool.Ref) (splitKey []byte, newPID common.PageID, err error) {
	p := ref.Page()
	n, err := page.KeyCount(p)
	if err != nil {
		return nil, 0, err
	}
	mid := n / 2
	splitKey, err = page.Key(p, mid)
	if err != nil {
		return nil, 0, err
	}

	typ := p.Type
	newRef, err := t.pages.AllocateNewPage(tx, typ)
	if err != nil {
		return nil, 0, err
	}
	newPage := newRef.Page()
	newPID = newPage.PageID
	defer newRef.Release()

	oldHighKey, oldHighOK, err := page.HighFence(p)
	if err != nil {
		return nil, 0, err
	}

	if lsn, err := t.txns.SetLowFenceLog(tx, newPID, nil, true, splitKey, false); err != nil {
		return nil, 0, err
	} else {
		if err := page.SetLowFence(newPage, splitKey); err != nil {
			return nil, 0, err
		}
		newPage.MarkDirty(lsn)
	}
	if oldHighOK {
		lsn, err := t.txns.SetHighFenceLog(tx, newPID, nil, true, oldHighKey, false)
		if err != nil {
			return nil, 0, err
		}
		if err := page.SetHighFence(newPage, oldHighKey); err != nil {
			return nil, 0, err
		}
		newPage.MarkDirty(lsn)
	}

	if typ == page.TypeBranch {
		if err := t.splitBranchEntries(tx, p, newPage, mid, n); err != nil {
			return nil, 0, err
		}
	} else {
		if err := t.splitLeafEntries(tx, p, newPage, mid, n); err != nil {
			return nil, 0, err
		}
		oldNext, err := page.NextPID(p)
		if err != nil {
			return nil, 0, err
		}
		if lsn, err := t.txns.SetNextPIDLog(tx, newPID, common.InvalidPageID, oldNext); err != nil {
			return nil, 0, err
		} else {
			if err := page.SetNextPID(newPage, oldNext); err != nil {
				return nil, 0, err
			}
			newPage.MarkDirty(lsn)
		}
		if lsn, err := t.txns.SetNextPIDLog(tx, p.PageID, oldNext, newPID); err != nil {
			return nil, 0, err
		} else {
			if err := page.SetNextPID(p, newPID); err != nil {
				return nil, 0, err
			}
			p.MarkDirty(lsn)
		}
	}

	// Shrink the original page's high fence to the split key: it no
	// longer owns keys ≥ splitKey.
	if lsn, err := t.txns.SetHighFenceLog(tx, p.PageID, oldHighKey, !oldHighOK, splitKey, false); err != nil {
		return nil, 0, err
	} else {
		if err := page.SetHighFence(p, splitKey); err != nil {
			return nil, 0, err
		}
		p.MarkDirty(lsn)
	}

	// Foster pointer: the split is visible to descending readers/writers
	// immediately, even before the parent learns about it.
	if lsn, err := t.txns.SetFosterLog(tx, p.PageID, nil, 0, false, splitKey, newPID, true); err != nil {
		return nil, 0, err
	} else {
		if err := page.SetFoster(p, splitKey, newPID); err != nil {
			return nil, 0, err
		}
		p.MarkDirty(lsn)
	}

	return splitKey, newPID, nil
}

// splitLeafEntries moves leaf entries [mid, n) from src into dst
// (re-indexed from 0), then deletes them from src.
func (t *Tree) splitLeafEntries(tx *txn.Transaction, src, dst *page.Page, mid, n uint16) error {
	for i := mid; i < n; i++ {
		k, err := page.Key(src, i)
		if err != nil {
			return err
		}
		v, err := page.Value(src, i)
		if err != nil {
			return err
		}
		idx := i - mid
		lsn, err := t.txns.InsertLeafLog(tx, dst.PageID, idx, k, v)
		if err != nil {
			return err
		}
		if err := page.InsertLeafEntry(dst, idx, k, v); err != nil {
			return err
		}
		dst.MarkDirty(lsn)
	}
	for i := n; i > mid; i-- {
		k, err := page.Key(src, i-1)
		if err != nil {
			return err
		}
		v, err := page.Value(src, i-1)
		if err != nil {
			return err
		}
		lsn, err := t.txns.DeleteLeafLog(tx, src.PageID, i-1, k, v)
		if err != nil {
			return err
		}
		if err := page.DeleteEntry(src, i-1); err != nil {
			return err
		}
		src.MarkDirty(lsn)
	}
	return nil
}

// splitBranchEntries moves branch entries (mid, n) from src into dst
// (re-indexed from 0), promotes entry mid's child to dst's lowest_page
// (mid's key becomes the split key and is not duplicated as an entry),
// then deletes entries [mid, n) from src.
func (t *Tree) splitBranchEntries(tx *txn.Transaction, src, dst *page.Page, mid, n uint16) error {
	midChild, err := page.ChildPageID(src, mid)
	if err != nil {
		return err
	}
	if lsn, err := t.txns.SetLowestPageLog(tx, dst.PageID, common.InvalidPageID, midChild); err != nil {
		return err
	} else {
		if err := page.SetLowestPage(dst, midChild); err != nil {
			return err
		}
		dst.MarkDirty(lsn)
	}

	for i := mid + 1; i < n; i++ {
		k, err := page.Key(src, i)
		if err != nil {
			return err
		}
		child, err := page.ChildPageID(src, i)
		if err != nil {
			return err
		}
		idx := i - (mid + 1)
		lsn, err := t.txns.InsertBranchLog(tx, dst.PageID, idx, k, child)
		if err != nil {
			return err
		}
		if err := page.InsertBranchEntry(dst, idx, k, child); err != nil {
			return err
		}
		dst.MarkDirty(lsn)
	}
	for i := n; i > mid; i-- {
		k, err := page.Key(src, i-1)
		if err != nil {
			return err
		}
		child, err := page.ChildPageID(src, i-1)
		if err != nil {
			return err
		}
		lsn, err := t.txns.DeleteBranchLog(tx, src.PageID, i-1, k, child)
		if err != nil {
			return err
		}
		if err := page.DeleteEntry(src, i-1); err != nil {
			return err
		}
		src.MarkDirty(lsn)
	}
	return nil
}

// resolveFoster installs pid's foster pointer (if any) into its parent
// — the ancestor branch page, or a freshly created root if pid has no
// parent — then clears the foster pointer on pid. This is the "later
// parent update that incorporates the split" spec.md §4.H describes,
// performed eagerly (within the same operation) rather than lazily by
// a future descent, since this implementation has no background
// resolver thread.
func (t *Tree) resolveFoster(tx *txn.Transaction, path []common.PageID, pid common.PageID) error {
	ref, err := t.pages.GetPage(pid)
	if err != nil {
		return err
	}
	fosterKey, fosterChild, ok, err := page.Foster(ref.Page())
	if err != nil {
		ref.Release()
		return err
	}
	if !ok {
		ref.Release()
		return nil
	}
	ref.Release()

	if len(path) == 0 {
		return t.growRoot(tx, pid, fosterKey, fosterChild)
	}

	parentPID := path[len(path)-1]
	if err := t.insertBranchKey(tx, path[:len(path)-1], parentPID, fosterKey, fosterChild); err != nil {
		return err
	}

	childRef, err := t.pages.GetPage(pid)
	if err != nil {
		return err
	}
	defer childRef.Release()
	lsn, err := t.txns.SetFosterLog(tx, pid, fosterKey, fosterChild, true, nil, 0, false)
	if err != nil {
		return err
	}
	if err := page.ClearFoster(childRef.Page()); err != nil {
		return err
	}
	childRef.Page().MarkDirty(lsn)
	return nil
}

// growRoot handles a foster pointer surfacing at the current root: a
// new branch root page is allocated with oldRoot as its lowest_page and
// one entry (fosterKey, fosterChild), and installed via the tree's
// RootSink. The old root page keeps its own id and type (this
// implementation resolves spec.md §9's "old root's type changes"
// language by always growing a fresh root page rather than type-
// punning the old root's body in place; see DESIGN.md).
func (t *Tree) growRoot(tx *txn.Transaction, oldRoot common.PageID, fosterKey []byte, fosterChild common.PageID) error {
	newRootRef, err := t.pages.AllocateNewPage(tx, page.TypeBranch)
	if err != nil {
		return err
	}
	newRoot := newRootRef.Page()
	defer newRootRef.Release()

	if lsn, err := t.txns.SetLowestPageLog(tx, newRoot.PageID, common.InvalidPageID, oldRoot); err != nil {
		return err
	} else {
		if err := page.SetLowestPage(newRoot, oldRoot); err != nil {
			return err
		}
		newRoot.MarkDirty(lsn)
	}
	if lsn, err := t.txns.InsertBranchLog(tx, newRoot.PageID, 0, fosterKey, fosterChild); err != nil {
		return err
	} else {
		if err := page.InsertBranchEntry(newRoot, 0, fosterKey, fosterChild); err != nil {
			return err
		}
		newRoot.MarkDirty(lsn)
	}

	oldRef, err := t.pages.GetPage(oldRoot)
	if err != nil {
		return err
	}
	lsn, err := t.txns.SetFosterLog(tx, oldRoot, fosterKey, fosterChild, true, nil, 0, false)
	if err != nil {
		oldRef.Release()
		return err
	}
	if err := page.ClearFoster(oldRef.Page()); err != nil {
		oldRef.Release()
		return err
	}
	oldRef.Page().MarkDirty(lsn)
	oldRef.Release()

	return t.setRoot(tx, newRoot.PageID)
}

// insertBranchKey installs (key, child) into the branch page pid,
// splitting and recursing into resolveFoster (possibly growing the
// root again) if pid is itself full.
func (t *Tree) insertBranchKey(tx *txn.Transaction, path []common.PageID, pid common.PageID, key []byte, child common.PageID) error {
	ref, err := t.pages.GetPage(pid)
	if err != nil {
		return err
	}
	idx, exact, err := leafSearch(ref.Page(), key)
	if err != nil {
		ref.Release()
		return err
	}
	if exact {
		ref.Release()
		return ErrDuplicateKey
	}

	err = page.InsertBranchEntry(ref.Page(), idx, key, child)
	if err == nil {
		lsn, logErr := t.txns.InsertBranchLog(tx, pid, idx, key, child)
		if logErr != nil {
			ref.Release()
			return logErr
		}
		ref.Page().MarkDirty(lsn)
		ref.Release()
		return nil
	}
	ref.Release()
	if err != page.ErrNoSpace {
		return err
	}

	splitRef, err := t.pages.GetPage(pid)
	if err != nil {
		return err
	}
	splitKey, newPID, err := t.splitNode(tx, splitRef)
	splitRef.Release()
	if err != nil {
		return err
	}
	if err := t.resolveFoster(tx, path, pid); err != nil {
		return err
	}
	target := pid
	if bytes.Compare(key, splitKey) >= 0 {
		target = newPID
	}
	return t.insertBranchKey(tx, path, target, key, child)
}
