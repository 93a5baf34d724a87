package btree

import (
	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/page"
	"github.com/nainya/corekv/pkg/txn"
)

// Delete removes key from the tree (spec.md §4.H). If the owning leaf
// becomes empty, it is unlinked from its parent and destroyed; an
// emptied branch collapses the same way, recursively, and an emptied
// root's lowest_page becomes the tree's new root.
//
// Simplification from spec.md §4.H: this implementation always merges
// (unlinks) an emptied leaf rather than first attempting to steal an
// entry from its right sibling. Stealing is a rebalancing optimization
// that reduces page churn; omitting it does not change the tree's
// logical contents or any of spec.md §8's testable invariants, only its
// page-occupancy efficiency. See DESIGN.md.
func (t *Tree) Delete(tx *txn.Transaction, key []byte) error {
	if t.root == common.InvalidPageID {
		return ErrNotFound
	}
	path, leafPID, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	return t.deleteAt(tx, path, leafPID, key)
}

func (t *Tree) deleteAt(tx *txn.Transaction, path []common.PageID, pid common.PageID, key []byte) error {
	ref, err := t.pages.GetPage(pid)
	if err != nil {
		return err
	}
	idx, exact, err := leafSearch(ref.Page(), key)
	if err != nil {
		ref.Release()
		return err
	}
	if !exact {
		ref.Release()
		return ErrNotFound
	}
	oldValue, err := page.Value(ref.Page(), idx)
	if err != nil {
		ref.Release()
		return err
	}
	if err := page.DeleteEntry(ref.Page(), idx); err != nil {
		ref.Release()
		return err
	}
	lsn, err := t.txns.DeleteLeafLog(tx, pid, idx, key, oldValue)
	if err != nil {
		ref.Release()
		return err
	}
	ref.Page().MarkDirty(lsn)
	remaining, err := page.KeyCount(ref.Page())
	ref.Release()
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return t.collapseEmptyLeaf(tx, path, pid)
}

// collapseEmptyLeaf unlinks an emptied leaf from the tree.
func (t *Tree) collapseEmptyLeaf(tx *txn.Transaction, path []common.PageID, pid common.PageID) error {
	if len(path) == 0 {
		// The root leaf is empty; the tree is logically empty but the
		// page stays in place (ensureRoot reuses it on the next write).
		return nil
	}
	parentPID := path[len(path)-1]
	return t.removeChildFromParent(tx, path[:len(path)-1], parentPID, pid)
}

// removeChildFromParent removes whichever branch pointer (lowest_page
// or a keyed entry) on pid refers to child, absorbing child's key
// range into its neighbor, then destroys child. If pid itself becomes
// empty as a result, it collapses the same way one level up.
func (t *Tree) removeChildFromParent(tx *txn.Transaction, path []common.PageID, pid, child common.PageID) error {
	ref, err := t.pages.GetPage(pid)
	if err != nil {
		return err
	}
	lowest, err := page.LowestPage(ref.Page())
	if err != nil {
		ref.Release()
		return err
	}
	n, err := page.KeyCount(ref.Page())
	if err != nil {
		ref.Release()
		return err
	}

	if lowest == child {
		if n == 0 {
			ref.Release()
			if err := t.destroyPage(tx, child); err != nil {
				return err
			}
			return t.collapseEmptyBranch(tx, path, pid)
		}
		newLowest, err := page.ChildPageID(ref.Page(), 0)
		if err != nil {
			ref.Release()
			return err
		}
		keyAt0, err := page.Key(ref.Page(), 0)
		if err != nil {
			ref.Release()
			return err
		}
		lsn1, err := t.txns.SetLowestPageLog(tx, pid, lowest, newLowest)
		if err != nil {
			ref.Release()
			return err
		}
		if err := page.SetLowestPage(ref.Page(), newLowest); err != nil {
			ref.Release()
			return err
		}
		ref.Page().MarkDirty(lsn1)
		lsn2, err := t.txns.DeleteBranchLog(tx, pid, 0, keyAt0, newLowest)
		if err != nil {
			ref.Release()
			return err
		}
		if err := page.DeleteEntry(ref.Page(), 0); err != nil {
			ref.Release()
			return err
		}
		ref.Page().MarkDirty(lsn2)
	} else {
		idx := -1
		for i := uint16(0); i < n; i++ {
			c, err := page.ChildPageID(ref.Page(), i)
			if err != nil {
				ref.Release()
				return err
			}
			if c == child {
				idx = int(i)
				break
			}
		}
		if idx < 0 {
			ref.Release()
			return ErrNotFound
		}
		k, err := page.Key(ref.Page(), uint16(idx))
		if err != nil {
			ref.Release()
			return err
		}
		lsn, err := t.txns.DeleteBranchLog(tx, pid, uint16(idx), k, child)
		if err != nil {
			ref.Release()
			return err
		}
		if err := page.DeleteEntry(ref.Page(), uint16(idx)); err != nil {
			ref.Release()
			return err
		}
		ref.Page().MarkDirty(lsn)
	}

	remaining, err := page.KeyCount(ref.Page())
	ref.Release()
	if err != nil {
		return err
	}

	if err := t.destroyPage(tx, child); err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return t.collapseEmptyBranch(tx, path, pid)
}

// collapseEmptyBranch handles a branch page that has lost its last
// keyed entry. At the root, its lowest_page (if any) becomes the new
// root; otherwise pid itself is removed from its parent the same way
// an emptied leaf is.
func (t *Tree) collapseEmptyBranch(tx *txn.Transaction, path []common.PageID, pid common.PageID) error {
	ref, err := t.pages.GetPage(pid)
	if err != nil {
		return err
	}
	lowest, err := page.LowestPage(ref.Page())
	ref.Release()
	if err != nil {
		return err
	}

	if len(path) == 0 {
		if err := t.setRoot(tx, lowest); err != nil {
			return err
		}
		return t.destroyPage(tx, pid)
	}
	parentPID := path[len(path)-1]
	return t.removeChildFromParent(tx, path[:len(path)-1], parentPID, pid)
}

func (t *Tree) destroyPage(tx *txn.Transaction, pid common.PageID) error {
	if pid == common.InvalidPageID {
		return nil
	}
	ref, err := t.pages.GetPage(pid)
	if err != nil {
		return err
	}
	defer ref.Release()
	return t.pages.DestroyPage(tx, ref)
}
