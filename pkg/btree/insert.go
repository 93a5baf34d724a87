package btree

import (
	"bytes"

	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/page"
	"github.com/nainya/corekv/pkg/txn"
)

// Read looks up key and returns its value. ErrNotFound if absent.
func (t *Tree) Read(key []byte) ([]byte, error) {
	if t.root == common.InvalidPageID {
		return nil, ErrNotFound
	}
	_, leafPID, err := t.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	ref, err := t.pages.GetPage(leafPID)
	if err != nil {
		return nil, err
	}
	defer ref.Release()
	idx, exact, err := leafSearch(ref.Page(), key)
	if err != nil {
		return nil, err
	}
	if !exact {
		return nil, ErrNotFound
	}
	return page.Value(ref.Page(), idx)
}

// Insert adds (key, value) to the tree. ErrDuplicateKey if key already
// exists, ErrValueTooBig if the entry cannot fit on an empty page.
func (t *Tree) Insert(tx *txn.Transaction, key, value []byte) error {
	if _, err := t.ensureRoot(tx); err != nil {
		return err
	}
	path, leafPID, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	return t.insertAt(tx, path, leafPID, key, value)
}

// insertAt attempts the leaf-level insert directly; on page.ErrNoSpace
// it splits the leaf (spec.md §4.H) and recurses into whichever side
// now owns key's range. The page mutation is attempted before the
// corresponding log record is emitted: page.InsertLeafEntry reports
// ErrNoSpace/ErrTooBig without touching the page on failure, so it is
// safe to try first and only log a record that is guaranteed to
// describe something that actually happened. The leaf stays pinned and
// latched for the whole call, so no concurrent write-back can observe
// the in-memory mutation before its log record lands.
func (t *Tree) insertAt(tx *txn.Transaction, path []common.PageID, pid common.PageID, key, value []byte) error {
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

	err = page.InsertLeafEntry(ref.Page(), idx, key, value)
	if err == nil {
		lsn, logErr := t.txns.InsertLeafLog(tx, pid, idx, key, value)
		if logErr != nil {
			ref.Release()
			return logErr
		}
		ref.Page().MarkDirty(lsn)
		ref.Release()
		return nil
	}
	ref.Release()
	if err == page.ErrTooBig {
		return ErrValueTooBig
	}
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
	return t.insertAt(tx, path, target, key, value)
}

// Update replaces key's value. ErrNotFound if key does not exist,
// ErrValueTooBig if the new entry cannot fit on an empty page.
//
// An update is modeled as delete-then-reinsert at the same slot rather
// than an in-place byte rewrite, since the new value's size may differ
// from the old one's — the same approach pkg/logapply's
// KindUpdateLeaf redo/undo already assumes.
func (t *Tree) Update(tx *txn.Transaction, key, newValue []byte) error {
	if t.root == common.InvalidPageID {
		return ErrNotFound
	}
	path, leafPID, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	return t.updateAt(tx, path, leafPID, key, newValue)
}

func (t *Tree) updateAt(tx *txn.Transaction, path []common.PageID, pid common.PageID, key, newValue []byte) error {
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
	err = page.InsertLeafEntry(ref.Page(), idx, key, newValue)
	if err == nil {
		lsn, logErr := t.txns.UpdateLeafLog(tx, pid, idx, key, oldValue, newValue)
		if logErr != nil {
			ref.Release()
			return logErr
		}
		ref.Page().MarkDirty(lsn)
		ref.Release()
		return nil
	}

	// The new value doesn't fit where the old one did. Restore the old
	// entry first — it is guaranteed to fit, since it occupied this
	// page a moment ago — before deciding how to proceed.
	if restoreErr := page.InsertLeafEntry(ref.Page(), idx, key, oldValue); restoreErr != nil {
		ref.Release()
		return restoreErr
	}
	ref.Release()

	if err == page.ErrTooBig {
		return ErrValueTooBig
	}
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
	return t.updateAt(tx, path, target, key, newValue)
}
