package txn

import (
	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/logapply"
	"github.com/nainya/corekv/pkg/page"
	"github.com/nainya/corekv/pkg/walrec"
)

// emit appends rec on behalf of txn, chaining it onto the transaction's
// prev_lsn list, and returns the assigned LSN. The page-layer caller is
// responsible for stamping the returned LSN into the mutated page via
// page.MarkDirty — spec.md §4.E: "the emitter returns the new LSN, which
// the page layer stamps into the page's page_lsn".
func (m *Manager) emit(txn *Transaction, rec *walrec.Record) (common.LSN, error) {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if txn.Status != StatusRunning {
		return 0, ErrNotActive
	}
	rec.TxnID = txn.ID
	rec.PrevLSN = txn.PrevLSN
	lsn, err := m.wal.Append(rec.Encode())
	if err != nil {
		return 0, err
	}
	txn.PrevLSN = lsn
	return lsn, nil
}

// Row page DML.

func (m *Manager) InsertRowLog(txn *Transaction, pageID common.PageID, slot uint16, redo []byte) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{Kind: walrec.KindInsertRow, PageID: pageID, Slot: slot, Redo: redo})
}

func (m *Manager) UpdateRowLog(txn *Transaction, pageID common.PageID, slot uint16, undo, redo []byte) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{Kind: walrec.KindUpdateRow, PageID: pageID, Slot: slot, Undo: undo, Redo: redo})
}

func (m *Manager) DeleteRowLog(txn *Transaction, pageID common.PageID, slot uint16, undo []byte) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{Kind: walrec.KindDeleteRow, PageID: pageID, Slot: slot, Undo: undo})
}

func (m *Manager) DefragmentRowLog(pageID common.PageID) (common.LSN, error) {
	// Purely structural repacking: it has no logical undo (the set of
	// live rows is unchanged) so it is logged outside any transaction's
	// undo chain, the same way the meta page's own bookkeeping is not
	// tied to a particular caller's abort.
	rec := &walrec.Record{Kind: walrec.KindDefragmentRow, PageID: pageID}
	return m.wal.Append(rec.Encode())
}

// B+-tree leaf DML.

func (m *Manager) InsertLeafLog(txn *Transaction, pageID common.PageID, slot uint16, key, value []byte) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{Kind: walrec.KindInsertLeaf, PageID: pageID, Slot: slot, Key: key, Redo: value})
}

func (m *Manager) UpdateLeafLog(txn *Transaction, pageID common.PageID, slot uint16, key, oldValue, newValue []byte) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{Kind: walrec.KindUpdateLeaf, PageID: pageID, Slot: slot, Key: key, Undo: oldValue, Redo: newValue})
}

func (m *Manager) DeleteLeafLog(txn *Transaction, pageID common.PageID, slot uint16, key, oldValue []byte) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{Kind: walrec.KindDeleteLeaf, PageID: pageID, Slot: slot, Key: key, Undo: oldValue})
}

// B+-tree branch DML.

func (m *Manager) InsertBranchLog(txn *Transaction, pageID common.PageID, slot uint16, key []byte, child common.PageID) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{Kind: walrec.KindInsertBranch, PageID: pageID, Slot: slot, Key: key, Redo: logapply.EncodePageID(child)})
}

func (m *Manager) UpdateBranchLog(txn *Transaction, pageID common.PageID, slot uint16, key []byte, oldChild, newChild common.PageID) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{
		Kind: walrec.KindUpdateBranch, PageID: pageID, Slot: slot, Key: key,
		Undo: logapply.EncodePageID(oldChild), Redo: logapply.EncodePageID(newChild),
	})
}

func (m *Manager) DeleteBranchLog(txn *Transaction, pageID common.PageID, slot uint16, key []byte, oldChild common.PageID) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{Kind: walrec.KindDeleteBranch, PageID: pageID, Slot: slot, Key: key, Undo: logapply.EncodePageID(oldChild)})
}

// Structural operations (fences, foster pointer, lowest-page pointer,
// page-type change) get their own log records per spec.md §4.H, so
// recovery can redo structural work even when DML records interleave.

func (m *Manager) SetLowFenceLog(txn *Transaction, pageID common.PageID, oldKey []byte, oldInf bool, newKey []byte, newInf bool) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{
		Kind: walrec.KindSetLowFence, PageID: pageID,
		Undo: logapply.EncodeFence(oldKey, oldInf), Redo: logapply.EncodeFence(newKey, newInf),
	})
}

func (m *Manager) SetHighFenceLog(txn *Transaction, pageID common.PageID, oldKey []byte, oldInf bool, newKey []byte, newInf bool) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{
		Kind: walrec.KindSetHighFence, PageID: pageID,
		Undo: logapply.EncodeFence(oldKey, oldInf), Redo: logapply.EncodeFence(newKey, newInf),
	})
}

// SetFosterLog logs installing or clearing a foster pointer. present
// (old/new) distinguishes "no foster pointer" from a finite one; when
// false the corresponding key/child are ignored.
func (m *Manager) SetFosterLog(txn *Transaction, pageID common.PageID,
	oldKey []byte, oldChild common.PageID, oldPresent bool,
	newKey []byte, newChild common.PageID, newPresent bool) (common.LSN, error) {
	undo := []byte{}
	if oldPresent {
		undo = logapply.EncodeFoster(oldKey, oldChild)
	}
	redo := []byte{}
	if newPresent {
		redo = logapply.EncodeFoster(newKey, newChild)
	}
	return m.emit(txn, &walrec.Record{Kind: walrec.KindSetFoster, PageID: pageID, Undo: undo, Redo: redo})
}

func (m *Manager) SetLowestPageLog(txn *Transaction, pageID common.PageID, oldChild, newChild common.PageID) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{
		Kind: walrec.KindSetLowestPage, PageID: pageID,
		Undo: logapply.EncodePageID(oldChild), Redo: logapply.EncodePageID(newChild),
	})
}

// SetNextPIDLog logs a change to a leaf's right-sibling link, maintained
// across splits and merges so the iterator's forward traversal stays
// correct even if recovery must redo the link independently of the data
// move that accompanied it.
func (m *Manager) SetNextPIDLog(txn *Transaction, pageID common.PageID, oldNext, newNext common.PageID) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{
		Kind: walrec.KindSetNextPID, PageID: pageID,
		Undo: logapply.EncodePageID(oldNext), Redo: logapply.EncodePageID(newNext),
	})
}

func (m *Manager) PageTypeChangeLog(txn *Transaction, pageID common.PageID, oldType, newType byte) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{
		Kind: walrec.KindPageTypeChange, PageID: pageID,
		Undo: logapply.EncodeType(oldType), Redo: logapply.EncodeType(newType),
	})
}

// Page lifecycle, driven by pkg/pagestore.

func (m *Manager) SystemAllocPageLog(txn *Transaction, pageID common.PageID, newType byte) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{
		Kind: walrec.KindSystemAllocPage, PageID: pageID,
		Undo: logapply.EncodeType(byte(page.TypeFree)), Redo: logapply.EncodeType(newType),
	})
}

// SystemDestroyPageLog logs reverting pageID to the free type and
// relinking it at the head of the free list (redo carries the free
// list's old head, the new next-pointer for this now-free page; undo
// carries the page's prior type).
func (m *Manager) SystemDestroyPageLog(txn *Transaction, pageID common.PageID, oldType byte, oldFreeHead common.PageID) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{
		Kind: walrec.KindSystemDestroyPage, PageID: pageID,
		Undo: logapply.EncodeType(oldType), Redo: logapply.EncodePageID(oldFreeHead),
	})
}

// UpdateMetaLog logs a change to the meta page's watermark, free-list
// head, or root page, e.g. during allocate_new_page/destroy_page or a
// root split/collapse.
func (m *Manager) UpdateMetaLog(txn *Transaction, old, new page.Meta) (common.LSN, error) {
	return m.emit(txn, &walrec.Record{
		Kind: walrec.KindUpdateMeta, PageID: common.MetaPageID,
		Undo: logapply.EncodeMeta(old.MaxPageCount, old.FirstFreePage, old.RootPage),
		Redo: logapply.EncodeMeta(new.MaxPageCount, new.FirstFreePage, new.RootPage),
	})
}
