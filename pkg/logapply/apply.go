package logapply

import (
	"github.com/nainya/corekv/pkg/page"
	"github.com/nainya/corekv/pkg/walrec"
)

// Redo reinstalls rec's effect on p. The caller (recovery's redo pass)
// is responsible for the page.page_lsn < record.lsn idempotence check
// before calling this.
func Redo(p *page.Page, rec *walrec.Record) error {
	switch rec.Kind {
	case walrec.KindInsertRow, walrec.KindCompensateInsertRow:
		_, err := page.InsertRow(p, rec.Redo)
		return err
	case walrec.KindUpdateRow, walrec.KindCompensateUpdateRow:
		return page.UpdateRow(p, rec.Slot, rec.Redo)
	case walrec.KindDeleteRow, walrec.KindCompensateDeleteRow:
		return page.DeleteRow(p, rec.Slot)
	case walrec.KindDefragmentRow:
		if p.Type == page.TypeLeaf || p.Type == page.TypeBranch {
			return page.CompactNode(p)
		}
		return page.DeFragment(p)

	case walrec.KindInsertLeaf, walrec.KindCompensateInsertLeaf:
		return page.InsertLeafEntry(p, rec.Slot, rec.Key, rec.Redo)
	case walrec.KindUpdateLeaf, walrec.KindCompensateUpdateLeaf:
		if err := page.DeleteEntry(p, rec.Slot); err != nil {
			return err
		}
		return page.InsertLeafEntry(p, rec.Slot, rec.Key, rec.Redo)
	case walrec.KindDeleteLeaf, walrec.KindCompensateDeleteLeaf:
		return page.DeleteEntry(p, rec.Slot)

	case walrec.KindInsertBranch, walrec.KindCompensateInsertBranch:
		return page.InsertBranchEntry(p, rec.Slot, rec.Key, DecodePageID(rec.Redo))
	case walrec.KindUpdateBranch, walrec.KindCompensateUpdateBranch:
		if err := page.DeleteEntry(p, rec.Slot); err != nil {
			return err
		}
		return page.InsertBranchEntry(p, rec.Slot, rec.Key, DecodePageID(rec.Redo))
	case walrec.KindDeleteBranch, walrec.KindCompensateDeleteBranch:
		return page.DeleteEntry(p, rec.Slot)

	case walrec.KindSetLowFence:
		key, inf := DecodeFence(rec.Redo)
		if inf {
			return page.SetLowFenceInfinity(p)
		}
		return page.SetLowFence(p, key)
	case walrec.KindSetHighFence:
		key, inf := DecodeFence(rec.Redo)
		if inf {
			return page.SetHighFenceInfinity(p)
		}
		return page.SetHighFence(p, key)
	case walrec.KindSetFoster:
		key, child, present := DecodeFoster(rec.Redo)
		if !present {
			return page.ClearFoster(p)
		}
		return page.SetFoster(p, key, child)
	case walrec.KindSetLowestPage:
		return page.SetLowestPage(p, DecodePageID(rec.Redo))
	case walrec.KindSetNextPID:
		return page.SetNextPID(p, DecodePageID(rec.Redo))
	case walrec.KindPageTypeChange:
		p.Type = page.Type(DecodeType(rec.Redo))
		return nil

	case walrec.KindSystemAllocPage:
		page.ResetBody(p, page.Type(DecodeType(rec.Redo)))
		return nil
	case walrec.KindSystemDestroyPage:
		p.Type = page.TypeFree
		if len(rec.Redo) >= 8 {
			return page.WriteFree(p, DecodePageID(rec.Redo))
		}
		return nil
	case walrec.KindUpdateMeta:
		maxPageCount, firstFree, root := DecodeMeta(rec.Redo)
		return page.WriteMeta(p, page.Meta{MaxPageCount: maxPageCount, FirstFreePage: firstFree, RootPage: root})

	default:
		return ErrUnsupportedKind
	}
}

// Undo reverses rec's effect on p using its Undo image. Never called
// for a compensation (CLR) kind: those are redo-only by definition.
func Undo(p *page.Page, rec *walrec.Record) error {
	switch rec.Kind {
	case walrec.KindInsertRow:
		return page.DeleteRow(p, rec.Slot)
	case walrec.KindUpdateRow:
		return page.UpdateRow(p, rec.Slot, rec.Undo)
	case walrec.KindDeleteRow:
		return page.RestoreRow(p, rec.Slot, rec.Undo)

	case walrec.KindInsertLeaf:
		return page.DeleteEntry(p, rec.Slot)
	case walrec.KindUpdateLeaf:
		if err := page.DeleteEntry(p, rec.Slot); err != nil {
			return err
		}
		return page.InsertLeafEntry(p, rec.Slot, rec.Key, rec.Undo)
	case walrec.KindDeleteLeaf:
		return page.InsertLeafEntry(p, rec.Slot, rec.Key, rec.Undo)

	case walrec.KindInsertBranch:
		return page.DeleteEntry(p, rec.Slot)
	case walrec.KindUpdateBranch:
		if err := page.DeleteEntry(p, rec.Slot); err != nil {
			return err
		}
		return page.InsertBranchEntry(p, rec.Slot, rec.Key, DecodePageID(rec.Undo))
	case walrec.KindDeleteBranch:
		return page.InsertBranchEntry(p, rec.Slot, rec.Key, DecodePageID(rec.Undo))

	case walrec.KindSetLowFence:
		key, inf := DecodeFence(rec.Undo)
		if inf {
			return page.SetLowFenceInfinity(p)
		}
		return page.SetLowFence(p, key)
	case walrec.KindSetHighFence:
		key, inf := DecodeFence(rec.Undo)
		if inf {
			return page.SetHighFenceInfinity(p)
		}
		return page.SetHighFence(p, key)
	case walrec.KindSetFoster:
		key, child, present := DecodeFoster(rec.Undo)
		if !present {
			return page.ClearFoster(p)
		}
		return page.SetFoster(p, key, child)
	case walrec.KindSetLowestPage:
		return page.SetLowestPage(p, DecodePageID(rec.Undo))
	case walrec.KindSetNextPID:
		return page.SetNextPID(p, DecodePageID(rec.Undo))
	case walrec.KindPageTypeChange:
		p.Type = page.Type(DecodeType(rec.Undo))
		return nil

	case walrec.KindSystemAllocPage:
		page.ResetBody(p, page.Type(DecodeType(rec.Undo)))
		return nil
	case walrec.KindSystemDestroyPage:
		page.ResetBody(p, page.Type(DecodeType(rec.Undo)))
		return nil
	case walrec.KindUpdateMeta:
		maxPageCount, firstFree, root := DecodeMeta(rec.Undo)
		return page.WriteMeta(p, page.Meta{MaxPageCount: maxPageCount, FirstFreePage: firstFree, RootPage: root})

	default:
		return ErrUnsupportedKind
	}
}
