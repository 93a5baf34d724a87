package pagestore

import (
	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/page"
	"github.com/nainya/corekv/pkg/pagepool"
	"github.com/nainya/corekv/pkg/txn"
)

// Manager is the Page Manager.
type Manager struct {
	pool *pagepool.Pool
	txns *txn.Manager
}

// New creates a page manager over pool, using txns to emit the log
// records every allocation/destruction requires.
func New(pool *pagepool.Pool, txns *txn.Manager) *Manager {
	return &Manager{pool: pool, txns: txns}
}

// Bootstrap initializes page 0 as an empty meta page for a brand-new
// database file. Called once, outside any transaction, when opening a
// database whose file is empty.
func (m *Manager) Bootstrap() error {
	meta := page.New(common.MetaPageID, page.TypeMeta)
	if err := page.WriteMeta(meta, page.Meta{
		MaxPageCount:  1,
		FirstFreePage: common.InvalidPageID,
		RootPage:      common.InvalidPageID,
	}); err != nil {
		return err
	}
	ref, err := m.pool.Insert(meta)
	if err != nil {
		return err
	}
	defer ref.Release()
	return nil
}

// AllocateNewPage consults the meta page's free list: if non-empty, it
// pops the head; otherwise it increments the page-count watermark.
// Either way it logs the meta-page update and a system_alloc_page
// record, then returns the new page pinned in the pool (spec.md §4.C).
func (m *Manager) AllocateNewPage(t *txn.Transaction, typ page.Type) (*pagepool.Ref, error) {
	metaRef, err := m.pool.GetPage(common.MetaPageID)
	if err != nil {
		return nil, err
	}
	meta, err := page.ReadMeta(metaRef.Page())
	if err != nil {
		metaRef.Release()
		return nil, err
	}

	old := meta
	var id common.PageID
	if meta.FirstFreePage != common.InvalidPageID {
		id = meta.FirstFreePage
		freeRef, err := m.pool.GetPage(id)
		if err != nil {
			metaRef.Release()
			return nil, err
		}
		next, err := page.ReadFree(freeRef.Page())
		freeRef.Release()
		if err != nil {
			metaRef.Release()
			return nil, err
		}
		meta.FirstFreePage = next
	} else {
		id = common.PageID(meta.MaxPageCount)
		meta.MaxPageCount++
	}

	lsn, err := m.txns.UpdateMetaLog(t, old, meta)
	if err != nil {
		metaRef.Release()
		return nil, err
	}
	if err := page.WriteMeta(metaRef.Page(), meta); err != nil {
		metaRef.Release()
		return nil, err
	}
	metaRef.Page().MarkDirty(lsn)
	metaRef.Release()

	allocLSN, err := m.txns.SystemAllocPageLog(t, id, byte(typ))
	if err != nil {
		return nil, err
	}
	newPage := page.New(id, typ)
	newPage.MarkDirty(allocLSN)
	// A page popped from the free list may still be cached as a free
	// page; ReplacePage installs the new image over it.
	return m.pool.ReplacePage(newPage)
}

// DestroyPage resets page to the free type, pushes it onto the head of
// the free list, and logs both effects (spec.md §4.C). The caller must
// release ref afterward as usual; DestroyPage does not release it.
func (m *Manager) DestroyPage(t *txn.Transaction, ref *pagepool.Ref) error {
	p := ref.Page()
	if p.Type == page.TypeMeta {
		return ErrInvalidPageType
	}
	oldType := byte(p.Type)

	metaRef, err := m.pool.GetPage(common.MetaPageID)
	if err != nil {
		return err
	}
	meta, err := page.ReadMeta(metaRef.Page())
	if err != nil {
		metaRef.Release()
		return err
	}
	old := meta

	destroyLSN, err := m.txns.SystemDestroyPageLog(t, p.PageID, oldType, meta.FirstFreePage)
	if err != nil {
		metaRef.Release()
		return err
	}
	p.Type = page.TypeFree
	if err := page.WriteFree(p, meta.FirstFreePage); err != nil {
		metaRef.Release()
		return err
	}
	p.MarkDirty(destroyLSN)

	meta.FirstFreePage = p.PageID
	metaLSN, err := m.txns.UpdateMetaLog(t, old, meta)
	if err != nil {
		metaRef.Release()
		return err
	}
	if err := page.WriteMeta(metaRef.Page(), meta); err != nil {
		metaRef.Release()
		return err
	}
	metaRef.Page().MarkDirty(metaLSN)
	metaRef.Release()
	return nil
}

// GetPage passes through to the pool. A pg.ErrChecksum result means the
// on-disk image is corrupt; the caller should invoke single-page
// recovery (pkg/recovery.RecoverPage) for id and retry, per spec.md §4.C.
func (m *Manager) GetPage(id common.PageID) (*pagepool.Ref, error) {
	return m.pool.GetPage(id)
}

// RootPage returns the B+-tree's current root page id, or
// common.InvalidPageID if the tree is empty.
func (m *Manager) RootPage() (common.PageID, error) {
	ref, err := m.pool.GetPage(common.MetaPageID)
	if err != nil {
		return 0, err
	}
	defer ref.Release()
	meta, err := page.ReadMeta(ref.Page())
	if err != nil {
		return 0, err
	}
	return meta.RootPage, nil
}

// SetRootPage logs and installs a new root page id, used when the tree
// grows a level (root split) or collapses (root merge).
func (m *Manager) SetRootPage(t *txn.Transaction, newRoot common.PageID) error {
	ref, err := m.pool.GetPage(common.MetaPageID)
	if err != nil {
		return err
	}
	defer ref.Release()
	meta, err := page.ReadMeta(ref.Page())
	if err != nil {
		return err
	}
	old := meta
	meta.RootPage = newRoot
	lsn, err := m.txns.UpdateMetaLog(t, old, meta)
	if err != nil {
		return err
	}
	if err := page.WriteMeta(ref.Page(), meta); err != nil {
		return err
	}
	ref.Page().MarkDirty(lsn)
	return nil
}
