package pagestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/lock"
	"github.com/nainya/corekv/pkg/page"
	"github.com/nainya/corekv/pkg/pagepool"
	"github.com/nainya/corekv/pkg/txn"
	"github.com/nainya/corekv/pkg/wal"
)

func newTestManager(t *testing.T) (*Manager, *txn.Manager) {
	t.Helper()
	dir := t.TempDir()
	w, err := wal.Open(wal.Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Finish() })

	f, err := os.Create(filepath.Join(dir, "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })

	pool := pagepool.New(f, 8, func() common.LSN { return common.InfiniteLSN })
	locks := lock.New()
	txns := txn.New(w, locks, pool)

	pm := New(pool, txns)
	if err := pm.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	return pm, txns
}

func TestBootstrapCreatesMetaPage(t *testing.T) {
	pm, _ := newTestManager(t)
	ref, err := pm.GetPage(common.MetaPageID)
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Release()
	meta, err := page.ReadMeta(ref.Page())
	if err != nil {
		t.Fatal(err)
	}
	if meta.MaxPageCount != 1 || meta.FirstFreePage != common.InvalidPageID {
		t.Fatalf("unexpected initial meta: %+v", meta)
	}
}

func TestAllocateNewPageBumpsWatermark(t *testing.T) {
	pm, txns := newTestManager(t)
	tx, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}

	ref, err := pm.AllocateNewPage(tx, page.TypeRow)
	if err != nil {
		t.Fatal(err)
	}
	if ref.Page().PageID != 1 {
		t.Fatalf("got page id %d, want 1", ref.Page().PageID)
	}
	if ref.Page().Type != page.TypeRow {
		t.Fatalf("got type %v, want row", ref.Page().Type)
	}
	ref.Release()

	metaRef, err := pm.GetPage(common.MetaPageID)
	if err != nil {
		t.Fatal(err)
	}
	meta, err := page.ReadMeta(metaRef.Page())
	metaRef.Release()
	if err != nil {
		t.Fatal(err)
	}
	if meta.MaxPageCount != 2 {
		t.Fatalf("got max page count %d, want 2", meta.MaxPageCount)
	}
}

func TestDestroyThenAllocateReusesFreeListHead(t *testing.T) {
	pm, txns := newTestManager(t)
	tx, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}

	ref, err := pm.AllocateNewPage(tx, page.TypeRow)
	if err != nil {
		t.Fatal(err)
	}
	destroyed := ref.Page().PageID
	if err := pm.DestroyPage(tx, ref); err != nil {
		t.Fatal(err)
	}
	ref.Release()

	ref2, err := pm.AllocateNewPage(tx, page.TypeLeaf)
	if err != nil {
		t.Fatal(err)
	}
	defer ref2.Release()
	if ref2.Page().PageID != destroyed {
		t.Fatalf("got page id %d, want reused id %d", ref2.Page().PageID, destroyed)
	}
	if ref2.Page().Type != page.TypeLeaf {
		t.Fatalf("got type %v, want leaf", ref2.Page().Type)
	}
}

func TestDestroyMetaPageRejected(t *testing.T) {
	pm, txns := newTestManager(t)
	tx, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	ref, err := pm.GetPage(common.MetaPageID)
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Release()
	if err := pm.DestroyPage(tx, ref); err != ErrInvalidPageType {
		t.Fatalf("got %v, want ErrInvalidPageType", err)
	}
}
