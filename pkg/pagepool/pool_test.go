package pagepool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nainya/corekv/pkg/common"
	pg "github.com/nainya/corekv/pkg/page"
)

func openTestFile(t *testing.T) *os.File {
	t.Helper()
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func alwaysCommitted(lsn common.LSN) CommittedLSNFunc {
	return func() common.LSN { return lsn }
}

func TestInsertThenGetPageHits(t *testing.T) {
	f := openTestFile(t)
	pool := New(f, 4, alwaysCommitted(common.InfiniteLSN))

	page := pg.New(1, pg.TypeRow)
	ref, err := pool.Insert(page)
	if err != nil {
		t.Fatal(err)
	}
	ref.Release()

	ref2, err := pool.GetPage(1)
	if err != nil {
		t.Fatal(err)
	}
	if ref2.Page().PageID != 1 {
		t.Errorf("got page id %d, want 1", ref2.Page().PageID)
	}
	ref2.Release()
}

func TestGetPageMissReadsFromFile(t *testing.T) {
	f := openTestFile(t)
	pool := New(f, 4, alwaysCommitted(common.InfiniteLSN))

	page := pg.New(2, pg.TypeMeta)
	if err := pg.WriteMeta(page, pg.Meta{MaxPageCount: 9}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt(page.Encode(), int64(2)*pg.Size); err != nil {
		t.Fatal(err)
	}

	ref, err := pool.GetPage(2)
	if err != nil {
		t.Fatal(err)
	}
	m, err := pg.ReadMeta(ref.Page())
	if err != nil || m.MaxPageCount != 9 {
		t.Errorf("got %+v, err=%v", m, err)
	}
	ref.Release()
}

func TestEvictionWritesBackDirtyPages(t *testing.T) {
	f := openTestFile(t)
	pool := New(f, 1, alwaysCommitted(common.InfiniteLSN))

	p1 := pg.New(1, pg.TypeRow)
	p1.MarkDirty(5)
	ref1, err := pool.Insert(p1)
	if err != nil {
		t.Fatal(err)
	}
	ref1.Release()

	// Pool capacity is 1: fetching page 2 must evict page 1, writing it
	// back first since it was dirty.
	p2 := pg.New(2, pg.TypeRow)
	ref2, err := pool.Insert(p2)
	if err != nil {
		t.Fatal(err)
	}
	ref2.Release()

	ref1b, err := pool.GetPage(1)
	if err != nil {
		t.Fatal(err)
	}
	if ref1b.Page().Dirty() {
		t.Error("reloaded page should be clean, it was just written back")
	}
	ref1b.Release()
}

func TestEvictionFailsWhenAllPinned(t *testing.T) {
	f := openTestFile(t)
	pool := New(f, 1, alwaysCommitted(common.InfiniteLSN))

	p1 := pg.New(1, pg.TypeRow)
	ref1, err := pool.Insert(p1)
	if err != nil {
		t.Fatal(err)
	}
	defer ref1.Release()

	p2 := pg.New(2, pg.TypeRow)
	if _, err := pool.Insert(p2); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestWriteBackWaitsForWALRule(t *testing.T) {
	f := openTestFile(t)
	committed := common.LSN(0)
	pool := New(f, 1, func() common.LSN { return committed })

	p1 := pg.New(1, pg.TypeRow)
	p1.MarkDirty(100)
	ref1, err := pool.Insert(p1)
	if err != nil {
		t.Fatal(err)
	}
	ref1.Release()

	done := make(chan error, 1)
	go func() {
		p2 := pg.New(2, pg.TypeRow)
		_, err := pool.Insert(p2)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("eviction should not complete before committed_lsn reaches page_lsn")
	default:
	}

	committed = 100
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestDropAllPagesClearsUnpinned(t *testing.T) {
	f := openTestFile(t)
	pool := New(f, 4, alwaysCommitted(common.InfiniteLSN))

	ref, err := pool.Insert(pg.New(1, pg.TypeRow))
	if err != nil {
		t.Fatal(err)
	}
	ref.Release()

	if err := pool.DropAllPages(); err != nil {
		t.Fatal(err)
	}
	if len(pool.entries) != 0 {
		t.Errorf("expected empty pool after DropAllPages, got %d entries", len(pool.entries))
	}
}

func TestFlushForTestWritesBackWithoutEviction(t *testing.T) {
	f := openTestFile(t)
	pool := New(f, 4, alwaysCommitted(common.InfiniteLSN))

	page := pg.New(1, pg.TypeRow)
	page.MarkDirty(1)
	ref, err := pool.Insert(page)
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.FlushForTest(1); err != nil {
		t.Fatal(err)
	}
	if ref.Page().Dirty() {
		t.Error("expected page to be clean after FlushForTest")
	}
	ref.Release()
}
