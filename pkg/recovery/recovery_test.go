package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nainya/corekv/pkg/btree"
	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/lock"
	"github.com/nainya/corekv/pkg/pagepool"
	"github.com/nainya/corekv/pkg/pagestore"
	"github.com/nainya/corekv/pkg/txn"
	"github.com/nainya/corekv/pkg/wal"
)

// TestRecoverRedoesCommittedAndUndoesLoser simulates a crash: one
// transaction committed before the crash, a second was left running.
// A fresh process (new WAL, pool, and transaction manager over the
// same files) must, after running recovery, see the first
// transaction's write and not the second's.
func TestRecoverRedoesCommittedAndUndoesLoser(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data.db")

	w, err := wal.Open(wal.Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(dbPath)
	if err != nil {
		t.Fatal(err)
	}

	pool := pagepool.New(f, 64, w.CommittedLSN)
	locks := lock.New()
	txns := txn.New(w, locks, pool)
	pm := pagestore.New(pool, txns)
	if err := pm.Bootstrap(); err != nil {
		t.Fatal(err)
	}

	// Bootstrap's meta page reaches disk once, outside the WAL, before
	// any transaction runs against it.
	metaRef, err := pm.GetPage(common.MetaPageID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt(metaRef.Page().Encode(), 0); err != nil {
		t.Fatal(err)
	}
	metaRef.Release()

	tree, err := btree.Open(pm, txns, btree.MetaRootSink(pm))
	if err != nil {
		t.Fatal(err)
	}

	tx1, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert(tx1, []byte("committed"), []byte("value1")); err != nil {
		t.Fatal(err)
	}
	if _, err := txns.Precommit(tx1); err != nil {
		t.Fatal(err)
	}
	if err := txns.CommitWait(tx1); err != nil {
		t.Fatal(err)
	}

	tx2, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert(tx2, []byte("loser"), []byte("value2")); err != nil {
		t.Fatal(err)
	}

	// Crash: tx2 is never committed or aborted, and no dirty page is
	// ever written back to the data file. Only the WAL survives.
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	w2, err := wal.Open(wal.Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w2.Finish() })

	f2, err := os.OpenFile(dbPath, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f2.Close() })

	pool2 := pagepool.New(f2, 64, w2.CommittedLSN)
	locks2 := lock.New()
	txns2 := txn.New(w2, locks2, pool2)
	pm2 := pagestore.New(pool2, txns2)

	rec := New(w2, pool2, txns2)
	if err := rec.Run(); err != nil {
		t.Fatal(err)
	}

	if got := len(txns2.Active()); got != 0 {
		t.Fatalf("expected no active transactions after recovery, got %d", got)
	}

	tree2, err := btree.Open(pm2, txns2, btree.MetaRootSink(pm2))
	if err != nil {
		t.Fatal(err)
	}

	got, err := tree2.Read([]byte("committed"))
	if err != nil {
		t.Fatalf("read committed key after recovery: %v", err)
	}
	if string(got) != "value1" {
		t.Fatalf("got %q, want %q", got, "value1")
	}

	if _, err := tree2.Read([]byte("loser")); err != btree.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound for the undone loser's key", err)
	}
}
