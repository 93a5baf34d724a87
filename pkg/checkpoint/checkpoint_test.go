package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nainya/corekv/pkg/btree"
	"github.com/nainya/corekv/pkg/lock"
	"github.com/nainya/corekv/pkg/pagepool"
	"github.com/nainya/corekv/pkg/pagestore"
	"github.com/nainya/corekv/pkg/txn"
	"github.com/nainya/corekv/pkg/wal"
)

func newTestEnv(t *testing.T) (*wal.WAL, *pagepool.Pool, *txn.Manager, *pagestore.Manager, *btree.Tree) {
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

	pool := pagepool.New(f, 64, w.CommittedLSN)
	locks := lock.New()
	txns := txn.New(w, locks, pool)
	pm := pagestore.New(pool, txns)
	if err := pm.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	tree, err := btree.Open(pm, txns, btree.MetaRootSink(pm))
	if err != nil {
		t.Fatal(err)
	}
	return w, pool, txns, pm, tree
}

// TestCheckpointWhileTxnRunning covers spec.md's fuzzy checkpoint:
// taking a checkpoint while a transaction is still open must not
// disturb it, and normal operation continues uninterrupted afterward.
func TestCheckpointWhileTxnRunning(t *testing.T) {
	w, pool, txns, _, tree := newTestEnv(t)

	tx1, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert(tx1, []byte("k1"), []byte("v1")); err != nil {
		t.Fatal(err)
	}

	mgr := New(w, pool, txns, Config{})
	if err := mgr.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	if _, err := txns.Precommit(tx1); err != nil {
		t.Fatal(err)
	}
	if err := txns.CommitWait(tx1); err != nil {
		t.Fatal(err)
	}

	got, err := tree.Read([]byte("k1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v1" {
		t.Fatalf("got %q, want %q", got, "v1")
	}
}

func TestStartStopLifecycleIsIdempotent(t *testing.T) {
	w, pool, txns, _, _ := newTestEnv(t)

	mgr := New(w, pool, txns, Config{Interval: 5 * time.Millisecond})
	mgr.Start()
	mgr.Start() // second Start is a no-op, must not deadlock
	time.Sleep(20 * time.Millisecond)
	mgr.Stop()
	mgr.Stop() // second Stop is a no-op
}
