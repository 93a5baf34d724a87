package btree

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/lock"
	"github.com/nainya/corekv/pkg/pagepool"
	"github.com/nainya/corekv/pkg/pagestore"
	"github.com/nainya/corekv/pkg/txn"
	"github.com/nainya/corekv/pkg/wal"
)

func newTestTree(t *testing.T) (*Tree, *txn.Manager) {
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

	pool := pagepool.New(f, 64, func() common.LSN { return common.InfiniteLSN })
	locks := lock.New()
	txns := txn.New(w, locks, pool)

	pm := pagestore.New(pool, txns)
	if err := pm.Bootstrap(); err != nil {
		t.Fatal(err)
	}

	tree, err := Open(pm, txns, MetaRootSink(pm))
	if err != nil {
		t.Fatal(err)
	}
	return tree, txns
}

// TestInsertSplitReadIterate covers spec.md's S2 scenario: seven keys,
// each holding a 2000-byte value, inserted into an empty tree, then
// read back both by point lookup and by full forward/reverse scan.
func TestInsertSplitReadIterate(t *testing.T) {
	tree, txns := newTestTree(t)

	letters := []string{"a", "b", "c", "d", "e", "f", "g"}
	tx, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range letters {
		value := strings.Repeat(l, 2000)
		if err := tree.Insert(tx, []byte(l), []byte(value)); err != nil {
			t.Fatalf("insert %q: %v", l, err)
		}
	}
	if _, err := txns.Precommit(tx); err != nil {
		t.Fatal(err)
	}
	if err := txns.CommitWait(tx); err != nil {
		t.Fatal(err)
	}

	for _, l := range letters {
		got, err := tree.Read([]byte(l))
		if err != nil {
			t.Fatalf("read %q: %v", l, err)
		}
		want := strings.Repeat(l, 2000)
		if string(got) != want {
			t.Fatalf("read %q: got %d bytes, want %d", l, len(got), len(want))
		}
	}

	it, err := tree.Begin(nil, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	var forward []string
	for ; it.Valid(); it.Next() {
		forward = append(forward, string(it.Key()))
	}
	if got, want := strings.Join(forward, ","), "a,b,c,d,e,f,g"; got != want {
		t.Fatalf("forward iteration: got %q, want %q", got, want)
	}

	rit, err := tree.Begin(nil, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	var backward []string
	for ; rit.Valid(); rit.Prev() {
		backward = append(backward, string(rit.Key()))
	}
	if got, want := strings.Join(backward, ","), "g,f,e,d,c,b,a"; got != want {
		t.Fatalf("reverse iteration: got %q, want %q", got, want)
	}
}

func TestInsertDuplicateKeyRejected(t *testing.T) {
	tree, txns := newTestTree(t)
	tx, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert(tx, []byte("k"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert(tx, []byte("k"), []byte("v2")); err != ErrDuplicateKey {
		t.Fatalf("got %v, want ErrDuplicateKey", err)
	}
}

func TestReadMissingKeyNotFound(t *testing.T) {
	tree, txns := newTestTree(t)
	tx, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert(tx, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.Read([]byte("missing")); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestUpdateReplacesValue(t *testing.T) {
	tree, txns := newTestTree(t)
	tx, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert(tx, []byte("x"), []byte("orig")); err != nil {
		t.Fatal(err)
	}
	if err := tree.Update(tx, []byte("x"), []byte("new")); err != nil {
		t.Fatal(err)
	}
	got, err := tree.Read([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("new")) {
		t.Fatalf("got %q, want %q", got, "new")
	}
}

// TestAbortUndoesUpdate covers spec.md's S4 scenario.
func TestAbortUndoesUpdate(t *testing.T) {
	tree, txns := newTestTree(t)

	tx1, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert(tx1, []byte("x"), []byte("orig")); err != nil {
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
	if err := tree.Update(tx2, []byte("x"), []byte("new")); err != nil {
		t.Fatal(err)
	}
	if err := txns.Abort(tx2); err != nil {
		t.Fatal(err)
	}

	got, err := tree.Read([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("orig")) {
		t.Fatalf("got %q, want %q after abort", got, "orig")
	}
	if len(txns.Active()) != 0 {
		t.Fatalf("expected no active transactions after abort, got %d", len(txns.Active()))
	}
}

func TestDeleteThenReadNotFound(t *testing.T) {
	tree, txns := newTestTree(t)
	tx, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert(tx, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := tree.Delete(tx, []byte("k")); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.Read([]byte("k")); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

// TestManyInsertsForceSplitsAndRootGrowth exercises the foster-parent
// split path directly: enough 2000-byte-valued keys to overflow a
// single leaf several times over, forcing at least one root growth
// (pkg/btree/split.go's growRoot).
func TestManyInsertsForceSplitsAndRootGrowth(t *testing.T) {
	tree, txns := newTestTree(t)
	tx, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}

	var keys []string
	for i := 0; i < 200; i++ {
		keys = append(keys, keyFor(i))
	}
	for _, k := range keys {
		if err := tree.Insert(tx, []byte(k), []byte(strings.Repeat(k[:1], 2000))); err != nil {
			t.Fatalf("insert %q: %v", k, err)
		}
	}
	if _, err := txns.Precommit(tx); err != nil {
		t.Fatal(err)
	}
	if err := txns.CommitWait(tx); err != nil {
		t.Fatal(err)
	}

	for _, k := range keys {
		got, err := tree.Read([]byte(k))
		if err != nil {
			t.Fatalf("read %q: %v", k, err)
		}
		if len(got) != 2000 {
			t.Fatalf("read %q: got %d bytes, want 2000", k, len(got))
		}
	}

	it, err := tree.Begin(nil, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	var prev []byte
	for ; it.Valid(); it.Next() {
		if prev != nil && bytes.Compare(prev, it.Key()) >= 0 {
			t.Fatalf("forward iteration out of order: %q then %q", prev, it.Key())
		}
		prev = append([]byte(nil), it.Key()...)
		count++
	}
	if count != len(keys) {
		t.Fatalf("forward iteration yielded %d entries, want %d", count, len(keys))
	}
}

func keyFor(i int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	return string(alphabet[i/26%26]) + string(alphabet[i%26]) + string(rune('0'+i%10))
}

func TestDeleteMissingKeyNotFound(t *testing.T) {
	tree, txns := newTestTree(t)
	tx, err := txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Delete(tx, []byte("missing")); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
