package wal

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/walrec"
)

func openTestWAL(t *testing.T, cfg Config) *WAL {
	t.Helper()
	dir, err := os.MkdirTemp("", "corekv-wal-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	cfg.Dir = dir
	w, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Finish() })
	return w
}

func waitUntilCommitted(t *testing.T, w *WAL, lsn uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if uint64(w.CommittedLSN()) >= lsn {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for committed LSN >= %d (have %d)", lsn, w.CommittedLSN())
}

func TestAppendAssignsIncreasingByteOffsetLSNs(t *testing.T) {
	w := openTestWAL(t, Config{})

	var lsns []uint64
	for i := 0; i < 50; i++ {
		rec := &walrec.Record{Kind: walrec.KindInsertRow, TxnID: 1, Key: []byte(fmt.Sprintf("k%d", i))}
		lsn, err := w.Append(rec.Encode())
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 && uint64(lsn) <= lsns[i-1] {
			t.Fatalf("LSN did not increase: prev=%d cur=%d", lsns[i-1], lsn)
		}
		lsns = append(lsns, uint64(lsn))
	}
}

func TestAppendThenReadBack(t *testing.T) {
	w := openTestWAL(t, Config{})

	var lastLSN uint64
	for i := 0; i < 20; i++ {
		rec := &walrec.Record{Kind: walrec.KindInsertRow, TxnID: common.TxnID(uint64(i) % 3), PageID: 7, Key: []byte(fmt.Sprintf("key-%d", i))}
		lsn, err := w.Append(rec.Encode())
		if err != nil {
			t.Fatal(err)
		}
		lastLSN = uint64(lsn)
	}
	waitUntilCommitted(t, w, lastLSN+1)

	recs, err := ReadAll(w)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 20 {
		t.Fatalf("expected 20 records, got %d", len(recs))
	}
	for i, r := range recs {
		want := fmt.Sprintf("key-%d", i)
		if string(r.Key) != want {
			t.Errorf("record %d: key = %q, want %q", i, r.Key, want)
		}
	}
}

func TestSegmentRotation(t *testing.T) {
	w := openTestWAL(t, Config{MaxSegmentSize: 4096})

	large := make([]byte, 1024)
	var lastLSN uint64
	for i := 0; i < 64; i++ {
		rec := &walrec.Record{Kind: walrec.KindInsertRow, TxnID: 1, Redo: large}
		lsn, err := w.Append(rec.Encode())
		if err != nil {
			t.Fatal(err)
		}
		lastLSN = uint64(lsn)
	}
	waitUntilCommitted(t, w, lastLSN+1)

	segs, err := w.Segments()
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) < 2 {
		t.Fatalf("expected rotation to produce multiple segments, got %d", len(segs))
	}

	recs, err := ReadAll(w)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 64 {
		t.Fatalf("expected 64 records across segments, got %d", len(recs))
	}
}

func TestReopenResumesLSNSequence(t *testing.T) {
	dir, err := os.MkdirTemp("", "corekv-wal-reopen-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	w, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	var lastLSN uint64
	for i := 0; i < 10; i++ {
		rec := &walrec.Record{Kind: walrec.KindInsertRow, TxnID: 1, Key: []byte("a")}
		lsn, err := w.Append(rec.Encode())
		if err != nil {
			t.Fatal(err)
		}
		lastLSN = uint64(lsn)
	}
	waitUntilCommitted(t, w, lastLSN+1)
	nextExpected := w.NextLSNHint()
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	w2, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Finish()
	if w2.NextLSNHint() != nextExpected {
		t.Errorf("NextLSNHint after reopen = %d, want %d", w2.NextLSNHint(), nextExpected)
	}

	rec := &walrec.Record{Kind: walrec.KindCommit, TxnID: 1}
	lsn, err := w2.Append(rec.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if lsn != nextExpected {
		t.Errorf("first LSN after reopen = %d, want %d", lsn, nextExpected)
	}
}

func TestReaderSkipsCorruptedTail(t *testing.T) {
	dir, err := os.MkdirTemp("", "corekv-wal-corrupt-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	w, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	var lastLSN uint64
	for i := 0; i < 5; i++ {
		rec := &walrec.Record{Kind: walrec.KindInsertRow, TxnID: 1, Key: []byte(fmt.Sprintf("k%d", i))}
		lsn, err := w.Append(rec.Encode())
		if err != nil {
			t.Fatal(err)
		}
		lastLSN = uint64(lsn)
	}
	waitUntilCommitted(t, w, lastLSN+1)
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	segs, err := listSegments(dir)
	if err != nil || len(segs) == 0 {
		t.Fatalf("no segments: %v", err)
	}
	fd, err := os.OpenFile(segs[0].path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt a byte partway through, leaving the first record intact.
	if _, err := fd.WriteAt([]byte{0xFF}, 90); err != nil {
		t.Fatal(err)
	}
	fd.Close()

	w2, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Finish()

	recs, err := ReadAll(w2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) == 0 {
		t.Fatal("expected at least the first record to survive corruption")
	}
	if string(recs[0].Key) != "k0" {
		t.Errorf("first surviving record key = %q, want k0", recs[0].Key)
	}
}
