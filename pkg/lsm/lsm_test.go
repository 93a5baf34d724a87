package lsm

import (
	"fmt"
	"testing"
	"time"
)

func TestWriteReadBeforeSync(t *testing.T) {
	tree, err := Open(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	if err := tree.Write([]byte("k1"), []byte("v1"), false); err != nil {
		t.Fatal(err)
	}
	got, err := tree.Read([]byte("k1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v1" {
		t.Fatalf("got %q, want v1", got)
	}
}

func TestSyncProducesSortedRunAndReadStillWorks(t *testing.T) {
	tree, err := Open(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	longKey := []byte("a-key-longer-than-twelve-bytes")
	longVal := []byte("a-value-longer-than-eight-bytes-too")

	if err := tree.Write([]byte("short"), []byte("v"), false); err != nil {
		t.Fatal(err)
	}
	if err := tree.Write(longKey, longVal, false); err != nil {
		t.Fatal(err)
	}
	if err := tree.Sync(); err != nil {
		t.Fatal(err)
	}

	if tree.runCount() != 1 {
		t.Fatalf("got %d runs, want 1", tree.runCount())
	}

	got, err := tree.Read([]byte("short"))
	if err != nil || string(got) != "v" {
		t.Fatalf("short: got (%q, %v)", got, err)
	}
	got, err = tree.Read(longKey)
	if err != nil || string(got) != string(longVal) {
		t.Fatalf("long: got (%q, %v)", got, err)
	}
}

func TestDeleteTombstoneShadowsOlderGeneration(t *testing.T) {
	tree, err := Open(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	if err := tree.Write([]byte("k"), []byte("v1"), false); err != nil {
		t.Fatal(err)
	}
	if err := tree.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := tree.Delete([]byte("k")); err != nil {
		t.Fatal(err)
	}
	if err := tree.Sync(); err != nil {
		t.Fatal(err)
	}

	if _, err := tree.Read([]byte("k")); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if tree.Contains([]byte("k")) {
		t.Fatal("expected Contains to report false for a tombstoned key")
	}
}

func TestMergeAllDropsTombstonesAndKeepsNewestGeneration(t *testing.T) {
	tree, err := Open(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	if err := tree.Write([]byte("a"), []byte("old"), false); err != nil {
		t.Fatal(err)
	}
	if err := tree.Write([]byte("b"), []byte("keep"), false); err != nil {
		t.Fatal(err)
	}
	if err := tree.Sync(); err != nil {
		t.Fatal(err)
	}

	if err := tree.Write([]byte("a"), []byte("new"), false); err != nil {
		t.Fatal(err)
	}
	if err := tree.Delete([]byte("b")); err != nil {
		t.Fatal(err)
	}
	if err := tree.Sync(); err != nil {
		t.Fatal(err)
	}

	if err := tree.MergeAll(); err != nil {
		t.Fatal(err)
	}
	if tree.runCount() != 1 {
		t.Fatalf("got %d runs after merge, want 1", tree.runCount())
	}

	got, err := tree.Read([]byte("a"))
	if err != nil || string(got) != "new" {
		t.Fatalf("a: got (%q, %v), want new", got, err)
	}
	if _, err := tree.Read([]byte("b")); err != ErrNotFound {
		t.Fatalf("b: got %v, want ErrNotFound", err)
	}
}

func TestGetViewIteratesNewestGenerationFirst(t *testing.T) {
	tree, err := Open(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	for i := 0; i < 3; i++ {
		if err := tree.Write([]byte(fmt.Sprintf("key%02d", i)), []byte("v0"), false); err != nil {
			t.Fatal(err)
		}
	}
	if err := tree.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := tree.Write([]byte("key01"), []byte("v1-newer"), false); err != nil {
		t.Fatal(err)
	}
	if err := tree.Sync(); err != nil {
		t.Fatal(err)
	}

	view := tree.GetView()
	it := view.NewIterator()

	var keys []string
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}
		keys = append(keys, string(k))
		if string(k) == "key01" && string(v) != "v1-newer" {
			t.Fatalf("key01: got %q, want v1-newer", v)
		}
	}
	want := []string{"key00", "key01", "key02"}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}
}

func TestBackgroundFlusherSyncsOnInterval(t *testing.T) {
	tree, err := Open(Config{Dir: t.TempDir(), FlushInterval: 5 * time.Millisecond, MergeInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	if err := tree.Write([]byte("k"), []byte("v"), false); err != nil {
		t.Fatal(err)
	}
	tree.Start()
	time.Sleep(30 * time.Millisecond)
	tree.Stop()

	if tree.runCount() == 0 {
		t.Fatal("expected background flusher to have produced at least one sorted run")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	tree, err := Open(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	tree.Start()
	tree.Start()
	tree.Stop()
	tree.Stop()
}
