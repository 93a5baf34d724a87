package vmcache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func makeTestFile(t *testing.T, blocks, blockSize int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob.dat")
	buf := make([]byte, blocks*blockSize)
	for i := range buf {
		buf[i] = byte(i / blockSize)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadReturnsFaultedBlockContents(t *testing.T) {
	path := makeTestFile(t, 8, 64)
	c, err := Open(Config{Path: path, BlockSize: 64, SmallCapBlocks: 4, MainCapBlocks: 4, GhostCapBlocks: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	block, err := c.Read(3)
	if err != nil {
		t.Fatal(err)
	}
	want := bytes.Repeat([]byte{3}, 64)
	if !bytes.Equal(block, want) {
		t.Fatalf("got %v, want %v", block, want)
	}
}

func TestReadAtSpansBlockBoundary(t *testing.T) {
	path := makeTestFile(t, 4, 16)
	c, err := Open(Config{Path: path, BlockSize: 16, SmallCapBlocks: 4, MainCapBlocks: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	got, err := c.ReadAt(10, 12) // spans block 0 into block 1
	if err != nil {
		t.Fatal(err)
	}
	want := append(bytes.Repeat([]byte{0}, 6), bytes.Repeat([]byte{1}, 6)...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReadFrameMatchesBlobFraming(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.dat")
	// One frame: len=5 (big-endian u32) + "hello".
	payload := []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Open(Config{Path: path, BlockSize: 16})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	got, err := c.ReadFrame(0)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestSmallQueueOverflowEvictsToGhost(t *testing.T) {
	path := makeTestFile(t, 8, 16)
	c, err := Open(Config{Path: path, BlockSize: 16, SmallCapBlocks: 2, MainCapBlocks: 2, GhostCapBlocks: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	for i := uint64(0); i < 3; i++ {
		if _, err := c.Read(i); err != nil {
			t.Fatal(err)
		}
	}

	// Block 0 should have been popped out of small (capacity 2) and,
	// since it was read only once (not accessed again), marked then
	// evicted into the ghost queue rather than promoted to main.
	if c.cells[0].load() != stateEvicted {
		t.Fatalf("block 0 state = %v, want evicted", c.cells[0].load())
	}
	if !c.ghost.contains(0) {
		t.Fatal("expected block 0 in ghost queue after small overflow")
	}
}

func TestGhostHitPromotesStraightToMain(t *testing.T) {
	path := makeTestFile(t, 8, 16)
	c, err := Open(Config{Path: path, BlockSize: 16, SmallCapBlocks: 2, MainCapBlocks: 4, GhostCapBlocks: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	for i := uint64(0); i < 3; i++ {
		if _, err := c.Read(i); err != nil {
			t.Fatal(err)
		}
	}
	if !c.ghost.contains(0) {
		t.Fatal("expected block 0 evicted into ghost before re-read")
	}

	if _, err := c.Read(0); err != nil {
		t.Fatal(err)
	}
	if c.ghost.contains(0) {
		t.Fatal("expected ghost entry consumed on re-fault")
	}
	found := false
	for _, idx := range c.main.items {
		if idx == 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected block 0 promoted straight to main on ghost hit")
	}
}

func TestRepeatedAccessPromotesFromSmallToMain(t *testing.T) {
	path := makeTestFile(t, 8, 16)
	c, err := Open(Config{Path: path, BlockSize: 16, SmallCapBlocks: 2, MainCapBlocks: 4, GhostCapBlocks: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Read(0); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Read(0); err != nil { // second access sets the accessed bit
		t.Fatal(err)
	}
	if _, err := c.Read(1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Read(2); err != nil { // overflows small (cap 2), pops block 0
		t.Fatal(err)
	}

	found := false
	for _, idx := range c.main.items {
		if idx == 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected repeatedly-accessed block 0 promoted to main instead of evicted")
	}
}
