package page

import (
	"bytes"
	"testing"

	"github.com/nainya/corekv/pkg/common"
)

func TestLeafInsertOrderedAndRead(t *testing.T) {
	p := New(1, TypeLeaf)

	if err := InsertLeafEntry(p, 0, []byte("b"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := InsertLeafEntry(p, 0, []byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := InsertLeafEntry(p, 2, []byte("c"), []byte("3")); err != nil {
		t.Fatal(err)
	}

	count, _ := KeyCount(p)
	if count != 3 {
		t.Fatalf("key count = %d, want 3", count)
	}
	for i, want := range []string{"a", "b", "c"} {
		k, err := Key(p, uint16(i))
		if err != nil || string(k) != want {
			t.Errorf("key %d = %q, err=%v, want %q", i, k, err, want)
		}
		v, err := Value(p, uint16(i))
		if err != nil {
			t.Fatal(err)
		}
		_ = v
	}
}

func TestLeafDeleteEntryShifts(t *testing.T) {
	p := New(1, TypeLeaf)
	for _, k := range []string{"a", "b", "c"} {
		if err := InsertLeafEntry(p, mustCount(p), []byte(k), []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	if err := DeleteEntry(p, 1); err != nil {
		t.Fatal(err)
	}
	k0, _ := Key(p, 0)
	k1, _ := Key(p, 1)
	if string(k0) != "a" || string(k1) != "c" {
		t.Errorf("got %q, %q, want a, c", k0, k1)
	}
}

func mustCount(p *Page) uint16 {
	c, err := KeyCount(p)
	if err != nil {
		panic(err)
	}
	return c
}

func TestBranchChildPointers(t *testing.T) {
	p := New(1, TypeBranch)
	if err := SetLowestPage(p, 10); err != nil {
		t.Fatal(err)
	}
	if err := InsertBranchEntry(p, 0, []byte("m"), 20); err != nil {
		t.Fatal(err)
	}
	lowest, err := LowestPage(p)
	if err != nil || lowest != 10 {
		t.Errorf("lowest = %d, err=%v, want 10", lowest, err)
	}
	child, err := ChildPageID(p, 0)
	if err != nil || child != 20 {
		t.Errorf("child = %d, err=%v, want 20", child, err)
	}
}

func TestFencesDefaultToInfinity(t *testing.T) {
	p := New(1, TypeLeaf)
	_, ok, err := LowFence(p)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected low fence to default to -infinity")
	}
	_, ok, err = HighFence(p)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected high fence to default to +infinity")
	}
}

func TestSetFences(t *testing.T) {
	p := New(1, TypeLeaf)
	if err := SetLowFence(p, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := SetHighFence(p, []byte("z")); err != nil {
		t.Fatal(err)
	}
	low, ok, err := LowFence(p)
	if err != nil || !ok || string(low) != "a" {
		t.Errorf("low = %q, ok=%v, err=%v", low, ok, err)
	}
	high, ok, err := HighFence(p)
	if err != nil || !ok || string(high) != "z" {
		t.Errorf("high = %q, ok=%v, err=%v", high, ok, err)
	}
}

func TestFosterPointer(t *testing.T) {
	p := New(1, TypeLeaf)
	if _, _, ok, err := Foster(p); err != nil || ok {
		t.Fatalf("expected no foster initially, ok=%v err=%v", ok, err)
	}
	if err := SetFoster(p, []byte("m"), common.PageID(99)); err != nil {
		t.Fatal(err)
	}
	key, child, ok, err := Foster(p)
	if err != nil || !ok || string(key) != "m" || child != 99 {
		t.Errorf("got key=%q child=%d ok=%v err=%v", key, child, ok, err)
	}
	if err := ClearFoster(p); err != nil {
		t.Fatal(err)
	}
	if _, _, ok, err := Foster(p); err != nil || ok {
		t.Fatalf("expected foster cleared, ok=%v err=%v", ok, err)
	}
}

func TestCompactNodeReclaimsSpace(t *testing.T) {
	p := New(1, TypeLeaf)
	big := bytes.Repeat([]byte("v"), maxRowSize-16)

	if err := InsertLeafEntry(p, 0, []byte("a"), big); err != nil {
		t.Fatal(err)
	}
	if err := InsertLeafEntry(p, 1, []byte("b"), big); err != nil {
		t.Fatal(err)
	}
	for i, k := range []string{"c", "d", "e", "f"} {
		if err := InsertLeafEntry(p, uint16(2+i), []byte(k), big); err != nil {
			t.Fatal(err)
		}
	}
	if err := DeleteEntry(p, 0); err != nil {
		t.Fatal(err)
	}
	// Six entries leave less contiguous room than a seventh needs; the
	// space DeleteEntry freed makes room once the page is compacted.
	if err := InsertLeafEntry(p, 5, []byte("g"), big); err != nil {
		t.Fatalf("expected insert to succeed via automatic compaction, got %v", err)
	}
}
