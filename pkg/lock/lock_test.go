package lock

import (
	"testing"

	"github.com/nainya/corekv/pkg/common"
)

func pos(page common.PageID, slot uint16) common.RowPosition {
	return common.RowPosition{PageID: page, Slot: slot}
}

func TestSharedLocksCoexist(t *testing.T) {
	m := New()
	p := pos(1, 0)
	if err := m.GetShared(1, p); err != nil {
		t.Fatal(err)
	}
	if err := m.GetShared(2, p); err != nil {
		t.Fatalf("second shared holder should succeed, got %v", err)
	}
}

func TestExclusiveBlocksShared(t *testing.T) {
	m := New()
	p := pos(1, 0)
	if err := m.GetExclusive(1, p); err != nil {
		t.Fatal(err)
	}
	if err := m.GetShared(2, p); err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
}

func TestSharedBlocksExclusive(t *testing.T) {
	m := New()
	p := pos(1, 0)
	if err := m.GetShared(1, p); err != nil {
		t.Fatal(err)
	}
	if err := m.GetExclusive(2, p); err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
	// The sole holder may still take exclusive on its own shared lock.
	if err := m.GetExclusive(1, p); err != nil {
		t.Fatalf("holder should be able to also acquire exclusive, got %v", err)
	}
}

func TestTryUpgradeSucceedsWhenSoleHolder(t *testing.T) {
	m := New()
	p := pos(1, 0)
	if err := m.GetShared(1, p); err != nil {
		t.Fatal(err)
	}
	if err := m.TryUpgrade(1, p); err != nil {
		t.Fatalf("expected upgrade to succeed, got %v", err)
	}
	if err := m.GetShared(2, p); err != ErrWouldBlock {
		t.Fatalf("expected exclusive to now block other shared, got %v", err)
	}
}

func TestTryUpgradeFailsWithOtherSharedHolders(t *testing.T) {
	m := New()
	p := pos(1, 0)
	if err := m.GetShared(1, p); err != nil {
		t.Fatal(err)
	}
	if err := m.GetShared(2, p); err != nil {
		t.Fatal(err)
	}
	if err := m.TryUpgrade(1, p); err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
	// txn 1's shared lock must still be held after a failed upgrade.
	if err := m.GetExclusive(3, p); err != ErrWouldBlock {
		t.Fatalf("txn 1's shared lock should survive a failed upgrade, got %v", err)
	}
}

func TestReleaseAllDropsEverything(t *testing.T) {
	m := New()
	p1, p2 := pos(1, 0), pos(2, 0)
	if err := m.GetShared(1, p1); err != nil {
		t.Fatal(err)
	}
	if err := m.GetExclusive(1, p2); err != nil {
		t.Fatal(err)
	}
	m.ReleaseAll(1)
	if err := m.GetExclusive(2, p1); err != nil {
		t.Fatalf("expected p1 free after ReleaseAll, got %v", err)
	}
	if err := m.GetExclusive(3, p2); err != nil {
		t.Fatalf("expected p2 free after ReleaseAll, got %v", err)
	}
}
