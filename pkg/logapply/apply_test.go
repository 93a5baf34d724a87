package logapply

import (
	"testing"

	"github.com/nainya/corekv/pkg/page"
	"github.com/nainya/corekv/pkg/walrec"
)

func TestRedoUndoInsertRow(t *testing.T) {
	p := page.New(1, page.TypeRow)
	rec := &walrec.Record{Kind: walrec.KindInsertRow, Redo: []byte("hello")}

	if err := Redo(p, rec); err != nil {
		t.Fatal(err)
	}
	rec.Slot = 0
	got, err := page.ReadRow(p, 0)
	if err != nil || string(got) != "hello" {
		t.Fatalf("got %q, err=%v", got, err)
	}

	if err := Undo(p, rec); err != nil {
		t.Fatal(err)
	}
	if _, err := page.ReadRow(p, 0); err != page.ErrSlotEmpty {
		t.Fatalf("expected tombstoned after undo, got %v", err)
	}
}

func TestRedoUndoDeleteRow(t *testing.T) {
	p := page.New(1, page.TypeRow)
	slot, err := page.InsertRow(p, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}

	rec := &walrec.Record{Kind: walrec.KindDeleteRow, Slot: slot, Undo: []byte("x")}
	if err := Redo(p, rec); err != nil {
		t.Fatal(err)
	}
	if _, err := page.ReadRow(p, slot); err != page.ErrSlotEmpty {
		t.Fatalf("expected tombstoned after redo, got %v", err)
	}

	if err := Undo(p, rec); err != nil {
		t.Fatal(err)
	}
	got, err := page.ReadRow(p, slot)
	if err != nil || string(got) != "x" {
		t.Fatalf("got %q, err=%v", got, err)
	}
}

func TestRedoUndoInsertLeaf(t *testing.T) {
	p := page.New(1, page.TypeLeaf)
	rec := &walrec.Record{Kind: walrec.KindInsertLeaf, Slot: 0, Key: []byte("k"), Redo: []byte("v")}

	if err := Redo(p, rec); err != nil {
		t.Fatal(err)
	}
	v, err := page.Value(p, 0)
	if err != nil || string(v) != "v" {
		t.Fatalf("got %q, err=%v", v, err)
	}

	if err := Undo(p, rec); err != nil {
		t.Fatal(err)
	}
	if count, _ := page.KeyCount(p); count != 0 {
		t.Errorf("expected empty leaf after undo, got %d entries", count)
	}
}

func TestRedoSetFosterAndClear(t *testing.T) {
	p := page.New(1, page.TypeLeaf)
	rec := &walrec.Record{Kind: walrec.KindSetFoster, Redo: EncodeFoster([]byte("m"), 42)}
	if err := Redo(p, rec); err != nil {
		t.Fatal(err)
	}
	key, child, ok, err := page.Foster(p)
	if err != nil || !ok || string(key) != "m" || child != 42 {
		t.Fatalf("got key=%q child=%d ok=%v err=%v", key, child, ok, err)
	}

	rec.Undo = nil // empty = absent
	if err := Undo(p, rec); err != nil {
		t.Fatal(err)
	}
	if _, _, ok, _ := page.Foster(p); ok {
		t.Error("expected foster cleared after undo")
	}
}
