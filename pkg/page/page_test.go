package page

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := New(3, TypeRow)
	p.PageLSN = 77
	if _, err := InsertRow(p, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	data := p.Encode()
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PageID != p.PageID || got.PageLSN != p.PageLSN || got.Type != p.Type {
		t.Errorf("header mismatch: %+v", got)
	}
	row, err := ReadRow(got, 0)
	if err != nil || string(row) != "hello" {
		t.Errorf("row mismatch: %q, err=%v", row, err)
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	p := New(1, TypeMeta)
	data := p.Encode()
	data[headerSize] ^= 0xFF
	if _, err := Decode(data); err != ErrChecksum {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
}

func TestMarkDirtySetsRecoveryLSNOnce(t *testing.T) {
	p := New(1, TypeRow)
	if p.Dirty() {
		t.Fatal("new page should be clean")
	}
	p.MarkDirty(10)
	if p.RecoveryLSN != 10 || p.PageLSN != 10 {
		t.Fatalf("got recovery_lsn=%d page_lsn=%d", p.RecoveryLSN, p.PageLSN)
	}
	p.MarkDirty(20)
	if p.RecoveryLSN != 10 {
		t.Errorf("recovery_lsn should stay at first dirty LSN, got %d", p.RecoveryLSN)
	}
	if p.PageLSN != 20 {
		t.Errorf("page_lsn should advance to 20, got %d", p.PageLSN)
	}
	p.MarkClean()
	if p.Dirty() {
		t.Error("page should be clean after MarkClean")
	}
}

func TestMetaRoundTrip(t *testing.T) {
	p := New(0, TypeMeta)
	if err := WriteMeta(p, Meta{MaxPageCount: 5, FirstFreePage: 3}); err != nil {
		t.Fatal(err)
	}
	m, err := ReadMeta(p)
	if err != nil {
		t.Fatal(err)
	}
	if m.MaxPageCount != 5 || m.FirstFreePage != 3 {
		t.Errorf("got %+v", m)
	}
}
