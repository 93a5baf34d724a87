package walrec

import (
	"bytes"
	"testing"

	"github.com/nainya/corekv/pkg/common"
)

func TestRecordEncodeDecode(t *testing.T) {
	r := &Record{
		PrevLSN: 100,
		TxnID:   7,
		Kind:    KindInsertLeaf,
		PageID:  42,
		Slot:    3,
		Key:     []byte("k"),
		Undo:    []byte("undo-bytes"),
		Redo:    []byte("redo-bytes"),
		Aux:     []byte("aux"),
	}
	data := r.Encode()
	got, err := Decode(data, common.LSN(1234))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.LSN != 1234 {
		t.Errorf("LSN = %d, want 1234", got.LSN)
	}
	if got.PrevLSN != r.PrevLSN || got.TxnID != r.TxnID || got.Kind != r.Kind ||
		got.PageID != r.PageID || got.Slot != r.Slot {
		t.Errorf("header mismatch: %+v", got)
	}
	if !bytes.Equal(got.Key, r.Key) || !bytes.Equal(got.Undo, r.Undo) ||
		!bytes.Equal(got.Redo, r.Redo) || !bytes.Equal(got.Aux, r.Aux) {
		t.Errorf("payload mismatch: %+v", got)
	}
}

func TestRecordDecodeCorrupted(t *testing.T) {
	r := &Record{Kind: KindCommit, TxnID: 1}
	data := r.Encode()
	data[len(data)-1] ^= 0xFF
	if _, err := Decode(data, 0); err != ErrCorrupted {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

func TestRecordDecodeTruncated(t *testing.T) {
	r := &Record{Kind: KindCommit, TxnID: 1, Key: []byte("xyz")}
	data := r.Encode()
	if _, err := Decode(data[:len(data)-2], 0); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestIsCompensation(t *testing.T) {
	if !KindCompensateInsertLeaf.IsCompensation() {
		t.Error("expected CLR kind to report IsCompensation")
	}
	if KindInsertLeaf.IsCompensation() {
		t.Error("plain insert should not report IsCompensation")
	}
}

func TestCheckpointSnapshotRoundTrip(t *testing.T) {
	dpt := []DirtyPageEntry{{PageID: 1, RecoveryLSN: 10}, {PageID: 2, RecoveryLSN: 20}}
	att := []ActiveTxnEntry{{TxnID: 5, Status: 0, PrevLSN: 15}}

	data := EncodeCheckpointSnapshot(dpt, att)
	gotDPT, gotATT, err := DecodeCheckpointSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(gotDPT) != len(dpt) || len(gotATT) != len(att) {
		t.Fatalf("length mismatch: dpt=%d att=%d", len(gotDPT), len(gotATT))
	}
	for i := range dpt {
		if gotDPT[i] != dpt[i] {
			t.Errorf("dpt[%d] = %+v, want %+v", i, gotDPT[i], dpt[i])
		}
	}
	for i := range att {
		if gotATT[i] != att[i] {
			t.Errorf("att[%d] = %+v, want %+v", i, gotATT[i], att[i])
		}
	}
}
