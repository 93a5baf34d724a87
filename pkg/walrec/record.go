// Package walrec defines the write-ahead log's record vocabulary: a
// tagged sum type with a common header and per-kind payloads, following
// spec.md §3's "Log record" data model and §9's guidance to model
// record polymorphism as a tagged sum rather than an inheritance
// hierarchy.
//
// Grounded on the teacher's pkg/wal/entry.go (header layout, CRC32
// trailer, LittleEndian header fields) generalized from the teacher's
// four op types (insert/delete/commit/checkpoint) to the 30+ kinds
// spec.md §3 calls for.
package walrec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/nainya/corekv/pkg/common"
)

// Kind identifies the record's payload shape.
type Kind uint16

const (
	KindBegin Kind = iota + 1
	KindCommit
	KindAbort

	KindInsertRow
	KindUpdateRow
	KindDeleteRow
	KindInsertLeaf
	KindUpdateLeaf
	KindDeleteLeaf
	KindInsertBranch
	KindUpdateBranch
	KindDeleteBranch

	KindCompensateInsertRow
	KindCompensateUpdateRow
	KindCompensateDeleteRow
	KindCompensateInsertLeaf
	KindCompensateUpdateLeaf
	KindCompensateDeleteLeaf
	KindCompensateInsertBranch
	KindCompensateUpdateBranch
	KindCompensateDeleteBranch

	KindSetLowFence
	KindSetHighFence
	KindSetFoster
	KindSetLowestPage
	KindSetNextPID
	KindPageTypeChange
	KindDefragmentRow

	KindSystemAllocPage
	KindSystemDestroyPage
	KindUpdateMeta

	KindBeginCheckpoint
	KindEndCheckpoint
)

func (k Kind) String() string {
	names := map[Kind]string{
		KindBegin: "BEGIN", KindCommit: "COMMIT", KindAbort: "ABORT",
		KindInsertRow: "INSERT_ROW", KindUpdateRow: "UPDATE_ROW", KindDeleteRow: "DELETE_ROW",
		KindInsertLeaf: "INSERT_LEAF", KindUpdateLeaf: "UPDATE_LEAF", KindDeleteLeaf: "DELETE_LEAF",
		KindInsertBranch: "INSERT_BRANCH", KindUpdateBranch: "UPDATE_BRANCH", KindDeleteBranch: "DELETE_BRANCH",
		KindCompensateInsertRow: "CLR_INSERT_ROW", KindCompensateUpdateRow: "CLR_UPDATE_ROW", KindCompensateDeleteRow: "CLR_DELETE_ROW",
		KindCompensateInsertLeaf: "CLR_INSERT_LEAF", KindCompensateUpdateLeaf: "CLR_UPDATE_LEAF", KindCompensateDeleteLeaf: "CLR_DELETE_LEAF",
		KindCompensateInsertBranch: "CLR_INSERT_BRANCH", KindCompensateUpdateBranch: "CLR_UPDATE_BRANCH", KindCompensateDeleteBranch: "CLR_DELETE_BRANCH",
		KindSetLowFence: "SET_LOW_FENCE", KindSetHighFence: "SET_HIGH_FENCE", KindSetFoster: "SET_FOSTER",
		KindSetLowestPage: "SET_LOWEST_PAGE", KindSetNextPID: "SET_NEXT_PID",
		KindPageTypeChange: "PAGE_TYPE_CHANGE", KindDefragmentRow: "DEFRAGMENT_ROW",
		KindSystemAllocPage: "SYSTEM_ALLOC_PAGE", KindSystemDestroyPage: "SYSTEM_DESTROY_PAGE",
		KindUpdateMeta:      "UPDATE_META",
		KindBeginCheckpoint: "BEGIN_CHECKPOINT", KindEndCheckpoint: "END_CHECKPOINT",
	}
	if n, ok := names[k]; ok {
		return n
	}
	return fmt.Sprintf("KIND(%d)", k)
}

// IsCompensation reports whether a Kind is a CLR variant: redo-only,
// never undone during recovery's undo pass.
func (k Kind) IsCompensation() bool {
	return k >= KindCompensateInsertRow && k <= KindCompensateDeleteBranch
}

// IsCheckpoint reports whether a Kind belongs to the checkpoint family.
func (k Kind) IsCheckpoint() bool {
	return k == KindBeginCheckpoint || k == KindEndCheckpoint
}

// compensationKinds maps each undoable data-manipulation kind to the CLR
// kind that reverses it. An insert is undone by a delete and a delete is
// undone by an insert (of the Undo image, which for a delete record holds
// the removed entry); an update is undone by another update carrying the
// old value — so only the update kinds pair with their same-named CLR
// twin. Structural kinds (fences, foster, lowest-page, page lifecycle,
// meta) have no dedicated CLR kind: their compensation record reuses the
// original Kind and is distinguished by a non-zero CompensatedLSN
// instead, since spec.md only calls out "compensation variants" for the
// nine row/leaf/branch DML kinds.
var compensationKinds = map[Kind]Kind{
	KindInsertRow:    KindCompensateDeleteRow,
	KindUpdateRow:    KindCompensateUpdateRow,
	KindDeleteRow:    KindCompensateInsertRow,
	KindInsertLeaf:   KindCompensateDeleteLeaf,
	KindUpdateLeaf:   KindCompensateUpdateLeaf,
	KindDeleteLeaf:   KindCompensateInsertLeaf,
	KindInsertBranch: KindCompensateDeleteBranch,
	KindUpdateBranch: KindCompensateUpdateBranch,
	KindDeleteBranch: KindCompensateInsertBranch,
}

// CompensationKind returns the CLR kind that compensates k, if k is one
// of the nine DML kinds with a dedicated CLR twin. ok is false for every
// other kind (the caller should emit a compensation record that reuses k
// itself, with CompensatedLSN set).
func CompensationKind(k Kind) (Kind, bool) {
	clr, ok := compensationKinds[k]
	return clr, ok
}

// IsCLR reports whether r was produced while undoing another record:
// either one of the nine dedicated CLR kinds, or a structural/system
// record whose CompensatedLSN marks it as one. CLRs are redo-only —
// recovery's undo pass and a live transaction's abort never undo a CLR
// a second time.
func (r *Record) IsCLR() bool {
	return r.Kind.IsCompensation() || r.CompensatedLSN != common.InvalidLSN
}

// DirtyPageEntry and ActiveTxnEntry are the two snapshots an
// end-checkpoint record carries (spec.md §4.G).
type DirtyPageEntry struct {
	PageID      common.PageID
	RecoveryLSN common.LSN
}

type ActiveTxnEntry struct {
	TxnID    common.TxnID
	Status   byte // 0=running, 1=committed, 2=aborted
	PrevLSN  common.LSN
}

// Record is one entry in the write-ahead log: a common header plus a
// kind-specific payload. PageID/Slot/Key are populated only for the
// kinds that need them; Undo/Redo carry the before/after images (or
// structural deltas) a page-level apply function consumes.
type Record struct {
	LSN     common.LSN
	PrevLSN common.LSN
	TxnID   common.TxnID
	Kind    Kind

	PageID common.PageID
	Slot   uint16
	Key    []byte

	Undo []byte
	Redo []byte

	// CompensatedLSN is set on CLR records: the LSN of the original
	// record this CLR compensates, so undo can skip forward past
	// already-compensated work when it's re-encountered.
	CompensatedLSN common.LSN

	// Aux carries structural payloads: fence keys, foster pointer
	// (key+page id), lowest-page pointer, free-list links, page-type
	// change old/new type, and the two checkpoint snapshots.
	Aux []byte
}

const headerSize = 2 /*kind*/ + 8 /*prevLSN*/ + 8 /*txnID*/ +
	8 /*pageID*/ + 2 /*slot*/ + 8 /*compensatedLSN*/ +
	4 /*keyLen*/ + 4 /*undoLen*/ + 4 /*redoLen*/ + 4 /*auxLen*/

// Encode serializes the record (minus its own LSN, which is assigned by
// the log writer as the byte offset of this payload) with a trailing
// CRC32 checksum, mirroring the teacher's Entry.Encode framing.
func (r *Record) Encode() []byte {
	total := headerSize + len(r.Key) + len(r.Undo) + len(r.Redo) + len(r.Aux) + 4
	buf := make([]byte, total)

	binary.LittleEndian.PutUint16(buf[0:2], uint16(r.Kind))
	binary.LittleEndian.PutUint64(buf[2:10], uint64(r.PrevLSN))
	binary.LittleEndian.PutUint64(buf[10:18], uint64(r.TxnID))
	binary.LittleEndian.PutUint64(buf[18:26], uint64(r.PageID))
	binary.LittleEndian.PutUint16(buf[26:28], r.Slot)
	binary.LittleEndian.PutUint64(buf[28:36], uint64(r.CompensatedLSN))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(len(r.Key)))
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(r.Undo)))
	binary.LittleEndian.PutUint32(buf[44:48], uint32(len(r.Redo)))
	binary.LittleEndian.PutUint32(buf[48:52], uint32(len(r.Aux)))

	off := headerSize
	off += copy(buf[off:], r.Key)
	off += copy(buf[off:], r.Undo)
	off += copy(buf[off:], r.Redo)
	off += copy(buf[off:], r.Aux)

	crc := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:off+4], crc)
	return buf
}

// Decode parses a record from bytes previously returned by Encode. lsn
// is the byte offset at which the payload begins in the log file (the
// caller, typically a wal.Reader, supplies it).
func Decode(data []byte, lsn common.LSN) (*Record, error) {
	if len(data) < headerSize+4 {
		return nil, ErrTruncated
	}
	need := headerSize + int(binary.LittleEndian.Uint32(data[36:40])) +
		int(binary.LittleEndian.Uint32(data[40:44])) +
		int(binary.LittleEndian.Uint32(data[44:48])) +
		int(binary.LittleEndian.Uint32(data[48:52])) + 4
	if len(data) < need {
		return nil, ErrTruncated
	}

	dataLen := len(data)
	storedCRC := binary.LittleEndian.Uint32(data[dataLen-4:])
	computedCRC := crc32.ChecksumIEEE(data[:dataLen-4])
	if storedCRC != computedCRC {
		return nil, ErrCorrupted
	}

	r := &Record{LSN: lsn}
	r.Kind = Kind(binary.LittleEndian.Uint16(data[0:2]))
	r.PrevLSN = common.LSN(binary.LittleEndian.Uint64(data[2:10]))
	r.TxnID = common.TxnID(binary.LittleEndian.Uint64(data[10:18]))
	r.PageID = common.PageID(binary.LittleEndian.Uint64(data[18:26]))
	r.Slot = binary.LittleEndian.Uint16(data[26:28])
	r.CompensatedLSN = common.LSN(binary.LittleEndian.Uint64(data[28:36]))
	keyLen := binary.LittleEndian.Uint32(data[36:40])
	undoLen := binary.LittleEndian.Uint32(data[40:44])
	redoLen := binary.LittleEndian.Uint32(data[44:48])
	auxLen := binary.LittleEndian.Uint32(data[48:52])

	off := headerSize
	if keyLen > 0 {
		r.Key = append([]byte(nil), data[off:off+int(keyLen)]...)
		off += int(keyLen)
	}
	if undoLen > 0 {
		r.Undo = append([]byte(nil), data[off:off+int(undoLen)]...)
		off += int(undoLen)
	}
	if redoLen > 0 {
		r.Redo = append([]byte(nil), data[off:off+int(redoLen)]...)
		off += int(redoLen)
	}
	if auxLen > 0 {
		r.Aux = append([]byte(nil), data[off:off+int(auxLen)]...)
		off += int(auxLen)
	}
	return r, nil
}

// Size returns the encoded size of the record.
func (r *Record) Size() int {
	return headerSize + len(r.Key) + len(r.Undo) + len(r.Redo) + len(r.Aux) + 4
}

// HeaderSize is the fixed-size prefix every encoded record begins with.
// A reader must read this many bytes before it can determine the
// record's total on-disk length.
const HeaderSize = headerSize

// TrailingLen reads the four variable-length fields out of a raw header
// (the first HeaderSize bytes of an encoded record) and returns how many
// further bytes — payload plus the trailing CRC32 — the reader must
// still consume to have the whole record.
func TrailingLen(header []byte) (int, error) {
	if len(header) < headerSize {
		return 0, ErrTruncated
	}
	keyLen := binary.LittleEndian.Uint32(header[36:40])
	undoLen := binary.LittleEndian.Uint32(header[40:44])
	redoLen := binary.LittleEndian.Uint32(header[44:48])
	auxLen := binary.LittleEndian.Uint32(header[48:52])
	return int(keyLen) + int(undoLen) + int(redoLen) + int(auxLen) + 4, nil
}
