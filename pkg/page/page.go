package page

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/nainya/corekv/pkg/common"
)

// Size is the fixed on-disk page size (spec.md §3/§6).
const Size = 32 * 1024

const headerSize = 8 /*page id*/ + 8 /*page lsn*/ + 8 /*recovery lsn*/ + 1 /*type*/ + 3 /*pad*/ + 4 /*checksum*/

// BodySize is the number of bytes available to a page's typed body.
const BodySize = Size - headerSize

// Type identifies a page's body layout.
type Type uint8

const (
	TypeMeta Type = iota + 1
	TypeFree
	TypeRow
	TypeLeaf
	TypeBranch
)

func (t Type) String() string {
	switch t {
	case TypeMeta:
		return "meta"
	case TypeFree:
		return "free"
	case TypeRow:
		return "row"
	case TypeLeaf:
		return "leaf"
	case TypeBranch:
		return "branch"
	default:
		return "unknown"
	}
}

// Page is one 32 KiB unit of the database file: a common header plus a
// typed body. The body is a raw byte slice that the meta/free/row/node
// accessors in this package interpret in place.
type Page struct {
	PageID      common.PageID
	PageLSN     common.LSN
	RecoveryLSN common.LSN // InfiniteLSN iff clean; memory-only, never trusted from disk
	Type        Type
	Body        [BodySize]byte
}

// New allocates a zeroed page of the given type, clean (RecoveryLSN ==
// InfiniteLSN) until a mutation marks it dirty.
func New(id common.PageID, typ Type) *Page {
	p := &Page{PageID: id, Type: typ, RecoveryLSN: common.InfiniteLSN}
	ResetBody(p, typ)
	return p
}

// ResetBody reinitializes p's body as a fresh page of typ, discarding
// any prior content. Used both by New and by redo of a page allocation,
// where the recovered page must start from the same zeroed layout a
// live allocation would have produced rather than whatever garbage the
// reused free page's body last held.
func ResetBody(p *Page, typ Type) {
	p.Type = typ
	switch typ {
	case TypeRow:
		initRowBody(&p.Body)
	case TypeLeaf, TypeBranch:
		initNodeBody(&p.Body, typ)
	default:
		p.Body = [BodySize]byte{}
	}
}

// MarkDirty sets page_lsn to lsn and, if the page was clean, establishes
// recovery_lsn at lsn too — spec.md §4.E: "the emitter returns the new
// LSN, which the page layer stamps into page_lsn and (if the page was
// clean) recovery_lsn."
func (p *Page) MarkDirty(lsn common.LSN) {
	if p.RecoveryLSN == common.InfiniteLSN {
		p.RecoveryLSN = lsn
	}
	p.PageLSN = lsn
}

// Dirty reports whether the page has unflushed updates.
func (p *Page) Dirty() bool {
	return p.RecoveryLSN != common.InfiniteLSN
}

// MarkClean resets recovery_lsn after a successful write-back.
func (p *Page) MarkClean() {
	p.RecoveryLSN = common.InfiniteLSN
}

// Encode serializes the page to a Size-byte image, computing the
// checksum over the body and always writing recovery_lsn as +∞ —
// spec.md §6: "recovery_lsn ... serialised as +∞ on flush."
func (p *Page) Encode() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.PageID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(p.PageLSN))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(common.InfiniteLSN))
	buf[24] = byte(p.Type)
	copy(buf[headerSize:], p.Body[:])
	checksum := crc32.ChecksumIEEE(buf[headerSize:])
	binary.LittleEndian.PutUint32(buf[28:32], checksum)
	return buf
}

// Decode parses a Size-byte image, verifying the checksum. A mismatch
// returns ErrChecksum so the caller (through the pool and the page
// manager, up to recovery) can invoke single-page recovery instead of
// trusting corrupt data.
func Decode(data []byte) (*Page, error) {
	if len(data) != Size {
		return nil, ErrChecksum
	}
	p := &Page{
		PageID:      common.PageID(binary.LittleEndian.Uint64(data[0:8])),
		PageLSN:     common.LSN(binary.LittleEndian.Uint64(data[8:16])),
		RecoveryLSN: common.InfiniteLSN,
		Type:        Type(data[24]),
	}
	storedChecksum := binary.LittleEndian.Uint32(data[28:32])
	computed := crc32.ChecksumIEEE(data[headerSize:])
	if storedChecksum != computed {
		return nil, ErrChecksum
	}
	copy(p.Body[:], data[headerSize:])
	return p, nil
}
