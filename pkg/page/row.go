package page

import (
	"encoding/binary"

	"github.com/nainya/corekv/pkg/common"
)

const rowHeaderSize = 8 /*prev*/ + 8 /*next*/ + 2 /*row max*/ + 2 /*row count*/ + 2 /*free ptr*/ + 2 /*free size*/

// maxRowSize is the too_big_data soft limit from spec.md §7:
// approximately body size / 6.
const maxRowSize = BodySize / 6

type rowHeader struct {
	PrevPID   common.PageID
	NextPID   common.PageID
	RowMax    uint16 // high-water mark of slots ever allocated
	RowCount  uint16 // number of live+tombstoned slots (== RowMax; kept for clarity)
	FreePtr   uint16 // offset where the row data region currently begins
	FreeSize  uint16 // total free bytes, including gaps left by tombstoned rows
}

func initRowBody(body *[BodySize]byte) {
	h := rowHeader{
		PrevPID:  common.InvalidPageID,
		NextPID:  common.InvalidPageID,
		FreePtr:  BodySize,
		FreeSize: BodySize - rowHeaderSize,
	}
	putRowHeader(body, h)
}

func getRowHeader(p *Page) (rowHeader, error) {
	if p.Type != TypeRow {
		return rowHeader{}, ErrWrongType
	}
	b := &p.Body
	return rowHeader{
		PrevPID:  common.PageID(binary.LittleEndian.Uint64(b[0:8])),
		NextPID:  common.PageID(binary.LittleEndian.Uint64(b[8:16])),
		RowMax:   binary.LittleEndian.Uint16(b[16:18]),
		RowCount: binary.LittleEndian.Uint16(b[18:20]),
		FreePtr:  binary.LittleEndian.Uint16(b[20:22]),
		FreeSize: binary.LittleEndian.Uint16(b[22:24]),
	}, nil
}

func putRowHeader(body *[BodySize]byte, h rowHeader) {
	binary.LittleEndian.PutUint64(body[0:8], uint64(h.PrevPID))
	binary.LittleEndian.PutUint64(body[8:16], uint64(h.NextPID))
	binary.LittleEndian.PutUint16(body[16:18], h.RowMax)
	binary.LittleEndian.PutUint16(body[18:20], h.RowCount)
	binary.LittleEndian.PutUint16(body[20:22], h.FreePtr)
	binary.LittleEndian.PutUint16(body[22:24], h.FreeSize)
}

func setRowHeader(p *Page, h rowHeader) { putRowHeader(&p.Body, h) }

func rowSlotOffset(i uint16) int { return rowHeaderSize + int(i)*4 }

func readRowSlot(p *Page, i uint16) (offset, size uint16) {
	pos := rowSlotOffset(i)
	return binary.LittleEndian.Uint16(p.Body[pos : pos+2]), binary.LittleEndian.Uint16(p.Body[pos+2 : pos+4])
}

func writeRowSlot(p *Page, i uint16, offset, size uint16) {
	pos := rowSlotOffset(i)
	binary.LittleEndian.PutUint16(p.Body[pos:pos+2], offset)
	binary.LittleEndian.PutUint16(p.Body[pos+2:pos+4], size)
}

// RowLinks returns the sibling pointers carried in a row page's header.
func RowLinks(p *Page) (prev, next common.PageID, err error) {
	h, err := getRowHeader(p)
	if err != nil {
		return 0, 0, err
	}
	return h.PrevPID, h.NextPID, nil
}

// SetRowLinks updates the sibling pointers in a row page's header.
func SetRowLinks(p *Page, prev, next common.PageID) error {
	h, err := getRowHeader(p)
	if err != nil {
		return err
	}
	h.PrevPID, h.NextPID = prev, next
	setRowHeader(p, h)
	return nil
}

// RowCount returns the number of slots (live and tombstoned) on a row page.
func RowCount(p *Page) (uint16, error) {
	h, err := getRowHeader(p)
	if err != nil {
		return 0, err
	}
	return h.RowCount, nil
}

// InsertRow appends data as a new row, defragmenting first if the
// contiguous free region is too small but the reclaimable total (after
// accounting for tombstoned rows) would fit — spec.md §3's "compacted
// via DeFragment when a large insert cannot fit".
func InsertRow(p *Page, data []byte) (uint16, error) {
	if len(data) > maxRowSize {
		return 0, ErrTooBig
	}
	h, err := getRowHeader(p)
	if err != nil {
		return 0, err
	}

	need := len(data) + 4 // the row bytes plus their new slot entry
	if contiguousFree(h) < need {
		if int(h.FreeSize)+4 < need {
			return 0, ErrNoSpace
		}
		if err := DeFragment(p); err != nil {
			return 0, err
		}
		h, _ = getRowHeader(p)
		if contiguousFree(h) < need {
			return 0, ErrNoSpace
		}
	}

	offset := h.FreePtr - uint16(len(data))
	copy(p.Body[offset:int(offset)+len(data)], data)

	slot := h.RowCount
	writeRowSlot(p, slot, offset, uint16(len(data)))

	h.RowCount++
	h.RowMax++
	h.FreePtr = offset
	h.FreeSize -= uint16(need)
	setRowHeader(p, h)
	return slot, nil
}

func contiguousFree(h rowHeader) int {
	slotArrayEnd := rowSlotOffset(h.RowCount)
	return int(h.FreePtr) - slotArrayEnd
}

// ReadRow returns a copy of the row stored at slot, or ErrSlotEmpty if
// the slot is out of range or tombstoned.
func ReadRow(p *Page, slot uint16) ([]byte, error) {
	h, err := getRowHeader(p)
	if err != nil {
		return nil, err
	}
	if slot >= h.RowCount {
		return nil, ErrSlotEmpty
	}
	offset, size := readRowSlot(p, slot)
	if size == 0 {
		return nil, ErrSlotEmpty
	}
	out := make([]byte, size)
	copy(out, p.Body[offset:int(offset)+int(size)])
	return out, nil
}

// DeleteRow tombstones slot by zeroing its size; the slot index remains
// allocated (row positions are stable identifiers per spec.md §3) and
// its bytes are reclaimed only by a later DeFragment.
func DeleteRow(p *Page, slot uint16) error {
	h, err := getRowHeader(p)
	if err != nil {
		return err
	}
	if slot >= h.RowCount {
		return ErrSlotEmpty
	}
	offset, size := readRowSlot(p, slot)
	if size == 0 {
		return ErrSlotEmpty
	}
	writeRowSlot(p, slot, offset, 0)
	h.FreeSize += size
	setRowHeader(p, h)
	return nil
}

// RestoreRow reinstates a tombstoned slot with data, undoing a prior
// DeleteRow. Used only by undo/redo replay, where the slot's original
// size is known to still fit the gap DeleteRow left behind.
func RestoreRow(p *Page, slot uint16, data []byte) error {
	h, err := getRowHeader(p)
	if err != nil {
		return err
	}
	if slot >= h.RowCount {
		return ErrSlotEmpty
	}
	_, size := readRowSlot(p, slot)
	if size != 0 {
		return nil // already live; undo of an already-undone delete
	}
	need := len(data) + 4
	if contiguousFree(h) < need {
		if err := DeFragment(p); err != nil {
			return err
		}
		h, _ = getRowHeader(p)
	}
	newOffset := h.FreePtr - uint16(len(data))
	copy(p.Body[newOffset:int(newOffset)+len(data)], data)
	writeRowSlot(p, slot, newOffset, uint16(len(data)))
	h.FreePtr = newOffset
	h.FreeSize -= uint16(need)
	setRowHeader(p, h)
	return nil
}

// UpdateRow overwrites the bytes at slot in place when the new value is
// no larger than the old one; otherwise the caller must delete and
// re-insert (the btree/row layer above decides which).
func UpdateRow(p *Page, slot uint16, data []byte) error {
	h, err := getRowHeader(p)
	if err != nil {
		return err
	}
	if slot >= h.RowCount {
		return ErrSlotEmpty
	}
	offset, size := readRowSlot(p, slot)
	if size == 0 {
		return ErrSlotEmpty
	}
	if len(data) > int(size) {
		return ErrNoSpace
	}
	copy(p.Body[offset:int(offset)+len(data)], data)
	if len(data) < int(size) {
		writeRowSlot(p, slot, offset, uint16(len(data)))
		h.FreeSize += size - uint16(len(data))
		setRowHeader(p, h)
	}
	return nil
}

// DeFragment repacks all live rows toward the end of the body, closing
// gaps left by tombstoned rows, without moving or renumbering slots.
func DeFragment(p *Page) error {
	h, err := getRowHeader(p)
	if err != nil {
		return err
	}

	var packed [BodySize]byte
	newOffsets := make([]uint16, h.RowCount)
	cursor := uint16(BodySize)
	for i := uint16(0); i < h.RowCount; i++ {
		offset, size := readRowSlot(p, i)
		if size == 0 {
			continue
		}
		cursor -= size
		copy(packed[cursor:int(cursor)+int(size)], p.Body[offset:int(offset)+int(size)])
		newOffsets[i] = cursor
	}
	copy(p.Body[cursor:], packed[cursor:])

	for i := uint16(0); i < h.RowCount; i++ {
		_, size := readRowSlot(p, i)
		if size == 0 {
			continue
		}
		writeRowSlot(p, i, newOffsets[i], size)
	}

	h.FreePtr = cursor
	h.FreeSize = uint16(contiguousFree(rowHeader{RowCount: h.RowCount, FreePtr: cursor}))
	setRowHeader(p, h)
	return nil
}
