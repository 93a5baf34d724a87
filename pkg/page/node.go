package page

import (
	"encoding/binary"

	"github.com/nainya/corekv/pkg/common"
)

// nodeHeader is the fixed prefix of a leaf or branch page's body:
// spec.md §3's B+-tree node with "three reserved extra slots at the
// front: low fence, high fence, foster pointer" plus, for branch pages,
// the lowest_page pointer for keys below the first key.
const nodeHeaderSize = 2 /*key count*/ + 8 /*lowest page*/ + 8 /*next pid*/ +
	2 /*free ptr*/ + 2 /*free size*/ +
	2 + 2 /*low fence off/size*/ + 2 + 2 /*high fence off/size*/ + 2 + 2 /*foster off/size*/ +
	1 /*low fence is -inf*/ + 1 /*high fence is +inf*/

type nodeHeader struct {
	KeyCount      uint16
	LowestPage    common.PageID
	NextPID       common.PageID
	FreePtr       uint16
	FreeSize      uint16
	LowFenceOff   uint16
	LowFenceSize  uint16
	HighFenceOff  uint16
	HighFenceSize uint16
	FosterOff     uint16
	FosterSize    uint16
	LowFenceInf   byte
	HighFenceInf  byte
}

func initNodeBody(body *[BodySize]byte, _ Type) {
	h := nodeHeader{
		LowestPage:   common.InvalidPageID,
		NextPID:      common.InvalidPageID,
		FreePtr:      BodySize,
		FreeSize:     BodySize - nodeHeaderSize,
		LowFenceInf:  1,
		HighFenceInf: 1,
	}
	putNodeHeader(body, h)
}

func getNodeHeader(p *Page) (nodeHeader, error) {
	if p.Type != TypeLeaf && p.Type != TypeBranch {
		return nodeHeader{}, ErrWrongType
	}
	b := &p.Body
	return nodeHeader{
		KeyCount:      binary.LittleEndian.Uint16(b[0:2]),
		LowestPage:    common.PageID(binary.LittleEndian.Uint64(b[2:10])),
		NextPID:       common.PageID(binary.LittleEndian.Uint64(b[10:18])),
		FreePtr:       binary.LittleEndian.Uint16(b[18:20]),
		FreeSize:      binary.LittleEndian.Uint16(b[20:22]),
		LowFenceOff:   binary.LittleEndian.Uint16(b[22:24]),
		LowFenceSize:  binary.LittleEndian.Uint16(b[24:26]),
		HighFenceOff:  binary.LittleEndian.Uint16(b[26:28]),
		HighFenceSize: binary.LittleEndian.Uint16(b[28:30]),
		FosterOff:     binary.LittleEndian.Uint16(b[30:32]),
		FosterSize:    binary.LittleEndian.Uint16(b[32:34]),
		LowFenceInf:   b[34],
		HighFenceInf:  b[35],
	}, nil
}

func putNodeHeader(body *[BodySize]byte, h nodeHeader) {
	binary.LittleEndian.PutUint16(body[0:2], h.KeyCount)
	binary.LittleEndian.PutUint64(body[2:10], uint64(h.LowestPage))
	binary.LittleEndian.PutUint64(body[10:18], uint64(h.NextPID))
	binary.LittleEndian.PutUint16(body[18:20], h.FreePtr)
	binary.LittleEndian.PutUint16(body[20:22], h.FreeSize)
	binary.LittleEndian.PutUint16(body[22:24], h.LowFenceOff)
	binary.LittleEndian.PutUint16(body[24:26], h.LowFenceSize)
	binary.LittleEndian.PutUint16(body[26:28], h.HighFenceOff)
	binary.LittleEndian.PutUint16(body[28:30], h.HighFenceSize)
	binary.LittleEndian.PutUint16(body[30:32], h.FosterOff)
	binary.LittleEndian.PutUint16(body[32:34], h.FosterSize)
	body[34] = h.LowFenceInf
	body[35] = h.HighFenceInf
}

func setNodeHeader(p *Page, h nodeHeader) { putNodeHeader(&p.Body, h) }

func keySlotOffset(i uint16) int { return nodeHeaderSize + int(i)*4 }

func readKeySlot(p *Page, i uint16) (offset, size uint16) {
	pos := keySlotOffset(i)
	return binary.LittleEndian.Uint16(p.Body[pos : pos+2]), binary.LittleEndian.Uint16(p.Body[pos+2 : pos+4])
}

func writeKeySlot(p *Page, i uint16, offset, size uint16) {
	pos := keySlotOffset(i)
	binary.LittleEndian.PutUint16(p.Body[pos:pos+2], offset)
	binary.LittleEndian.PutUint16(p.Body[pos+2:pos+4], size)
}

func nodeContiguousFree(h nodeHeader) int {
	slotArrayEnd := keySlotOffset(h.KeyCount)
	return int(h.FreePtr) - slotArrayEnd
}

// KeyCount returns the number of ordered (key, payload) entries on a
// leaf or branch page.
func KeyCount(p *Page) (uint16, error) {
	h, err := getNodeHeader(p)
	if err != nil {
		return 0, err
	}
	return h.KeyCount, nil
}

// entry encodes a key/payload pair as (keyLen u32, key, payload) so a
// single blob slot can carry both.
func encodeEntry(key, payload []byte) []byte {
	buf := make([]byte, 4+len(key)+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(key)))
	copy(buf[4:], key)
	copy(buf[4+len(key):], payload)
	return buf
}

func decodeEntry(blob []byte) (key, payload []byte) {
	keyLen := binary.LittleEndian.Uint32(blob[0:4])
	key = blob[4 : 4+keyLen]
	payload = blob[4+keyLen:]
	return
}

// Key returns the key at ordered index i.
func Key(p *Page, i uint16) ([]byte, error) {
	h, err := getNodeHeader(p)
	if err != nil {
		return nil, err
	}
	if i >= h.KeyCount {
		return nil, ErrSlotEmpty
	}
	offset, size := readKeySlot(p, i)
	key, _ := decodeEntry(p.Body[offset : int(offset)+int(size)])
	return append([]byte(nil), key...), nil
}

// Value returns the value payload at ordered index i on a leaf page.
func Value(p *Page, i uint16) ([]byte, error) {
	if p.Type != TypeLeaf {
		return nil, ErrWrongType
	}
	h, err := getNodeHeader(p)
	if err != nil {
		return nil, err
	}
	if i >= h.KeyCount {
		return nil, ErrSlotEmpty
	}
	offset, size := readKeySlot(p, i)
	_, payload := decodeEntry(p.Body[offset : int(offset)+int(size)])
	return append([]byte(nil), payload...), nil
}

// ChildPageID returns the child pointer paired with the key at ordered
// index i on a branch page.
func ChildPageID(p *Page, i uint16) (common.PageID, error) {
	if p.Type != TypeBranch {
		return 0, ErrWrongType
	}
	h, err := getNodeHeader(p)
	if err != nil {
		return 0, err
	}
	if i >= h.KeyCount {
		return 0, ErrSlotEmpty
	}
	offset, size := readKeySlot(p, i)
	_, payload := decodeEntry(p.Body[offset : int(offset)+int(size)])
	return common.PageID(binary.LittleEndian.Uint64(payload)), nil
}

func encodePageID(id common.PageID) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}

// InsertEntry inserts (key, payload) at ordered position index, shifting
// later entries right. payload is the value for a leaf page or an
// 8-byte little-endian page id for a branch page. Compacts the page
// once if contiguous space is insufficient but the reclaimable total
// would fit.
func InsertEntry(p *Page, index uint16, key, payload []byte) error {
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}
	if index > h.KeyCount {
		return ErrSlotEmpty
	}

	blob := encodeEntry(key, payload)
	if len(blob) > maxRowSize {
		return ErrTooBig
	}
	need := len(blob) + 4

	if nodeContiguousFree(h) < need {
		if int(h.FreeSize)+4 < need {
			return ErrNoSpace
		}
		if err := CompactNode(p); err != nil {
			return err
		}
		h, _ = getNodeHeader(p)
		if nodeContiguousFree(h) < need {
			return ErrNoSpace
		}
	}

	offset := h.FreePtr - uint16(len(blob))
	copy(p.Body[offset:int(offset)+len(blob)], blob)

	for i := h.KeyCount; i > index; i-- {
		o, s := readKeySlot(p, i-1)
		writeKeySlot(p, i, o, s)
	}
	writeKeySlot(p, index, offset, uint16(len(blob)))

	h.KeyCount++
	h.FreePtr = offset
	h.FreeSize -= uint16(need)
	setNodeHeader(p, h)
	return nil
}

// InsertLeafEntry is InsertEntry specialized for leaf pages.
func InsertLeafEntry(p *Page, index uint16, key, value []byte) error {
	return InsertEntry(p, index, key, value)
}

// InsertBranchEntry is InsertEntry specialized for branch pages: payload
// is the child page id.
func InsertBranchEntry(p *Page, index uint16, key []byte, child common.PageID) error {
	return InsertEntry(p, index, key, encodePageID(child))
}

// DeleteEntry removes the ordered entry at index, shifting later
// entries left. The vacated blob space becomes reclaimable only by a
// later CompactNode.
func DeleteEntry(p *Page, index uint16) error {
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}
	if index >= h.KeyCount {
		return ErrSlotEmpty
	}
	_, size := readKeySlot(p, index)
	for i := index; i+1 < h.KeyCount; i++ {
		o, s := readKeySlot(p, i+1)
		writeKeySlot(p, i, o, s)
	}
	h.KeyCount--
	h.FreeSize += size + 4
	setNodeHeader(p, h)
	return nil
}

// LowFence returns the page's low fence key. ok is false iff the fence
// is the -∞ sentinel, in which case the returned key is meaningless.
func LowFence(p *Page) (key []byte, ok bool, err error) {
	h, err := getNodeHeader(p)
	if err != nil {
		return nil, false, err
	}
	if h.LowFenceInf != 0 {
		return nil, false, nil
	}
	return append([]byte(nil), p.Body[h.LowFenceOff:int(h.LowFenceOff)+int(h.LowFenceSize)]...), true, nil
}

// HighFence returns the page's high fence key. ok is false iff the
// fence is the +∞ sentinel.
func HighFence(p *Page) (key []byte, ok bool, err error) {
	h, err := getNodeHeader(p)
	if err != nil {
		return nil, false, err
	}
	if h.HighFenceInf != 0 {
		return nil, false, nil
	}
	return append([]byte(nil), p.Body[h.HighFenceOff:int(h.HighFenceOff)+int(h.HighFenceSize)]...), true, nil
}

// SetLowFence installs a finite low fence key, allocating its storage
// in the node's blob arena.
func SetLowFence(p *Page, key []byte) error {
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}
	off, err := allocBlob(p, &h, key)
	if err != nil {
		return err
	}
	h.LowFenceOff, h.LowFenceSize, h.LowFenceInf = off, uint16(len(key)), 0
	setNodeHeader(p, h)
	return nil
}

// SetLowFenceInfinity resets the low fence to the -∞ sentinel.
func SetLowFenceInfinity(p *Page) error {
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}
	h.LowFenceInf = 1
	setNodeHeader(p, h)
	return nil
}

// SetHighFence installs a finite high fence key.
func SetHighFence(p *Page, key []byte) error {
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}
	off, err := allocBlob(p, &h, key)
	if err != nil {
		return err
	}
	h.HighFenceOff, h.HighFenceSize, h.HighFenceInf = off, uint16(len(key)), 0
	setNodeHeader(p, h)
	return nil
}

// SetHighFenceInfinity resets the high fence to the +∞ sentinel.
func SetHighFenceInfinity(p *Page) error {
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}
	h.HighFenceInf = 1
	setNodeHeader(p, h)
	return nil
}

// Foster returns the page's foster pointer (key, child page id) and
// whether one is currently installed.
func Foster(p *Page) (key []byte, child common.PageID, ok bool, err error) {
	h, err := getNodeHeader(p)
	if err != nil {
		return nil, 0, false, err
	}
	if h.FosterSize == 0 {
		return nil, 0, false, nil
	}
	blob := p.Body[h.FosterOff : int(h.FosterOff)+int(h.FosterSize)]
	k, payload := decodeEntry(blob)
	return append([]byte(nil), k...), common.PageID(binary.LittleEndian.Uint64(payload)), true, nil
}

// SetFoster installs a foster pointer, decoupling this page's split
// from the parent update that will eventually absorb it (spec.md §4.H).
func SetFoster(p *Page, key []byte, child common.PageID) error {
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}
	blob := encodeEntry(key, encodePageID(child))
	off, err := allocBlob(p, &h, blob)
	if err != nil {
		return err
	}
	h.FosterOff, h.FosterSize = off, uint16(len(blob))
	setNodeHeader(p, h)
	return nil
}

// ClearFoster removes the foster pointer once the parent update that
// subsumes it has been logged.
func ClearFoster(p *Page) error {
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}
	h.FosterSize = 0
	setNodeHeader(p, h)
	return nil
}

// LowestPage returns a branch page's pointer for keys below keys[0].
func LowestPage(p *Page) (common.PageID, error) {
	if p.Type != TypeBranch {
		return 0, ErrWrongType
	}
	h, err := getNodeHeader(p)
	if err != nil {
		return 0, err
	}
	return h.LowestPage, nil
}

// SetLowestPage updates a branch page's lowest-page pointer.
func SetLowestPage(p *Page, child common.PageID) error {
	if p.Type != TypeBranch {
		return ErrWrongType
	}
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}
	h.LowestPage = child
	setNodeHeader(p, h)
	return nil
}

// NextPID returns a leaf page's right-sibling link, maintained by
// splits so an iterator running off the right edge can follow it.
func NextPID(p *Page) (common.PageID, error) {
	h, err := getNodeHeader(p)
	if err != nil {
		return 0, err
	}
	return h.NextPID, nil
}

// SetNextPID updates the right-sibling link.
func SetNextPID(p *Page, next common.PageID) error {
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}
	h.NextPID = next
	setNodeHeader(p, h)
	return nil
}

// allocBlob appends data to the node's blob arena (shared by fences,
// the foster pointer, and key entries), compacting once if necessary.
func allocBlob(p *Page, h *nodeHeader, data []byte) (uint16, error) {
	need := len(data)
	if nodeContiguousFree(*h) < need {
		if int(h.FreeSize) < need {
			return 0, ErrNoSpace
		}
		if err := CompactNode(p); err != nil {
			return 0, err
		}
		*h, _ = getNodeHeader(p)
		if nodeContiguousFree(*h) < need {
			return 0, ErrNoSpace
		}
	}
	offset := h.FreePtr - uint16(need)
	copy(p.Body[offset:int(offset)+need], data)
	h.FreePtr = offset
	h.FreeSize -= uint16(need)
	return offset, nil
}

// CompactNode repacks every live blob (fences, foster pointer, key
// entries) toward the end of the body, reclaiming the gaps left by
// DeleteEntry and prior fence/foster overwrites.
func CompactNode(p *Page) error {
	h, err := getNodeHeader(p)
	if err != nil {
		return err
	}

	var packed [BodySize]byte
	cursor := uint16(BodySize)

	place := func(off, size uint16) uint16 {
		if size == 0 {
			return off
		}
		cursor -= size
		copy(packed[cursor:int(cursor)+int(size)], p.Body[off:int(off)+int(size)])
		return cursor
	}

	newKeyOffsets := make([]uint16, h.KeyCount)
	for i := uint16(0); i < h.KeyCount; i++ {
		off, size := readKeySlot(p, i)
		newKeyOffsets[i] = place(off, size)
	}
	newLowFence := place(h.LowFenceOff, h.LowFenceSize)
	newHighFence := place(h.HighFenceOff, h.HighFenceSize)
	newFoster := place(h.FosterOff, h.FosterSize)

	copy(p.Body[cursor:], packed[cursor:])

	for i := uint16(0); i < h.KeyCount; i++ {
		_, size := readKeySlot(p, i)
		writeKeySlot(p, i, newKeyOffsets[i], size)
	}
	h.LowFenceOff = newLowFence
	h.HighFenceOff = newHighFence
	h.FosterOff = newFoster
	h.FreePtr = cursor
	h.FreeSize = uint16(nodeContiguousFree(nodeHeader{KeyCount: h.KeyCount, FreePtr: cursor}))
	setNodeHeader(p, h)
	return nil
}
