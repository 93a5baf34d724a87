package logapply

import (
	"encoding/binary"

	"github.com/nainya/corekv/pkg/common"
)

// Fence payloads (set_low_fence / set_high_fence's Redo and Undo
// images): one flag byte (1 = ±∞, 0 = finite) followed by the key when
// finite.
func EncodeFence(key []byte, infinite bool) []byte {
	if infinite {
		return []byte{1}
	}
	out := make([]byte, 1+len(key))
	out[0] = 0
	copy(out[1:], key)
	return out
}

func DecodeFence(b []byte) (key []byte, infinite bool) {
	if len(b) == 0 || b[0] == 1 {
		return nil, true
	}
	return b[1:], false
}

// Foster payloads (set_foster's Redo and Undo images): an 8-byte child
// page id followed by the foster key. An empty payload means "no
// foster pointer" (used to undo a set_foster back to absent).
func EncodeFoster(key []byte, child common.PageID) []byte {
	out := make([]byte, 8+len(key))
	binary.LittleEndian.PutUint64(out[0:8], uint64(child))
	copy(out[8:], key)
	return out
}

func DecodeFoster(b []byte) (key []byte, child common.PageID, present bool) {
	if len(b) < 8 {
		return nil, 0, false
	}
	return b[8:], common.PageID(binary.LittleEndian.Uint64(b[0:8])), true
}

// PageID payloads (insert_branch / update_branch / delete_branch's
// non-key half, and set_lowest_page's Redo/Undo images): a bare 8-byte
// page id.
func EncodePageID(id common.PageID) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(id))
	return out
}

func DecodePageID(b []byte) common.PageID {
	return common.PageID(binary.LittleEndian.Uint64(b))
}

// TypeChange payloads (page_type_change's Redo/Undo images): a single
// type byte to install.
func EncodeType(t byte) []byte { return []byte{t} }
func DecodeType(b []byte) byte { return b[0] }

// Meta payloads (update_meta's Redo and Undo images): the meta page's
// three fields, so redo/undo can reinstall either snapshot wholesale
// rather than reasoning about which field changed.
func EncodeMeta(maxPageCount uint64, firstFree, root common.PageID) []byte {
	out := make([]byte, 24)
	binary.LittleEndian.PutUint64(out[0:8], maxPageCount)
	binary.LittleEndian.PutUint64(out[8:16], uint64(firstFree))
	binary.LittleEndian.PutUint64(out[16:24], uint64(root))
	return out
}

func DecodeMeta(b []byte) (maxPageCount uint64, firstFree, root common.PageID) {
	return binary.LittleEndian.Uint64(b[0:8]),
		common.PageID(binary.LittleEndian.Uint64(b[8:16])),
		common.PageID(binary.LittleEndian.Uint64(b[16:24]))
}
