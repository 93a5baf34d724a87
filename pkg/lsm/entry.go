package lsm

import (
	"bytes"
	"encoding/binary"

	"github.com/google/btree"
)

const (
	keyInlineMax   = 12
	valueInlineMax = 8

	keySpilled = 0xFFFF // keyLen sentinel: key lives in the blob file

	valSpilled   = 0xFFFE // valLen sentinel: value lives in the blob file
	valTombstone = 0xFFFF // valLen sentinel: deletion marker, no value
)

// entrySize is the fixed on-disk width of one sorted-run entry,
// per spec.md §6.
const entrySize = 24

// memItem is a mem_tree / frozen_mem_tree element: either a payload or
// a tombstone, ordered by key for github.com/google/btree.
type memItem struct {
	key       []byte
	value     []byte
	tombstone bool
}

func (m *memItem) Less(than btree.Item) bool {
	return bytes.Compare(m.key, than.(*memItem).key) < 0
}

func keyPivot(key []byte) *memItem { return &memItem{key: key} }

// runEntry is the in-memory, fully-resolved form of one sorted-run
// entry: key and value bytes loaded (from inline storage or the blob
// file) at open time.
type runEntry struct {
	key       []byte
	value     []byte
	tombstone bool
}

// encodeEntry serialises e into its fixed 24-byte wire form, spilling
// the key and/or value to blob if they exceed their inline thresholds.
func encodeEntry(e runEntry, blob *BlobFile) ([entrySize]byte, error) {
	var buf [entrySize]byte

	if len(e.key) <= keyInlineMax {
		binary.BigEndian.PutUint16(buf[0:2], uint16(len(e.key)))
		copy(buf[4:4+keyInlineMax], e.key)
	} else {
		offset, err := blob.Append(e.key)
		if err != nil {
			return buf, err
		}
		binary.BigEndian.PutUint16(buf[0:2], keySpilled)
		binary.LittleEndian.PutUint64(buf[4:12], offset)
	}

	switch {
	case e.tombstone:
		binary.BigEndian.PutUint16(buf[2:4], valTombstone)
	case len(e.value) <= valueInlineMax:
		binary.BigEndian.PutUint16(buf[2:4], uint16(len(e.value)))
		copy(buf[16:16+valueInlineMax], e.value)
	default:
		offset, err := blob.Append(e.value)
		if err != nil {
			return buf, err
		}
		binary.BigEndian.PutUint16(buf[2:4], valSpilled)
		binary.LittleEndian.PutUint64(buf[16:24], offset)
	}

	return buf, nil
}

// decodeEntry reverses encodeEntry, reading through r for any key or
// value that was spilled to blob.
func decodeEntry(buf [entrySize]byte, r blobReader) (runEntry, error) {
	var e runEntry

	keyLen := binary.BigEndian.Uint16(buf[0:2])
	if keyLen == keySpilled {
		offset := binary.LittleEndian.Uint64(buf[4:12])
		key, err := r.ReadFrame(offset)
		if err != nil {
			return e, err
		}
		e.key = key
	} else {
		e.key = append([]byte(nil), buf[4:4+keyLen]...)
	}

	valLen := binary.BigEndian.Uint16(buf[2:4])
	switch valLen {
	case valTombstone:
		e.tombstone = true
	case valSpilled:
		offset := binary.LittleEndian.Uint64(buf[16:24])
		value, err := r.ReadFrame(offset)
		if err != nil {
			return e, err
		}
		e.value = value
	default:
		e.value = append([]byte(nil), buf[16:16+valLen]...)
	}

	return e, nil
}
