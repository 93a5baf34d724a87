package lsm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
)

// SortedRun is one immutable, generation-numbered on-disk index of a
// frozen mem_tree (spec.md §3 "Sorted run (LSM)"). Entries are sorted
// by key and resolved into memory at open time; keys/values that
// spilled past their inline thresholds are read back through the
// shared blob file.
type SortedRun struct {
	Path       string
	Generation uint64
	MinKey     []byte
	MaxKey     []byte
	entries    []runEntry
}

func runFileName(generation uint64, blobOffset uint64) string {
	return fmt.Sprintf("run-%020d-%020d.sr", generation, blobOffset)
}

// WriteSortedRun serialises entries (already sorted by key) to path as
// a new sorted run file of the given generation, spilling any
// key/value past its inline threshold into blob.
func WriteSortedRun(path string, generation uint64, entries []runEntry, blob *BlobFile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var u64 [8]byte
	write := func(p []byte) error {
		_, err := f.Write(p)
		return err
	}
	writeU64 := func(v uint64) error {
		binary.BigEndian.PutUint64(u64[:], v)
		return write(u64[:])
	}

	minKey, maxKey := []byte{}, []byte{}
	if len(entries) > 0 {
		minKey, maxKey = entries[0].key, entries[len(entries)-1].key
	}

	if err := writeU64(uint64(len(minKey))); err != nil {
		return err
	}
	if err := write(minKey); err != nil {
		return err
	}
	if err := writeU64(uint64(len(maxKey))); err != nil {
		return err
	}
	if err := write(maxKey); err != nil {
		return err
	}
	if err := writeU64(uint64(len(entries))); err != nil {
		return err
	}

	for _, e := range entries {
		enc, err := encodeEntry(e, blob)
		if err != nil {
			return err
		}
		if err := write(enc[:]); err != nil {
			return err
		}
	}

	return writeU64(generation)
}

// OpenSortedRun reads a previously-written sorted run file in full,
// resolving every entry's key and value through r.
func OpenSortedRun(path string, r blobReader) (*SortedRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	readU64 := func(off int) (uint64, int, error) {
		if off+8 > len(data) {
			return 0, off, ErrCorruptRun
		}
		return binary.BigEndian.Uint64(data[off : off+8]), off + 8, nil
	}

	off := 0
	minLen, off, err := readU64(off)
	if err != nil {
		return nil, err
	}
	if off+int(minLen) > len(data) {
		return nil, ErrCorruptRun
	}
	minKey := append([]byte(nil), data[off:off+int(minLen)]...)
	off += int(minLen)

	maxLen, off, err := readU64(off)
	if err != nil {
		return nil, err
	}
	if off+int(maxLen) > len(data) {
		return nil, ErrCorruptRun
	}
	maxKey := append([]byte(nil), data[off:off+int(maxLen)]...)
	off += int(maxLen)

	count, off, err := readU64(off)
	if err != nil {
		return nil, err
	}

	entries := make([]runEntry, count)
	for i := range entries {
		if off+entrySize > len(data) {
			return nil, ErrCorruptRun
		}
		var buf [entrySize]byte
		copy(buf[:], data[off:off+entrySize])
		off += entrySize

		e, err := decodeEntry(buf, r)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}

	generation, _, err := readU64(off)
	if err != nil {
		return nil, err
	}

	return &SortedRun{
		Path:       path,
		Generation: generation,
		MinKey:     minKey,
		MaxKey:     maxKey,
		entries:    entries,
	}, nil
}

// lookup returns the entry for key, if present in this run.
func (r *SortedRun) lookup(key []byte) (runEntry, bool) {
	i := sort.Search(len(r.entries), func(i int) bool {
		return bytes.Compare(r.entries[i].key, key) >= 0
	})
	if i < len(r.entries) && bytes.Equal(r.entries[i].key, key) {
		return r.entries[i], true
	}
	return runEntry{}, false
}

// Len reports the entry count, for metrics.
func (r *SortedRun) Len() int { return len(r.entries) }
