package lsm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// blobReader is the read side a sorted run needs from a blob file: a
// big-endian length-prefixed frame at a known byte offset. The VM
// Cache (spec.md §4.I) is an mmap-backed implementation of exactly
// this interface for immutable, already-sealed blob files; BlobFile
// itself is the plain os.File-backed implementation used while a blob
// file is still being appended to by the active generation.
type blobReader interface {
	ReadFrame(offset uint64) ([]byte, error)
}

// BlobFile is the append-only framed store backing keys and values
// that spill past a sorted run entry's inline thresholds (spec.md §6
// "Blob file"). Each frame is {len(u32, big-endian), payload}; offsets
// recorded in sorted-run entries point at the start of a frame.
type BlobFile struct {
	mu   sync.Mutex
	f    *os.File
	size int64
}

// OpenBlobFile opens (creating if absent) the blob file at path,
// positioned for further appends after whatever frames it already
// holds.
func OpenBlobFile(path string) (*BlobFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &BlobFile{f: f, size: info.Size()}, nil
}

// Append writes payload as a new frame and returns its offset.
func (b *BlobFile) Append(payload []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	offset := b.size

	if _, err := b.f.WriteAt(hdr[:], offset); err != nil {
		return 0, err
	}
	if _, err := b.f.WriteAt(payload, offset+4); err != nil {
		return 0, err
	}
	b.size += 4 + int64(len(payload))
	return uint64(offset), nil
}

// ReadFrame reads the frame starting at offset.
func (b *BlobFile) ReadFrame(offset uint64) ([]byte, error) {
	var hdr [4]byte
	if _, err := b.f.ReadAt(hdr[:], int64(offset)); err != nil {
		return nil, fmt.Errorf("lsm: read blob frame header at %d: %w", offset, err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	payload := make([]byte, n)
	if _, err := b.f.ReadAt(payload, int64(offset)+4); err != nil && err != io.EOF {
		return nil, fmt.Errorf("lsm: read blob frame payload at %d: %w", offset, err)
	}
	return payload, nil
}

// Close releases the underlying file descriptor.
func (b *BlobFile) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.f.Close()
}
