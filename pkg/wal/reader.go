package wal

import (
	"io"
	"os"

	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/walrec"
)

// Reader sequentially decodes records from a list of segment files,
// stamping each with its absolute LSN (segment start + in-file offset).
// Grounded on the teacher's pkg/wal/reader.go (per-file cursor,
// corruption-tolerant skip-and-resync) generalized to walrec's
// variable-header framing and to segments named by starting LSN rather
// than by sequential index.
type Reader struct {
	segs    []segment
	current int
	fd      *os.File
	pos     common.LSN // absolute LSN of the reader's position in the current file
}

// NewReader opens a reader over the WAL's on-disk segments, oldest first.
func NewReader(w *WAL) (*Reader, error) {
	segs, err := listSegments(w.cfg.Dir)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, ErrNoSegments
	}
	r := &Reader{segs: segs}
	if err := r.openCurrent(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) openCurrent() error {
	fd, err := os.Open(r.segs[r.current].path)
	if err != nil {
		return err
	}
	r.fd = fd
	r.pos = r.segs[r.current].startLSN
	return nil
}

// Next returns the next record in LSN order, or io.EOF once every
// segment is exhausted. Corrupted or truncated frames are skipped by
// advancing one byte at a time until a valid header is found again,
// mirroring the teacher's resynchronization strategy.
func (r *Reader) Next() (*walrec.Record, error) {
	for {
		rec, err := r.readOneFromCurrent()
		if err == nil {
			return rec, nil
		}
		if err == io.EOF {
			if nerr := r.nextFile(); nerr != nil {
				return nil, nerr
			}
			continue
		}
		if err == walrec.ErrCorrupted || err == walrec.ErrTruncated {
			bad := r.pos
			if serr := r.fd.Close(); serr != nil {
				return nil, serr
			}
			if oerr := r.openCurrent(); oerr != nil {
				return nil, oerr
			}
			if _, serr := r.fd.Seek(int64(bad-r.segs[r.current].startLSN)+1, io.SeekStart); serr != nil {
				return nil, serr
			}
			r.pos = bad + 1
			continue
		}
		return nil, err
	}
}

func (r *Reader) readOneFromCurrent() (*walrec.Record, error) {
	header := make([]byte, walrec.HeaderSize)
	if _, err := io.ReadFull(r.fd, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	trailing, err := walrec.TrailingLen(header)
	if err != nil {
		return nil, err
	}

	full := make([]byte, walrec.HeaderSize+trailing)
	copy(full, header)
	if _, err := io.ReadFull(r.fd, full[walrec.HeaderSize:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	rec, err := walrec.Decode(full, r.pos)
	if err != nil {
		return nil, err
	}
	r.pos += common.LSN(len(full))
	return rec, nil
}

func (r *Reader) nextFile() error {
	if r.fd != nil {
		r.fd.Close()
		r.fd = nil
	}
	r.current++
	if r.current >= len(r.segs) {
		return io.EOF
	}
	return r.openCurrent()
}

// Close releases the reader's open file handle.
func (r *Reader) Close() error {
	if r.fd != nil {
		return r.fd.Close()
	}
	return nil
}

// ReadRecordAt performs a random-access read of the single record
// starting at lsn. Used by the undo pass (both a live transaction's
// abort and crash recovery) to walk a transaction's prev_lsn chain
// without scanning the whole log.
func ReadRecordAt(w *WAL, lsn common.LSN) (*walrec.Record, error) {
	segs, err := listSegments(w.cfg.Dir)
	if err != nil {
		return nil, err
	}
	seg, ok := segmentContaining(segs, lsn)
	if !ok {
		return nil, ErrNoSegments
	}

	fd, err := os.Open(seg.path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if _, err := fd.Seek(int64(lsn-seg.startLSN), io.SeekStart); err != nil {
		return nil, err
	}

	header := make([]byte, walrec.HeaderSize)
	if _, err := io.ReadFull(fd, header); err != nil {
		return nil, err
	}
	trailing, err := walrec.TrailingLen(header)
	if err != nil {
		return nil, err
	}
	full := make([]byte, walrec.HeaderSize+trailing)
	copy(full, header)
	if _, err := io.ReadFull(fd, full[walrec.HeaderSize:]); err != nil {
		return nil, err
	}
	return walrec.Decode(full, lsn)
}

// segmentContaining returns the last segment whose startLSN is ≤ lsn.
func segmentContaining(segs []segment, lsn common.LSN) (segment, bool) {
	best := -1
	for i, s := range segs {
		if s.startLSN <= lsn {
			best = i
		} else {
			break
		}
	}
	if best < 0 {
		return segment{}, false
	}
	return segs[best], true
}

// ReadAll drains every record from the WAL's current segments, in LSN
// order. Intended for recovery's analysis pass.
func ReadAll(w *WAL) ([]*walrec.Record, error) {
	r, err := NewReader(w)
	if err == ErrNoSegments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []*walrec.Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
