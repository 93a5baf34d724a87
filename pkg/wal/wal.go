package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nainya/corekv/pkg/common"
)

const (
	// DefaultRingSize is the in-memory producer/consumer buffer size.
	DefaultRingSize = 4 << 20 // 4 MiB

	// DefaultMaxSegmentSize bounds a single on-disk log segment, after
	// which the writer rotates to a new file (mirrors the teacher's
	// MaxLogFileSize, here scaled to exercise rotation directly rather
	// than leaning on 100MB files that rarely roll over in tests).
	DefaultMaxSegmentSize = 16 << 20

	// pollInterval is how often the background worker checks for
	// unflushed bytes, per spec.md §4.A ("polls every ~1 ms").
	pollInterval = time.Millisecond

	segmentFilePrefix = "wal"
)

// metricSink is the minimal surface the log writer needs from
// internal/metrics, kept as a small interface so this package doesn't
// depend on the metrics package's concrete type.
type metricSink interface {
	RecordWALAppend(n int)
	RecordWALFsync(d time.Duration)
}

// noopMetrics satisfies metricSink when the caller doesn't wire one.
type noopMetrics struct{}

func (noopMetrics) RecordWALAppend(int)           {}
func (noopMetrics) RecordWALFsync(time.Duration)  {}

// Config configures a WAL instance.
type Config struct {
	Dir            string
	RingSize       int
	MaxSegmentSize int64
	SegmentsToKeep int // retained by rotation; 0 = unbounded, checkpoint owns real pruning
}

func (c *Config) setDefaults() {
	if c.RingSize <= 0 {
		c.RingSize = DefaultRingSize
	}
	if c.MaxSegmentSize <= 0 {
		c.MaxSegmentSize = DefaultMaxSegmentSize
	}
}

// WAL is the Log Writer.
type WAL struct {
	cfg Config

	enqueueMu sync.Mutex // serializes Append so LSNs are assigned in ascending order

	mu          sync.Mutex // protects everything below
	ring        []byte
	producedLSN common.LSN // next LSN to hand out
	bufferedLSN common.LSN // bytes copied into the ring, pending write()
	flushedLSN  common.LSN // durable: written() and synced

	fd          *os.File
	fileBaseLSN common.LSN   // LSN at which the currently open segment begins
	rotations   []common.LSN // pending segment-boundary LSNs, ascending

	closed bool
	stopCh chan struct{}
	doneCh chan struct{}

	metrics metricSink
}

// SetMetrics installs m as the WAL's metric sink (used by pkg/database
// wiring to plug in internal/metrics).
func (w *WAL) SetMetrics(m metricSink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.metrics = m
}

// Open opens (creating if necessary) the WAL rooted at cfg.Dir, scanning
// existing segments to resume LSN assignment after a restart.
func Open(cfg Config) (*WAL, error) {
	cfg.setDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	w := &WAL{
		cfg:     cfg,
		ring:    make([]byte, cfg.RingSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		metrics: noopMetrics{},
	}

	segs, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	if len(segs) == 0 {
		fd, err := os.OpenFile(segmentPath(cfg.Dir, 0), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w.fd = fd
	} else {
		last := segs[len(segs)-1]
		fd, err := os.OpenFile(last.path, os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		stat, err := fd.Stat()
		if err != nil {
			fd.Close()
			return nil, err
		}
		w.fd = fd
		w.fileBaseLSN = last.startLSN
		endLSN := last.startLSN + common.LSN(stat.Size())
		w.producedLSN = endLSN
		w.bufferedLSN = endLSN
		w.flushedLSN = endLSN
	}

	go w.run()
	return w, nil
}

// NextLSNHint returns the LSN the next Append call would be assigned,
// without reserving it. Used by components (e.g. the checkpoint
// manager) that need to reason about "current end of log" without
// writing anything themselves.
func (w *WAL) NextLSNHint() common.LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.producedLSN
}

// Append copies data into the ring buffer and returns the LSN (byte
// offset) at which it begins. Blocks, sleeping in short intervals, only
// while the ring buffer has no room for it.
func (w *WAL) Append(data []byte) (common.LSN, error) {
	w.enqueueMu.Lock()
	defer w.enqueueMu.Unlock()

	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return 0, ErrClosed
		}
		used := uint64(w.producedLSN - w.flushedLSN)
		if used+uint64(len(data)) <= uint64(len(w.ring)) {
			break
		}
		w.mu.Unlock()
		time.Sleep(pollInterval)
	}
	defer w.mu.Unlock()

	lsn := w.producedLSN
	w.writeRingLocked(lsn, data)
	w.producedLSN += common.LSN(len(data))

	if w.producedLSN-w.fileBaseLSN > common.LSN(w.cfg.MaxSegmentSize) {
		w.rotations = append(w.rotations, w.producedLSN)
		w.fileBaseLSN = w.producedLSN
	}

	w.bufferedLSN = w.producedLSN
	w.metrics.RecordWALAppend(len(data))
	return lsn, nil
}

// writeRingLocked copies data into the ring at the position implied by
// lsn, wrapping around the end of the buffer. Caller holds w.mu.
func (w *WAL) writeRingLocked(lsn common.LSN, data []byte) {
	capacity := uint64(len(w.ring))
	pos := uint64(lsn) % capacity
	n := copy(w.ring[pos:], data)
	if n < len(data) {
		copy(w.ring[0:], data[n:])
	}
}

// readRingLocked returns a contiguous copy of the ring's bytes in
// [from, to). Caller holds w.mu.
func (w *WAL) readRingLocked(from, to common.LSN) []byte {
	capacity := uint64(len(w.ring))
	n := uint64(to - from)
	out := make([]byte, n)
	start := uint64(from) % capacity
	first := n
	if start+n > capacity {
		first = capacity - start
	}
	copy(out[:first], w.ring[start:start+first])
	if first < n {
		copy(out[first:], w.ring[0:n-first])
	}
	return out
}

// CommittedLSN returns the greatest LSN guaranteed durable.
func (w *WAL) CommittedLSN() common.LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushedLSN
}

func (w *WAL) run() {
	defer close(w.doneCh)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.flushOnce()
		case <-w.stopCh:
			w.flushOnce()
			return
		}
	}
}

// flushOnce writes the contiguous region between flushedLSN and
// bufferedLSN, honoring any pending segment rotation, then syncs.
func (w *WAL) flushOnce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

func (w *WAL) flushLocked() {
	for w.flushedLSN < w.bufferedLSN {
		stop := w.bufferedLSN
		rotateAfter := false
		if len(w.rotations) > 0 && w.rotations[0] <= stop {
			stop = w.rotations[0]
			rotateAfter = true
		}

		if stop > w.flushedLSN {
			chunk := w.readRingLocked(w.flushedLSN, stop)
			if _, err := w.fd.Write(chunk); err != nil {
				// Retried on the next tick; flushedLSN intentionally
				// does not advance, so the bytes stay live in the ring.
				return
			}
			syncStart := time.Now()
			err := w.fd.Sync()
			w.metrics.RecordWALFsync(time.Since(syncStart))
			if err != nil {
				return
			}
			w.flushedLSN = stop
		}

		if rotateAfter {
			w.rotations = w.rotations[1:]
			if err := w.rotateLocked(stop); err != nil {
				return
			}
		}
	}
}

func (w *WAL) rotateLocked(newBaseLSN common.LSN) error {
	if err := w.fd.Sync(); err != nil {
		return err
	}
	if err := w.fd.Close(); err != nil {
		return err
	}
	fd, err := os.OpenFile(segmentPath(w.cfg.Dir, uint64(newBaseLSN)), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.fd = fd
	if w.cfg.SegmentsToKeep > 0 {
		w.pruneLocked()
	}
	return nil
}

func (w *WAL) pruneLocked() {
	segs, err := listSegments(w.cfg.Dir)
	if err != nil || len(segs) <= w.cfg.SegmentsToKeep {
		return
	}
	for _, s := range segs[:len(segs)-w.cfg.SegmentsToKeep] {
		os.Remove(s.path)
	}
}

// PruneBefore removes segments that end strictly before lsn — called by
// the checkpoint manager once a fuzzy checkpoint's begin-checkpoint LSN
// establishes that nothing before it is needed for recovery.
func (w *WAL) PruneBefore(lsn common.LSN) error {
	segs, err := listSegments(w.cfg.Dir)
	if err != nil {
		return err
	}
	for i, s := range segs {
		nextStart := w.NextLSNHint()
		if i+1 < len(segs) {
			nextStart = segs[i+1].startLSN
		}
		if nextStart <= lsn {
			os.Remove(s.path)
		}
	}
	return nil
}

// Finish flushes all buffered bytes (performing a final sync) and stops
// the background worker. The WAL must not be used afterward.
func (w *WAL) Finish() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fd.Sync(); err != nil {
		return err
	}
	return w.fd.Close()
}

// Segments returns the on-disk segment files in ascending LSN order,
// for use by a Reader during recovery or single-page recovery.
func (w *WAL) Segments() ([]string, error) {
	segs, err := listSegments(w.cfg.Dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(segs))
	for i, s := range segs {
		paths[i] = s.path
	}
	return paths, nil
}

type segment struct {
	path     string
	startLSN common.LSN
}

func segmentPath(dir string, startLSN uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%020d", segmentFilePrefix, startLSN))
}

func listSegments(dir string) ([]segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var segs []segment
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var startLSN uint64
		if _, err := fmt.Sscanf(e.Name(), segmentFilePrefix+".%020d", &startLSN); err != nil {
			continue
		}
		segs = append(segs, segment{path: filepath.Join(dir, e.Name()), startLSN: common.LSN(startLSN)})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].startLSN < segs[j].startLSN })
	return segs, nil
}
