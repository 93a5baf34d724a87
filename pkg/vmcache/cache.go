// Package vmcache implements the VM Cache (spec.md component I): a
// read-only, mmap-backed block cache for the immutable blob files
// LSM sorted runs spill long keys/values into, admitting and evicting
// blocks under the S3-FIFO policy (small/main/ghost queues).
//
// Grounded on the teacher pack's platform-specific mmap wrappers
// (sharvitKashikar-FiloDB's filodb_mmap_*.go, which gate
// golang.org/x/sys/unix/syscall mmap calls behind build tags per OS);
// this package follows the same split, reserving an anonymous,
// unbacked region with golang.org/x/sys/unix.Mmap and faulting blocks
// in by hand with pread, exactly as spec.md §4.I describes.
package vmcache

import (
	"encoding/binary"
	"os"
	"runtime"
	"sync"
)

const (
	// DefaultBlockSize is the cache's block granularity.
	DefaultBlockSize = 4096

	// DefaultGhostCapBlocks bounds how many recently-evicted block
	// indices the ghost queue remembers.
	DefaultGhostCapBlocks = 1024
)

// Config configures a Cache over one blob file.
type Config struct {
	Path           string
	BlockSize      int
	SmallCapBlocks int
	MainCapBlocks  int
	GhostCapBlocks int
}

func (c *Config) setDefaults() {
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.SmallCapBlocks <= 0 {
		c.SmallCapBlocks = 64
	}
	if c.MainCapBlocks <= 0 {
		c.MainCapBlocks = 192
	}
	if c.GhostCapBlocks <= 0 {
		c.GhostCapBlocks = DefaultGhostCapBlocks
	}
}

type metricSink interface {
	RecordVMCacheFault()
	RecordVMCacheEviction()
	RecordVMCacheGhostHit()
}

type noopMetrics struct{}

func (noopMetrics) RecordVMCacheFault()   {}
func (noopMetrics) RecordVMCacheEviction() {}
func (noopMetrics) RecordVMCacheGhostHit() {}

// Cache is the VM Cache.
type Cache struct {
	file      *os.File
	fileSize  int64
	blockSize int
	region    []byte
	cells     []cell

	queueMu  sync.Mutex
	small    fifo
	main     fifo
	ghost    *ghostSet
	smallCap int
	mainCap  int

	metrics metricSink
}

// Open maps an anonymous region sized to cfg.Path's block count and
// prepares the cache to fault blocks in from it on demand.
func Open(cfg Config) (*Cache, error) {
	cfg.setDefaults()

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	blocks := int((info.Size() + int64(cfg.BlockSize) - 1) / int64(cfg.BlockSize))
	if blocks == 0 {
		blocks = 1
	}
	region, err := mapAnonRegion(blocks * cfg.BlockSize)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Cache{
		file:      f,
		fileSize:  info.Size(),
		blockSize: cfg.BlockSize,
		region:    region,
		cells:     make([]cell, blocks),
		ghost:     newGhostSet(cfg.GhostCapBlocks),
		smallCap:  cfg.SmallCapBlocks,
		mainCap:   cfg.MainCapBlocks,
		metrics:   noopMetrics{},
	}, nil
}

// SetMetrics installs m as the cache's metric sink.
func (c *Cache) SetMetrics(m metricSink) { c.metrics = m }

// Close unmaps the region and closes the underlying file.
func (c *Cache) Close() error {
	if err := unmapRegion(c.region); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}

// Read returns a copy of block blockIdx's bytes, faulting it in if
// necessary.
func (c *Cache) Read(blockIdx uint64) ([]byte, error) {
	if blockIdx >= uint64(len(c.cells)) {
		return nil, ErrOutOfRange
	}
	if err := c.fix(blockIdx); err != nil {
		return nil, err
	}
	defer c.unfix(blockIdx)

	start := int(blockIdx) * c.blockSize
	end := start + c.blockSize
	if end > len(c.region) {
		end = len(c.region)
	}
	out := make([]byte, end-start)
	copy(out, c.region[start:end])
	return out, nil
}

// ReadAt returns length bytes starting at byte offset, spanning
// blocks as needed.
func (c *Cache) ReadAt(offset uint64, length int) ([]byte, error) {
	if int64(offset)+int64(length) > c.fileSize {
		return nil, ErrOutOfRange
	}
	out := make([]byte, length)
	pos, written := offset, 0
	for written < length {
		blockIdx := pos / uint64(c.blockSize)
		blockOff := int(pos % uint64(c.blockSize))
		block, err := c.Read(blockIdx)
		if err != nil {
			return nil, err
		}
		n := copy(out[written:], block[blockOff:])
		written += n
		pos += uint64(n)
	}
	return out, nil
}

// ReadFrame reads the big-endian length-prefixed frame at offset,
// satisfying the same shape pkg/lsm's BlobFile exposes so a Cache can
// stand in for it once a sorted run's blob file is sealed and
// immutable.
func (c *Cache) ReadFrame(offset uint64) ([]byte, error) {
	hdr, err := c.ReadAt(offset, 4)
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr)
	return c.ReadAt(offset+4, int(n))
}

// fix faults blockIdx in if evicted (promoting straight to main on a
// ghost hit), or marks it accessed if already resident, leaving it in
// a locked* state until unfix.
func (c *Cache) fix(idx uint64) error {
	cl := &c.cells[idx]
	for {
		switch cl.load() {
		case stateEvicted:
			if cl.cas(stateEvicted, stateLocked) {
				if err := c.faultIn(idx); err != nil {
					cl.state.Store(uint32(stateEvicted))
					return err
				}
				c.admit(idx)
				return nil
			}
		case stateUnlocked:
			if cl.cas(stateUnlocked, stateLockedAccessed) {
				return nil
			}
		case stateUnlockedAccessed:
			if cl.cas(stateUnlockedAccessed, stateLockedAccessed) {
				return nil
			}
		default:
			runtime.Gosched()
		}
	}
}

func (c *Cache) unfix(idx uint64) {
	cl := &c.cells[idx]
	for {
		switch cl.load() {
		case stateLocked:
			if cl.cas(stateLocked, stateUnlocked) {
				return
			}
		case stateLockedAccessed:
			if cl.cas(stateLockedAccessed, stateUnlockedAccessed) {
				return
			}
		default:
			return
		}
	}
}

func (c *Cache) faultIn(idx uint64) error {
	start := int64(idx) * int64(c.blockSize)
	end := start + int64(c.blockSize)
	if end > c.fileSize {
		end = c.fileSize
	}
	if end <= start {
		return nil
	}
	_, err := c.file.ReadAt(c.region[start:end], start)
	return err
}

// admit places a freshly-faulted block onto small, or onto main
// directly if it was a ghost hit, then runs whichever queue's
// eviction policy in response to the resulting overflow.
func (c *Cache) admit(idx uint64) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if c.ghost.contains(idx) {
		c.ghost.remove(idx)
		c.main.push(idx)
		c.metrics.RecordVMCacheGhostHit()
		c.evictMainLocked()
	} else {
		c.small.push(idx)
		c.evictSmallLocked()
	}
	c.metrics.RecordVMCacheFault()
}

// evictSmallLocked pops small's head while it overflows: an unlocked
// block is marked and discarded into the ghost queue; an accessed
// block is promoted to main (its accessed bit consumed). A pinned
// block cannot be evicted and is requeued, per spec.md §4.I.
func (c *Cache) evictSmallLocked() {
	for attempts := c.small.len(); c.small.len() > c.smallCap && attempts > 0; attempts-- {
		idx, ok := c.small.pop()
		if !ok {
			return
		}
		cl := &c.cells[idx]
		switch cl.load() {
		case stateUnlockedAccessed:
			if cl.cas(stateUnlockedAccessed, stateUnlocked) {
				c.main.push(idx)
				c.evictMainLocked()
				continue
			}
			c.small.push(idx)
		case stateUnlocked:
			if cl.cas(stateUnlocked, stateMarked) {
				discardRegion(c.region, int(idx)*c.blockSize, c.blockSize)
				cl.state.Store(uint32(stateEvicted))
				c.ghost.add(idx)
				c.metrics.RecordVMCacheEviction()
				continue
			}
			c.small.push(idx)
		default:
			// pinned by a reader right now; give it another lap.
			c.small.push(idx)
		}
	}
}

func (c *Cache) evictMainLocked() {
	for attempts := c.main.len(); c.main.len() > c.mainCap && attempts > 0; attempts-- {
		idx, ok := c.main.pop()
		if !ok {
			return
		}
		cl := &c.cells[idx]
		switch cl.load() {
		case stateUnlockedAccessed:
			if cl.cas(stateUnlockedAccessed, stateUnlocked) {
				c.main.push(idx) // second chance
				continue
			}
			c.main.push(idx)
		case stateUnlocked:
			if cl.cas(stateUnlocked, stateMarked) {
				discardRegion(c.region, int(idx)*c.blockSize, c.blockSize)
				cl.state.Store(uint32(stateEvicted))
				c.ghost.add(idx)
				c.metrics.RecordVMCacheEviction()
				continue
			}
			c.main.push(idx)
		default:
			c.main.push(idx)
		}
	}
}
