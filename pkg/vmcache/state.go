package vmcache

import "sync/atomic"

// blockState is one cell of the per-block atomic state machine
// (spec.md §4.I): evicted, locked, unlocked, marked, locked_accessed,
// unlocked_accessed.
type blockState uint32

const (
	stateEvicted blockState = iota
	stateLocked
	stateUnlocked
	stateMarked
	stateLockedAccessed
	stateUnlockedAccessed
)

// cell is one block's atomic state, CAS-driven so fix/unfix never take
// a lock per block (only the queue structures are serialized, by
// queue_lock).
type cell struct {
	state atomic.Uint32
}

func (c *cell) load() blockState { return blockState(c.state.Load()) }

func (c *cell) cas(from, to blockState) bool {
	return c.state.CompareAndSwap(uint32(from), uint32(to))
}

// accessed reports whether s carries the "accessed" bit set by a
// repeated access on a resident block.
func (s blockState) accessed() bool {
	return s == stateLockedAccessed || s == stateUnlockedAccessed
}

// resident reports whether a block currently holds faulted-in data
// (anything but evicted or the momentary marked state).
func (s blockState) resident() bool {
	return s == stateUnlocked || s == stateUnlockedAccessed || s == stateLocked || s == stateLockedAccessed
}
