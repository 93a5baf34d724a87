package lock

import (
	"sync"

	"github.com/nainya/corekv/pkg/common"
)

// Manager is the Lock Manager: row-granularity S/X locks with a single
// internal mutex, per spec.md §4.D.
type Manager struct {
	mu sync.Mutex

	// shared holds, for each locked row position, the set of txns
	// holding a shared lock on it (a multiset keyed by position).
	shared map[common.RowPosition]map[common.TxnID]struct{}

	// exclusive holds the single txn holding an exclusive lock on a
	// row position, if any.
	exclusive map[common.RowPosition]common.TxnID
}

// New creates an empty lock table.
func New() *Manager {
	return &Manager{
		shared:    make(map[common.RowPosition]map[common.TxnID]struct{}),
		exclusive: make(map[common.RowPosition]common.TxnID),
	}
}

// GetShared acquires a shared lock on pos for txn. Succeeds iff no
// exclusive holder currently exists (other than txn itself).
func (m *Manager) GetShared(txn common.TxnID, pos common.RowPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if holder, ok := m.exclusive[pos]; ok && holder != txn {
		return ErrWouldBlock
	}
	holders := m.shared[pos]
	if holders == nil {
		holders = make(map[common.TxnID]struct{})
		m.shared[pos] = holders
	}
	holders[txn] = struct{}{}
	return nil
}

// ReleaseShared drops txn's shared lock on pos, if held.
func (m *Manager) ReleaseShared(txn common.TxnID, pos common.RowPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseSharedLocked(txn, pos)
}

func (m *Manager) releaseSharedLocked(txn common.TxnID, pos common.RowPosition) {
	holders := m.shared[pos]
	if holders == nil {
		return
	}
	delete(holders, txn)
	if len(holders) == 0 {
		delete(m.shared, pos)
	}
}

// GetExclusive acquires an exclusive lock on pos for txn. Succeeds iff
// no shared holder other than txn, and no other exclusive holder,
// currently exists.
func (m *Manager) GetExclusive(txn common.TxnID, pos common.RowPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if holder, ok := m.exclusive[pos]; ok && holder != txn {
		return ErrWouldBlock
	}
	for holder := range m.shared[pos] {
		if holder != txn {
			return ErrWouldBlock
		}
	}
	m.exclusive[pos] = txn
	return nil
}

// ReleaseExclusive drops txn's exclusive lock on pos, if held.
func (m *Manager) ReleaseExclusive(txn common.TxnID, pos common.RowPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if holder, ok := m.exclusive[pos]; ok && holder == txn {
		delete(m.exclusive, pos)
	}
}

// TryUpgrade atomically drops txn's shared lock on pos and acquires the
// exclusive lock, iff no other shared holder exists. On failure, txn's
// shared lock is left untouched.
func (m *Manager) TryUpgrade(txn common.TxnID, pos common.RowPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for holder := range m.shared[pos] {
		if holder != txn {
			return ErrWouldBlock
		}
	}
	if holder, ok := m.exclusive[pos]; ok && holder != txn {
		return ErrWouldBlock
	}
	m.releaseSharedLocked(txn, pos)
	m.exclusive[pos] = txn
	return nil
}

// ReleaseAll drops every lock (shared and exclusive) held by txn,
// called by the transaction manager at precommit and abort.
func (m *Manager) ReleaseAll(txn common.TxnID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pos, holder := range m.exclusive {
		if holder == txn {
			delete(m.exclusive, pos)
		}
	}
	for pos, holders := range m.shared {
		delete(holders, txn)
		if len(holders) == 0 {
			delete(m.shared, pos)
		}
	}
}
