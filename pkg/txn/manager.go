package txn

import (
	"sync"
	"time"

	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/lock"
	"github.com/nainya/corekv/pkg/logapply"
	"github.com/nainya/corekv/pkg/pagepool"
	"github.com/nainya/corekv/pkg/wal"
	"github.com/nainya/corekv/pkg/walrec"
)

// Status is a transaction's lifecycle state (spec.md §3).
type Status uint8

const (
	StatusRunning Status = iota
	StatusCommitted
	StatusAborted
)

// Transaction is the handle higher layers obtain from Manager.Begin and
// pass to every page-mutating operation until Precommit or Abort.
type Transaction struct {
	ID      common.TxnID
	Status  Status
	PrevLSN common.LSN

	ReadSet  map[common.RowPosition]struct{}
	WriteSet map[common.RowPosition]struct{}

	// mu serializes operations on this transaction: "a transaction may
	// only be used by one caller at a time" (spec.md §3).
	mu sync.Mutex
}

func newTransaction(id common.TxnID) *Transaction {
	return &Transaction{
		ID:       id,
		Status:   StatusRunning,
		ReadSet:  make(map[common.RowPosition]struct{}),
		WriteSet: make(map[common.RowPosition]struct{}),
	}
}

// Manager is the Transaction Manager (spec.md component E).
type Manager struct {
	mu     sync.Mutex // transaction_table_lock: protects active + nextID
	active map[common.TxnID]*Transaction
	nextID uint64

	wal    *wal.WAL
	locks  *lock.Manager
	pool   *pagepool.Pool
	metric metricSink
}

// metricSink is the minimal surface the transaction manager needs from
// internal/metrics, kept here as a small interface so this package
// doesn't depend on the metrics package's concrete type.
type metricSink interface {
	RecordLockGrant(kind string)
	RecordLockConflict(kind string)
}

// noopMetrics satisfies metricSink when the caller doesn't wire one.
type noopMetrics struct{}

func (noopMetrics) RecordLockGrant(string)    {}
func (noopMetrics) RecordLockConflict(string) {}

// New creates a transaction manager over wal, locks and pool. Per
// spec.md §9's fixed construction order, the caller constructs wal and
// pool before this manager.
func New(w *wal.WAL, locks *lock.Manager, pool *pagepool.Pool) *Manager {
	return &Manager{
		active: make(map[common.TxnID]*Transaction),
		wal:    w,
		locks:  locks,
		pool:   pool,
		metric: noopMetrics{},
	}
}

// SetMetrics installs m as the manager's metric sink (used by
// pkg/database wiring to plug in internal/metrics).
func (m *Manager) SetMetrics(s metricSink) { m.metric = s }

// Begin assigns a fresh txn id, appends a begin record, and registers
// the transaction in the active-transaction table.
func (m *Manager) Begin() (*Transaction, error) {
	m.mu.Lock()
	m.nextID++
	id := common.TxnID(m.nextID)
	txn := newTransaction(id)
	m.active[id] = txn
	m.mu.Unlock()

	rec := &walrec.Record{Kind: walrec.KindBegin, TxnID: id, PrevLSN: common.InvalidLSN}
	lsn, err := m.wal.Append(rec.Encode())
	if err != nil {
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
		return nil, err
	}
	txn.PrevLSN = lsn
	return txn, nil
}

// Active returns every transaction still running, for the checkpoint
// manager's active-transaction-table snapshot.
func (m *Manager) Active() []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Transaction, 0, len(m.active))
	for _, t := range m.active {
		out = append(out, t)
	}
	return out
}

// Resurrect reinstates a transaction found running (a "loser") by
// recovery's analysis pass into the active table, so the ordinary Abort
// path can undo it exactly as it would a live transaction's abort. Only
// called by recovery.Manager's undo pass, before normal traffic starts.
func (m *Manager) Resurrect(id common.TxnID, prevLSN common.LSN) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := newTransaction(id)
	txn.PrevLSN = prevLSN
	m.active[id] = txn
	if uint64(id) > m.nextID {
		m.nextID = uint64(id)
	}
	return txn
}

// Lookup returns the active transaction with the given id, if any.
func (m *Manager) Lookup(id common.TxnID) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.active[id]
	return t, ok
}

// Snapshot builds the active-transaction-table entries the checkpoint
// manager writes into an end-checkpoint record (spec.md §4.G).
func (m *Manager) Snapshot() []walrec.ActiveTxnEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]walrec.ActiveTxnEntry, 0, len(m.active))
	for _, t := range m.active {
		t.mu.Lock()
		out = append(out, walrec.ActiveTxnEntry{TxnID: t.ID, Status: byte(t.Status), PrevLSN: t.PrevLSN})
		t.mu.Unlock()
	}
	return out
}

// Precommit appends the commit record, releases every lock the
// transaction holds, and removes it from the active table. It returns
// the commit record's LSN without waiting for it to be durable — callers
// that need synchronous durability call CommitWait afterward (spec.md
// §4.E's "flush pipelining").
func (m *Manager) Precommit(txn *Transaction) (common.LSN, error) {
	txn.mu.Lock()
	if txn.Status != StatusRunning {
		txn.mu.Unlock()
		return 0, ErrNotActive
	}
	rec := &walrec.Record{Kind: walrec.KindCommit, TxnID: txn.ID, PrevLSN: txn.PrevLSN}
	lsn, err := m.wal.Append(rec.Encode())
	if err != nil {
		txn.mu.Unlock()
		return 0, err
	}
	txn.PrevLSN = lsn
	txn.Status = StatusCommitted
	txn.mu.Unlock()

	m.locks.ReleaseAll(txn.ID)
	m.mu.Lock()
	delete(m.active, txn.ID)
	m.mu.Unlock()
	return lsn, nil
}

// CommitWait blocks until the WAL's committed LSN has caught up to
// txn's last LSN, giving the caller a synchronous durability guarantee
// (spec.md §5's "commit durability").
func (m *Manager) CommitWait(txn *Transaction) error {
	target := txn.PrevLSN
	for m.wal.CommittedLSN() < target {
		time.Sleep(time.Millisecond)
	}
	return nil
}

// Abort walks txn's prev_lsn chain from the most recent record
// backward, emitting a compensation record (and applying its redo to
// the live page) for every non-CLR entry, then releases all locks and
// removes the transaction from the active table (spec.md §4.E).
func (m *Manager) Abort(txn *Transaction) error {
	txn.mu.Lock()
	if txn.Status != StatusRunning {
		txn.mu.Unlock()
		return ErrNotActive
	}
	txn.mu.Unlock()

	// The chain is read back from the log's segment files, so wait until
	// the transaction's latest record has been flushed there.
	for m.wal.CommittedLSN() <= txn.PrevLSN {
		time.Sleep(time.Millisecond)
	}

	lsn := txn.PrevLSN
	for lsn != common.InvalidLSN {
		rec, err := wal.ReadRecordAt(m.wal, lsn)
		if err != nil {
			return err
		}
		if rec.Kind != walrec.KindBegin && !rec.IsCLR() {
			if err := m.compensate(txn, rec); err != nil {
				return err
			}
		}
		lsn = rec.PrevLSN
	}

	abortRec := &walrec.Record{Kind: walrec.KindAbort, TxnID: txn.ID, PrevLSN: txn.PrevLSN}
	finalLSN, err := m.wal.Append(abortRec.Encode())
	if err != nil {
		return err
	}

	txn.mu.Lock()
	txn.PrevLSN = finalLSN
	txn.Status = StatusAborted
	txn.mu.Unlock()

	m.locks.ReleaseAll(txn.ID)
	m.mu.Lock()
	delete(m.active, txn.ID)
	m.mu.Unlock()
	return nil
}

// compensate emits the CLR for rec and applies its redo-only effect to
// the affected page immediately (so the running transaction's abort is
// visible right away, not only after a future recovery pass).
func (m *Manager) compensate(txn *Transaction, rec *walrec.Record) error {
	clrKind, hasDedicated := walrec.CompensationKind(rec.Kind)
	if !hasDedicated {
		clrKind = rec.Kind
	}

	txn.mu.Lock()
	clr := &walrec.Record{
		Kind:           clrKind,
		TxnID:          txn.ID,
		PrevLSN:        txn.PrevLSN,
		PageID:         rec.PageID,
		Slot:           rec.Slot,
		Key:            rec.Key,
		Redo:           rec.Undo,
		CompensatedLSN: rec.LSN,
	}
	lsn, err := m.wal.Append(clr.Encode())
	if err != nil {
		txn.mu.Unlock()
		return err
	}
	txn.PrevLSN = lsn
	txn.mu.Unlock()
	clr.LSN = lsn

	ref, err := m.pool.GetPage(rec.PageID)
	if err != nil {
		return err
	}
	defer ref.Release()
	if err := logapply.Redo(ref.Page(), clr); err != nil {
		return err
	}
	ref.Page().MarkDirty(lsn)
	return nil
}
