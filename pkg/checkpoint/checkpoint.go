// Package checkpoint implements the Checkpoint Manager (spec.md
// component G): a periodic background fuzzy checkpoint that snapshots
// the dirty-page table and active-transaction table into the WAL
// without blocking in-flight transactions, then prunes log segments
// recovery no longer needs.
//
// Grounded on pkg/wal.WAL's own background loop (run/flushOnce, a
// ticker plus a stopCh/doneCh pair for graceful shutdown) generalized
// from "flush the ring buffer" to "take a fuzzy checkpoint".
package checkpoint

import (
	"sync"
	"time"

	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/pagepool"
	"github.com/nainya/corekv/pkg/txn"
	"github.com/nainya/corekv/pkg/wal"
	"github.com/nainya/corekv/pkg/walrec"
)

// DefaultInterval is how often the background loop takes a checkpoint
// when Config.Interval is left unset.
const DefaultInterval = 30 * time.Second

// Config configures a checkpoint manager.
type Config struct {
	Interval time.Duration
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
}

// logSink is the minimal surface this package needs from internal/logger,
// kept as a small interface so this package doesn't import it directly.
type logSink interface {
	LogCheckpoint(beginLSN, endLSN uint64, dptSize, attSize int, duration time.Duration)
}

type noopLog struct{}

func (noopLog) LogCheckpoint(uint64, uint64, int, int, time.Duration) {}

// Status is a snapshot of the most recent checkpoint, for the admin
// RPC surface's checkpoint status call.
type Status struct {
	LastBeginLSN   uint64
	LastEndLSN     uint64
	DirtyPageCount int
	ActiveTxnCount int
	LastDuration   time.Duration
}

// Manager is the Checkpoint Manager.
type Manager struct {
	cfg  Config
	wal  *wal.WAL
	pool *pagepool.Pool
	txns *txn.Manager
	log  logSink

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	lastStat Status
}

// Status returns a snapshot of the most recently completed checkpoint.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastStat
}

// New creates a checkpoint manager over an already-running WAL, page
// pool, and transaction manager, per spec.md §9's construction order
// (the checkpoint manager is the last component built, after recovery
// has run once).
func New(w *wal.WAL, pool *pagepool.Pool, txns *txn.Manager, cfg Config) *Manager {
	cfg.setDefaults()
	return &Manager{cfg: cfg, wal: w, pool: pool, txns: txns, log: noopLog{}}
}

// SetLogger installs l as the manager's log sink (used by pkg/database
// wiring to plug in internal/logger).
func (m *Manager) SetLogger(l logSink) { m.log = l }

// Start launches the background checkpoint loop. A no-op if already
// started.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run(m.stopCh, m.doneCh)
}

func (m *Manager) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Checkpoint()
		case <-stopCh:
			return
		}
	}
}

// Stop ends the background loop without taking a final checkpoint. A
// no-op if not started.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// Checkpoint performs one fuzzy checkpoint immediately: write a begin
// marker, snapshot the dirty-page and active-transaction tables (both
// may be slightly stale by the time the end marker lands — that
// staleness is what makes it "fuzzy", and recovery's analysis pass
// tolerates it by construction), write an end marker carrying both
// snapshots, then prune every WAL segment no future recovery could
// need.
func (m *Manager) Checkpoint() error {
	start := time.Now()

	beginRec := &walrec.Record{Kind: walrec.KindBeginCheckpoint}
	beginLSN, err := m.wal.Append(beginRec.Encode())
	if err != nil {
		return err
	}

	dirty := m.pool.DirtyPages()
	dpt := make([]walrec.DirtyPageEntry, len(dirty))
	for i, d := range dirty {
		dpt[i] = walrec.DirtyPageEntry{PageID: d.PageID, RecoveryLSN: d.RecoveryLSN}
	}
	att := m.txns.Snapshot()

	endRec := &walrec.Record{
		Kind: walrec.KindEndCheckpoint,
		Aux:  walrec.EncodeCheckpointSnapshot(dpt, att),
	}
	endLSN, err := m.wal.Append(endRec.Encode())
	if err != nil {
		return err
	}

	prune := beginLSN
	for _, d := range dpt {
		if d.RecoveryLSN < prune {
			prune = d.RecoveryLSN
		}
	}
	for _, a := range att {
		if a.PrevLSN != common.InvalidLSN && a.PrevLSN < prune {
			prune = a.PrevLSN
		}
	}
	if err := m.wal.PruneBefore(prune); err != nil {
		return err
	}

	duration := time.Since(start)
	m.mu.Lock()
	m.lastStat = Status{
		LastBeginLSN:   uint64(beginLSN),
		LastEndLSN:     uint64(endLSN),
		DirtyPageCount: len(dpt),
		ActiveTxnCount: len(att),
		LastDuration:   duration,
	}
	m.mu.Unlock()

	m.log.LogCheckpoint(uint64(beginLSN), uint64(endLSN), len(dpt), len(att), duration)
	return nil
}
