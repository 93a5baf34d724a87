// Package lsm implements the LSM Tree (spec.md component J): an
// auxiliary durable key/value store with write-optimised ingest, used
// by components that need a persistent ordered set but not the
// B+-tree's in-place update discipline.
//
// Grounded on pkg/wal's background-loop shape (a ticker plus a
// stopCh/doneCh pair, reused here for both the flusher and merger
// threads) and on pkg/txn's locally-scoped metricSink/logSink
// interfaces for the ambient stack. The in-memory sorted maps are
// backed by github.com/google/btree, promoted here from an indirect
// dependency pulled by the reference pack's raft/bbolt storage stack
// into a direct one: no retrieved repo defines its own ordered map,
// and this is the library the pack's own dependency graph already
// reaches for to solve exactly this problem.
package lsm

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
)

// DefaultFlushInterval and DefaultMergeInterval are the background
// threads' polling periods when Config leaves them unset.
const (
	DefaultFlushInterval = time.Second
	DefaultMergeInterval = 10 * time.Second

	memTreeDegree = 32
)

// Config configures a Tree.
type Config struct {
	Dir           string
	FlushInterval time.Duration
	MergeInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MergeInterval <= 0 {
		c.MergeInterval = DefaultMergeInterval
	}
}

type metricSink interface {
	RecordLSMFlush()
	RecordLSMMerge()
	SetLSMStats(sortedRuns int, memtableBytes int64)
}

type logSink interface {
	LogCompaction(kind string, runsIn, runsOut int, duration time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordLSMFlush()                       {}
func (noopMetrics) RecordLSMMerge()                       {}
func (noopMetrics) SetLSMStats(sortedRuns int, bytes int64) {}

type noopLog struct{}

func (noopLog) LogCompaction(string, int, int, time.Duration, error) {}

// Tree is the LSM Tree.
type Tree struct {
	cfg  Config
	blob *BlobFile

	memMu      sync.Mutex // mem_tree_lock_
	memTree    *btree.BTree
	memBytes   int64
	frozenTree *btree.BTree

	fileMu     sync.Mutex // file_tree_lock_
	runs       []*SortedRun // descending generation order
	generation uint64

	metrics metricSink
	log     logSink

	lifecycleMu sync.Mutex
	started     bool
	flushStop   chan struct{}
	flushDone   chan struct{}
	mergeStop   chan struct{}
	mergeDone   chan struct{}
}

// Open opens (or creates) an LSM tree rooted at cfg.Dir, loading any
// sorted run files already present there in descending generation
// order.
func Open(cfg Config) (*Tree, error) {
	cfg.setDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	blob, err := OpenBlobFile(filepath.Join(cfg.Dir, "blob.dat"))
	if err != nil {
		return nil, err
	}

	t := &Tree{
		cfg:     cfg,
		blob:    blob,
		memTree: btree.New(memTreeDegree),
		metrics: noopMetrics{},
		log:     noopLog{},
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".sr" {
			continue
		}
		run, err := OpenSortedRun(filepath.Join(cfg.Dir, e.Name()), blob)
		if err != nil {
			return nil, err
		}
		t.runs = append(t.runs, run)
		if run.Generation > t.generation {
			t.generation = run.Generation
		}
	}
	sortRunsDescending(t.runs)

	return t, nil
}

// SetMetrics installs m as the tree's metric sink.
func (t *Tree) SetMetrics(m metricSink) { t.metrics = m }

// SetLogger installs l as the tree's log sink.
func (t *Tree) SetLogger(l logSink) { t.log = l }

// Write inserts k/v into the memtable. If flush is true, Sync runs
// immediately afterward.
func (t *Tree) Write(k, v []byte, flush bool) error {
	t.put(k, v, false)
	if flush {
		return t.Sync()
	}
	return nil
}

// Delete inserts a tombstone for k into the memtable.
func (t *Tree) Delete(k []byte) error {
	t.put(k, nil, true)
	return nil
}

func (t *Tree) put(k, v []byte, tombstone bool) {
	item := &memItem{key: append([]byte(nil), k...), value: append([]byte(nil), v...), tombstone: tombstone}
	t.memMu.Lock()
	t.memTree.ReplaceOrInsert(item)
	t.memBytes += int64(len(k) + len(v))
	bytesNow := t.memBytes
	t.memMu.Unlock()
	t.metrics.SetLSMStats(t.runCount(), bytesNow)
}

// Read returns the current value for k, or ErrNotFound if absent or
// tombstoned.
func (t *Tree) Read(k []byte) ([]byte, error) {
	if v, ok := t.lookupMem(k); ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return v, nil
	}

	t.fileMu.Lock()
	runs := t.runs
	t.fileMu.Unlock()
	for _, r := range runs {
		if e, ok := r.lookup(k); ok {
			if e.tombstone {
				return nil, ErrNotFound
			}
			return e.value, nil
		}
	}
	return nil, ErrNotFound
}

// Contains reports whether k currently has a live (non-tombstoned)
// value.
func (t *Tree) Contains(k []byte) bool {
	_, err := t.Read(k)
	return err == nil
}

// lookupMem consults mem_tree then frozen_mem_tree. The bool result
// reports whether k was found at all (tombstone or not); a found
// tombstone is reported as (nil, true).
func (t *Tree) lookupMem(k []byte) ([]byte, bool) {
	t.memMu.Lock()
	defer t.memMu.Unlock()

	if it := t.memTree.Get(keyPivot(k)); it != nil {
		mi := it.(*memItem)
		if mi.tombstone {
			return nil, true
		}
		return mi.value, true
	}
	if t.frozenTree != nil {
		if it := t.frozenTree.Get(keyPivot(k)); it != nil {
			mi := it.(*memItem)
			if mi.tombstone {
				return nil, true
			}
			return mi.value, true
		}
	}
	return nil, false
}

// Sync swaps mem_tree into frozen_mem_tree, serialises the frozen map
// to a new sorted run file, prepends it to the run list, and clears
// the frozen map.
func (t *Tree) Sync() error {
	start := time.Now()

	t.memMu.Lock()
	if t.memTree.Len() == 0 {
		t.memMu.Unlock()
		return nil
	}
	t.frozenTree = t.memTree
	t.memTree = btree.New(memTreeDegree)
	t.memBytes = 0
	frozen := t.frozenTree
	t.memMu.Unlock()

	entries := make([]runEntry, 0, frozen.Len())
	frozen.Ascend(func(i btree.Item) bool {
		mi := i.(*memItem)
		entries = append(entries, runEntry{key: mi.key, value: mi.value, tombstone: mi.tombstone})
		return true
	})

	t.fileMu.Lock()
	t.generation++
	generation := t.generation
	path := filepath.Join(t.cfg.Dir, runFileName(generation, 0))
	err := WriteSortedRun(path, generation, entries, t.blob)
	if err == nil {
		var run *SortedRun
		run, err = OpenSortedRun(path, t.blob)
		if err == nil {
			t.runs = append([]*SortedRun{run}, t.runs...)
		}
	}
	runCount := len(t.runs)
	t.fileMu.Unlock()

	t.memMu.Lock()
	t.frozenTree = nil
	t.memMu.Unlock()

	t.metrics.RecordLSMFlush()
	t.metrics.SetLSMStats(runCount, 0)
	t.log.LogCompaction("flush", 1, 1, time.Since(start), err)
	return err
}

// GetView snapshots the current run list and blob handle for
// independent scanning.
func (t *Tree) GetView() *View {
	t.fileMu.Lock()
	defer t.fileMu.Unlock()
	runs := make([]*SortedRun, len(t.runs))
	copy(runs, t.runs)
	return &View{runs: runs, blob: t.blob}
}

// MergeAll produces one new sorted run from every existing run via a
// k-way merge that drops shadowed and deleted entries, deletes the
// old run files, and installs the merged run.
func (t *Tree) MergeAll() error {
	start := time.Now()

	t.fileMu.Lock()
	oldRuns := make([]*SortedRun, len(t.runs))
	copy(oldRuns, t.runs)
	t.fileMu.Unlock()

	if len(oldRuns) <= 1 {
		return nil
	}

	view := &View{runs: oldRuns, blob: t.blob}
	it := view.NewIterator()

	var merged []runEntry
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}
		merged = append(merged, runEntry{key: k, value: v})
	}

	t.fileMu.Lock()
	t.generation++
	generation := t.generation
	path := filepath.Join(t.cfg.Dir, runFileName(generation, 0))
	err := WriteSortedRun(path, generation, merged, t.blob)
	if err != nil {
		t.fileMu.Unlock()
		return err
	}
	run, err := OpenSortedRun(path, t.blob)
	if err != nil {
		t.fileMu.Unlock()
		return err
	}
	t.runs = []*SortedRun{run}
	t.fileMu.Unlock()

	for _, old := range oldRuns {
		os.Remove(old.Path)
	}

	t.metrics.RecordLSMMerge()
	t.metrics.SetLSMStats(1, 0)
	t.log.LogCompaction("merge", len(oldRuns), 1, time.Since(start), nil)
	return nil
}

func (t *Tree) runCount() int {
	t.fileMu.Lock()
	defer t.fileMu.Unlock()
	return len(t.runs)
}

// Stats is a snapshot of the tree's current shape, for the admin RPC
// surface's LSM stats call.
type Stats struct {
	SortedRunCount int
	MemtableBytes  int64
}

// Stats returns a snapshot of the tree's current sorted-run count and
// unflushed memtable size.
func (t *Tree) Stats() Stats {
	t.memMu.Lock()
	bytes := t.memBytes
	t.memMu.Unlock()
	return Stats{SortedRunCount: t.runCount(), MemtableBytes: bytes}
}

func sortRunsDescending(runs []*SortedRun) {
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j].Generation > runs[j-1].Generation; j-- {
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}
}

// Start launches the background flusher and merger threads. A no-op
// if already started.
func (t *Tree) Start() {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()
	if t.started {
		return
	}
	t.started = true

	t.flushStop, t.flushDone = make(chan struct{}), make(chan struct{})
	t.mergeStop, t.mergeDone = make(chan struct{}), make(chan struct{})

	go t.flushLoop(t.flushStop, t.flushDone)
	go t.mergeLoop(t.mergeStop, t.mergeDone)
}

func (t *Tree) flushLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Sync()
		case <-stop:
			return
		}
	}
}

func (t *Tree) mergeLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.cfg.MergeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.MergeAll()
		case <-stop:
			return
		}
	}
}

// Stop ends both background threads and joins them. A no-op if not
// started.
func (t *Tree) Stop() {
	t.lifecycleMu.Lock()
	if !t.started {
		t.lifecycleMu.Unlock()
		return
	}
	t.started = false
	flushStop, flushDone := t.flushStop, t.flushDone
	mergeStop, mergeDone := t.mergeStop, t.mergeDone
	t.lifecycleMu.Unlock()

	close(flushStop)
	<-flushDone
	close(mergeStop)
	<-mergeDone
}

// Close stops the background threads (if running) and releases the
// blob file handle.
func (t *Tree) Close() error {
	t.Stop()
	return t.blob.Close()
}
