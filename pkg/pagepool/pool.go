package pagepool

import (
	"container/list"
	"io"
	"os"
	"sync"
	"time"

	"github.com/nainya/corekv/pkg/common"
	pg "github.com/nainya/corekv/pkg/page"
)

// CommittedLSNFunc reports the log writer's durable watermark, letting
// the pool enforce the WAL rule on write-back: no page image reaches
// disk with a page_lsn beyond what's actually durable in the log.
type CommittedLSNFunc func() common.LSN

type entry struct {
	pageID   common.PageID
	page     *pg.Page
	pinCount int
	latch    sync.Mutex
}

// metricSink is the minimal surface the page pool needs from
// internal/metrics, kept as a small interface so this package doesn't
// depend on the metrics package's concrete type.
type metricSink interface {
	RecordPagePoolHit()
	RecordPagePoolMiss()
	RecordPagePoolEviction(wroteBack bool)
	SetPagePoolPinnedPages(n int)
}

// noopMetrics satisfies metricSink when the caller doesn't wire one.
type noopMetrics struct{}

func (noopMetrics) RecordPagePoolHit()            {}
func (noopMetrics) RecordPagePoolMiss()           {}
func (noopMetrics) RecordPagePoolEviction(bool)   {}
func (noopMetrics) SetPagePoolPinnedPages(int)    {}

// Pool is the Page Pool.
type Pool struct {
	mu       sync.Mutex // pool_latch: protects the LRU list and pageID->entry map
	file     *os.File
	capacity int
	entries  map[common.PageID]*list.Element
	order    *list.List // Front = most recently used, Back = LRU

	committedLSN CommittedLSNFunc
	metrics      metricSink
}

// New creates a pool of the given page capacity backed by file.
func New(file *os.File, capacity int, committedLSN CommittedLSNFunc) *Pool {
	return &Pool{
		file:         file,
		capacity:     capacity,
		entries:      make(map[common.PageID]*list.Element),
		order:        list.New(),
		committedLSN: committedLSN,
		metrics:      noopMetrics{},
	}
}

// SetMetrics installs m as the pool's metric sink (used by pkg/database
// wiring to plug in internal/metrics).
func (p *Pool) SetMetrics(m metricSink) { p.metrics = m }

// Ref is a pinned, latched handle on a pooled page. The page pool's
// only access discipline: there is no reader/writer distinction, every
// holder takes the same exclusive latch for the duration of one
// logical operation, released by Release.
type Ref struct {
	pool     *Pool
	entry    *entry
	released bool
}

// Page returns the underlying page. Valid until Release.
func (r *Ref) Page() *pg.Page { return r.entry.page }

// Release unpins the page and releases its latch.
func (r *Ref) Release() {
	if r.released {
		return
	}
	r.released = true
	r.pool.mu.Lock()
	r.entry.pinCount--
	r.pool.mu.Unlock()
	r.entry.latch.Unlock()
}

// GetPage returns a pinned, latched reference to id, materializing it
// from the database file (evicting an unpinned page if the pool is
// full) on a cache miss. Returns pg.ErrChecksum if the on-disk image's
// checksum is invalid; the page manager passes it on, and its caller
// (e.g. recovery's redo) treats it as a single-page-recovery trigger.
func (p *Pool) GetPage(id common.PageID) (*Ref, error) {
	p.mu.Lock()
	if el, ok := p.entries[id]; ok {
		e := el.Value.(*entry)
		e.pinCount++
		p.order.MoveToFront(el)
		p.mu.Unlock()
		p.metrics.RecordPagePoolHit()
		e.latch.Lock()
		return &Ref{pool: p, entry: e}, nil
	}

	if len(p.entries) >= p.capacity {
		if err := p.evictLocked(); err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}

	page, err := p.readFromFileLocked(id)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}

	e := &entry{pageID: id, page: page, pinCount: 1}
	el := p.order.PushFront(e)
	p.entries[id] = el
	p.mu.Unlock()

	p.metrics.RecordPagePoolMiss()
	e.latch.Lock()
	return &Ref{pool: p, entry: e}, nil
}

// Insert admits a freshly constructed page (one with no on-disk image
// yet, e.g. just allocated) directly into the pool, pinned for the
// caller. Used by the page manager after allocate_new_page.
func (p *Pool) Insert(page *pg.Page) (*Ref, error) {
	p.mu.Lock()
	if _, exists := p.entries[page.PageID]; exists {
		p.mu.Unlock()
		return p.GetPage(page.PageID)
	}
	if len(p.entries) >= p.capacity {
		if err := p.evictLocked(); err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}
	e := &entry{pageID: page.PageID, page: page, pinCount: 1}
	el := p.order.PushFront(e)
	p.entries[page.PageID] = el
	p.mu.Unlock()

	e.latch.Lock()
	return &Ref{pool: p, entry: e}, nil
}

// ReplacePage installs recovered as the in-pool image for its page id,
// overwriting whatever (possibly corrupt) entry is already cached. Used
// by recovery after single-page recovery reconstructs a page from the
// WAL in response to a pg.ErrChecksum read failure, and by the page
// manager when it reallocates a page from the free list.
func (p *Pool) ReplacePage(recovered *pg.Page) (*Ref, error) {
	p.mu.Lock()
	if el, ok := p.entries[recovered.PageID]; ok {
		e := el.Value.(*entry)
		if e.pinCount != 0 {
			p.mu.Unlock()
			return nil, ErrPinned
		}
		e.page = recovered
		e.pinCount = 1
		p.order.MoveToFront(el)
		p.mu.Unlock()
		e.latch.Lock()
		return &Ref{pool: p, entry: e}, nil
	}

	if len(p.entries) >= p.capacity {
		if err := p.evictLocked(); err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}
	e := &entry{pageID: recovered.PageID, page: recovered, pinCount: 1}
	el := p.order.PushFront(e)
	p.entries[recovered.PageID] = el
	p.mu.Unlock()

	e.latch.Lock()
	return &Ref{pool: p, entry: e}, nil
}

// evictLocked scans from the LRU tail for the first unpinned entry,
// writing it back first if dirty, per spec.md §4.B. Caller holds p.mu.
func (p *Pool) evictLocked() error {
	for el := p.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.pinCount != 0 {
			continue
		}
		wroteBack := e.page.Dirty()
		if wroteBack {
			if err := p.writeBackLocked(e); err != nil {
				return err
			}
		}
		delete(p.entries, e.pageID)
		p.order.Remove(el)
		p.metrics.RecordPagePoolEviction(wroteBack)
		return nil
	}
	return ErrFull
}

// writeBackLocked persists e's page image, blocking until the WAL rule
// is satisfied: log.committed_lsn ≥ page.page_lsn. Caller holds p.mu.
func (p *Pool) writeBackLocked(e *entry) error {
	for p.committedLSN() < e.page.PageLSN {
		time.Sleep(time.Millisecond)
	}
	data := e.page.Encode()
	if _, err := p.file.WriteAt(data, int64(e.pageID)*pg.Size); err != nil {
		return err
	}
	e.page.MarkClean()
	return nil
}

func (p *Pool) readFromFileLocked(id common.PageID) (*pg.Page, error) {
	buf := make([]byte, pg.Size)
	if _, err := p.file.ReadAt(buf, int64(id)*pg.Size); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	return pg.Decode(buf)
}

// Stats is a snapshot of the pool's occupancy, for the admin RPC
// surface's page cache stats call.
type Stats struct {
	Capacity     int
	Resident     int
	PinnedPages  int
	DirtyPages   int
}

// Stats returns a snapshot of the pool's current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Capacity: p.capacity, Resident: len(p.entries)}
	for el := p.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.pinCount > 0 {
			s.PinnedPages++
		}
		if e.page.Dirty() {
			s.DirtyPages++
		}
	}
	p.metrics.SetPagePoolPinnedPages(s.PinnedPages)
	return s
}

// DirtyEntry is one row of the dirty page table a fuzzy checkpoint
// snapshots (spec.md §4.G): the page and the LSN as of which redo must
// start for it.
type DirtyEntry struct {
	PageID      common.PageID
	RecoveryLSN common.LSN
}

// DirtyPages returns every currently resident dirty page's id and
// recovery_lsn, for the checkpoint manager's end-checkpoint record.
func (p *Pool) DirtyPages() []DirtyEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []DirtyEntry
	for el := p.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.page.Dirty() {
			out = append(out, DirtyEntry{PageID: e.pageID, RecoveryLSN: e.page.RecoveryLSN})
		}
	}
	return out
}

// DropAllPages evicts every currently unpinned page, writing back dirty
// ones first. A testing/admin hook per spec.md §4.B.
func (p *Pool) DropAllPages() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for el := p.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if e.pinCount == 0 {
			if e.page.Dirty() {
				if err := p.writeBackLocked(e); err != nil {
					return err
				}
			}
			delete(p.entries, e.pageID)
			p.order.Remove(el)
		}
		el = next
	}
	return nil
}

// FlushForTest forces a write-back of page_id regardless of pin state,
// for deterministic test setup. A testing/admin hook per spec.md §4.B.
func (p *Pool) FlushForTest(id common.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.entries[id]
	if !ok {
		return nil
	}
	e := el.Value.(*entry)
	if !e.page.Dirty() {
		return nil
	}
	return p.writeBackLocked(e)
}
