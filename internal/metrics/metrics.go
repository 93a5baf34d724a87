// Package metrics provides Prometheus metrics for corekv
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for corekv's storage/recovery
// core: the WAL, page pool, lock manager, checkpoint manager, B+-tree,
// LSM tree, VM cache and admin RPC surface each report through it.
type Metrics struct {
	// Admin RPC metrics
	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec

	// Write-ahead log metrics
	WALAppendsTotal      prometheus.Counter
	WALAppendBytesTotal  prometheus.Counter
	WALFsyncDuration     prometheus.Histogram
	WALSegmentRotations  prometheus.Counter

	// Page pool metrics
	PagePoolHitsTotal      prometheus.Counter
	PagePoolMissesTotal    prometheus.Counter
	PagePoolEvictionsTotal prometheus.Counter
	PagePoolWriteBacksTotal prometheus.Counter
	PagePoolPinnedPages    prometheus.Gauge

	// Lock manager metrics
	LockGrantsTotal    *prometheus.CounterVec
	LockConflictsTotal *prometheus.CounterVec

	// Recovery metrics
	RecoveryPassDuration *prometheus.HistogramVec
	RecoveryDPTSize      prometheus.Gauge
	RecoveryATTSize      prometheus.Gauge

	// Checkpoint metrics
	CheckpointsTotal   prometheus.Counter
	CheckpointDuration prometheus.Histogram

	// B+-tree metrics
	BtreeSplitsTotal     prometheus.Counter
	BtreeMergesTotal     prometheus.Counter
	BtreeFosterResolvesTotal prometheus.Counter
	BtreeRootGrowthsTotal prometheus.Counter

	// LSM tree metrics
	LSMFlushesTotal    prometheus.Counter
	LSMMergesTotal     prometheus.Counter
	LSMSortedRunsTotal prometheus.Gauge
	LSMMemtableBytes   prometheus.Gauge

	// VM cache metrics
	VMCacheFaultsTotal    prometheus.Counter
	VMCacheEvictionsTotal prometheus.Counter
	VMCacheGhostHitsTotal prometheus.Counter

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corekv_rpc_requests_total",
			Help: "Total number of admin RPC requests",
		},
		[]string{"method", "status"},
	)
	m.RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corekv_rpc_request_duration_seconds",
			Help:    "Duration of admin RPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.WALAppendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_wal_appends_total",
		Help: "Total number of log records appended to the WAL",
	})
	m.WALAppendBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_wal_append_bytes_total",
		Help: "Total bytes appended to the WAL",
	})
	m.WALFsyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "corekv_wal_fsync_duration_seconds",
		Help:    "Duration of WAL group-commit fsync calls",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
	})
	m.WALSegmentRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_wal_segment_rotations_total",
		Help: "Total number of WAL segment file rotations",
	})

	m.PagePoolHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_pagepool_hits_total",
		Help: "Total number of page pool cache hits",
	})
	m.PagePoolMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_pagepool_misses_total",
		Help: "Total number of page pool cache misses",
	})
	m.PagePoolEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_pagepool_evictions_total",
		Help: "Total number of pages evicted from the pool",
	})
	m.PagePoolWriteBacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_pagepool_writebacks_total",
		Help: "Total number of dirty pages written back to the page store",
	})
	m.PagePoolPinnedPages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corekv_pagepool_pinned_pages",
		Help: "Current number of pinned pages in the pool",
	})

	m.LockGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corekv_lock_grants_total",
			Help: "Total number of row locks granted, by kind (shared/exclusive)",
		},
		[]string{"kind"},
	)
	m.LockConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corekv_lock_conflicts_total",
			Help: "Total number of row lock requests rejected under the no-wait policy",
		},
		[]string{"kind"},
	)

	m.RecoveryPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corekv_recovery_pass_duration_seconds",
			Help:    "Duration of each ARIES recovery pass",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pass"},
	)
	m.RecoveryDPTSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corekv_recovery_dpt_size",
		Help: "Dirty page table size reconstructed by the last analysis pass",
	})
	m.RecoveryATTSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corekv_recovery_att_size",
		Help: "Active transaction table size reconstructed by the last analysis pass",
	})

	m.CheckpointsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_checkpoints_total",
		Help: "Total number of fuzzy checkpoints completed",
	})
	m.CheckpointDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "corekv_checkpoint_duration_seconds",
		Help:    "Duration of a fuzzy checkpoint",
		Buckets: prometheus.DefBuckets,
	})

	m.BtreeSplitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_btree_splits_total",
		Help: "Total number of B+-tree node splits",
	})
	m.BtreeMergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_btree_merges_total",
		Help: "Total number of B+-tree node merges/collapses",
	})
	m.BtreeFosterResolvesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_btree_foster_resolves_total",
		Help: "Total number of foster pointers resolved into a parent",
	})
	m.BtreeRootGrowthsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_btree_root_growths_total",
		Help: "Total number of times the tree grew a new root level",
	})

	m.LSMFlushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_lsm_flushes_total",
		Help: "Total number of memtable flushes to a sorted run",
	})
	m.LSMMergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_lsm_merges_total",
		Help: "Total number of sorted-run merges",
	})
	m.LSMSortedRunsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corekv_lsm_sorted_runs",
		Help: "Current number of on-disk sorted runs",
	})
	m.LSMMemtableBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corekv_lsm_memtable_bytes",
		Help: "Current size of the active memtable in bytes",
	})

	m.VMCacheFaultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_vmcache_faults_total",
		Help: "Total number of VM cache blocks faulted in from disk",
	})
	m.VMCacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_vmcache_evictions_total",
		Help: "Total number of VM cache blocks evicted",
	})
	m.VMCacheGhostHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corekv_vmcache_ghost_hits_total",
		Help: "Total number of S3-FIFO ghost queue hits causing main-queue promotion",
	})

	m.ServerUptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corekv_server_uptime_seconds",
		Help: "Server uptime in seconds",
	})

	go m.updateUptime()

	return m
}

// updateUptime periodically updates the server uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordRPCRequest records an admin RPC call with its status.
func (m *Metrics) RecordRPCRequest(method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordWALAppend records a WAL append of n bytes.
func (m *Metrics) RecordWALAppend(n int) {
	m.WALAppendsTotal.Inc()
	m.WALAppendBytesTotal.Add(float64(n))
}

// RecordWALFsync records a group-commit fsync's duration.
func (m *Metrics) RecordWALFsync(d time.Duration) {
	m.WALFsyncDuration.Observe(d.Seconds())
}

// RecordPagePoolHit records a page pool lookup that found the page
// already resident.
func (m *Metrics) RecordPagePoolHit() { m.PagePoolHitsTotal.Inc() }

// RecordPagePoolMiss records a page pool lookup that required a read
// from the page store.
func (m *Metrics) RecordPagePoolMiss() { m.PagePoolMissesTotal.Inc() }

// RecordPagePoolEviction records a page evicted from the pool,
// possibly after a write-back.
func (m *Metrics) RecordPagePoolEviction(wroteBack bool) {
	m.PagePoolEvictionsTotal.Inc()
	if wroteBack {
		m.PagePoolWriteBacksTotal.Inc()
	}
}

// SetPagePoolPinnedPages reports the pool's current pinned-page count.
func (m *Metrics) SetPagePoolPinnedPages(n int) { m.PagePoolPinnedPages.Set(float64(n)) }

// RecordLockGrant implements pkg/txn's metricSink.
func (m *Metrics) RecordLockGrant(kind string) { m.LockGrantsTotal.WithLabelValues(kind).Inc() }

// RecordLockConflict implements pkg/txn's metricSink.
func (m *Metrics) RecordLockConflict(kind string) { m.LockConflictsTotal.WithLabelValues(kind).Inc() }

// RecordRecoveryPass records one ARIES recovery pass's duration.
func (m *Metrics) RecordRecoveryPass(pass string, d time.Duration) {
	m.RecoveryPassDuration.WithLabelValues(pass).Observe(d.Seconds())
}

// SetRecoveryTableSizes records the DPT/ATT sizes the analysis pass
// reconstructed.
func (m *Metrics) SetRecoveryTableSizes(dpt, att int) {
	m.RecoveryDPTSize.Set(float64(dpt))
	m.RecoveryATTSize.Set(float64(att))
}

// RecordCheckpoint records a completed fuzzy checkpoint.
func (m *Metrics) RecordCheckpoint(d time.Duration) {
	m.CheckpointsTotal.Inc()
	m.CheckpointDuration.Observe(d.Seconds())
}

// RecordBtreeSplit records a B+-tree node split.
func (m *Metrics) RecordBtreeSplit() { m.BtreeSplitsTotal.Inc() }

// RecordBtreeMerge records a B+-tree node merge/collapse.
func (m *Metrics) RecordBtreeMerge() { m.BtreeMergesTotal.Inc() }

// RecordBtreeFosterResolve records a foster pointer absorbed into its
// parent.
func (m *Metrics) RecordBtreeFosterResolve() { m.BtreeFosterResolvesTotal.Inc() }

// RecordBtreeRootGrowth records the tree gaining a new root level.
func (m *Metrics) RecordBtreeRootGrowth() { m.BtreeRootGrowthsTotal.Inc() }

// RecordLSMFlush records a memtable flush to a new sorted run.
func (m *Metrics) RecordLSMFlush() { m.LSMFlushesTotal.Inc() }

// RecordLSMMerge records a sorted-run merge.
func (m *Metrics) RecordLSMMerge() { m.LSMMergesTotal.Inc() }

// SetLSMStats updates the current sorted-run count and memtable size.
func (m *Metrics) SetLSMStats(sortedRuns int, memtableBytes int64) {
	m.LSMSortedRunsTotal.Set(float64(sortedRuns))
	m.LSMMemtableBytes.Set(float64(memtableBytes))
}

// RecordVMCacheFault records a VM cache block faulted in from disk.
func (m *Metrics) RecordVMCacheFault() { m.VMCacheFaultsTotal.Inc() }

// RecordVMCacheEviction records a VM cache block eviction.
func (m *Metrics) RecordVMCacheEviction() { m.VMCacheEvictionsTotal.Inc() }

// RecordVMCacheGhostHit records an S3-FIFO ghost queue hit.
func (m *Metrics) RecordVMCacheGhostHit() { m.VMCacheGhostHitsTotal.Inc() }

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// GetGlobalMetrics returns the process-wide Metrics instance,
// constructing (and registering with the default Prometheus
// registerer) it on first use. A database opened more than once in
// the same process — as every package's table-driven tests do —
// must share one registration, since promauto panics on a duplicate
// collector name.
func GetGlobalMetrics() *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewMetrics()
	})
	return globalMetrics
}
