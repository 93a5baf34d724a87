// Package database wires the storage/recovery core's components
// together into one open database handle: log writer, page pool, lock
// manager, transaction manager, page manager, recovery manager, and
// checkpoint manager, constructed in that order, plus the auxiliary
// LSM tree.
//
// Grounded on the teacher pack's cmd/treestore/main.go and
// internal/server/server.go, which build exactly this kind of
// component graph (open file, construct managers in dependency order,
// run recovery before serving) behind a single constructor.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nainya/corekv/internal/logger"
	"github.com/nainya/corekv/internal/metrics"
	"github.com/nainya/corekv/pkg/btree"
	"github.com/nainya/corekv/pkg/checkpoint"
	"github.com/nainya/corekv/pkg/lock"
	"github.com/nainya/corekv/pkg/lsm"
	"github.com/nainya/corekv/pkg/pagepool"
	"github.com/nainya/corekv/pkg/pagestore"
	"github.com/nainya/corekv/pkg/recovery"
	"github.com/nainya/corekv/pkg/txn"
	"github.com/nainya/corekv/pkg/wal"
)

// Config configures an open Database.
type Config struct {
	// Dir is the database's root directory. It holds the heap file
	// (heap.db), the WAL's segments (wal/), and the LSM tree's sorted
	// runs and blob file (lsm/).
	Dir string

	// PagePoolCapacity bounds the page pool's resident page count.
	PagePoolCapacity int

	WAL        wal.Config
	Checkpoint checkpoint.Config
	LSM        lsm.Config

	// Logger and Metrics default to the process-wide globals
	// (internal/logger.GetGlobalLogger, internal/metrics.GetGlobalMetrics)
	// when left nil, so every manager shares one registration per
	// process regardless of how many Databases are opened.
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

func (c *Config) setDefaults() {
	if c.PagePoolCapacity <= 0 {
		c.PagePoolCapacity = 1024
	}
	if c.Logger == nil {
		c.Logger = logger.GetGlobalLogger()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.GetGlobalMetrics()
	}
}

const heapFileName = "heap.db"

// Database is one open instance of the storage/recovery core.
type Database struct {
	cfg Config

	heapFile *os.File
	WAL      *wal.WAL
	Pool     *pagepool.Pool
	Pages    *pagestore.Manager
	Locks    *lock.Manager
	Txns     *txn.Manager
	Recovery *recovery.Manager
	Checkpoint *checkpoint.Manager
	Tree     *btree.Tree
	LSM      *lsm.Tree

	log *logger.Logger
	met *metrics.Metrics
}

// Open opens (creating if necessary) the database rooted at cfg.Dir,
// building every manager in the order the package doc lists, running crash recovery
// against an existing heap file, and starting the checkpoint manager
// and LSM tree's background loops.
func Open(cfg Config) (*Database, error) {
	cfg.setDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	heapPath := filepath.Join(cfg.Dir, heapFileName)
	_, statErr := os.Stat(heapPath)
	fresh := os.IsNotExist(statErr)

	heapFile, err := os.OpenFile(heapPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	cfg.WAL.Dir = filepath.Join(cfg.Dir, "wal")
	w, err := wal.Open(cfg.WAL)
	if err != nil {
		heapFile.Close()
		return nil, err
	}
	w.SetMetrics(cfg.Metrics)

	pool := pagepool.New(heapFile, cfg.PagePoolCapacity, w.CommittedLSN)
	pool.SetMetrics(cfg.Metrics)

	locks := lock.New()
	txns := txn.New(w, locks, pool)
	txns.SetMetrics(cfg.Metrics)

	pages := pagestore.New(pool, txns)
	rec := recovery.New(w, pool, txns)
	ckpt := checkpoint.New(w, pool, txns, cfg.Checkpoint)
	ckpt.SetLogger(cfg.Logger.CheckpointLogger())

	db := &Database{
		cfg:        cfg,
		heapFile:   heapFile,
		WAL:        w,
		Pool:       pool,
		Pages:      pages,
		Locks:      locks,
		Txns:       txns,
		Recovery:   rec,
		Checkpoint: ckpt,
		log:        cfg.Logger,
		met:        cfg.Metrics,
	}

	if fresh {
		// Bootstrap's meta page reaches disk once, outside the WAL,
		// before any transaction runs against it: there is no prior
		// log to redo it from.
		if err := pages.Bootstrap(); err != nil {
			db.closeHandles()
			return nil, err
		}
		if err := pool.FlushForTest(0); err != nil {
			db.closeHandles()
			return nil, fmt.Errorf("flushing bootstrap meta page: %w", err)
		}
	} else {
		start := time.Now()
		err := rec.Run()
		db.log.RecoveryLogger().LogRecoveryPass("full", time.Since(start), err)
		if err != nil {
			db.closeHandles()
			return nil, fmt.Errorf("recovery: %w", err)
		}
	}

	tree, err := btree.Open(pages, txns, btree.MetaRootSink(pages))
	if err != nil {
		db.closeHandles()
		return nil, err
	}
	db.Tree = tree

	cfg.LSM.Dir = filepath.Join(cfg.Dir, "lsm")
	lsmTree, err := lsm.Open(cfg.LSM)
	if err != nil {
		db.closeHandles()
		return nil, err
	}
	lsmTree.SetMetrics(cfg.Metrics)
	lsmTree.SetLogger(cfg.Logger.CompactionLogger())
	lsmTree.Start()
	db.LSM = lsmTree

	ckpt.Start()

	db.log.Info("database opened").Str("dir", cfg.Dir).Bool("fresh", fresh).Send()
	return db, nil
}

// Close stops the checkpoint manager and the LSM tree's background
// loops, flushes the WAL, and closes every open file handle. The
// Database must not be used afterward.
func (db *Database) Close() error {
	db.Checkpoint.Stop()
	if err := db.LSM.Close(); err != nil {
		return err
	}
	if err := db.WAL.Finish(); err != nil {
		return err
	}
	db.log.Info("database closed").Str("dir", db.cfg.Dir).Send()
	return db.closeHandles()
}

func (db *Database) closeHandles() error {
	return db.heapFile.Close()
}
