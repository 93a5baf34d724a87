package common

// LSN is a log sequence number: the byte offset of a record's encoded
// payload within the write-ahead log file. LSNs are never reset, so they
// uniquely identify a log record position for the lifetime of the log.
type LSN uint64

// InvalidLSN marks "no LSN yet" (an empty prev_lsn chain, a page that has
// never been touched).
const InvalidLSN LSN = 0

// InfiniteLSN represents +∞: a clean page's RecoveryLSN.
const InfiniteLSN LSN = ^LSN(0)

// PageID identifies a page within the database file. Page 0 is always
// the meta page.
type PageID uint64

const MetaPageID PageID = 0
const InvalidPageID PageID = ^PageID(0)

// TxnID identifies a transaction for the lifetime of the process (and,
// via the WAL, across restarts during recovery).
type TxnID uint64

// RowPosition is the stable identifier of a row: a page and a slot index
// within that page's slot array. Secondary indexes store RowPositions,
// never raw pointers into the row's backing array, since slots don't move.
type RowPosition struct {
	PageID PageID
	Slot   uint16
}

func (p RowPosition) Less(o RowPosition) bool {
	if p.PageID != o.PageID {
		return p.PageID < o.PageID
	}
	return p.Slot < o.Slot
}
