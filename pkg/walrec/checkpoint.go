package walrec

import (
	"encoding/binary"

	"github.com/nainya/corekv/pkg/common"
)

// EncodeCheckpointSnapshot packs the dirty-page table and active-txn
// table snapshots into the Aux payload of an end-checkpoint record.
func EncodeCheckpointSnapshot(dpt []DirtyPageEntry, att []ActiveTxnEntry) []byte {
	buf := make([]byte, 0, 8+len(dpt)*16+8+len(att)*17)

	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(dpt)))
	buf = append(buf, n[:]...)
	for _, e := range dpt {
		var b [16]byte
		binary.LittleEndian.PutUint64(b[0:8], uint64(e.PageID))
		binary.LittleEndian.PutUint64(b[8:16], uint64(e.RecoveryLSN))
		buf = append(buf, b[:]...)
	}

	binary.LittleEndian.PutUint32(n[:], uint32(len(att)))
	buf = append(buf, n[:]...)
	for _, e := range att {
		var b [17]byte
		binary.LittleEndian.PutUint64(b[0:8], uint64(e.TxnID))
		b[8] = e.Status
		binary.LittleEndian.PutUint64(b[9:17], uint64(e.PrevLSN))
		buf = append(buf, b[:]...)
	}
	return buf
}

// DecodeCheckpointSnapshot is the inverse of EncodeCheckpointSnapshot.
func DecodeCheckpointSnapshot(data []byte) ([]DirtyPageEntry, []ActiveTxnEntry, error) {
	if len(data) < 4 {
		return nil, nil, ErrTruncated
	}
	pos := 0
	dptCount := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	dpt := make([]DirtyPageEntry, 0, dptCount)
	for i := uint32(0); i < dptCount; i++ {
		if pos+16 > len(data) {
			return nil, nil, ErrTruncated
		}
		dpt = append(dpt, DirtyPageEntry{
			PageID:      common.PageID(binary.LittleEndian.Uint64(data[pos : pos+8])),
			RecoveryLSN: common.LSN(binary.LittleEndian.Uint64(data[pos+8 : pos+16])),
		})
		pos += 16
	}

	if pos+4 > len(data) {
		return nil, nil, ErrTruncated
	}
	attCount := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	att := make([]ActiveTxnEntry, 0, attCount)
	for i := uint32(0); i < attCount; i++ {
		if pos+17 > len(data) {
			return nil, nil, ErrTruncated
		}
		att = append(att, ActiveTxnEntry{
			TxnID:   common.TxnID(binary.LittleEndian.Uint64(data[pos : pos+8])),
			Status:  data[pos+8],
			PrevLSN: common.LSN(binary.LittleEndian.Uint64(data[pos+9 : pos+17])),
		})
		pos += 17
	}

	return dpt, att, nil
}
