package adminrpc

// Request/response types for the admin RPC surface. Plain structs
// rather than generated proto.Message types — see codec.go for why
// that's sufficient to run over gRPC.

type CheckpointStatusRequest struct{}

type CheckpointStatusResponse struct {
	LastBeginLSN   uint64
	LastEndLSN     uint64
	DirtyPageCount int
	ActiveTxnCount int
	LastDuration   string
}

type PageCacheStatsRequest struct{}

type PageCacheStatsResponse struct {
	Capacity    int
	Resident    int
	PinnedPages int
	DirtyPages  int
}

type LSMStatsRequest struct{}

type LSMStatsResponse struct {
	SortedRunCount int
	MemtableBytes  int64
}
