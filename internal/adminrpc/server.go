// Package adminrpc is the database's admin surface (spec.md §9's
// "thin read-only RPC layer" requirement): checkpoint status, page
// cache occupancy, and LSM tree shape, each read straight off the
// live manager it reports on.
//
// Grounded on the teacher pack's internal/server package (server.go's
// constructor/Close shape, observability.go's metrics interceptor and
// HTTP observability endpoints), adapted to a hand-built ServiceDesc
// over JSON-coded messages (see codec.go) rather than generated
// protobuf stubs — this repo has no protoc toolchain available, and
// the admin surface's messages are simple enough that hand-rolled
// encoding costs nothing functionally.
package adminrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/nainya/corekv/pkg/checkpoint"
	"github.com/nainya/corekv/pkg/lsm"
	"github.com/nainya/corekv/pkg/pagepool"
)

// Server implements the admin RPC methods against a running database's
// managers. It holds no state of its own beyond references to them.
type Server struct {
	pool *pagepool.Pool
	ckpt *checkpoint.Manager
	lsm  *lsm.Tree
}

// NewServer builds an admin RPC server reporting on pool, ckpt, and
// tree.
func NewServer(pool *pagepool.Pool, ckpt *checkpoint.Manager, tree *lsm.Tree) *Server {
	return &Server{pool: pool, ckpt: ckpt, lsm: tree}
}

// GetCheckpointStatus returns the most recently completed checkpoint's
// LSN range and snapshot sizes.
func (s *Server) GetCheckpointStatus(ctx context.Context, req *CheckpointStatusRequest) (*CheckpointStatusResponse, error) {
	st := s.ckpt.Status()
	return &CheckpointStatusResponse{
		LastBeginLSN:   st.LastBeginLSN,
		LastEndLSN:     st.LastEndLSN,
		DirtyPageCount: st.DirtyPageCount,
		ActiveTxnCount: st.ActiveTxnCount,
		LastDuration:   st.LastDuration.String(),
	}, nil
}

// GetPageCacheStats returns the page pool's current occupancy.
func (s *Server) GetPageCacheStats(ctx context.Context, req *PageCacheStatsRequest) (*PageCacheStatsResponse, error) {
	st := s.pool.Stats()
	return &PageCacheStatsResponse{
		Capacity:    st.Capacity,
		Resident:    st.Resident,
		PinnedPages: st.PinnedPages,
		DirtyPages:  st.DirtyPages,
	}, nil
}

// GetLSMStats returns the LSM tree's current sorted-run count and
// unflushed memtable size.
func (s *Server) GetLSMStats(ctx context.Context, req *LSMStatsRequest) (*LSMStatsResponse, error) {
	st := s.lsm.Stats()
	return &LSMStatsResponse{
		SortedRunCount: st.SortedRunCount,
		MemtableBytes:  st.MemtableBytes,
	}, nil
}

const serviceName = "corekv.admin.v1.AdminService"

func checkpointStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CheckpointStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.GetCheckpointStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: serviceName + "/GetCheckpointStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.GetCheckpointStatus(ctx, req.(*CheckpointStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func pageCacheStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PageCacheStatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.GetPageCacheStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: serviceName + "/GetPageCacheStats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.GetPageCacheStats(ctx, req.(*PageCacheStatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func lsmStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(LSMStatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.GetLSMStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: serviceName + "/GetLSMStats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.GetLSMStats(ctx, req.(*LSMStatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-built analogue of what protoc-gen-go-grpc
// would otherwise generate from a .proto file.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCheckpointStatus", Handler: checkpointStatusHandler},
		{MethodName: "GetPageCacheStats", Handler: pageCacheStatsHandler},
		{MethodName: "GetLSMStats", Handler: lsmStatsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adminrpc.proto",
}

// Register attaches s to grpcServer under ServiceDesc.
func Register(grpcServer *grpc.Server, s *Server) {
	grpcServer.RegisterService(&ServiceDesc, s)
}
