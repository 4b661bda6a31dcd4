package progchaingrpc

import (
	"context"
	"errors"
	"io"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/server"
	"github.com/blockberries/progchain/types"
)

var _ RuntimeServer = (*GRPCServer)(nil)

// GRPCServer serves a runtime to a node in another process. Calls go
// through a server.Server, so the lifecycle guard and capability
// checks run on this side of the wire too.
type GRPCServer struct {
	srv *server.Server
}

// NewGRPCServer wraps app.
func NewGRPCServer(app progchain.Lifecycle, opts ...server.Option) *GRPCServer {
	return &GRPCServer{srv: server.New(app, opts...)}
}

// Register adds the runtime service to a gRPC server.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterRuntimeServer(gs, s)
}

// NewServer builds a grpc.Server serving the runtime. Lifecycle
// misuse by the remote node is answered with FailedPrecondition
// instead of crashing the process.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(recoverMisuse)}, opts...)
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs
}

func recoverMisuse(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = status.Errorf(codes.FailedPrecondition, "%s: %v", info.FullMethod, r)
		}
	}()
	return handler(ctx, req)
}

// Serve serves on lis until it fails or ctx is cancelled, in which
// case the server is stopped gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener, opts ...grpc.ServerOption) error {
	gs := s.NewServer(opts...)

	stop := context.AfterFunc(ctx, gs.GracefulStop)
	defer stop()

	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// reply adapts a server result to a handler's pointer response.
func reply[T any](v T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// replyHalt is reply for calls that may halt the runtime.
func replyHalt[T any](ctx context.Context, v T, err error) (*T, error) {
	return reply(v, haltStatus(ctx, err))
}

func (s *GRPCServer) Handshake(ctx context.Context, req *types.HandshakeRequest) (*types.HandshakeResponse, error) {
	resp, err := s.srv.Handshake(ctx, *req)
	return replyHalt(ctx, resp, err)
}

func (s *GRPCServer) CheckTx(ctx context.Context, req *CheckTxRequest) (*types.GateVerdict, error) {
	return reply(s.srv.CheckTx(ctx, req.Tx, req.Context))
}

func (s *GRPCServer) ExecuteBlock(ctx context.Context, block *types.FinalizedBlock) (*types.BlockOutcome, error) {
	outcome, err := s.srv.ExecuteBlock(ctx, *block)
	return replyHalt(ctx, outcome, err)
}

func (s *GRPCServer) Commit(ctx context.Context, _ *CommitRequest) (*types.CommitResult, error) {
	return reply(s.srv.Commit(ctx))
}

func (s *GRPCServer) Query(ctx context.Context, req *types.StateQuery) (*types.StateQueryResult, error) {
	return reply(s.srv.Query(ctx, *req))
}

func (s *GRPCServer) BuildProposal(ctx context.Context, pctx *types.ProposalContext) (*types.BuiltProposal, error) {
	return reply(s.srv.BuildProposal(ctx, *pctx))
}

func (s *GRPCServer) VerifyProposal(ctx context.Context, prop *types.ReceivedProposal) (*types.ProposalVerdict, error) {
	return reply(s.srv.VerifyProposal(ctx, *prop))
}

func (s *GRPCServer) AvailableSnapshots(ctx context.Context, _ *AvailableSnapshotsRequest) (*AvailableSnapshotsResponse, error) {
	snaps, err := s.srv.AvailableSnapshots(ctx)
	return reply(AvailableSnapshotsResponse{Snapshots: snaps}, err)
}

func (s *GRPCServer) ExportSnapshot(req *ExportSnapshotRequest, stream grpc.ServerStream) error {
	ch, desc, err := s.srv.ExportSnapshot(stream.Context(), req.Height, req.Format)
	if err != nil {
		return err
	}
	return sendSnapshot(stream, desc, ch)
}

// ImportSnapshot feeds the stream into the runtime. A malformed or
// broken stream cancels the import.
func (s *GRPCServer) ImportSnapshot(stream grpc.ServerStream) error {
	desc, err := recvDescriptor(stream)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	chunks := make(chan types.SnapshotChunk)
	go func() {
		if err := recvChunks(ctx, stream, chunks); !errors.Is(err, io.EOF) {
			cancel()
		}
	}()

	result, err := s.srv.ImportSnapshot(ctx, *desc, chunks)
	if err != nil {
		return err
	}
	return stream.SendMsg(&result)
}

func (s *GRPCServer) Simulate(ctx context.Context, req *SimulateRequest) (*types.TxOutcome, error) {
	return reply(s.srv.Simulate(ctx, req.Tx))
}
