package progchaingrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/blockberries/progchain/types"
)

const serviceName = "progchain.v1.Runtime"

// Method names of progchain.v1.Runtime.
const (
	methodHandshake          = "Handshake"
	methodCheckTx            = "CheckTx"
	methodExecuteBlock       = "ExecuteBlock"
	methodCommit             = "Commit"
	methodQuery              = "Query"
	methodBuildProposal      = "BuildProposal"
	methodVerifyProposal     = "VerifyProposal"
	methodAvailableSnapshots = "AvailableSnapshots"
	methodExportSnapshot     = "ExportSnapshot"
	methodImportSnapshot     = "ImportSnapshot"
	methodSimulate           = "Simulate"
)

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// RuntimeServer is implemented by GRPCServer. Optional capabilities
// are always registered; a runtime without them answers with an error.
type RuntimeServer interface {
	Handshake(context.Context, *types.HandshakeRequest) (*types.HandshakeResponse, error)
	CheckTx(context.Context, *CheckTxRequest) (*types.GateVerdict, error)
	ExecuteBlock(context.Context, *types.FinalizedBlock) (*types.BlockOutcome, error)
	Commit(context.Context, *CommitRequest) (*types.CommitResult, error)
	Query(context.Context, *types.StateQuery) (*types.StateQueryResult, error)
	BuildProposal(context.Context, *types.ProposalContext) (*types.BuiltProposal, error)
	VerifyProposal(context.Context, *types.ReceivedProposal) (*types.ProposalVerdict, error)
	AvailableSnapshots(context.Context, *AvailableSnapshotsRequest) (*AvailableSnapshotsResponse, error)
	ExportSnapshot(*ExportSnapshotRequest, grpc.ServerStream) error
	ImportSnapshot(grpc.ServerStream) error
	Simulate(context.Context, *SimulateRequest) (*types.TxOutcome, error)
}

func RegisterRuntimeServer(s *grpc.Server, srv RuntimeServer) {
	s.RegisterService(&serviceDesc, srv)
}

// unary adapts a typed RuntimeServer method to a grpc.MethodDesc
// handler, running any configured interceptor.
func unary[Req, Resp any](method string, call func(RuntimeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			rs := srv.(RuntimeServer)
			if interceptor == nil {
				return call(rs, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(rs, ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RuntimeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodHandshake, RuntimeServer.Handshake),
		unary(methodCheckTx, RuntimeServer.CheckTx),
		unary(methodExecuteBlock, RuntimeServer.ExecuteBlock),
		unary(methodCommit, RuntimeServer.Commit),
		unary(methodQuery, RuntimeServer.Query),
		unary(methodBuildProposal, RuntimeServer.BuildProposal),
		unary(methodVerifyProposal, RuntimeServer.VerifyProposal),
		unary(methodAvailableSnapshots, RuntimeServer.AvailableSnapshots),
		unary(methodSimulate, RuntimeServer.Simulate),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: methodExportSnapshot,
			Handler: func(srv any, stream grpc.ServerStream) error {
				req := new(ExportSnapshotRequest)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return srv.(RuntimeServer).ExportSnapshot(req, stream)
			},
			ServerStreams: true,
		},
		{
			StreamName: methodImportSnapshot,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(RuntimeServer).ImportSnapshot(stream)
			},
			ClientStreams: true,
		},
	},
	Metadata: "progchain/v1/runtime.cram",
}
