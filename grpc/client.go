package progchaingrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/server"
	"github.com/blockberries/progchain/types"
)

var _ progchain.Connection = (*Client)(nil)

// Client is a Connection to a runtime served by another process. It
// keeps its own lifecycle guard so that a node misusing the contract
// fails locally before anything is sent.
type Client struct {
	cc    *grpc.ClientConn
	caps  types.Capabilities
	guard *server.LifecycleGuard
	halt  atomic.Pointer[progchain.HaltError]
}

// Dial creates a client for the runtime at addr. The connection is
// established lazily on the first call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})))
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial runtime %s: %w", addr, err)
	}
	return &Client{cc: cc, guard: server.NewLifecycleGuard()}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// call performs a unary call and returns the decoded response.
func call[Resp any](ctx context.Context, cc *grpc.ClientConn, method string, req any, opts ...grpc.CallOption) (Resp, error) {
	var resp Resp
	err := cc.Invoke(ctx, fullMethod(method), req, &resp, opts...)
	return resp, err
}

// callHaltable is call for the methods whose failure may be a halt,
// rebuilt from the response trailer and recorded on c.
func callHaltable[Resp any](ctx context.Context, c *Client, method string, req any) (Resp, error) {
	var trailer metadata.MD
	resp, err := call[Resp](ctx, c.cc, method, req, grpc.Trailer(&trailer))
	if err != nil {
		err = haltFromStatus(err, trailer)
		if h, ok := progchain.IsHalt(err); ok {
			c.halt.Store(h)
			c.guard.Halt()
		}
	}
	return resp, err
}

// Halted returns the HaltError the runtime reported, if any.
func (c *Client) Halted() *progchain.HaltError {
	return c.halt.Load()
}

func (c *Client) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	c.guard.AcquireHandshake()
	resp, err := callHaltable[types.HandshakeResponse](ctx, c, methodHandshake, &req)
	if err != nil {
		c.guard.FailHandshake()
		return types.HandshakeResponse{}, err
	}
	c.caps = resp.Capabilities
	c.guard.CompleteHandshake()
	return resp, nil
}

func (c *Client) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	c.guard.CheckConcurrent()
	return call[types.GateVerdict](ctx, c.cc, methodCheckTx, &CheckTxRequest{Tx: tx, Context: mctx})
}

// ExecuteBlock refuses to run once the runtime has halted.
func (c *Client) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	if h := c.Halted(); h != nil {
		return types.BlockOutcome{}, h
	}
	c.guard.AcquireExecute()
	outcome, err := callHaltable[types.BlockOutcome](ctx, c, methodExecuteBlock, &block)
	if err != nil {
		c.guard.FailExecute()
		return types.BlockOutcome{}, err
	}
	c.guard.CompleteExecute()
	return outcome, nil
}

func (c *Client) Commit(ctx context.Context) (types.CommitResult, error) {
	c.guard.AcquireCommit()
	defer c.guard.CompleteCommit()
	return call[types.CommitResult](ctx, c.cc, methodCommit, &CommitRequest{})
}

func (c *Client) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	c.guard.CheckConcurrent()
	return call[types.StateQueryResult](ctx, c.cc, methodQuery, &req)
}

// Capabilities returns what the runtime declared at handshake.
func (c *Client) Capabilities() types.Capabilities { return c.caps }

func (c *Client) AsProposalControl() progchain.ProposalControl {
	if !c.caps.Has(types.CapProposalControl) {
		return nil
	}
	return remoteProposals{c.cc}
}

func (c *Client) AsStateSync() progchain.StateSync {
	if !c.caps.Has(types.CapStateSync) {
		return nil
	}
	return remoteSnapshots{c.cc}
}

func (c *Client) AsSimulator() progchain.Simulator {
	if !c.caps.Has(types.CapSimulation) {
		return nil
	}
	return remoteSimulator{c.cc}
}

type remoteProposals struct{ cc *grpc.ClientConn }

func (r remoteProposals) BuildProposal(ctx context.Context, pctx types.ProposalContext) (types.BuiltProposal, error) {
	return call[types.BuiltProposal](ctx, r.cc, methodBuildProposal, &pctx)
}

func (r remoteProposals) VerifyProposal(ctx context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	return call[types.ProposalVerdict](ctx, r.cc, methodVerifyProposal, &prop)
}

type remoteSnapshots struct{ cc *grpc.ClientConn }

func (r remoteSnapshots) AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error) {
	resp, err := call[AvailableSnapshotsResponse](ctx, r.cc, methodAvailableSnapshots, &AvailableSnapshotsRequest{})
	return resp.Snapshots, err
}

// ExportSnapshot reads the descriptor before returning; chunks are
// delivered on the channel, which closes when the stream ends.
func (r remoteSnapshots) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	stream, err := r.cc.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    methodExportSnapshot,
		ServerStreams: true,
	}, fullMethod(methodExportSnapshot))
	if err != nil {
		return nil, nil, err
	}
	if err := stream.SendMsg(&ExportSnapshotRequest{Height: height, Format: format}); err != nil {
		return nil, nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, err
	}

	desc, err := recvDescriptor(stream)
	if err != nil {
		return nil, nil, fmt.Errorf("export snapshot at %d: %w", height, err)
	}
	ch := make(chan types.SnapshotChunk)
	go func() { _ = recvChunks(ctx, stream, ch) }()
	return ch, desc, nil
}

func (r remoteSnapshots) ImportSnapshot(ctx context.Context, desc types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	stream, err := r.cc.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    methodImportSnapshot,
		ClientStreams: true,
	}, fullMethod(methodImportSnapshot))
	if err != nil {
		return types.ImportResult{}, err
	}

	// io.EOF means the server answered early; RecvMsg reports why.
	if err := sendSnapshot(stream, &desc, chunks); err != nil && !errors.Is(err, io.EOF) {
		return types.ImportResult{}, err
	}
	if err := stream.CloseSend(); err != nil {
		return types.ImportResult{}, err
	}

	var result types.ImportResult
	if err := stream.RecvMsg(&result); err != nil {
		return types.ImportResult{}, err
	}
	return result, nil
}

type remoteSimulator struct{ cc *grpc.ClientConn }

func (r remoteSimulator) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	return call[types.TxOutcome](ctx, r.cc, methodSimulate, &SimulateRequest{Tx: tx})
}
