// Package progchaintest holds helpers for testing runtimes and nodes:
// a scriptable MockApp, a Harness that drives a runtime through the
// lifecycle guard, and RunComplianceSuite.
package progchaintest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/types"
)

var (
	_ progchain.Lifecycle       = (*MockApp)(nil)
	_ progchain.ProposalControl = (*MockApp)(nil)
	_ progchain.StateSync       = (*MockApp)(nil)
	_ progchain.Simulator       = (*MockApp)(nil)
)

// MockApp is a runtime whose behavior is scripted through the ...Fn
// fields. Without a script every call succeeds: blocks execute every
// transaction with code 0 and get Blockhash {height}. It implements
// every optional interface; DeclaredCapabilities decides which ones
// the handshake advertises.
type MockApp struct {
	mu        sync.Mutex
	blocks    []types.FinalizedBlock
	committed uint64

	DeclaredCapabilities types.Capabilities

	HandshakeFn          func(context.Context, types.HandshakeRequest) (types.HandshakeResponse, error)
	CheckTxFn            func(context.Context, types.Tx, types.MempoolContext) (types.GateVerdict, error)
	ExecuteBlockFn       func(context.Context, types.FinalizedBlock) (types.BlockOutcome, error)
	CommitFn             func(context.Context) (types.CommitResult, error)
	QueryFn              func(context.Context, types.StateQuery) (types.StateQueryResult, error)
	BuildProposalFn      func(context.Context, types.ProposalContext) (types.BuiltProposal, error)
	VerifyProposalFn     func(context.Context, types.ReceivedProposal) (types.ProposalVerdict, error)
	AvailableSnapshotsFn func(context.Context) ([]types.SnapshotDescriptor, error)
	ExportSnapshotFn     func(context.Context, uint64, uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error)
	ImportSnapshotFn     func(context.Context, types.SnapshotDescriptor, <-chan types.SnapshotChunk) (types.ImportResult, error)
	SimulateFn           func(context.Context, types.Tx) (types.TxOutcome, error)

	HandshakeCalls    atomic.Int64
	CheckTxCalls      atomic.Int64
	ExecuteBlockCalls atomic.Int64
	CommitCalls       atomic.Int64
	QueryCalls        atomic.Int64
}

func (m *MockApp) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	m.HandshakeCalls.Add(1)
	if m.HandshakeFn != nil {
		return m.HandshakeFn(ctx, req)
	}
	return types.HandshakeResponse{
		Capabilities: m.DeclaredCapabilities,
	}, nil
}

func (m *MockApp) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	m.CheckTxCalls.Add(1)
	if m.CheckTxFn != nil {
		return m.CheckTxFn(ctx, tx, mctx)
	}
	return types.GateVerdict{Code: 0}, nil
}

func (m *MockApp) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	m.ExecuteBlockCalls.Add(1)
	m.mu.Lock()
	m.blocks = append(m.blocks, block)
	m.mu.Unlock()
	if m.ExecuteBlockFn != nil {
		return m.ExecuteBlockFn(ctx, block)
	}
	outcomes := make([]types.TxOutcome, len(block.Txs))
	for i := range block.Txs {
		outcomes[i] = types.TxOutcome{Index: uint32(i), Code: 0}
	}
	return types.BlockOutcome{
		TxOutcomes: outcomes,
		AppHash:    types.AppHash{byte(block.Height)},
		Blockhash:  types.Hash{byte(block.Height)},
	}, nil
}

// ExecutedBlocks returns every block passed to ExecuteBlock, in order.
func (m *MockApp) ExecutedBlocks() []types.FinalizedBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.FinalizedBlock(nil), m.blocks...)
}

func (m *MockApp) Commit(ctx context.Context) (types.CommitResult, error) {
	m.CommitCalls.Add(1)
	if m.CommitFn != nil {
		return m.CommitFn(ctx)
	}
	m.mu.Lock()
	if n := len(m.blocks); n > 0 {
		m.committed = m.blocks[n-1].Height
	}
	m.mu.Unlock()
	return types.CommitResult{}, nil
}

// Committed is the height of the last block committed without a
// CommitFn.
func (m *MockApp) Committed() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}

func (m *MockApp) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	m.QueryCalls.Add(1)
	if m.QueryFn != nil {
		return m.QueryFn(ctx, req)
	}
	return types.StateQueryResult{}, nil
}

func (m *MockApp) BuildProposal(ctx context.Context, pctx types.ProposalContext) (types.BuiltProposal, error) {
	if m.BuildProposalFn != nil {
		return m.BuildProposalFn(ctx, pctx)
	}
	return types.BuiltProposal{Txs: pctx.MempoolTxs}, nil
}

func (m *MockApp) VerifyProposal(ctx context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	if m.VerifyProposalFn != nil {
		return m.VerifyProposalFn(ctx, prop)
	}
	return types.AcceptProposal(), nil
}

func (m *MockApp) AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error) {
	if m.AvailableSnapshotsFn != nil {
		return m.AvailableSnapshotsFn(ctx)
	}
	return nil, nil
}

func (m *MockApp) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	if m.ExportSnapshotFn != nil {
		return m.ExportSnapshotFn(ctx, height, format)
	}
	ch := make(chan types.SnapshotChunk)
	close(ch)
	return ch, &types.SnapshotDescriptor{Height: height, Format: format}, nil
}

func (m *MockApp) ImportSnapshot(ctx context.Context, desc types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	if m.ImportSnapshotFn != nil {
		return m.ImportSnapshotFn(ctx, desc, chunks)
	}
	for range chunks {
	}
	return types.ImportAccepted(types.AppHash{byte(desc.Height)}), nil
}

func (m *MockApp) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	if m.SimulateFn != nil {
		return m.SimulateFn(ctx, tx)
	}
	return types.TxOutcome{Code: 0}, nil
}
