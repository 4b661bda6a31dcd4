// Package progchain defines the boundary between the block-producing
// engine and the program runtime that executes transactions against
// accounts.
//
// The core [Lifecycle] interface is required. All other interfaces
// are optional capabilities discovered via Go type assertion at
// handshake time.
package progchain

import (
	"context"

	"github.com/blockberries/progchain/types"
)

// Lifecycle is the core interface every runtime must implement.
// It covers the complete happy-path from boot to steady-state block
// production.
//
// The engine guarantees the following call order:
//  1. Handshake is called exactly once, before anything else.
//  2. ExecuteBlock(h) is called exactly once per committed height h.
//  3. Commit is called exactly once after each ExecuteBlock.
//  4. CheckTx, Query may be called concurrently at any time after Handshake.
type Lifecycle interface {
	// Handshake is called once on every startup (cold start or restart).
	//
	// The engine communicates the last block it committed. If LastCommitted
	// is nil, this is a fresh genesis and Genesis will be populated.
	//
	// The application returns its own view of its state so the engine can
	// detect and recover from any divergence.
	Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error)

	// CheckTx gate-checks a transaction before it enters the mempool.
	//
	// The context parameter distinguishes first-seen transactions from
	// periodic re-validations after state changes.
	//
	// This method MUST be safe for concurrent use.
	CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error)

	// ExecuteBlock deterministically executes a finalized block.
	//
	// The application MUST execute every transaction in order and return
	// a BlockOutcome. Failed transactions are reported through their
	// outcome code, not through the returned error.
	//
	// This method MUST NOT persist state; Commit does.
	ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error)

	// Commit persists all state changes from the last ExecuteBlock to
	// durable storage.
	//
	// Called exactly once after each ExecuteBlock. Must be crash-safe:
	// either all changes land, or none do.
	Commit(ctx context.Context) (types.CommitResult, error)

	// Query reads committed application state.
	//
	// This method MUST be safe for concurrent use, including concurrent
	// with ExecuteBlock (reads should see the last committed state).
	Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error)
}

// ProposalControl allows the application to influence which transactions
// appear in a block and in what order. If the application does not
// implement this interface, the engine fills blocks from its mempool
// in priority order.
//
// Declared via: types.CapProposalControl in HandshakeResponse.Capabilities
type ProposalControl interface {
	// BuildProposal is called before the engine produces a block.
	// The application returns an ordered list of transactions and may
	// reorder or drop mempool transactions.
	BuildProposal(ctx context.Context, pctx types.ProposalContext) (types.BuiltProposal, error)

	// VerifyProposal runs structural validation on a block before it is
	// executed. It MUST NOT execute transactions and MUST be
	// deterministic.
	VerifyProposal(ctx context.Context, proposal types.ReceivedProposal) (types.ProposalVerdict, error)
}

// StateSync enables snapshot-based state synchronization for fast node
// bootstrapping.
//
// Declared via: types.CapStateSync in HandshakeResponse.Capabilities
type StateSync interface {
	// AvailableSnapshots lists snapshots the application can export.
	AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error)

	// ExportSnapshot exports a snapshot as a pull-based stream of chunks.
	//
	// The returned channel yields chunks in order and is closed after
	// the last chunk.
	ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error)

	// ImportSnapshot imports a snapshot from a push-based stream of chunks
	// and returns the resulting AppHash.
	ImportSnapshot(ctx context.Context, descriptor types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error)
}

// Simulator provides a dedicated path for dry-run execution.
//
// Declared via: types.CapSimulation in HandshakeResponse.Capabilities
type Simulator interface {
	// Simulate dry-runs a transaction against current committed state
	// without persisting any changes. Returns the execution result
	// including program logs.
	//
	// This method MUST be safe for concurrent use.
	Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error)
}

// Application is a convenience interface that embeds all interfaces.
type Application interface {
	Lifecycle
	ProposalControl
	StateSync
	Simulator
}

// Connection represents a transport-agnostic connection to a runtime.
// Both gRPC clients and in-process adapters implement this.
type Connection interface {
	Lifecycle

	// Capabilities returns the capabilities discovered at handshake.
	// Must only be called after Handshake completes.
	Capabilities() types.Capabilities

	// AsProposalControl returns the ProposalControl interface if
	// available, or nil if the app does not support it.
	AsProposalControl() ProposalControl

	// AsStateSync returns the StateSync interface if available.
	AsStateSync() StateSync

	// AsSimulator returns the Simulator interface if available.
	AsSimulator() Simulator

	// Close terminates the connection.
	Close() error
}
