package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/types"
)

// Server is the only path from a node to a runtime. It enforces the
// lifecycle through a LifecycleGuard, remembers a halt once the
// runtime reports one and routes optional calls by capability.
type Server struct {
	app    progchain.Lifecycle
	guard  *LifecycleGuard
	caps   types.Capabilities
	logger *slog.Logger

	// nil when not implemented
	proposalCtl progchain.ProposalControl
	stateSync   progchain.StateSync
	simulator   progchain.Simulator

	mu             sync.Mutex
	lastOutcome    *types.BlockOutcome
	lastExecHeight uint64
	halt           *progchain.HaltError
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for capability warnings and halts.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a new Server wrapping the given runtime.
func New(app progchain.Lifecycle, opts ...Option) *Server {
	s := &Server{
		app:    app,
		guard:  NewLifecycleGuard(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.proposalCtl, _ = app.(progchain.ProposalControl)
	s.stateSync, _ = app.(progchain.StateSync)
	s.simulator, _ = app.(progchain.Simulator)
	return s
}

// Handshake performs the startup handshake, validates capability
// declarations, and transitions the state machine to Ready.
func (s *Server) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	s.guard.AcquireHandshake()

	resp, err := s.app.Handshake(ctx, req)
	if err != nil {
		s.guard.FailHandshake()
		s.recordHalt(err)
		return resp, err
	}

	if err := discoverCapabilities(s.logger, s.app, resp.Capabilities); err != nil {
		s.guard.FailHandshake()
		return resp, err
	}

	s.caps = resp.Capabilities
	s.guard.CompleteHandshake()
	return resp, nil
}

// CheckTx gate-checks a transaction for mempool admission.
// Safe for concurrent use.
func (s *Server) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	s.guard.CheckConcurrent()
	return s.app.CheckTx(ctx, tx, mctx)
}

// ExecuteBlock deterministically executes a finalized block. Once the
// runtime has returned a HaltError, every later call returns it again.
func (s *Server) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	if h := s.Halted(); h != nil {
		return types.BlockOutcome{}, h
	}
	s.guard.AcquireExecute()

	outcome, err := s.app.ExecuteBlock(ctx, block)
	if err != nil {
		s.guard.FailExecute()
		s.recordHalt(err)
		return outcome, err
	}

	s.mu.Lock()
	s.lastOutcome = &outcome
	s.lastExecHeight = block.Height
	s.mu.Unlock()

	s.guard.CompleteExecute()
	return outcome, nil
}

// Commit persists state changes from the last ExecuteBlock.
func (s *Server) Commit(ctx context.Context) (types.CommitResult, error) {
	s.guard.AcquireCommit()

	result, err := s.app.Commit(ctx)

	s.mu.Lock()
	height := s.lastExecHeight
	s.lastOutcome = nil
	s.mu.Unlock()

	s.guard.CompleteCommit()
	if err != nil {
		return result, fmt.Errorf("commit height %d: %w", height, err)
	}
	s.logger.Debug("committed", "height", height, "retain_height", result.RetainHeight)
	return result, nil
}

// Query reads committed state. Safe for concurrent use.
func (s *Server) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	s.guard.CheckConcurrent()
	return s.app.Query(ctx, req)
}

// Capabilities returns the runtime's declared capabilities.
// Only valid after Handshake completes.
func (s *Server) Capabilities() types.Capabilities {
	return s.caps
}

// Halted returns the HaltError that stopped execution, or nil.
func (s *Server) Halted() *progchain.HaltError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halt
}

func (s *Server) recordHalt(err error) {
	h, ok := progchain.IsHalt(err)
	if !ok {
		return
	}
	s.mu.Lock()
	s.halt = h
	s.mu.Unlock()
	s.guard.Halt()
	s.logger.Error("runtime requested halt", "height", h.Height, "reason", h.Detail())
}

// ErrNotSupported is returned by optional calls the runtime does not
// implement.
var ErrNotSupported = errors.New("progchain: capability not supported")

func notSupported(capability string) error {
	return fmt.Errorf("%w: %s", ErrNotSupported, capability)
}

func (s *Server) BuildProposal(ctx context.Context, pctx types.ProposalContext) (types.BuiltProposal, error) {
	if s.proposalCtl == nil {
		return types.BuiltProposal{}, notSupported("ProposalControl")
	}
	return s.proposalCtl.BuildProposal(ctx, pctx)
}

// VerifyProposal accepts everything when the runtime has no opinion.
func (s *Server) VerifyProposal(ctx context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	if s.proposalCtl == nil {
		return types.AcceptProposal(), nil
	}
	return s.proposalCtl.VerifyProposal(ctx, prop)
}

func (s *Server) AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error) {
	if s.stateSync == nil {
		return nil, notSupported("StateSync")
	}
	return s.stateSync.AvailableSnapshots(ctx)
}

func (s *Server) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	if s.stateSync == nil {
		return nil, nil, notSupported("StateSync")
	}
	return s.stateSync.ExportSnapshot(ctx, height, format)
}

func (s *Server) ImportSnapshot(ctx context.Context, desc types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	if s.stateSync == nil {
		return types.ImportResult{}, notSupported("StateSync")
	}
	return s.stateSync.ImportSnapshot(ctx, desc, chunks)
}

// Simulate is safe for concurrent use.
func (s *Server) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	if s.simulator == nil {
		return types.TxOutcome{}, notSupported("Simulator")
	}
	s.guard.CheckConcurrent()
	return s.simulator.Simulate(ctx, tx)
}

// AsProposalControl returns the ProposalControl interface or nil.
func (s *Server) AsProposalControl() progchain.ProposalControl {
	if s.caps.Has(types.CapProposalControl) {
		return s.proposalCtl
	}
	return nil
}

// AsStateSync returns the StateSync interface or nil.
func (s *Server) AsStateSync() progchain.StateSync {
	if s.caps.Has(types.CapStateSync) {
		return s.stateSync
	}
	return nil
}

// AsSimulator returns the Simulator interface or nil.
func (s *Server) AsSimulator() progchain.Simulator {
	if s.caps.Has(types.CapSimulation) {
		return s.simulator
	}
	return nil
}

// LastOutcome is the outcome executed but not yet committed, or nil.
func (s *Server) LastOutcome() *types.BlockOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}

func (s *Server) Close() error { return nil }

// discoverCapabilities fails when the runtime declares a capability it
// does not implement, and warns about the reverse.
func discoverCapabilities(logger *slog.Logger, app progchain.Lifecycle, declared types.Capabilities) error {
	_, hasProposal := app.(progchain.ProposalControl)
	_, hasStateSync := app.(progchain.StateSync)
	_, hasSimulator := app.(progchain.Simulator)

	for _, c := range []struct {
		cap         types.Capabilities
		iface       string
		implemented bool
	}{
		{types.CapProposalControl, "ProposalControl", hasProposal},
		{types.CapStateSync, "StateSync", hasStateSync},
		{types.CapSimulation, "Simulator", hasSimulator},
	} {
		has := declared.Has(c.cap)
		if has && !c.implemented {
			return fmt.Errorf("progchain: runtime declared %s but does not implement it", c.iface)
		}
		if !has && c.implemented {
			logger.Warn("runtime implements an undeclared capability; it will not be used", "capability", c.iface)
		}
	}
	return nil
}
