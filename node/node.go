// Package node is a single-validator engine. It admits transactions
// into a mempool through CheckTx, produces a block on every tick and
// drives the runtime through ExecuteBlock and Commit.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/sdk"
	"github.com/blockberries/progchain/types"
)

// Config holds the engine settings. Zero fields take their value from
// the genesis consensus params.
type Config struct {
	BlockInterval time.Duration
	MaxBlockBytes uint64
	MempoolSize   int
}

// DefaultMempoolSize bounds the mempool when Config.MempoolSize is 0.
const DefaultMempoolSize = 10000

// DroppedRetention is how many blocks a dropped signature stays
// queryable. It matches the blockhash validity window, after which a
// client can tell the transaction expired.
const DroppedRetention = 150

// ErrEvicted is returned to a confirmation waiter whose transaction
// failed revalidation after a commit.
var ErrEvicted = errors.New("transaction evicted from mempool")

// RejectedError reports a transaction refused by CheckTx.
type RejectedError struct {
	Code uint32
	Info string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transaction rejected (code %d): %s", e.Code, e.Info)
}

// Confirmation is the committed result of a transaction.
type Confirmation struct {
	Signature types.Signature
	Slot      uint64
	Outcome   types.TxOutcome
}

type waitResult struct {
	conf Confirmation
	err  error
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithCheckpoint sets where the last committed block is recorded.
// Defaults to an in-memory checkpoint.
func WithCheckpoint(c Checkpoint) Option {
	return func(n *Node) { n.checkpoint = c }
}

// WithClock overrides the block time source.
func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

// Node drives a runtime connection.
type Node struct {
	conn       progchain.Connection
	cfg        Config
	logger     *slog.Logger
	checkpoint Checkpoint
	now        func() time.Time
	mempool    *Mempool

	// produce serializes block production.
	produce sync.Mutex

	mu       sync.RWMutex
	started  bool
	height   uint64
	lastHash types.Hash
	lastTime time.Time
	halt     *progchain.HaltError
	waiters  map[types.Signature][]chan waitResult
	// dropped holds transactions that left the mempool without a
	// committed status: failed in a block before paying the fee, or
	// evicted on revalidation.
	dropped map[types.Signature]types.SignatureStatus
}

// New creates a node over conn. Start must be called before use.
func New(conn progchain.Connection, cfg Config, opts ...Option) *Node {
	n := &Node{
		conn:       conn,
		cfg:        cfg,
		logger:     slog.Default(),
		checkpoint: &MemCheckpoint{},
		now:        time.Now,
		waiters:    make(map[types.Signature][]chan waitResult),
		dropped:    make(map[types.Signature]types.SignatureStatus),
	}
	for _, opt := range opts {
		opt(n)
	}
	size := cfg.MempoolSize
	if size == 0 {
		size = DefaultMempoolSize
	}
	n.mempool = NewMempool(size)
	return n
}

// Start performs the handshake. A node without a checkpoint starts
// from genesis; otherwise the runtime is asked to resume from the
// checkpointed block.
func (n *Node) Start(ctx context.Context, genesis types.GenesisDoc) error {
	if n.cfg.BlockInterval == 0 {
		n.cfg.BlockInterval = genesis.ConsensusParams.BlockInterval.ToGo()
	}
	if n.cfg.MaxBlockBytes == 0 {
		n.cfg.MaxBlockBytes = genesis.ConsensusParams.MaxBlockBytes
	}

	last, err := n.checkpoint.Load()
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	req := types.HandshakeRequest{LastCommitted: last}
	if last == nil {
		req.Genesis = &genesis
	}
	resp, err := n.conn.Handshake(ctx, req)
	if err != nil {
		n.recordHalt(err)
		return fmt.Errorf("handshake: %w", err)
	}
	if resp.ChainID != "" && genesis.ChainID != "" && resp.ChainID != genesis.ChainID {
		return fmt.Errorf("runtime is on chain %q, node expects %q", resp.ChainID, genesis.ChainID)
	}
	if last != nil && resp.Height() != last.Height {
		return fmt.Errorf("runtime resumed at height %d, checkpoint is at %d", resp.Height(), last.Height)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if last == nil {
		n.height = genesis.ParentHeight()
		n.lastTime = genesis.GenesisTime.ToTime()
		if res, err := n.conn.Query(ctx, types.StateQuery{Path: types.QueryBlockhash}); err == nil &&
			res.OK() && len(res.Value) == len(n.lastHash) {
			copy(n.lastHash[:], res.Value)
		}
	} else {
		n.height = last.Height
		n.lastHash = last.Hash
	}
	n.started = true

	n.logger.Info("node started",
		"chain_id", genesis.ChainID,
		"height", n.height,
		"capabilities", resp.Capabilities.String(),
		"block_interval", n.cfg.BlockInterval)
	return nil
}

// Run produces a block every BlockInterval until ctx is cancelled or
// the runtime halts.
func (n *Node) Run(ctx context.Context) error {
	interval := n.cfg.BlockInterval
	if interval <= 0 {
		return errors.New("block interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := n.ProduceBlock(ctx); err != nil {
				if h, ok := progchain.IsHalt(err); ok {
					n.logger.Error("runtime halted, stopping block production",
						"height", h.Height, "reason", h.Detail())
					return err
				}
				if ctx.Err() != nil {
					return nil
				}
				n.logger.Error("block production failed", "error", err)
			}
		}
	}
}

// ProduceBlock builds, executes and commits the next block.
func (n *Node) ProduceBlock(ctx context.Context) (types.BlockOutcome, error) {
	n.produce.Lock()
	defer n.produce.Unlock()

	n.mu.RLock()
	started, halt := n.started, n.halt
	height, lastHash, lastTime := n.height+1, n.lastHash, n.lastTime
	n.mu.RUnlock()
	if halt != nil {
		return types.BlockOutcome{}, halt
	}
	if !started {
		return types.BlockOutcome{}, errors.New("node not started")
	}

	now := n.now()
	if !now.After(lastTime) {
		now = lastTime.Add(time.Millisecond)
	}

	txs, err := n.proposal(ctx, height, types.TimeToTimestamp(now))
	if err != nil {
		return types.BlockOutcome{}, err
	}

	block := types.FinalizedBlock{
		Height:        height,
		Time:          types.TimeToTimestamp(now),
		Txs:           txs,
		LastBlockHash: lastHash,
	}
	// Once execution starts the block is carried through commit even
	// if ctx is cancelled meanwhile.
	cctx := context.WithoutCancel(ctx)
	outcome, err := n.conn.ExecuteBlock(cctx, block)
	if err != nil {
		n.recordHalt(err)
		return types.BlockOutcome{}, fmt.Errorf("execute block %d: %w", height, err)
	}
	if _, err := n.conn.Commit(cctx); err != nil {
		return types.BlockOutcome{}, fmt.Errorf("commit block %d: %w", height, err)
	}
	if err := n.checkpoint.Save(types.BlockID{Height: height, Hash: outcome.Blockhash}); err != nil {
		return types.BlockOutcome{}, fmt.Errorf("save checkpoint: %w", err)
	}

	n.mu.Lock()
	n.height = height
	n.lastHash = outcome.Blockhash
	n.lastTime = now
	n.mu.Unlock()

	n.confirm(height, txs, outcome.TxOutcomes)
	n.revalidate(cctx)

	n.logger.Info("committed block",
		"height", height,
		"txs", len(txs),
		"app_hash", types.Hash(outcome.AppHash).String(),
		"mempool", n.mempool.Size())
	return outcome, nil
}

// proposal picks the block's transactions, delegating to the runtime
// when it declared ProposalControl.
func (n *Node) proposal(ctx context.Context, height uint64, t types.Timestamp) ([]types.Tx, error) {
	pc := n.conn.AsProposalControl()
	if pc == nil {
		return n.mempool.Reap(n.cfg.MaxBlockBytes), nil
	}
	built, err := pc.BuildProposal(ctx, types.ProposalContext{
		Height:     height,
		Time:       t,
		MempoolTxs: n.mempool.Reap(0),
		MaxTxBytes: n.cfg.MaxBlockBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("build proposal: %w", err)
	}
	verdict, err := pc.VerifyProposal(ctx, types.ReceivedProposal{Height: height, Time: t, Txs: built.Txs})
	if err != nil {
		return nil, fmt.Errorf("verify proposal: %w", err)
	}
	if !verdict.Accept {
		return nil, fmt.Errorf("runtime rejected its own proposal: %s", verdict.RejectReason)
	}
	return built.Txs, nil
}

// confirm removes committed transactions from the mempool and wakes
// their waiters. Failed outcomes are remembered as dropped, since the
// runtime records no status for a transaction that never paid its fee.
func (n *Node) confirm(height uint64, txs []types.Tx, outcomes []types.TxOutcome) {
	n.pruneDropped(height)
	for i, tx := range txs {
		sig, err := txSignature(tx)
		if err != nil {
			continue
		}
		n.mempool.Remove(sig)
		var out types.TxOutcome
		if i < len(outcomes) {
			out = outcomes[i]
		}
		if !out.OK() {
			n.drop(sig, types.SignatureStatus{Slot: height, Code: out.Code, Info: out.Info})
		}
		n.notify(sig, waitResult{conf: Confirmation{Signature: sig, Slot: height, Outcome: out}})
	}
}

func (n *Node) drop(sig types.Signature, st types.SignatureStatus) {
	n.mu.Lock()
	n.dropped[sig] = st
	n.mu.Unlock()
}

func (n *Node) pruneDropped(height uint64) {
	if height <= DroppedRetention {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for sig, st := range n.dropped {
		if st.Slot < height-DroppedRetention {
			delete(n.dropped, sig)
		}
	}
}

// Dropped returns the status of a transaction that left the mempool
// without being committed by the runtime, for up to DroppedRetention
// blocks.
func (n *Node) Dropped(sig types.Signature) (types.SignatureStatus, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	st, ok := n.dropped[sig]
	return st, ok
}

// revalidate re-checks every pending transaction against the new
// state and evicts those the runtime now rejects.
func (n *Node) revalidate(ctx context.Context) {
	sigs, txs := n.mempool.Entries()
	for i, tx := range txs {
		verdict, err := n.conn.CheckTx(ctx, tx, types.MempoolRevalidation)
		if err != nil {
			n.logger.Warn("revalidation failed", "signature", sigs[i].String(), "error", err)
			continue
		}
		if verdict.Accepted() {
			n.mempool.Update(sigs[i], verdict)
			continue
		}
		n.mempool.Remove(sigs[i])
		n.drop(sigs[i], types.SignatureStatus{Slot: n.Height(), Code: verdict.Code, Info: verdict.Info})
		n.logger.Debug("evicted transaction",
			"signature", sigs[i].String(), "code", verdict.Code, "info", verdict.Info)
		n.notify(sigs[i], waitResult{err: fmt.Errorf("%w: %w", ErrEvicted, &RejectedError{Code: verdict.Code, Info: verdict.Info})})
	}
}

// Submit admits tx to the mempool and returns its signature.
func (n *Node) Submit(ctx context.Context, tx types.Tx) (types.Signature, error) {
	sig, verdict, err := n.check(ctx, tx)
	if err != nil {
		return types.Signature{}, err
	}
	if err := n.mempool.Add(sig, tx, verdict); err != nil {
		return types.Signature{}, err
	}
	n.readmit(sig)
	return sig, nil
}

// readmit forgets an earlier drop of a transaction that is pending
// again.
func (n *Node) readmit(sig types.Signature) {
	n.mu.Lock()
	delete(n.dropped, sig)
	n.mu.Unlock()
}

// check runs first-seen admission.
func (n *Node) check(ctx context.Context, tx types.Tx) (types.Signature, types.GateVerdict, error) {
	if h := n.Halted(); h != nil {
		return types.Signature{}, types.GateVerdict{}, h
	}
	verdict, err := n.conn.CheckTx(ctx, tx, types.MempoolFirstSeen)
	if err != nil {
		return types.Signature{}, verdict, fmt.Errorf("check tx: %w", err)
	}
	if !verdict.Accepted() {
		return types.Signature{}, verdict, &RejectedError{Code: verdict.Code, Info: verdict.Info}
	}
	sig, err := txSignature(tx)
	if err != nil {
		return types.Signature{}, verdict, err
	}
	n.logger.Debug("admitted transaction",
		"signature", sig.String(), "fee_payer", verdict.FeePayer.String(), "fee", verdict.Fee)
	return sig, verdict, nil
}

// SubmitAndConfirm submits tx and waits until it is committed, it is
// evicted or ctx is done. A transaction that executed with a non-zero
// code is still confirmed; callers inspect Outcome.Code.
func (n *Node) SubmitAndConfirm(ctx context.Context, tx types.Tx) (Confirmation, error) {
	sig, verdict, err := n.check(ctx, tx)
	if err != nil {
		return Confirmation{}, err
	}

	ch := make(chan waitResult, 1)
	n.mu.Lock()
	n.waiters[sig] = append(n.waiters[sig], ch)
	n.mu.Unlock()

	if err := n.mempool.Add(sig, tx, verdict); err != nil {
		n.dropWaiter(sig, ch)
		return Confirmation{}, err
	}
	n.readmit(sig)

	select {
	case res := <-ch:
		return res.conf, res.err
	case <-ctx.Done():
		n.dropWaiter(sig, ch)
		return Confirmation{}, ctx.Err()
	}
}

func (n *Node) notify(sig types.Signature, res waitResult) {
	n.mu.Lock()
	chans := n.waiters[sig]
	delete(n.waiters, sig)
	n.mu.Unlock()
	for _, ch := range chans {
		ch <- res
	}
}

func (n *Node) dropWaiter(sig types.Signature, ch chan waitResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	chans := n.waiters[sig]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(n.waiters, sig)
	} else {
		n.waiters[sig] = chans
	}
}

func (n *Node) recordHalt(err error) {
	h, ok := progchain.IsHalt(err)
	if !ok {
		return
	}
	n.mu.Lock()
	if n.halt == nil {
		n.halt = h
	}
	waiters := n.waiters
	n.waiters = make(map[types.Signature][]chan waitResult)
	n.mu.Unlock()

	for _, chans := range waiters {
		for _, ch := range chans {
			ch <- waitResult{err: h}
		}
	}
}

// Query reads committed runtime state.
func (n *Node) Query(ctx context.Context, path types.QueryPath, data []byte) (types.StateQueryResult, error) {
	return n.conn.Query(ctx, types.StateQuery{Path: path, Data: data})
}

// Simulate dry-runs tx when the runtime supports it.
func (n *Node) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	sim := n.conn.AsSimulator()
	if sim == nil {
		return types.TxOutcome{}, errors.New("runtime does not support simulation")
	}
	return sim.Simulate(ctx, tx)
}

// Height returns the last committed height.
func (n *Node) Height() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.height
}

// Halted returns the error that stopped the node, or nil.
func (n *Node) Halted() *progchain.HaltError {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.halt
}

// Mempool exposes the pending pool.
func (n *Node) Mempool() *Mempool { return n.mempool }

func txSignature(tx types.Tx) (types.Signature, error) {
	ptx, err := sdk.DecodeTransaction(tx)
	if err != nil {
		return types.Signature{}, err
	}
	if len(ptx.Signatures) == 0 {
		return types.Signature{}, errors.New("transaction has no signatures")
	}
	return ptx.ID(), nil
}
