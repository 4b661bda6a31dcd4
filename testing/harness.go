package progchaintest

import (
	"context"
	"testing"
	"time"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/internal/testutil"
	"github.com/blockberries/progchain/sdk"
	"github.com/blockberries/progchain/server"
	"github.com/blockberries/progchain/types"
)

// Harness provides a convenient test harness for runtime developers
// to drive a Lifecycle implementation through the lifecycle state
// machine.
type Harness struct {
	t   *testing.T
	srv *server.Server

	// Height and blockhash of the last block committed through the
	// harness, used to build the next block.
	height   uint64
	lastHash types.Hash
}

// NewHarness creates a test harness wrapping the given runtime. Server
// logs are routed to t.Log.
func NewHarness(t *testing.T, app progchain.Lifecycle) *Harness {
	t.Helper()
	return &Harness{t: t, srv: server.New(app, server.WithLogger(testutil.NewTestLogger(t)))}
}

// Server returns the underlying server for direct access.
func (h *Harness) Server() *server.Server {
	return h.srv
}

// Height returns the last height committed through the harness.
func (h *Harness) Height() uint64 {
	return h.height
}

// Genesis performs a genesis handshake with the given genesis doc.
func (h *Harness) Genesis(genesis types.GenesisDoc) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{
		Genesis: &genesis,
	})
	if err != nil {
		h.t.Fatalf("Handshake (genesis) failed: %v", err)
	}
	h.height = genesis.ParentHeight()
	return resp
}

// GenesisDefault performs a genesis handshake with a default
// genesis document.
func (h *Harness) GenesisDefault() types.HandshakeResponse {
	h.t.Helper()
	return h.Genesis(DefaultGenesis())
}

// Restart performs a restart handshake at the given block.
func (h *Harness) Restart(block types.BlockID) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{
		LastCommitted: &block,
	})
	if err != nil {
		h.t.Fatalf("Handshake (restart) failed: %v", err)
	}
	h.height = block.Height
	h.lastHash = block.Hash
	return resp
}

// ExecuteBlock executes a block without committing.
func (h *Harness) ExecuteBlock(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome, err := h.srv.ExecuteBlock(context.Background(), block)
	if err != nil {
		h.t.Fatalf("ExecuteBlock (height=%d) failed: %v", block.Height, err)
	}
	return outcome
}

// Commit commits the last executed block.
func (h *Harness) Commit() types.CommitResult {
	h.t.Helper()
	result, err := h.srv.Commit(context.Background())
	if err != nil {
		h.t.Fatalf("Commit failed: %v", err)
	}
	return result
}

// ExecuteAndCommit is a convenience that executes a block and
// commits, returning the block outcome.
func (h *Harness) ExecuteAndCommit(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome := h.ExecuteBlock(block)
	h.Commit()
	h.height = block.Height
	h.lastHash = outcome.Blockhash
	return outcome
}

// NextBlock builds the block following the last committed one,
// chained to its blockhash.
func (h *Harness) NextBlock(txs ...types.Tx) types.FinalizedBlock {
	block := MakeBlock(h.height+1, txs...)
	block.LastBlockHash = h.lastHash
	return block
}

// Advance executes and commits the next block with txs.
func (h *Harness) Advance(txs ...types.Tx) types.BlockOutcome {
	h.t.Helper()
	return h.ExecuteAndCommit(h.NextBlock(txs...))
}

// CheckTx submits a transaction for mempool gate-checking.
func (h *Harness) CheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(context.Background(), tx, types.MempoolFirstSeen)
	if err != nil {
		h.t.Fatalf("CheckTx failed: %v", err)
	}
	return verdict
}

// RecheckTx re-validates a previously admitted transaction.
func (h *Harness) RecheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(context.Background(), tx, types.MempoolRevalidation)
	if err != nil {
		h.t.Fatalf("RecheckTx failed: %v", err)
	}
	return verdict
}

// Query reads runtime state at the latest height.
func (h *Harness) Query(path types.QueryPath, data []byte) types.StateQueryResult {
	h.t.Helper()
	result, err := h.srv.Query(context.Background(), types.StateQuery{
		Path: path,
		Data: data,
	})
	if err != nil {
		h.t.Fatalf("Query failed: %v", err)
	}
	return result
}

// LatestBlockhash queries the most recent committed blockhash.
func (h *Harness) LatestBlockhash() types.Hash {
	h.t.Helper()
	res := h.Query(types.QueryBlockhash, nil)
	if !res.OK() {
		h.t.Fatalf("blockhash query failed: code=%d info=%q", res.Code, res.Info)
	}
	var hash types.Hash
	copy(hash[:], res.Value)
	return hash
}

// SignTx builds a transaction over ixs paid by payer, referencing the
// latest blockhash, and encodes it.
func (h *Harness) SignTx(payer *sdk.Keypair, signers []*sdk.Keypair, ixs ...types.Instruction) types.Tx {
	h.t.Helper()
	tx, err := sdk.NewSignedTransaction(ixs, payer, signers, h.LatestBlockhash())
	if err != nil {
		h.t.Fatalf("sign tx: %v", err)
	}
	raw, err := sdk.EncodeTransaction(tx)
	if err != nil {
		h.t.Fatalf("encode tx: %v", err)
	}
	return raw
}

// MustAcceptTx asserts that a transaction is accepted.
func (h *Harness) MustAcceptTx(tx types.Tx) {
	h.t.Helper()
	v := h.CheckTx(tx)
	if !v.Accepted() {
		h.t.Fatalf("expected tx accepted, got code=%d info=%q", v.Code, v.Info)
	}
}

// MustRejectTx asserts that a transaction is rejected.
func (h *Harness) MustRejectTx(tx types.Tx) {
	h.t.Helper()
	v := h.CheckTx(tx)
	if v.Accepted() {
		h.t.Fatal("expected tx rejected, got accepted")
	}
}

// --- Helper Factories ---

// GenesisTime is the genesis time used by DefaultGenesis.
var GenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultGenesis returns a minimal genesis document suitable
// for testing.
func DefaultGenesis() types.GenesisDoc {
	return types.GenesisDoc{
		ChainID:       "test-chain",
		GenesisTime:   types.TimeToTimestamp(GenesisTime),
		InitialHeight: 1,
		ConsensusParams: types.DefaultConsensusParams(),
	}
}

// GenesisWithAppState returns DefaultGenesis carrying appState.
func GenesisWithAppState(appState []byte) types.GenesisDoc {
	doc := DefaultGenesis()
	doc.AppState = appState
	return doc
}

// Keypair returns a deterministic keypair derived from n.
func Keypair(t testing.TB, n byte) *sdk.Keypair {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = n
	}
	kp, err := sdk.KeypairFromSeed(seed)
	if err != nil {
		t.Fatalf("keypair from seed: %v", err)
	}
	return kp
}

// MakeBlock creates a FinalizedBlock at the given height with
// the provided transactions.
func MakeBlock(height uint64, txs ...types.Tx) types.FinalizedBlock {
	t := GenesisTime.Add(time.Duration(height) * 400 * time.Millisecond)
	return types.FinalizedBlock{
		Height: height,
		Time:   types.TimeToTimestamp(t),
		Txs:    txs,
	}
}

// MakeEmptyBlock creates an empty FinalizedBlock at the given height.
func MakeEmptyBlock(height uint64) types.FinalizedBlock {
	return MakeBlock(height)
}
