package node_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/internal/testutil"
	"github.com/blockberries/progchain/local"
	"github.com/blockberries/progchain/node"
	"github.com/blockberries/progchain/program/system"
	"github.com/blockberries/progchain/runtime"
	"github.com/blockberries/progchain/sdk"
	"github.com/blockberries/progchain/server"
	"github.com/blockberries/progchain/store"
	progchaintest "github.com/blockberries/progchain/testing"
	"github.com/blockberries/progchain/types"
)

func genesis(t *testing.T, faucet *sdk.Keypair) types.GenesisDoc {
	t.Helper()
	appState, err := runtime.DefaultAppState(faucet.Pubkey(), 10*sdk.LamportsPerSOL).Marshal()
	require.NoError(t, err)
	return progchaintest.GenesisWithAppState(appState)
}

func startNode(t *testing.T, app progchain.Lifecycle, doc types.GenesisDoc, opts ...node.Option) *node.Node {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	conn := local.NewConnection(app, server.WithLogger(logger))
	opts = append([]node.Option{node.WithLogger(logger)}, opts...)
	n := node.New(conn, node.Config{}, opts...)
	require.NoError(t, n.Start(context.Background(), doc))
	return n
}

func blockhash(t *testing.T, n *node.Node) types.Hash {
	t.Helper()
	res, err := n.Query(context.Background(), types.QueryBlockhash, nil)
	require.NoError(t, err)
	require.True(t, res.OK())
	var h types.Hash
	copy(h[:], res.Value)
	return h
}

func transfer(t *testing.T, from *sdk.Keypair, to types.Pubkey, lamports uint64, recent types.Hash) types.Tx {
	t.Helper()
	tx, err := sdk.NewSignedTransaction([]types.Instruction{system.Transfer(from.Pubkey(), to, lamports)}, from, nil, recent)
	require.NoError(t, err)
	raw, err := sdk.EncodeTransaction(tx)
	require.NoError(t, err)
	return raw
}

func TestNode_SubmitAndConfirm(t *testing.T) {
	faucet := progchaintest.Keypair(t, 1)
	alice := progchaintest.Keypair(t, 2).Pubkey()
	n := startNode(t, runtime.New(runtime.WithLogger(testutil.NewTestLogger(t))), genesis(t, faucet))
	tx := transfer(t, faucet, alice, sdk.LamportsPerSOL, blockhash(t, n))

	type result struct {
		conf node.Confirmation
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conf, err := n.SubmitAndConfirm(context.Background(), tx)
		done <- result{conf, err}
	}()
	require.Eventually(t, func() bool { return n.Mempool().Size() == 1 }, time.Second, time.Millisecond)

	out, err := n.ProduceBlock(context.Background())
	require.NoError(t, err)
	require.Len(t, out.TxOutcomes, 1)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, uint64(1), res.conf.Slot)
	assert.True(t, res.conf.Outcome.OK(), res.conf.Outcome.Info)
	assert.Equal(t, res.conf.Signature[:], res.conf.Outcome.Data)
	assert.Equal(t, 0, n.Mempool().Size())
	assert.Equal(t, uint64(1), n.Height())

	// Committed signatures are refused on resubmission.
	_, err = n.Submit(context.Background(), tx)
	var rejected *node.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, runtime.ErrAlreadyProcessed.Code, rejected.Code)
}

func TestNode_SubmitRejected(t *testing.T) {
	faucet := progchaintest.Keypair(t, 1)
	n := startNode(t, runtime.New(runtime.WithLogger(testutil.NewTestLogger(t))), genesis(t, faucet))

	_, err := n.Submit(context.Background(), types.Tx("junk"))
	var rejected *node.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, runtime.ErrSanitizeFailure.Code, rejected.Code)

	broke := progchaintest.Keypair(t, 9)
	_, err = n.Submit(context.Background(), transfer(t, broke, faucet.Pubkey(), 1, blockhash(t, n)))
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, runtime.ErrAccountNotFound.Code, rejected.Code)
	assert.Equal(t, 0, n.Mempool().Size())
}

func TestNode_BlocksChain(t *testing.T) {
	faucet := progchaintest.Keypair(t, 1)
	n := startNode(t, runtime.New(runtime.WithLogger(testutil.NewTestLogger(t))), genesis(t, faucet))

	for i := 0; i < 3; i++ {
		before := blockhash(t, n)
		out, err := n.ProduceBlock(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, before, out.Blockhash)
		assert.Equal(t, out.Blockhash, blockhash(t, n))
	}
	assert.Equal(t, uint64(3), n.Height())
}

func TestNode_OrdersByPriorityWithoutProposalControl(t *testing.T) {
	faucet := progchaintest.Keypair(t, 1)
	app := &progchaintest.MockApp{
		CheckTxFn: func(_ context.Context, tx types.Tx, _ types.MempoolContext) (types.GateVerdict, error) {
			return types.GateVerdict{Priority: int64(len(tx))}, nil
		},
	}
	n := startNode(t, app, progchaintest.DefaultGenesis())

	small := transfer(t, faucet, types.Pubkey{1}, 1, types.Hash{})
	ix := system.Transfer(faucet.Pubkey(), types.Pubkey{2}, 1)
	tx, err := sdk.NewSignedTransaction([]types.Instruction{ix, ix}, faucet, nil, types.Hash{})
	require.NoError(t, err)
	large, err := sdk.EncodeTransaction(tx)
	require.NoError(t, err)

	_, err = n.Submit(context.Background(), small)
	require.NoError(t, err)
	_, err = n.Submit(context.Background(), large)
	require.NoError(t, err)

	_, err = n.ProduceBlock(context.Background())
	require.NoError(t, err)

	blocks := app.ExecutedBlocks()
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Txs, 2)
	assert.Equal(t, large, blocks[0].Txs[0])
	assert.Equal(t, small, blocks[0].Txs[1])
	assert.Equal(t, uint64(1), blocks[0].Height)
}

func TestNode_RevalidationEvicts(t *testing.T) {
	faucet := progchaintest.Keypair(t, 1)
	app := &progchaintest.MockApp{
		DeclaredCapabilities: types.CapProposalControl,
		CheckTxFn: func(_ context.Context, _ types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
			if mctx == types.MempoolRevalidation {
				return types.GateVerdict{Code: 102, Info: "blockhash not found"}, nil
			}
			return types.GateVerdict{}, nil
		},
		BuildProposalFn: func(context.Context, types.ProposalContext) (types.BuiltProposal, error) {
			return types.BuiltProposal{}, nil
		},
	}
	n := startNode(t, app, progchaintest.DefaultGenesis())
	tx := transfer(t, faucet, types.Pubkey{1}, 1, types.Hash{})

	done := make(chan error, 1)
	go func() {
		_, err := n.SubmitAndConfirm(context.Background(), tx)
		done <- err
	}()
	require.Eventually(t, func() bool { return n.Mempool().Size() == 1 }, time.Second, time.Millisecond)

	_, err := n.ProduceBlock(context.Background())
	require.NoError(t, err)

	err = <-done
	assert.ErrorIs(t, err, node.ErrEvicted)
	var rejected *node.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, uint32(102), rejected.Code)
	assert.Equal(t, 0, n.Mempool().Size())

	ptx, err := sdk.DecodeTransaction(tx)
	require.NoError(t, err)
	st, ok := n.Dropped(ptx.ID())
	require.True(t, ok)
	assert.Equal(t, uint32(102), st.Code)
}

func TestNode_UnpaidFailureIsDropped(t *testing.T) {
	faucet := progchaintest.Keypair(t, 1)
	n := startNode(t, runtime.New(runtime.WithLogger(testutil.NewTestLogger(t))), genesis(t, faucet))
	recent := blockhash(t, n)

	// The first transfer empties the faucet, leaving nothing to pay
	// the second transaction's fee.
	drain := transfer(t, faucet, progchaintest.Keypair(t, 2).Pubkey(),
		10*sdk.LamportsPerSOL-runtime.DefaultFeePerSignature, recent)
	late := transfer(t, faucet, progchaintest.Keypair(t, 3).Pubkey(), 1, recent)

	drainSig, err := n.Submit(context.Background(), drain)
	require.NoError(t, err)
	lateSig, err := n.Submit(context.Background(), late)
	require.NoError(t, err)

	out, err := n.ProduceBlock(context.Background())
	require.NoError(t, err)
	require.Len(t, out.TxOutcomes, 2)
	assert.True(t, out.TxOutcomes[0].OK(), out.TxOutcomes[0].Info)
	assert.Equal(t, runtime.ErrAccountNotFound.Code, out.TxOutcomes[1].Code)

	res, err := n.Query(context.Background(), types.QuerySignature, lateSig[:])
	require.NoError(t, err)
	assert.Equal(t, types.QueryNotFound, res.Code)

	st, ok := n.Dropped(lateSig)
	require.True(t, ok)
	assert.Equal(t, uint64(1), st.Slot)
	assert.Equal(t, runtime.ErrAccountNotFound.Code, st.Code)

	_, ok = n.Dropped(drainSig)
	assert.False(t, ok)
	assert.Equal(t, 0, n.Mempool().Size())
}

func TestNode_HaltStopsRun(t *testing.T) {
	faucet := progchaintest.Keypair(t, 1)
	app := &progchaintest.MockApp{
		ExecuteBlockFn: func(_ context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
			return types.BlockOutcome{}, progchain.NewHaltError(block.Height, "state diverged")
		},
	}
	n := node.New(local.NewConnection(app, server.WithLogger(testutil.NewTestLogger(t))),
		node.Config{BlockInterval: time.Millisecond},
		node.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, n.Start(context.Background(), progchaintest.DefaultGenesis()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := n.Run(ctx)
	h, ok := progchain.IsHalt(err)
	require.True(t, ok, "expected HaltError, got %v", err)
	assert.Equal(t, uint64(1), h.Height)
	assert.NotNil(t, n.Halted())
	assert.Equal(t, int64(1), app.ExecuteBlockCalls.Load())
	assert.Zero(t, app.CommitCalls.Load())

	_, err = n.Submit(context.Background(), transfer(t, faucet, types.Pubkey{1}, 1, types.Hash{}))
	_, ok = progchain.IsHalt(err)
	assert.True(t, ok)
}

func TestNode_RunStopsOnCancel(t *testing.T) {
	app := &progchaintest.MockApp{}
	n := node.New(local.NewConnection(app, server.WithLogger(testutil.NewTestLogger(t))),
		node.Config{BlockInterval: time.Millisecond},
		node.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, n.Start(context.Background(), progchaintest.DefaultGenesis()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Eventually(t, func() bool { return n.Height() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, n.Height(), app.Committed())

	blocks := app.ExecutedBlocks()
	for i := 1; i < len(blocks); i++ {
		assert.Equal(t, blocks[i-1].Height+1, blocks[i].Height)
		assert.Equal(t, types.Hash{byte(blocks[i-1].Height)}, blocks[i].LastBlockHash)
		assert.True(t, blocks[i].Time.ToTime().After(blocks[i-1].Time.ToTime()))
	}
}

func TestNode_RestartFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	faucet := progchaintest.Keypair(t, 1)
	doc := genesis(t, faucet)
	checkpoint := node.NewFileCheckpoint(filepath.Join(dir, "checkpoint.json"))

	open := func() *runtime.App {
		s, err := store.OpenSQLite(context.Background(), filepath.Join(dir, "state.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return runtime.New(runtime.WithLogger(testutil.NewTestLogger(t)), runtime.WithStore(s))
	}

	n := startNode(t, open(), doc, node.WithCheckpoint(checkpoint))
	_, err := n.ProduceBlock(context.Background())
	require.NoError(t, err)
	last, err := n.ProduceBlock(context.Background())
	require.NoError(t, err)

	saved, err := checkpoint.Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, types.BlockID{Height: 2, Hash: last.Blockhash}, *saved)

	restarted := startNode(t, open(), doc, node.WithCheckpoint(checkpoint))
	assert.Equal(t, uint64(2), restarted.Height())
	out, err := restarted.ProduceBlock(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, last.Blockhash, out.Blockhash)
	assert.Nil(t, restarted.Halted())
}

func TestNode_StartHaltsOnDivergence(t *testing.T) {
	faucet := progchaintest.Keypair(t, 1)
	checkpoint := &node.MemCheckpoint{}
	require.NoError(t, checkpoint.Save(types.BlockID{Height: 4}))

	logger := testutil.NewTestLogger(t)
	app := runtime.New(runtime.WithLogger(logger))
	n := node.New(local.NewConnection(app, server.WithLogger(logger)), node.Config{},
		node.WithLogger(logger), node.WithCheckpoint(checkpoint))
	err := n.Start(context.Background(), genesis(t, faucet))
	_, ok := progchain.IsHalt(err)
	require.True(t, ok, "expected HaltError, got %v", err)

	_, err = n.ProduceBlock(context.Background())
	assert.True(t, errors.As(err, new(*progchain.HaltError)))
}

func TestNode_StartRejectsOtherChain(t *testing.T) {
	app := &progchaintest.MockApp{
		HandshakeFn: func(context.Context, types.HandshakeRequest) (types.HandshakeResponse, error) {
			return types.HandshakeResponse{ChainID: "other-chain"}, nil
		},
	}
	logger := testutil.NewTestLogger(t)
	n := node.New(local.NewConnection(app, server.WithLogger(logger)), node.Config{}, node.WithLogger(logger))
	err := n.Start(context.Background(), progchaintest.DefaultGenesis())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other-chain")
}
