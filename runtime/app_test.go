package runtime_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/internal/testutil"
	"github.com/blockberries/progchain/program"
	"github.com/blockberries/progchain/program/counter"
	"github.com/blockberries/progchain/program/starter"
	"github.com/blockberries/progchain/program/system"
	"github.com/blockberries/progchain/runtime"
	"github.com/blockberries/progchain/sdk"
	progchaintest "github.com/blockberries/progchain/testing"
	"github.com/blockberries/progchain/types"
)

const faucetLamports = 10 * sdk.LamportsPerSOL

type fixture struct {
	t      *testing.T
	app    *runtime.App
	h      *progchaintest.Harness
	faucet *sdk.Keypair
	rent   runtime.Rent
}

func newFixture(t *testing.T, opts ...runtime.Option) *fixture {
	t.Helper()
	opts = append([]runtime.Option{runtime.WithLogger(testutil.NewTestLogger(t))}, opts...)
	f := &fixture{
		t:      t,
		app:    runtime.New(opts...),
		faucet: progchaintest.Keypair(t, 1),
		rent:   runtime.DefaultRent(),
	}
	f.h = progchaintest.NewHarness(t, f.app)
	f.h.Genesis(progchaintest.GenesisWithAppState(f.appState()))
	return f
}

func (f *fixture) appState() []byte {
	f.t.Helper()
	data, err := runtime.DefaultAppState(f.faucet.Pubkey(), faucetLamports).Marshal()
	require.NoError(f.t, err)
	return data
}

func (f *fixture) balance(key types.Pubkey) uint64 {
	f.t.Helper()
	res := f.h.Query(types.QueryBalance, key[:])
	require.True(f.t, res.OK(), res.Info)
	return binary.BigEndian.Uint64(res.Value)
}

func (f *fixture) account(key types.Pubkey) (types.Account, bool) {
	f.t.Helper()
	res := f.h.Query(types.QueryAccount, key[:])
	if res.Code == types.QueryNotFound {
		return types.Account{}, false
	}
	require.True(f.t, res.OK(), res.Info)
	var acct types.Account
	require.NoError(f.t, cramberry.Unmarshal(res.Value, &acct))
	return acct, true
}

func (f *fixture) status(sig []byte) (types.SignatureStatus, bool) {
	f.t.Helper()
	res := f.h.Query(types.QuerySignature, sig)
	if res.Code == types.QueryNotFound {
		return types.SignatureStatus{}, false
	}
	require.True(f.t, res.OK(), res.Info)
	var st types.SignatureStatus
	require.NoError(f.t, cramberry.Unmarshal(res.Value, &st))
	return st, true
}

// transfer signs a transfer from the faucet.
func (f *fixture) transfer(to types.Pubkey, lamports uint64) types.Tx {
	f.t.Helper()
	return f.h.SignTx(f.faucet, nil, system.Transfer(f.faucet.Pubkey(), to, lamports))
}

func TestRuntime_Compliance(t *testing.T) {
	progchaintest.RunComplianceSuite(t, func() progchain.Lifecycle {
		return runtime.New(runtime.WithLogger(testutil.NewTestLogger(t)))
	})
}

func TestRuntime_Genesis(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, faucetLamports, f.balance(f.faucet.Pubkey()))

	res := f.h.Query(types.QueryPrograms, nil)
	require.True(t, res.OK())
	var programs []runtime.ProgramInfo
	require.NoError(t, json.Unmarshal(res.Value, &programs))
	names := make(map[string]types.Pubkey)
	for _, p := range programs {
		names[p.Name] = p.ID
	}
	assert.Equal(t, system.ID, names["system"])
	assert.Equal(t, counter.ProgramID, names["counter"])
	assert.Equal(t, starter.ProgramID, names["starter"])

	acct, ok := f.account(counter.ProgramID)
	require.True(t, ok)
	assert.True(t, acct.Executable)
	assert.Equal(t, runtime.NativeLoaderID, acct.Owner)
	assert.Equal(t, "counter", string(acct.Data))

	assert.Equal(t, uint64(0), f.app.Height())
	assert.NotEqual(t, types.Hash{}, f.h.LatestBlockhash())
}

func TestRuntime_GenesisRejectsUnknownProgram(t *testing.T) {
	app := runtime.New(runtime.WithLogger(testutil.NewTestLogger(t)))
	st := runtime.DefaultAppState(types.Pubkey{}, 0)
	st.Programs = append(st.Programs, runtime.GenesisProgram{Name: "escrow"})
	data, err := st.Marshal()
	require.NoError(t, err)

	doc := progchaintest.GenesisWithAppState(data)
	_, err = app.Handshake(context.Background(), types.HandshakeRequest{Genesis: &doc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escrow")
}

func TestRuntime_GenesisValidates(t *testing.T) {
	app := runtime.New(runtime.WithLogger(testutil.NewTestLogger(t)))
	doc := progchaintest.DefaultGenesis()
	doc.ChainID = ""
	_, err := app.Handshake(context.Background(), types.HandshakeRequest{Genesis: &doc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain id")
}

func TestRuntime_Transfer(t *testing.T) {
	f := newFixture(t)
	alice := progchaintest.Keypair(t, 2).Pubkey()

	outcome := f.h.Advance(f.transfer(alice, sdk.LamportsPerSOL))
	require.Len(t, outcome.TxOutcomes, 1)
	tx := outcome.TxOutcomes[0]
	require.True(t, tx.OK(), tx.Info)
	assert.Equal(t, runtime.DefaultFeePerSignature, tx.Fee)

	assert.Equal(t, sdk.LamportsPerSOL, f.balance(alice))
	assert.Equal(t, faucetLamports-sdk.LamportsPerSOL-runtime.DefaultFeePerSignature, f.balance(f.faucet.Pubkey()))

	st, ok := f.status(tx.Data)
	require.True(t, ok)
	assert.Equal(t, uint64(1), st.Slot)
	assert.True(t, st.OK())

	require.NotEmpty(t, outcome.BlockEvents)
	assert.Equal(t, types.EventBlockFees, outcome.BlockEvents[0].Kind)
	collected, ok := outcome.BlockEvents[0].Get("collected")
	require.True(t, ok)
	assert.Equal(t, "5000", collected)
}

func TestRuntime_CounterFlow(t *testing.T) {
	f := newFixture(t)
	counterKp := progchaintest.Keypair(t, 3)
	key := counterKp.Pubkey()
	lamports := f.rent.MinimumBalance(counter.LEN)

	create := f.h.SignTx(f.faucet, []*sdk.Keypair{counterKp},
		system.CreateAccount(f.faucet.Pubkey(), key, lamports, counter.LEN, counter.ProgramID),
		counter.InitializeInstruction(counter.ProgramID, key),
	)
	verdict := f.h.CheckTx(create)
	require.True(t, verdict.Accepted(), verdict.Info)
	assert.Equal(t, int64(2*runtime.DefaultFeePerSignature), verdict.Priority)
	assert.Equal(t, f.faucet.Pubkey(), verdict.FeePayer)

	out := f.h.Advance(create).TxOutcomes[0]
	require.True(t, out.OK(), out.Info)
	assert.Equal(t, 2*runtime.DefaultFeePerSignature, out.Fee)

	for _, ix := range []types.Instruction{
		counter.IncrementInstruction(counter.ProgramID, key),
		counter.IncrementInstruction(counter.ProgramID, key),
		counter.DecrementInstruction(counter.ProgramID, key),
	} {
		out := f.h.Advance(f.h.SignTx(f.faucet, nil, ix)).TxOutcomes[0]
		require.True(t, out.OK(), out.Info)
	}

	acct, ok := f.account(key)
	require.True(t, ok)
	assert.Equal(t, counter.ProgramID, acct.Owner)
	assert.Equal(t, lamports, acct.Lamports)
	c, err := counter.Unpack(acct.Data)
	require.NoError(t, err)
	assert.True(t, c.IsInitialized)
	assert.Equal(t, uint64(1), c.Count)

	// Underflow surfaces as the program's custom error.
	out = f.h.Advance(f.h.SignTx(f.faucet, nil, counter.DecrementInstruction(counter.ProgramID, key))).TxOutcomes[0]
	require.True(t, out.OK(), out.Info)
	out = f.h.Advance(f.h.SignTx(f.faucet, nil, counter.DecrementInstruction(counter.ProgramID, key))).TxOutcomes[0]
	assert.Equal(t, counter.ErrUnderflow.OutcomeCode(), out.Code)
	assert.Contains(t, out.Logs(), "Program log: Instruction: Decrement")
}

func TestRuntime_StarterInitialize(t *testing.T) {
	f := newFixture(t)

	out := f.h.Advance(f.h.SignTx(f.faucet, nil, starter.InitializeInstruction(starter.ProgramID))).TxOutcomes[0]
	require.True(t, out.OK(), out.Info)
	require.Len(t, out.Data, types.SignatureLen)

	var sig types.Signature
	copy(sig[:], out.Data)
	assert.False(t, sig.IsZero())
	assert.NotEmpty(t, sig.String())

	logs := out.Logs()
	assert.Contains(t, logs, "Program log: Instruction: Initialize")
	assert.Equal(t, "Program "+starter.ProgramID.String()+" invoke [1]", logs[0])
	assert.Equal(t, "Program "+starter.ProgramID.String()+" success", logs[len(logs)-1])
}

func TestRuntime_FeeChargedOnFailure(t *testing.T) {
	f := newFixture(t)

	tx := f.h.SignTx(f.faucet, nil, starter.MethodInstruction(starter.ProgramID, "withdraw"))
	out := f.h.Advance(tx).TxOutcomes[0]
	assert.Equal(t, starter.ErrInstructionFallbackNotFound.OutcomeCode(), out.Code)
	assert.Equal(t, runtime.DefaultFeePerSignature, out.Fee)
	assert.Equal(t, faucetLamports-runtime.DefaultFeePerSignature, f.balance(f.faucet.Pubkey()))

	st, ok := f.status(out.Data)
	require.True(t, ok)
	assert.Equal(t, out.Code, st.Code)
	assert.False(t, st.OK())
}

func TestRuntime_FailedInstructionRollsBackEarlierOnes(t *testing.T) {
	f := newFixture(t)
	alice := progchaintest.Keypair(t, 2).Pubkey()

	tx := f.h.SignTx(f.faucet, nil,
		system.Transfer(f.faucet.Pubkey(), alice, sdk.LamportsPerSOL),
		starter.MethodInstruction(starter.ProgramID, "withdraw"),
	)
	out := f.h.Advance(tx).TxOutcomes[0]
	require.False(t, out.OK())
	assert.Contains(t, out.Info, "instruction 1")

	_, ok := f.account(alice)
	assert.False(t, ok)
	assert.Equal(t, faucetLamports-runtime.DefaultFeePerSignature, f.balance(f.faucet.Pubkey()))
}

func TestRuntime_DuplicateRejected(t *testing.T) {
	f := newFixture(t)
	alice := progchaintest.Keypair(t, 2).Pubkey()
	tx := f.transfer(alice, sdk.LamportsPerSOL)

	outcome := f.h.Advance(tx, tx)
	require.True(t, outcome.TxOutcomes[0].OK())
	assert.Equal(t, runtime.ErrAlreadyProcessed.Code, outcome.TxOutcomes[1].Code)
	assert.Zero(t, outcome.TxOutcomes[1].Fee)

	verdict := f.h.CheckTx(tx)
	assert.Equal(t, runtime.ErrAlreadyProcessed.Code, verdict.Code)

	out := f.h.Advance(tx).TxOutcomes[0]
	assert.Equal(t, runtime.ErrAlreadyProcessed.Code, out.Code)
	assert.Equal(t, sdk.LamportsPerSOL, f.balance(alice))
}

func TestRuntime_BlockhashExpiry(t *testing.T) {
	f := newFixture(t)
	alice := progchaintest.Keypair(t, 2).Pubkey()

	tx, err := sdk.NewSignedTransaction(
		[]types.Instruction{system.Transfer(f.faucet.Pubkey(), alice, sdk.LamportsPerSOL)},
		f.faucet, nil, types.Hash{0xde, 0xad})
	require.NoError(t, err)
	raw, err := sdk.EncodeTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, runtime.ErrBlockhashNotFound.Code, f.h.CheckTx(raw).Code)

	stale := f.transfer(alice, sdk.LamportsPerSOL)
	for i := 0; i < runtime.MaxRecentBlockhashes-1; i++ {
		f.h.Advance()
	}
	f.h.MustAcceptTx(stale)
	f.h.Advance()

	out := f.h.Advance(stale).TxOutcomes[0]
	assert.Equal(t, runtime.ErrBlockhashNotFound.Code, out.Code)
	assert.Zero(t, out.Fee)
}

func TestRuntime_SignatureFailure(t *testing.T) {
	f := newFixture(t)
	alice := progchaintest.Keypair(t, 2).Pubkey()

	tx, err := sdk.NewSignedTransaction(
		[]types.Instruction{system.Transfer(f.faucet.Pubkey(), alice, sdk.LamportsPerSOL)},
		f.faucet, nil, f.h.LatestBlockhash())
	require.NoError(t, err)
	tx.Signatures[0][0] ^= 0xff
	raw, err := sdk.EncodeTransaction(tx)
	require.NoError(t, err)

	assert.Equal(t, runtime.ErrSignatureFailure.Code, f.h.CheckTx(raw).Code)
	out := f.h.Advance(raw).TxOutcomes[0]
	assert.Equal(t, runtime.ErrSignatureFailure.Code, out.Code)
	assert.Equal(t, faucetLamports, f.balance(f.faucet.Pubkey()))
}

func TestRuntime_MissingSignerRejected(t *testing.T) {
	f := newFixture(t)
	alice := progchaintest.Keypair(t, 2)

	// alice is marked as a signer by the transfer but never signs.
	tx, err := sdk.SignMessage(types.Message{
		FeePayer:        f.faucet.Pubkey(),
		RecentBlockhash: f.h.LatestBlockhash(),
		Instructions:    []types.Instruction{system.Transfer(alice.Pubkey(), f.faucet.Pubkey(), 1)},
	}, []*sdk.Keypair{f.faucet})
	require.ErrorIs(t, err, sdk.ErrMissingSigner)
	assert.Empty(t, tx.Signatures)
}

func TestRuntime_RentFailure(t *testing.T) {
	f := newFixture(t)
	alice := progchaintest.Keypair(t, 2).Pubkey()

	out := f.h.Advance(f.transfer(alice, 1000)).TxOutcomes[0]
	assert.Equal(t, runtime.ErrInsufficientFundsForRent.Code, out.Code)
	assert.Equal(t, runtime.DefaultFeePerSignature, out.Fee)

	_, ok := f.account(alice)
	assert.False(t, ok)

	out = f.h.Advance(f.transfer(alice, f.rent.MinimumBalance(0))).TxOutcomes[0]
	assert.True(t, out.OK(), out.Info)
}

func TestRuntime_FeePayerChecks(t *testing.T) {
	f := newFixture(t)
	broke := progchaintest.Keypair(t, 4)

	tx := f.h.SignTx(broke, nil, starter.InitializeInstruction(starter.ProgramID))
	assert.Equal(t, runtime.ErrAccountNotFound.Code, f.h.CheckTx(tx).Code)

	// A program-owned account cannot pay fees.
	counterKp := progchaintest.Keypair(t, 3)
	create := f.h.SignTx(f.faucet, []*sdk.Keypair{counterKp},
		system.CreateAccount(f.faucet.Pubkey(), counterKp.Pubkey(), f.rent.MinimumBalance(counter.LEN), counter.LEN, counter.ProgramID))
	require.True(t, f.h.Advance(create).TxOutcomes[0].OK())

	tx = f.h.SignTx(counterKp, nil, starter.InitializeInstruction(starter.ProgramID))
	assert.Equal(t, runtime.ErrInvalidAccountForFee.Code, f.h.CheckTx(tx).Code)
}

func TestRuntime_TooLarge(t *testing.T) {
	f := newFixture(t)
	raw := make(types.Tx, runtime.MaxTxBytes+1)
	assert.Equal(t, runtime.ErrTooLarge.Code, f.h.CheckTx(raw).Code)
}

func TestRuntime_UnknownProgram(t *testing.T) {
	f := newFixture(t)
	ix := types.Instruction{ProgramID: types.Pubkey{0x42}, Data: []byte{0}}

	out := f.h.Advance(f.h.SignTx(f.faucet, nil, ix)).TxOutcomes[0]
	assert.Equal(t, program.ErrProgramNotFound.OutcomeCode(), out.Code)
	assert.Equal(t, runtime.DefaultFeePerSignature, out.Fee)
}

func TestRuntime_Queries(t *testing.T) {
	f := newFixture(t)

	length := make([]byte, 8)
	binary.BigEndian.PutUint64(length, counter.LEN)
	res := f.h.Query(types.QueryRent, length)
	require.True(t, res.OK())
	assert.Equal(t, uint64((128+9)*3480*2), binary.BigEndian.Uint64(res.Value))

	res = f.h.Query(types.QueryRent, []byte{1})
	assert.Equal(t, types.QueryBadRequest, res.Code)

	res = f.h.Query(types.QueryAccount, []byte{1, 2, 3})
	assert.Equal(t, types.QueryBadRequest, res.Code)

	missing := progchaintest.Keypair(t, 9).Pubkey()
	res = f.h.Query(types.QueryAccount, missing[:])
	assert.Equal(t, types.QueryNotFound, res.Code)
	assert.Equal(t, uint64(0), f.balance(missing))

	res = f.h.Query(types.QuerySignature, make([]byte, types.SignatureLen))
	assert.Equal(t, types.QueryNotFound, res.Code)

	res = f.h.Query("/nope", nil)
	assert.Equal(t, types.QueryUnsupported, res.Code)

	f.h.Advance()
	old := uint64(0)
	res, err := f.app.Query(context.Background(), types.StateQuery{Path: types.QueryBalance, Height: &old})
	require.NoError(t, err)
	assert.Equal(t, types.QueryUnsupported, res.Code)

	res = f.h.Query(types.QueryBlockhash, nil)
	require.True(t, res.OK())
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(res.Key))
}

func TestRuntime_Proposal(t *testing.T) {
	f := newFixture(t)
	alice := progchaintest.Keypair(t, 2).Pubkey()
	tx1 := f.transfer(alice, sdk.LamportsPerSOL)
	tx2 := f.transfer(alice, 2*sdk.LamportsPerSOL)

	built, err := f.app.BuildProposal(context.Background(), types.ProposalContext{
		Height:     1,
		MempoolTxs: []types.Tx{tx1, []byte("garbage"), tx1, tx2},
		MaxTxBytes: uint64(len(tx1) + len(tx2)),
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Tx{tx1, tx2}, built.Txs)

	built, err = f.app.BuildProposal(context.Background(), types.ProposalContext{
		Height:     1,
		MempoolTxs: []types.Tx{tx1, tx2},
		MaxTxBytes: uint64(len(tx1)),
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Tx{tx1}, built.Txs)

	verdict, err := f.app.VerifyProposal(context.Background(), types.ReceivedProposal{Height: 1, Txs: []types.Tx{tx1, tx2}})
	require.NoError(t, err)
	assert.True(t, verdict.Accept)

	verdict, err = f.app.VerifyProposal(context.Background(), types.ReceivedProposal{Height: 1, Txs: []types.Tx{tx1, tx1}})
	require.NoError(t, err)
	assert.False(t, verdict.Accept)

	verdict, err = f.app.VerifyProposal(context.Background(), types.ReceivedProposal{Height: 1, Txs: []types.Tx{[]byte("garbage")}})
	require.NoError(t, err)
	assert.False(t, verdict.Accept)
}

func TestRuntime_SimulateDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	alice := progchaintest.Keypair(t, 2).Pubkey()
	tx := f.transfer(alice, sdk.LamportsPerSOL)

	out, err := f.app.Simulate(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, out.OK(), out.Info)
	assert.NotEmpty(t, out.Logs())

	_, ok := f.account(alice)
	assert.False(t, ok)
	assert.Equal(t, faucetLamports, f.balance(f.faucet.Pubkey()))

	// The simulated signature was not recorded.
	require.True(t, f.h.Advance(tx).TxOutcomes[0].OK())
	assert.Equal(t, sdk.LamportsPerSOL, f.balance(alice))

	out, err = f.app.Simulate(context.Background(), f.h.SignTx(f.faucet, nil, starter.MethodInstruction(starter.ProgramID, "nope")))
	require.NoError(t, err)
	assert.Equal(t, starter.ErrInstructionFallbackNotFound.OutcomeCode(), out.Code)
}

func TestRuntime_Determinism(t *testing.T) {
	f1 := newFixture(t)
	f2 := newFixture(t)
	alice := progchaintest.Keypair(t, 2).Pubkey()

	for i := 0; i < 3; i++ {
		tx := f1.transfer(alice, sdk.LamportsPerSOL+uint64(i))
		o1 := f1.h.Advance(tx)
		o2 := f2.h.Advance(tx)
		require.Equal(t, o1.AppHash, o2.AppHash, "height %d", i+1)
		require.Equal(t, o1.Blockhash, o2.Blockhash, "height %d", i+1)
	}
}

func TestRuntime_HaltOnHeightGap(t *testing.T) {
	f := newFixture(t)

	_, err := f.h.Server().ExecuteBlock(context.Background(), progchaintest.MakeEmptyBlock(5))
	h, ok := progchain.IsHalt(err)
	require.True(t, ok, "expected HaltError, got %v", err)
	assert.Equal(t, uint64(5), h.Height)
	assert.NotNil(t, f.h.Server().Halted())
}

func TestRuntime_HaltOnBlockhashMismatch(t *testing.T) {
	f := newFixture(t)

	block := f.h.NextBlock()
	block.LastBlockHash = types.Hash{0x01}
	_, err := f.app.ExecuteBlock(context.Background(), block)
	_, ok := progchain.IsHalt(err)
	assert.True(t, ok, "expected HaltError, got %v", err)
}
