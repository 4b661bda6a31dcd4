package sdk

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/blockberries/progchain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeypair(t *testing.T, b byte) *Keypair {
	t.Helper()
	kp, err := KeypairFromSeed(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return kp
}

func TestKeypair_FileRoundTrip(t *testing.T) {
	kp := testKeypair(t, 7)
	path := filepath.Join(t.TempDir(), "wallets", "wallet-keypair.json")

	require.NoError(t, WriteKeypairFile(path, kp))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := ReadKeypairFile(path)
	require.NoError(t, err)
	assert.Equal(t, kp.Pubkey(), loaded.Pubkey())
	assert.Equal(t, kp.Bytes(), loaded.Bytes())
}

func TestReadKeypairFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadKeypairFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	short := filepath.Join(dir, "short.json")
	require.NoError(t, os.WriteFile(short, []byte("[1,2,3]"), 0o600))
	_, err = ReadKeypairFile(short)
	assert.ErrorContains(t, err, "64 bytes")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("[256]"), 0o600))
	_, err = ReadKeypairFile(bad)
	assert.ErrorContains(t, err, "out of range")
}

func TestKeypairFromBytes_MismatchedHalves(t *testing.T) {
	a := testKeypair(t, 1).Bytes()
	b := testKeypair(t, 2).Bytes()
	mixed := append(append([]byte(nil), a[:32]...), b[32:]...)
	_, err := KeypairFromBytes(mixed)
	assert.Error(t, err)
}

func transferLikeIx(from, to types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: types.Pubkey{},
		Accounts: []types.AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsSigner: true, IsWritable: true},
		},
		Data: []byte{2},
	}
}

func TestNewSignedTransaction_VerifyRoundTrip(t *testing.T) {
	payer := testKeypair(t, 1)
	other := testKeypair(t, 2)

	tx, err := NewSignedTransaction(
		[]types.Instruction{transferLikeIx(payer.Pubkey(), other.Pubkey())},
		payer, []*Keypair{other}, types.Hash{0x42},
	)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 2)
	assert.Equal(t, tx.Signatures[0], tx.ID())

	raw, err := EncodeTransaction(tx)
	require.NoError(t, err)

	parsed, err := DecodeTransaction(raw)
	require.NoError(t, err)
	require.NoError(t, parsed.Verify())
	assert.Equal(t, payer.Pubkey(), parsed.Message.FeePayer)
	assert.Equal(t, types.Hash{0x42}, parsed.Message.RecentBlockhash)
}

func TestNewSignedTransaction_MissingSigner(t *testing.T) {
	payer := testKeypair(t, 1)
	other := testKeypair(t, 2)

	_, err := NewSignedTransaction(
		[]types.Instruction{transferLikeIx(payer.Pubkey(), other.Pubkey())},
		payer, nil, types.Hash{},
	)
	assert.ErrorIs(t, err, ErrMissingSigner)
}

func TestParsedTx_VerifyRejectsTampering(t *testing.T) {
	payer := testKeypair(t, 1)
	other := testKeypair(t, 2)
	tx, err := NewSignedTransaction(
		[]types.Instruction{transferLikeIx(payer.Pubkey(), other.Pubkey())},
		payer, []*Keypair{other}, types.Hash{0x01},
	)
	require.NoError(t, err)

	// Swap the signatures: both are valid, but for the wrong keys.
	tx.Signatures[0], tx.Signatures[1] = tx.Signatures[1], tx.Signatures[0]
	raw, err := EncodeTransaction(tx)
	require.NoError(t, err)
	parsed, err := DecodeTransaction(raw)
	require.NoError(t, err)
	assert.ErrorIs(t, parsed.Verify(), ErrInvalidSignature)

	// Drop a signature.
	tx.Signatures = tx.Signatures[:1]
	raw, err = EncodeTransaction(tx)
	require.NoError(t, err)
	parsed, err = DecodeTransaction(raw)
	require.NoError(t, err)
	assert.ErrorIs(t, parsed.Verify(), ErrSignatureCount)
}

func TestDecodeTransaction_Garbage(t *testing.T) {
	_, err := DecodeTransaction(types.Tx{0xFF, 0xFF, 0xFF})
	assert.Error(t, err)
}

func TestSignMessage_NoInstructions(t *testing.T) {
	_, err := SignMessage(types.Message{FeePayer: testKeypair(t, 1).Pubkey()}, nil)
	assert.ErrorIs(t, err, ErrNoInstructions)
}

func TestNativeToken(t *testing.T) {
	assert.Equal(t, uint64(2_000_000_000), SOLToLamports(2.0))
	assert.Equal(t, uint64(500_000_000), SOLToLamports(0.5))
	assert.Equal(t, uint64(0), SOLToLamports(-1))
	assert.InDelta(t, 1.5, LamportsToSOL(1_500_000_000), 1e-9)
}
