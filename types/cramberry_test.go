package types_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/blockberries/progchain/types"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// roundTrip marshals v, unmarshals into a new T, and returns it.
func roundTrip[T any](t *testing.T, v T) T {
	t.Helper()
	data, err := cramberry.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out T
	if err := cramberry.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return out
}

func TestTimestamp_RoundTrip(t *testing.T) {
	ts := types.TimeToTimestamp(time.Date(2024, 6, 15, 12, 30, 45, 123456789, time.UTC))
	got := roundTrip(t, ts)
	if got != ts {
		t.Fatalf("Timestamp round-trip failed: got %+v, want %+v", got, ts)
	}
	goTime := got.ToTime()
	if goTime.Year() != 2024 || goTime.Month() != 6 || goTime.Day() != 15 {
		t.Fatalf("Timestamp.ToTime date wrong: %v", goTime)
	}
	if goTime.Nanosecond() != 123456789 {
		t.Fatalf("Timestamp.ToTime nanos wrong: %d", goTime.Nanosecond())
	}
}

func TestTransaction_RoundTrip(t *testing.T) {
	payer := types.Pubkey{0x01}
	counter := types.Pubkey{0x02}
	v := types.Transaction{
		Signatures: []types.Signature{{0xAA}, {0xBB}},
		Message: types.Message{
			FeePayer:        payer,
			RecentBlockhash: types.Hash{0xFF},
			Instructions: []types.Instruction{{
				ProgramID: types.Pubkey{0x09},
				Accounts: []types.AccountMeta{
					{Pubkey: counter, IsSigner: true, IsWritable: true},
				},
				Data: []byte{1},
			}},
		},
	}
	got := roundTrip(t, v)
	if len(got.Signatures) != 2 || got.Signatures[1] != v.Signatures[1] {
		t.Fatalf("signatures mismatch: %+v", got.Signatures)
	}
	if got.Message.FeePayer != payer || got.Message.RecentBlockhash != v.Message.RecentBlockhash {
		t.Fatalf("message header mismatch: %+v", got.Message)
	}
	if len(got.Message.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(got.Message.Instructions))
	}
	ix := got.Message.Instructions[0]
	if ix.Accounts[0] != v.Message.Instructions[0].Accounts[0] || !bytes.Equal(ix.Data, []byte{1}) {
		t.Fatalf("instruction mismatch: %+v", ix)
	}
}

func TestAccount_RoundTrip(t *testing.T) {
	v := types.Account{
		Lamports:   1_000_000,
		Owner:      types.Pubkey{0x07},
		Data:       []byte{1, 0, 0, 0, 0, 0, 0, 0, 5},
		Executable: false,
	}
	got := roundTrip(t, v)
	if got.Lamports != v.Lamports || got.Owner != v.Owner || !bytes.Equal(got.Data, v.Data) {
		t.Fatalf("Account round-trip failed: got %+v", got)
	}
}

func TestHandshakeResponse_RoundTrip(t *testing.T) {
	ah := types.AppHash{0xBE, 0xEF}
	v := types.HandshakeResponse{
		AppHash:      &ah,
		Capabilities: types.CapProposalControl | types.CapSimulation,
	}
	got := roundTrip(t, v)
	if got.AppHash == nil || *got.AppHash != ah {
		t.Fatalf("HandshakeResponse.AppHash mismatch")
	}
	if !got.Capabilities.Has(types.CapProposalControl) || got.Capabilities.Has(types.CapStateSync) {
		t.Fatalf("HandshakeResponse.Capabilities wrong: %s", got.Capabilities)
	}
}

func TestImportResult_RetryChunks_RoundTrip(t *testing.T) {
	v := types.ImportResult{
		Status:       types.ImportRetryChunks,
		RetryIndices: []uint32{0, 3, 7},
	}
	got := roundTrip(t, v)
	if got.Status != types.ImportRetryChunks || len(got.RetryIndices) != 3 {
		t.Fatalf("ImportResult retry round-trip failed")
	}
}

// TestDeterminism verifies that the same struct always produces
// the same bytes (cramberry's core guarantee). Transaction
// signatures are computed over these bytes.
func TestDeterminism(t *testing.T) {
	v := types.Message{
		FeePayer:        types.Pubkey{0xAA},
		RecentBlockhash: types.Hash{0xFF},
		Instructions: []types.Instruction{
			{ProgramID: types.Pubkey{0x01}, Data: []byte("a")},
			{ProgramID: types.Pubkey{0x02}, Data: []byte("b")},
		},
	}
	data1, err := cramberry.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	data2, err := cramberry.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data1, data2) {
		t.Fatalf("non-deterministic encoding:\n%x\n%x", data1, data2)
	}
}
