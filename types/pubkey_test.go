package types_test

import (
	"encoding/json"
	"testing"

	"github.com/blockberries/progchain/types"
)

func TestPubkey_Base58(t *testing.T) {
	// The system program address is 32 zero bytes.
	var zero types.Pubkey
	if zero.String() != "11111111111111111111111111111111" {
		t.Fatalf("unexpected zero pubkey text: %s", zero.String())
	}

	p := types.Pubkey{0x01, 0x02, 0x03}
	parsed, err := types.PubkeyFromString(p.String())
	if err != nil {
		t.Fatalf("PubkeyFromString: %v", err)
	}
	if parsed != p {
		t.Fatalf("parsed %s, want %s", parsed, p)
	}
}

func TestPubkey_Invalid(t *testing.T) {
	if _, err := types.PubkeyFromString("0OIl"); err == nil {
		t.Fatal("expected error for non-base58 characters")
	}
	if _, err := types.PubkeyFromString("2g"); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestPubkey_JSON(t *testing.T) {
	type doc struct {
		Key types.Pubkey `json:"key"`
	}
	in := doc{Key: types.Pubkey{0xFE}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out doc
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Key != in.Key {
		t.Fatalf("got %s, want %s", out.Key, in.Key)
	}
}

func TestSignature_Base58(t *testing.T) {
	sig := types.Signature{0x11, 0x22}
	parsed, err := types.SignatureFromString(sig.String())
	if err != nil {
		t.Fatalf("SignatureFromString: %v", err)
	}
	if parsed != sig {
		t.Fatal("signature mismatch after base58 round trip")
	}
	if _, err := types.SignatureFromString(types.Pubkey{0x01}.String()); err == nil {
		t.Fatal("expected length error for a 32-byte value")
	}
}

func TestMessage_SignerKeys(t *testing.T) {
	payer := types.Pubkey{0x01}
	a := types.Pubkey{0x02}
	b := types.Pubkey{0x03}
	msg := types.Message{
		FeePayer: payer,
		Instructions: []types.Instruction{
			{Accounts: []types.AccountMeta{
				{Pubkey: payer, IsSigner: true, IsWritable: true},
				{Pubkey: a, IsSigner: true, IsWritable: true},
			}},
			{Accounts: []types.AccountMeta{
				{Pubkey: b, IsSigner: false, IsWritable: true},
				{Pubkey: a, IsSigner: true},
			}},
		},
	}
	keys := msg.SignerKeys()
	if len(keys) != 2 || keys[0] != payer || keys[1] != a {
		t.Fatalf("unexpected signer keys: %v", keys)
	}
}
