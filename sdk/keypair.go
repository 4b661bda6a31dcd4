// Package sdk holds the client-side primitives shared by wallets,
// the runtime and tests: ed25519 keypairs, wallet files, signed
// transaction construction and the transaction wire encoding.
package sdk

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blockberries/progchain/types"
)

// Keypair is an ed25519 signing key and its address.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a fresh random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromBytes loads a keypair from its 64-byte form
// (seed followed by public key).
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	kp, err := KeypairFromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(kp.priv[ed25519.SeedSize:], b[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("keypair public half does not match its seed")
	}
	return kp, nil
}

// Pubkey returns the keypair's address.
func (k *Keypair) Pubkey() types.Pubkey {
	var p types.Pubkey
	copy(p[:], k.priv.Public().(ed25519.PublicKey))
	return p
}

// Sign signs msg.
func (k *Keypair) Sign(msg []byte) types.Signature {
	var s types.Signature
	copy(s[:], ed25519.Sign(k.priv, msg))
	return s
}

// Bytes returns the 64-byte form of the keypair.
func (k *Keypair) Bytes() []byte {
	return append([]byte(nil), k.priv...)
}

// Verify checks sig over msg against the given address.
func Verify(pubkey types.Pubkey, msg []byte, sig types.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pubkey[:]), msg, sig[:])
}

// ReadKeypairFile loads a wallet file: a JSON array of the 64
// keypair bytes.
func ReadKeypairFile(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse keypair file %s: %w", path, err)
	}
	b := make([]byte, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("parse keypair file %s: byte %d out of range: %d", path, i, v)
		}
		b[i] = byte(v)
	}
	kp, err := KeypairFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("keypair file %s: %w", path, err)
	}
	return kp, nil
}

// WriteKeypairFile stores the keypair in the wallet file format,
// creating parent directories as needed. The file is readable by
// its owner only.
func WriteKeypairFile(path string, kp *Keypair) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create wallet dir: %w", err)
		}
	}
	raw := make([]int, 0, ed25519.PrivateKeySize)
	for _, b := range kp.priv {
		raw = append(raw, int(b))
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode keypair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keypair file: %w", err)
	}
	return nil
}
