package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeyLen is the byte length of an account address.
const PubkeyLen = 32

// SignatureLen is the byte length of an ed25519 signature.
const SignatureLen = 64

// Pubkey is a 32-byte account address. Its text form is base58.
type Pubkey [PubkeyLen]byte

// String returns the base58 encoding of the key.
func (p Pubkey) String() string { return base58.Encode(p[:]) }

// IsZero reports whether the key is all zero bytes.
func (p Pubkey) IsZero() bool { return p == Pubkey{} }

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	k, err := PubkeyFromString(string(text))
	if err != nil {
		return err
	}
	*p = k
	return nil
}

// PubkeyFromString parses a base58-encoded address.
func PubkeyFromString(s string) (Pubkey, error) {
	var p Pubkey
	b, err := base58.Decode(s)
	if err != nil {
		return p, fmt.Errorf("invalid pubkey %q: %w", s, err)
	}
	if len(b) != PubkeyLen {
		return p, fmt.Errorf("invalid pubkey %q: decoded to %d bytes, want %d", s, len(b), PubkeyLen)
	}
	copy(p[:], b)
	return p, nil
}

// MustPubkey parses a base58 address and panics on failure.
// Intended for compile-time program IDs.
func MustPubkey(s string) Pubkey {
	p, err := PubkeyFromString(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Signature is a 64-byte ed25519 signature. The first signature of
// a transaction identifies it; its text form is base58.
type Signature [SignatureLen]byte

// String returns the base58 encoding of the signature.
func (s Signature) String() string { return base58.Encode(s[:]) }

// IsZero reports whether the signature is all zero bytes.
func (s Signature) IsZero() bool { return s == Signature{} }

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(text []byte) error {
	sig, err := SignatureFromString(string(text))
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// SignatureFromString parses a base58-encoded signature.
func SignatureFromString(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("invalid signature %q: %w", s, err)
	}
	if len(b) != SignatureLen {
		return sig, fmt.Errorf("invalid signature %q: decoded to %d bytes, want %d", s, len(b), SignatureLen)
	}
	copy(sig[:], b)
	return sig, nil
}

// String returns the base58 encoding of the hash.
func (h Hash) String() string { return base58.Encode(h[:]) }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HashFromString(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HashFromString parses a base58-encoded hash.
func HashFromString(s string) (Hash, error) {
	var h Hash
	b, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid hash %q: decoded to %d bytes, want %d", s, len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}
