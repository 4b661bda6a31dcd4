package sdk

import (
	"errors"
	"fmt"

	"github.com/blockberries/progchain/types"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

var (
	// ErrMissingSigner is returned when a required signer's keypair
	// was not supplied.
	ErrMissingSigner = errors.New("missing required signer")
	// ErrSignatureCount is returned when a transaction carries the
	// wrong number of signatures for its message.
	ErrSignatureCount = errors.New("signature count does not match required signers")
	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrNoInstructions is returned for a message with no instructions.
	ErrNoInstructions = errors.New("transaction has no instructions")
)

// wireTx is the encoded form of a transaction. The message travels as
// the exact bytes that were signed.
type wireTx struct {
	Signatures []types.Signature `cramberry:"1"`
	Message    []byte            `cramberry:"2"`
}

// ParsedTx is a decoded transaction together with the message bytes
// its signatures cover.
type ParsedTx struct {
	types.Transaction
	MessageBytes []byte
}

// MessageBytes returns the bytes that signers sign.
func MessageBytes(m types.Message) ([]byte, error) {
	data, err := cramberry.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// NewSignedTransaction builds a message paying fees from payer,
// referencing blockhash, and signs it with payer and signers. Every
// key that the instructions mark as a signer must be present.
func NewSignedTransaction(ixs []types.Instruction, payer *Keypair, signers []*Keypair, blockhash types.Hash) (types.Transaction, error) {
	msg := types.Message{
		FeePayer:        payer.Pubkey(),
		RecentBlockhash: blockhash,
		Instructions:    ixs,
	}
	return SignMessage(msg, append([]*Keypair{payer}, signers...))
}

// SignMessage signs msg with the supplied keypairs, ordering the
// signatures by the message's signer list.
func SignMessage(msg types.Message, keypairs []*Keypair) (types.Transaction, error) {
	if len(msg.Instructions) == 0 {
		return types.Transaction{}, ErrNoInstructions
	}
	data, err := MessageBytes(msg)
	if err != nil {
		return types.Transaction{}, err
	}
	byKey := make(map[types.Pubkey]*Keypair, len(keypairs))
	for _, kp := range keypairs {
		byKey[kp.Pubkey()] = kp
	}
	required := msg.SignerKeys()
	sigs := make([]types.Signature, len(required))
	for i, key := range required {
		kp, ok := byKey[key]
		if !ok {
			return types.Transaction{}, fmt.Errorf("%w: %s", ErrMissingSigner, key)
		}
		sigs[i] = kp.Sign(data)
	}
	return types.Transaction{Signatures: sigs, Message: msg}, nil
}

// EncodeTransaction serializes a signed transaction for submission.
func EncodeTransaction(tx types.Transaction) (types.Tx, error) {
	msg, err := MessageBytes(tx.Message)
	if err != nil {
		return nil, err
	}
	data, err := cramberry.Marshal(wireTx{Signatures: tx.Signatures, Message: msg})
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return types.Tx(data), nil
}

// DecodeTransaction parses an encoded transaction. It does not
// verify signatures.
func DecodeTransaction(raw types.Tx) (*ParsedTx, error) {
	var w wireTx
	if err := cramberry.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	var msg types.Message
	if err := cramberry.Unmarshal(w.Message, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &ParsedTx{
		Transaction:  types.Transaction{Signatures: w.Signatures, Message: msg},
		MessageBytes: w.Message,
	}, nil
}

// Verify checks that the transaction carries exactly one valid
// signature per required signer.
func (p *ParsedTx) Verify() error {
	if len(p.Message.Instructions) == 0 {
		return ErrNoInstructions
	}
	required := p.Message.SignerKeys()
	if len(p.Signatures) != len(required) {
		return fmt.Errorf("%w: have %d, want %d", ErrSignatureCount, len(p.Signatures), len(required))
	}
	for i, key := range required {
		if !Verify(key, p.MessageBytes, p.Signatures[i]) {
			return fmt.Errorf("%w for %s", ErrInvalidSignature, key)
		}
	}
	return nil
}
