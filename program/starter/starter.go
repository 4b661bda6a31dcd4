// Package starter is the workspace's scaffold program. It exposes a
// single zero-argument method, initialize, that touches no accounts
// and keeps no state.
//
// Instruction data starts with an 8-byte method discriminator, the
// first eight bytes of sha256("global:<method>").
package starter

import (
	"crypto/sha256"
	"fmt"

	"github.com/blockberries/progchain/program"
	"github.com/blockberries/progchain/types"
)

// ProgramID is the address the starter program is deployed at.
var ProgramID = types.MustPubkey("BF1Q7hLntSidgYjCMzG298QpRbBb5daA672W7mNiWFVf")

// DiscriminatorLen is the length of a method discriminator.
const DiscriminatorLen = 8

// MethodInitialize is the only method the program exposes.
const MethodInitialize = "initialize"

// Errors.
var (
	ErrInstructionMissing          = program.Custom(100, "8 byte instruction identifier not provided")
	ErrInstructionFallbackNotFound = program.Custom(101, "fallback functions are not supported")
)

// Discriminator returns the 8-byte selector for a method name.
func Discriminator(method string) [DiscriminatorLen]byte {
	sum := sha256.Sum256([]byte("global:" + method))
	var d [DiscriminatorLen]byte
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

var initializeDisc = Discriminator(MethodInitialize)

// Compile-time interface check.
var _ program.Program = (*Program)(nil)

// Program is the starter program.
type Program struct {
	id types.Pubkey
}

// New returns the starter program at its default address.
func New() *Program { return &Program{id: ProgramID} }

// NewAt returns the starter program deployed at id.
func NewAt(id types.Pubkey) *Program { return &Program{id: id} }

func (p *Program) ID() types.Pubkey { return p.id }

func (p *Program) Name() string { return "starter" }

// Process dispatches on the method discriminator.
func (p *Program) Process(ictx *program.InvokeContext, accounts []*program.AccountInfo, data []byte) error {
	if len(data) < DiscriminatorLen {
		return ErrInstructionMissing
	}
	var disc [DiscriminatorLen]byte
	copy(disc[:], data[:DiscriminatorLen])

	switch disc {
	case initializeDisc:
		ictx.Log("Instruction: Initialize")
		return nil
	default:
		return fmt.Errorf("%w: discriminator %x", ErrInstructionFallbackNotFound, disc)
	}
}

// MethodInstruction builds an instruction calling method with no
// arguments and the given accounts.
func MethodInstruction(programID types.Pubkey, method string, accounts ...types.AccountMeta) types.Instruction {
	d := Discriminator(method)
	return types.Instruction{
		ProgramID: programID,
		Accounts:  accounts,
		Data:      d[:],
	}
}

// InitializeInstruction builds a call to initialize.
func InitializeInstruction(programID types.Pubkey) types.Instruction {
	return MethodInstruction(programID, MethodInitialize)
}
