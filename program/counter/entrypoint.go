// Package counter implements the counter program: a single account
// holding a packed [Counter] that can be initialized, incremented and
// decremented.
//
// Instruction data is one byte selecting the operation:
//
//	0 = Initialize
//	1 = Increment
//	2 = Decrement
//
// Every instruction takes exactly one writable account owned by the
// program.
package counter

import (
	"github.com/blockberries/progchain/program"
	"github.com/blockberries/progchain/types"
)

// ProgramID is the address the counter program is deployed at.
var ProgramID = types.MustPubkey("EnKfzEUyaAxGSmFbhD4yezLZ7tXMoQRPcNYVg2Xxi2Cj")

// Compile-time interface check.
var _ program.Program = (*Program)(nil)

// Program is the counter program.
type Program struct {
	id types.Pubkey
}

// New returns the counter program at its default address.
func New() *Program { return &Program{id: ProgramID} }

// NewAt returns the counter program deployed at id.
func NewAt(id types.Pubkey) *Program { return &Program{id: id} }

func (p *Program) ID() types.Pubkey { return p.id }

func (p *Program) Name() string { return "counter" }

// Process is the program entry point.
func (p *Program) Process(ictx *program.InvokeContext, accounts []*program.AccountInfo, data []byte) error {
	ictx.Log("counter program entrypoint")
	if err := processInstruction(ictx, accounts, data); err != nil {
		ictx.Logf("counter program failed: %v", err)
		return err
	}
	ictx.Log("counter program succeeded")
	return nil
}
