// Package system implements the system program: it creates accounts,
// assigns their owner and moves lamports between system-owned
// accounts.
package system

import (
	"fmt"

	"github.com/blockberries/progchain/program"
	"github.com/blockberries/progchain/types"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// ID is the system program address (32 zero bytes).
var ID = types.Pubkey{}

// MaxPermittedDataLength bounds the space CreateAccount may allocate.
const MaxPermittedDataLength = 10 * 1024 * 1024

// Kind selects a system instruction.
type Kind uint32

const (
	KindCreateAccount Kind = 0
	KindAssign        Kind = 1
	KindTransfer      Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindCreateAccount:
		return "CreateAccount"
	case KindAssign:
		return "Assign"
	case KindTransfer:
		return "Transfer"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(k))
	}
}

// Instruction is the decoded instruction data. Fields not used by
// the selected kind are zero.
type Instruction struct {
	Kind     Kind         `cramberry:"1"`
	Lamports uint64       `cramberry:"2"`
	Space    uint64       `cramberry:"3"`
	Owner    types.Pubkey `cramberry:"4"`
}

// Custom system errors.
var (
	ErrAccountAlreadyInUse         = program.Custom(0, "an account with the same address already exists")
	ErrResultWithNegativeLamports  = program.Custom(1, "account does not have enough SOL to perform the operation")
	ErrInvalidAccountDataLength    = program.Custom(3, "cannot allocate account data of this length")
	ErrTransferFromAccountWithData = program.Custom(9, "from must not carry data")
)

// Program is the system program.
type Program struct{}

// New returns the system program.
func New() *Program { return &Program{} }

func (*Program) ID() types.Pubkey { return ID }

func (*Program) Name() string { return "system" }

func (p *Program) Process(ictx *program.InvokeContext, accounts []*program.AccountInfo, data []byte) error {
	var ix Instruction
	if err := cramberry.Unmarshal(data, &ix); err != nil {
		return fmt.Errorf("%w: %v", program.ErrInvalidInstructionData, err)
	}
	switch ix.Kind {
	case KindCreateAccount:
		return p.createAccount(ictx, accounts, ix)
	case KindAssign:
		return p.assign(accounts, ix)
	case KindTransfer:
		return p.transfer(ictx, accounts, ix)
	default:
		return fmt.Errorf("%w: unknown system instruction %s", program.ErrInvalidInstructionData, ix.Kind)
	}
}

func (p *Program) createAccount(ictx *program.InvokeContext, accounts []*program.AccountInfo, ix Instruction) error {
	if err := program.CheckAccounts(accounts, 2); err != nil {
		return err
	}
	from, to := accounts[0], accounts[1]
	if !from.IsSigner || !to.IsSigner {
		return program.ErrMissingRequiredSignature
	}
	if to.Lamports != 0 || len(to.Data) != 0 || to.Owner != ID {
		ictx.Logf("Create Account: account %s already in use", to.Key)
		return ErrAccountAlreadyInUse
	}
	if ix.Space > MaxPermittedDataLength {
		return ErrInvalidAccountDataLength
	}
	if err := debit(ictx, from, ix.Lamports); err != nil {
		return err
	}
	to.Lamports = ix.Lamports
	to.Data = make([]byte, ix.Space)
	to.Owner = ix.Owner
	return nil
}

func (p *Program) assign(accounts []*program.AccountInfo, ix Instruction) error {
	if err := program.CheckAccounts(accounts, 1); err != nil {
		return err
	}
	acct := accounts[0]
	if acct.Owner == ix.Owner {
		return nil
	}
	if !acct.IsSigner {
		return program.ErrMissingRequiredSignature
	}
	acct.Owner = ix.Owner
	return nil
}

func (p *Program) transfer(ictx *program.InvokeContext, accounts []*program.AccountInfo, ix Instruction) error {
	if err := program.CheckAccounts(accounts, 2); err != nil {
		return err
	}
	from, to := accounts[0], accounts[1]
	if !from.IsSigner {
		return program.ErrMissingRequiredSignature
	}
	if err := debit(ictx, from, ix.Lamports); err != nil {
		return err
	}
	to.Lamports += ix.Lamports
	return nil
}

func debit(ictx *program.InvokeContext, from *program.AccountInfo, lamports uint64) error {
	if len(from.Data) != 0 {
		return ErrTransferFromAccountWithData
	}
	if from.Lamports < lamports {
		ictx.Logf("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports)
		return ErrResultWithNegativeLamports
	}
	from.Lamports -= lamports
	return nil
}
