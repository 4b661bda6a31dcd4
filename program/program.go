// Package program defines what an on-chain program is to the runtime:
// an entry point that receives the accounts an instruction names and
// the instruction's opaque data, and either succeeds or returns a
// program error.
package program

import (
	"fmt"

	"github.com/blockberries/progchain/types"
)

// Program is a native program the runtime can dispatch instructions to.
type Program interface {
	// ID returns the address instructions use to reach the program.
	ID() types.Pubkey
	// Name returns the program's workspace name.
	Name() string
	// Process is the program's entry point. accounts are in the order
	// the instruction listed them; an account listed twice appears as
	// the same *AccountInfo.
	Process(ictx *InvokeContext, accounts []*AccountInfo, data []byte) error
}

// AccountInfo is a program's mutable view of one account during an
// instruction. The runtime diffs it against the pre-instruction state
// to enforce ownership and writability.
type AccountInfo struct {
	Key        types.Pubkey
	IsSigner   bool
	IsWritable bool
	Lamports   uint64
	Owner      types.Pubkey
	Data       []byte
	Executable bool
}

// NewAccountInfo builds a view over a copy of acct.
func NewAccountInfo(key types.Pubkey, acct types.Account, signer, writable bool) *AccountInfo {
	c := acct.Clone()
	return &AccountInfo{
		Key:        key,
		IsSigner:   signer,
		IsWritable: writable,
		Lamports:   c.Lamports,
		Owner:      c.Owner,
		Data:       c.Data,
		Executable: c.Executable,
	}
}

// Account returns the current contents of the view.
func (a *AccountInfo) Account() types.Account {
	return types.Account{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Data:       append([]byte(nil), a.Data...),
		Executable: a.Executable,
	}
}

// InvokeContext carries per-instruction runtime services.
type InvokeContext struct {
	ProgramID types.Pubkey
	Slot      uint64
	logs      []string
}

// NewInvokeContext creates a context for one instruction.
func NewInvokeContext(programID types.Pubkey, slot uint64) *InvokeContext {
	return &InvokeContext{ProgramID: programID, Slot: slot}
}

// Log records a program log line.
func (c *InvokeContext) Log(msg string) {
	c.logs = append(c.logs, fmt.Sprintf("Program log: %s", msg))
}

// Logf records a formatted program log line.
func (c *InvokeContext) Logf(format string, args ...any) {
	c.Log(fmt.Sprintf(format, args...))
}

// Logs returns the lines recorded so far.
func (c *InvokeContext) Logs() []string {
	return c.logs
}

// CheckAccounts returns ErrNotEnoughAccountKeys if fewer than n
// accounts were passed.
func CheckAccounts(accounts []*AccountInfo, n int) error {
	if len(accounts) < n {
		return fmt.Errorf("%w: need %d, got %d", ErrNotEnoughAccountKeys, n, len(accounts))
	}
	return nil
}
