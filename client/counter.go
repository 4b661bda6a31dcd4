package client

import (
	"context"
	"fmt"

	"github.com/blockberries/progchain/program/counter"
	"github.com/blockberries/progchain/program/system"
	"github.com/blockberries/progchain/sdk"
	"github.com/blockberries/progchain/types"
)

// Counter drives the counter program.
type Counter struct {
	provider  *Provider
	ProgramID types.Pubkey
}

// NewCounter returns a counter client for the program at programID.
func NewCounter(provider *Provider, programID types.Pubkey) *Counter {
	return &Counter{provider: provider, ProgramID: programID}
}

// CreateAndInitialize funds a rent-exempt account of counter.LEN bytes
// owned by the program and initializes it, in one transaction.
func (c *Counter) CreateAndInitialize(ctx context.Context, account *sdk.Keypair) (types.Signature, error) {
	lamports, err := c.provider.Client.GetMinimumBalanceForRentExemption(ctx, counter.LEN)
	if err != nil {
		return types.Signature{}, fmt.Errorf("rent-exempt minimum: %w", err)
	}
	ixs := []types.Instruction{
		system.CreateAccount(c.provider.Wallet.Pubkey(), account.Pubkey(), lamports, counter.LEN, c.ProgramID),
		counter.InitializeInstruction(c.ProgramID, account.Pubkey()),
	}
	return c.provider.Send(ctx, ixs, account)
}

func (c *Counter) Increment(ctx context.Context, key types.Pubkey) (types.Signature, error) {
	return c.provider.Send(ctx, []types.Instruction{counter.IncrementInstruction(c.ProgramID, key)})
}

func (c *Counter) Decrement(ctx context.Context, key types.Pubkey) (types.Signature, error) {
	return c.provider.Send(ctx, []types.Instruction{counter.DecrementInstruction(c.ProgramID, key)})
}

// Count reads and unpacks the counter stored at key.
func (c *Counter) Count(ctx context.Context, key types.Pubkey) (counter.Counter, error) {
	info, err := c.provider.Client.GetAccountInfo(ctx, key)
	if err != nil {
		return counter.Counter{}, err
	}
	if info == nil {
		return counter.Counter{}, fmt.Errorf("counter account %s not found", key)
	}
	if info.Owner != c.ProgramID {
		return counter.Counter{}, fmt.Errorf("account %s is owned by %s, not the counter program", key, info.Owner)
	}
	return counter.Unpack(info.Data)
}
