// Package client is the SDK for talking to a progchain node: a
// provider pairing an RPC endpoint with a wallet, program handles
// resolved from a workspace manifest, and a typed counter client.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/blockberries/progchain/config"
	"github.com/blockberries/progchain/rpc"
	"github.com/blockberries/progchain/sdk"
	"github.com/blockberries/progchain/types"
)

// Provider signs and submits transactions on behalf of a wallet.
type Provider struct {
	Client *rpc.Client
	Wallet *sdk.Keypair
	logger *slog.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider pairs client with wallet.
func NewProvider(client *rpc.Client, wallet *sdk.Keypair, opts ...ProviderOption) *Provider {
	p := &Provider{Client: client, Wallet: wallet, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProviderFromEnv builds a provider from PROGCHAIN_PROVIDER_URL and
// PROGCHAIN_WALLET, falling back to progchain.yaml and the defaults.
func ProviderFromEnv(opts ...ProviderOption) (*Provider, error) {
	cfg, err := config.Load("", nil)
	if err != nil {
		return nil, err
	}
	wallet, err := sdk.ReadKeypairFile(cfg.Wallet)
	if err != nil {
		return nil, fmt.Errorf("load wallet (set %s): %w", config.EnvWallet, err)
	}
	return NewProvider(rpc.NewClient(cfg.ProviderURL), wallet, opts...), nil
}

// LoadOrCreateWallet reads the wallet at path, generating and saving a
// new keypair when the file does not exist.
func LoadOrCreateWallet(path string) (*sdk.Keypair, bool, error) {
	kp, err := sdk.ReadKeypairFile(path)
	if err == nil {
		return kp, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	kp, err = sdk.NewKeypair()
	if err != nil {
		return nil, false, err
	}
	if err := sdk.WriteKeypairFile(path, kp); err != nil {
		return nil, false, err
	}
	return kp, true, nil
}

// Send signs ixs with the wallet as fee payer plus signers, submits
// the transaction and waits for it to commit.
func (p *Provider) Send(ctx context.Context, ixs []types.Instruction, signers ...*sdk.Keypair) (types.Signature, error) {
	bh, err := p.Client.GetLatestBlockhash(ctx)
	if err != nil {
		return types.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	tx, err := sdk.NewSignedTransaction(ixs, p.Wallet, signers, bh.Blockhash)
	if err != nil {
		return types.Signature{}, err
	}
	raw, err := sdk.EncodeTransaction(tx)
	if err != nil {
		return types.Signature{}, err
	}
	sig, err := p.Client.SendAndConfirmTransaction(ctx, raw, rpc.UntilBlockHeight(bh.LastValidBlockHeight))
	if err != nil {
		return sig, err
	}
	p.logger.Debug("transaction confirmed", "signature", sig.String(), "instructions", len(ixs))
	return sig, nil
}

// EnsureFunded airdrops to the wallet when its balance is below min
// and returns the resulting balance.
func (p *Provider) EnsureFunded(ctx context.Context, min, airdrop uint64) (uint64, error) {
	balance, err := p.Client.GetBalance(ctx, p.Wallet.Pubkey())
	if err != nil {
		return 0, err
	}
	if balance >= min {
		return balance, nil
	}
	sig, err := p.Client.RequestAirdrop(ctx, p.Wallet.Pubkey(), airdrop)
	if err != nil {
		return 0, fmt.Errorf("request airdrop: %w", err)
	}
	if _, err := p.Client.ConfirmTransaction(ctx, sig); err != nil {
		return 0, fmt.Errorf("confirm airdrop: %w", err)
	}
	p.logger.Info("airdrop confirmed", "lamports", airdrop, "signature", sig.String())
	return p.Client.GetBalance(ctx, p.Wallet.Pubkey())
}
