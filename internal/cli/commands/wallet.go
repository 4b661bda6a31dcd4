package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blockberries/progchain/sdk"
	"github.com/blockberries/progchain/types"
)

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a wallet keypair",
		Long: `Generate a new ed25519 keypair and write it to the wallet path as a
JSON array of 64 bytes. An existing wallet is kept unless --force is
given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			path := cc.Cfg.Wallet
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("wallet %s already exists (use --force to overwrite)", path)
			}
			kp, err := sdk.NewKeypair()
			if err != nil {
				return err
			}
			if err := sdk.WriteKeypairFile(path, kp); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote new keypair to %s\n", path)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pubkey: %s\n", kp.Pubkey())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing wallet")
	return cmd
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [pubkey]",
		Short: "Show the balance of an account",
		Long:  `Show the balance of pubkey, or of the wallet when no pubkey is given.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			key, err := targetKey(cc, args)
			if err != nil {
				return err
			}
			lamports, err := cc.RPC().GetBalance(cmd.Context(), key)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s SOL\n", formatSOL(lamports))
			return nil
		},
	}
}

// NewAirdropCommand creates the airdrop command.
func NewAirdropCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "airdrop <sol> [pubkey]",
		Short: "Request SOL from the node faucet",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			sol, err := strconv.ParseFloat(args[0], 64)
			if err != nil || sol <= 0 {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			key, err := targetKey(cc, args[1:])
			if err != nil {
				return err
			}
			c := cc.RPC()
			sig, err := c.RequestAirdrop(cmd.Context(), key, sdk.SOLToLamports(sol))
			if err != nil {
				return err
			}
			if _, err := c.ConfirmTransaction(cmd.Context(), sig); err != nil {
				return err
			}
			balance, err := c.GetBalance(cmd.Context(), key)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Signature: %s\n", sig)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s SOL\n", formatSOL(balance))
			return nil
		},
	}
}

// targetKey parses args[0] or falls back to the wallet's pubkey.
func targetKey(cc *CommandContext, args []string) (types.Pubkey, error) {
	if len(args) > 0 {
		return types.PubkeyFromString(args[0])
	}
	kp, err := sdk.ReadKeypairFile(cc.Cfg.Wallet)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("no pubkey given and no wallet: %w", err)
	}
	return kp.Pubkey(), nil
}

func formatSOL(lamports uint64) string {
	return strconv.FormatFloat(sdk.LamportsToSOL(lamports), 'f', -1, 64)
}
