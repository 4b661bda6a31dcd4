package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/blockberries/progchain/client"
	"github.com/blockberries/progchain/program/counter"
	"github.com/blockberries/progchain/rpc"
	"github.com/blockberries/progchain/runtime"
	"github.com/blockberries/progchain/sdk"
	"github.com/blockberries/progchain/types"
)

// builtinPrograms maps the built-in program names to their default IDs.
func builtinPrograms() map[string]types.Pubkey {
	catalog := runtime.DefaultCatalog()
	programs := make(map[string]types.Pubkey, len(catalog))
	for name, f := range catalog {
		programs[name] = f.DefaultID
	}
	return programs
}

// loadWorkspace reads the configured workspace file, falling back to
// the built-in programs when it does not exist.
func loadWorkspace(cc *CommandContext, provider *client.Provider) (*client.Workspace, error) {
	ws, err := client.LoadWorkspace(cc.Cfg.Workspace, provider)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return client.NewWorkspace(provider, builtinPrograms()), nil
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a workspace file listing the built-in programs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			path := cc.Cfg.Workspace
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("workspace %s already exists (use --force to overwrite)", path)
			}
			if err := client.WriteWorkspace(path, builtinPrograms()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing workspace file")
	return cmd
}

// NewProgramsCommand creates the programs command.
func NewProgramsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List workspace programs and whether they are deployed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			ws, err := loadWorkspace(cc, nil)
			if err != nil {
				return err
			}
			c := cc.RPC()
			rows := make([]programRow, 0, len(ws.Names()))
			for _, name := range ws.Names() {
				prog, err := ws.Program(name)
				if err != nil {
					return err
				}
				info, err := c.GetAccountInfo(cmd.Context(), prog.ID)
				if err != nil {
					return err
				}
				rows = append(rows, programRow{name: name, id: prog.ID, info: info})
			}
			renderPrograms(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

type programRow struct {
	name string
	id   types.Pubkey
	info *rpc.AccountInfo
}

func renderPrograms(w io.Writer, rows []programRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Program ID", "Status", "Owner"})
	for _, r := range rows {
		status, owner := "not deployed", ""
		if r.info != nil {
			owner = r.info.Owner.String()
			status = "account"
			if r.info.Executable {
				status = "deployed"
			}
		}
		t.AppendRow(table.Row{r.name, r.id.String(), status, owner})
	}
	t.Render()
}

// NewInitializeCommand creates the initialize command.
func NewInitializeCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "initialize",
		Short: "Call a workspace program's initialize method",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			provider, err := cc.Provider()
			if err != nil {
				return err
			}
			ws, err := loadWorkspace(cc, provider)
			if err != nil {
				return err
			}
			prog, err := ws.Program(name)
			if err != nil {
				return err
			}
			sig, err := prog.Initialize(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Your transaction signature %s\n", sig)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "program", "starter", "workspace program to initialize")
	return cmd
}

// NewCounterCommand creates the counter command group.
func NewCounterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Interact with the counter program",
	}
	cmd.AddCommand(newCounterDemoCommand(), newCounterShowCommand())
	return cmd
}

func counterClient(cc *CommandContext, provider *client.Provider) (*client.Counter, error) {
	ws, err := loadWorkspace(cc, provider)
	if err != nil {
		return nil, err
	}
	prog, err := ws.Program("counter")
	if err != nil {
		return nil, err
	}
	return client.NewCounter(provider, prog.ID), nil
}

func newCounterDemoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Create a counter, increment it twice and decrement it once",
		Long: `Load or create the wallet, fund it from the faucet when needed,
create a rent-exempt counter account and run increment, increment,
decrement against it. The final count is 1.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			wallet, created, err := client.LoadOrCreateWallet(cc.Cfg.Wallet)
			if err != nil {
				return err
			}
			if created {
				_, _ = fmt.Fprintf(out, "Created wallet %s\n", cc.Cfg.Wallet)
			}
			provider := client.NewProvider(cc.RPC(), wallet, client.WithLogger(cc.Logger))
			balance, err := provider.EnsureFunded(ctx, sdk.LamportsPerSOL, 2*sdk.LamportsPerSOL)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Wallet %s has %s SOL\n", wallet.Pubkey(), formatSOL(balance))

			c, err := counterClient(cc, provider)
			if err != nil {
				return err
			}
			account, err := sdk.NewKeypair()
			if err != nil {
				return err
			}
			if _, err := c.CreateAndInitialize(ctx, account); err != nil {
				return fmt.Errorf("initialize counter: %w", err)
			}
			_, _ = fmt.Fprintf(out, "Counter account %s initialized\n", account.Pubkey())

			steps := []struct {
				name string
				run  func() (types.Signature, error)
			}{
				{counter.Increment.String(), func() (types.Signature, error) { return c.Increment(ctx, account.Pubkey()) }},
				{counter.Increment.String(), func() (types.Signature, error) { return c.Increment(ctx, account.Pubkey()) }},
				{counter.Decrement.String(), func() (types.Signature, error) { return c.Decrement(ctx, account.Pubkey()) }},
			}
			for _, s := range steps {
				sig, err := s.run()
				if err != nil {
					return fmt.Errorf("%s: %w", s.name, err)
				}
				_, _ = fmt.Fprintf(out, "%s: %s\n", s.name, sig)
			}

			state, err := c.Count(ctx, account.Pubkey())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Count: %d\n", state.Count)
			return nil
		},
	}
}

func newCounterShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <pubkey>",
		Short: "Show the state of a counter account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			key, err := types.PubkeyFromString(args[0])
			if err != nil {
				return err
			}
			c, err := counterClient(cc, client.NewProvider(cc.RPC(), nil, client.WithLogger(cc.Logger)))
			if err != nil {
				return err
			}
			state, err := c.Count(cmd.Context(), key)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Initialized: %t\nCount: %d\n", state.IsInitialized, state.Count)
			return nil
		},
	}
}
