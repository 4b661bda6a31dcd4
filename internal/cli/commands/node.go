package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/client"
	"github.com/blockberries/progchain/config"
	progchaingrpc "github.com/blockberries/progchain/grpc"
	"github.com/blockberries/progchain/local"
	"github.com/blockberries/progchain/node"
	"github.com/blockberries/progchain/rpc"
	"github.com/blockberries/progchain/runtime"
	"github.com/blockberries/progchain/server"
	"github.com/blockberries/progchain/store"
	"github.com/blockberries/progchain/types"
)

// Files kept under data_dir.
const (
	stateFile      = "state.db"
	checkpointFile = "checkpoint.json"
	faucetFile     = "faucet.json"
)

// NewNodeCommand creates the node command.
func NewNodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a single-validator node with a JSON-RPC endpoint",
		Long: `Run a node that produces a block every block_interval and serves
JSON-RPC on rpc_addr.

The runtime runs in-process with its state in data_dir, unless
app_addr points at a runtime served by 'progchain runtime'. The faucet
keypair used by requestAirdrop is created in data_dir on first start.`,
		Example: `  # Local validator on the default ports
  progchain node

  # Drive a runtime in another process
  progchain runtime --grpc-addr 127.0.0.1:26658 &
  progchain node --app-addr 127.0.0.1:26658`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			return runNode(cmd.Context(), cc)
		},
	}
	cmd.Flags().String("rpc-addr", "", "JSON-RPC listen address")
	cmd.Flags().String("app-addr", "", "gRPC address of an external runtime")
	cmd.Flags().String("data-dir", "", "directory for node state")
	cmd.Flags().String("chain-id", "", "chain ID used at genesis")
	cmd.Flags().Duration("block-interval", 0, "time between blocks")
	return cmd
}

func runNode(ctx context.Context, cc *CommandContext) error {
	cfg, logger := cc.Cfg, cc.Logger
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	faucetPath := cfg.Faucet
	if faucetPath == "" {
		faucetPath = filepath.Join(cfg.DataDir, faucetFile)
	}
	faucet, created, err := client.LoadOrCreateWallet(faucetPath)
	if err != nil {
		return fmt.Errorf("faucet keypair: %w", err)
	}
	if created {
		logger.Info("generated faucet keypair", "path", faucetPath, "pubkey", faucet.Pubkey().String())
	}

	genesis, err := genesisDoc(cfg, faucet.Pubkey(), time.Now())
	if err != nil {
		return err
	}

	conn, err := connectRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	n := node.New(conn, node.Config{BlockInterval: cfg.BlockInterval},
		node.WithLogger(logger),
		node.WithCheckpoint(node.NewFileCheckpoint(filepath.Join(cfg.DataDir, checkpointFile))))
	if err := n.Start(ctx, genesis); err != nil {
		return err
	}

	srv := rpc.NewServer(n, rpc.WithLogger(logger), rpc.WithFaucet(faucet))
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := n.Run(egctx)
		if err == nil && egctx.Err() == nil {
			return fmt.Errorf("block production stopped")
		}
		return err
	})
	eg.Go(func() error {
		return srv.Serve(egctx, cfg.RPCAddr)
	})
	return eg.Wait()
}

// genesisDoc describes a fresh chain funding faucet. It is only used
// when the node has no checkpoint.
func genesisDoc(cfg *config.Config, faucet types.Pubkey, now time.Time) (types.GenesisDoc, error) {
	appState, err := runtime.DefaultAppState(faucet, cfg.FaucetLamports).Marshal()
	if err != nil {
		return types.GenesisDoc{}, fmt.Errorf("encode app state: %w", err)
	}
	return types.GenesisDoc{
		ChainID:       cfg.ChainID,
		GenesisTime:   types.TimeToTimestamp(now),
		InitialHeight: 1,
		ConsensusParams: types.ConsensusParams{
			MaxBlockBytes: types.DefaultMaxBlockBytes,
			BlockInterval: types.DurationFromGo(cfg.BlockInterval),
			MaxTxBytes:    runtime.MaxTxBytes,
		},
		AppState: appState,
	}, nil
}

// connectRuntime dials app_addr when set and otherwise opens the
// runtime in-process over the SQLite store in data_dir.
func connectRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (progchain.Connection, error) {
	if cfg.AppAddr != "" {
		c, err := progchaingrpc.Dial(cfg.AppAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, err
		}
		logger.Info("using external runtime", "addr", cfg.AppAddr)
		return c, nil
	}
	app, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return local.NewConnection(app, server.WithLogger(logger)), nil
}

// openRuntime opens the SQLite store in data_dir. Closing the
// returned runtime closes the store.
func openRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime.App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.OpenSQLite(ctx, filepath.Join(cfg.DataDir, stateFile))
	if err != nil {
		return nil, err
	}
	return runtime.New(runtime.WithLogger(logger), runtime.WithStore(st)), nil
}

// NewRuntimeCommand creates the runtime command.
func NewRuntimeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runtime",
		Short: "Serve the runtime over gRPC for an external node",
		Long: `Serve the program runtime on grpc_addr so that a node in another
process can drive it with 'progchain node --app-addr'. State is kept in
data_dir.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			return runRuntime(cmd.Context(), cc)
		},
	}
	cmd.Flags().String("grpc-addr", "", "gRPC listen address")
	cmd.Flags().String("data-dir", "", "directory for runtime state")
	return cmd
}

func runRuntime(ctx context.Context, cc *CommandContext) error {
	cfg, logger := cc.Cfg, cc.Logger
	app, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	logger.Info("serving runtime", "addr", lis.Addr().String(), "data_dir", cfg.DataDir)
	return progchaingrpc.NewGRPCServer(app, server.WithLogger(logger)).Serve(ctx, lis)
}
