package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockberries/progchain/client"
	"github.com/blockberries/progchain/config"
	"github.com/blockberries/progchain/rpc"
	"github.com/blockberries/progchain/sdk"
)

type configKey struct{}

type loggerKey struct{}

// WithConfig stores the loaded configuration and the process logger
// in ctx.
func WithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, configKey{}, cfg)
	return context.WithValue(ctx, loggerKey{}, logger)
}

// CommandContext holds what every command needs.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// NewCommandContext returns the configuration stored by the root
// command, loading defaults when the command runs standalone.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	ctx := cmd.Context()
	if ctx != nil {
		if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
			logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
			if !ok {
				logger = cfg.NewLogger(cmd.ErrOrStderr())
			}
			return &CommandContext{Cfg: cfg, Logger: logger}, nil
		}
	}
	cfg, err := config.Load("", cmd.Flags())
	if err != nil {
		return nil, err
	}
	return &CommandContext{Cfg: cfg, Logger: cfg.NewLogger(cmd.ErrOrStderr())}, nil
}

// Provider connects to the configured endpoint with the configured
// wallet.
func (c *CommandContext) Provider() (*client.Provider, error) {
	wallet, err := sdk.ReadKeypairFile(c.Cfg.Wallet)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no wallet at %s, run 'progchain keygen' first", c.Cfg.Wallet)
		}
		return nil, err
	}
	return client.NewProvider(c.RPC(), wallet, client.WithLogger(c.Logger)), nil
}

// RPC returns a client for the configured endpoint.
func (c *CommandContext) RPC() *rpc.Client {
	return rpc.NewClient(c.Cfg.ProviderURL)
}
