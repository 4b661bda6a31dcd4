// Package config loads progchain settings from defaults, an optional
// progchain.yaml, PROGCHAIN_ environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable. PROGCHAIN_RPC_ADDR
// sets rpc_addr.
const EnvPrefix = "PROGCHAIN_"

// Environment variables read by clients.
const (
	EnvProviderURL = EnvPrefix + "PROVIDER_URL"
	EnvWallet      = EnvPrefix + "WALLET"
)

// Defaults.
const (
	DefaultFile           = "progchain.yaml"
	DefaultProviderURL    = "http://127.0.0.1:8899"
	DefaultRPCAddr        = "127.0.0.1:8899"
	DefaultGRPCAddr       = "127.0.0.1:26658"
	DefaultAppAddr        = ""
	DefaultDataDir        = ".progchain"
	DefaultChainID        = "progchain-local"
	DefaultWorkspace      = "workspace.yaml"
	DefaultBlockInterval  = 400 * time.Millisecond
	DefaultFaucetLamports = 500_000_000 * 1_000_000_000
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Config is the merged configuration.
type Config struct {
	// Client side.
	ProviderURL string `koanf:"provider_url"`
	Wallet      string `koanf:"wallet"`
	Workspace   string `koanf:"workspace"`

	// Node side. AppAddr, when set, is the gRPC address of a runtime
	// served by another process; GRPCAddr is where this process serves
	// its runtime.
	DataDir        string        `koanf:"data_dir"`
	RPCAddr        string        `koanf:"rpc_addr"`
	GRPCAddr       string        `koanf:"grpc_addr"`
	AppAddr        string        `koanf:"app_addr"`
	ChainID        string        `koanf:"chain_id"`
	BlockInterval  time.Duration `koanf:"block_interval"`
	FaucetLamports uint64        `koanf:"faucet_lamports"`
	Faucet         string        `koanf:"faucet"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// FileUsed is the config file that was loaded, if any.
	FileUsed string `koanf:"-"`
}

// DefaultWalletPath returns ~/.config/progchain/id.json.
func DefaultWalletPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".config", "progchain", "id.json")
}

func defaults() map[string]any {
	return map[string]any{
		"provider_url":    DefaultProviderURL,
		"wallet":          DefaultWalletPath(),
		"workspace":       DefaultWorkspace,
		"data_dir":        DefaultDataDir,
		"rpc_addr":        DefaultRPCAddr,
		"grpc_addr":       DefaultGRPCAddr,
		"app_addr":        DefaultAppAddr,
		"chain_id":        DefaultChainID,
		"block_interval":  DefaultBlockInterval.String(),
		"faucet_lamports": uint64(DefaultFaucetLamports),
		"faucet":          "",
		"log_level":       DefaultLogLevel,
		"log_format":      DefaultLogFormat,
	}
}

// Load reads configuration. cfgFile may be empty, in which case
// ./progchain.yaml is used when present. flags may be nil; only flags
// the user changed override other sources, with dashes mapped to
// underscores.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			cfgFile = DefaultFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// PROGCHAIN_PROVIDER_URL -> provider_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.FileUsed = cfgFile
	cfg.Wallet = expandHome(cfg.Wallet)
	cfg.DataDir = expandHome(cfg.DataDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the merged values.
func (c *Config) Validate() error {
	if c.BlockInterval <= 0 {
		return fmt.Errorf("block_interval must be positive, got %s", c.BlockInterval)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger builds the process logger described by c.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
