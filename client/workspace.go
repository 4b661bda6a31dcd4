package client

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/blockberries/progchain/program/starter"
	"github.com/blockberries/progchain/sdk"
	"github.com/blockberries/progchain/types"
)

// manifest is the on-disk workspace file:
//
//	programs:
//	  starter: BF1Q7hLntSidgYjCMzG298QpRbBb5daA672W7mNiWFVf
type manifest struct {
	Programs map[string]string `yaml:"programs"`
}

// Workspace resolves program handles by name.
type Workspace struct {
	provider *Provider
	programs map[string]types.Pubkey
}

// NewWorkspace creates a workspace from a name to ID map.
func NewWorkspace(provider *Provider, programs map[string]types.Pubkey) *Workspace {
	return &Workspace{provider: provider, programs: programs}
}

// LoadWorkspace reads a workspace manifest.
func LoadWorkspace(path string, provider *Provider) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse workspace %s: %w", path, err)
	}
	programs := make(map[string]types.Pubkey, len(m.Programs))
	for name, id := range m.Programs {
		key, err := types.PubkeyFromString(id)
		if err != nil {
			return nil, fmt.Errorf("workspace program %q: %w", name, err)
		}
		programs[name] = key
	}
	return NewWorkspace(provider, programs), nil
}

// WriteWorkspace saves a manifest for programs.
func WriteWorkspace(path string, programs map[string]types.Pubkey) error {
	m := manifest{Programs: make(map[string]string, len(programs))}
	for name, id := range programs {
		m.Programs[name] = id.String()
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Names lists the workspace programs in order.
func (w *Workspace) Names() []string {
	names := make([]string, 0, len(w.programs))
	for n := range w.programs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Program returns the handle for name.
func (w *Workspace) Program(name string) (*Program, error) {
	id, ok := w.programs[name]
	if !ok {
		return nil, fmt.Errorf("program %q not in workspace", name)
	}
	return &Program{ID: id, Name: name, provider: w.provider}, nil
}

// Program is a handle for calling a deployed program's methods.
type Program struct {
	ID       types.Pubkey
	Name     string
	provider *Provider
}

// Method starts a call to the named method.
func (p *Program) Method(name string) *MethodCall {
	return &MethodCall{program: p, method: name}
}

// Initialize calls the zero-argument initialize method and returns
// the transaction signature.
func (p *Program) Initialize(ctx context.Context) (string, error) {
	return p.Method(starter.MethodInitialize).RPC(ctx)
}

// MethodCall accumulates the accounts, arguments and extra signers of
// a method invocation.
type MethodCall struct {
	program  *Program
	method   string
	accounts []types.AccountMeta
	args     []byte
	signers  []*sdk.Keypair
}

func (c *MethodCall) Accounts(metas ...types.AccountMeta) *MethodCall {
	c.accounts = append(c.accounts, metas...)
	return c
}

// Args appends encoded arguments after the method discriminator.
func (c *MethodCall) Args(data []byte) *MethodCall {
	c.args = append(c.args, data...)
	return c
}

func (c *MethodCall) Signers(kps ...*sdk.Keypair) *MethodCall {
	c.signers = append(c.signers, kps...)
	return c
}

// Instruction returns the instruction without sending it.
func (c *MethodCall) Instruction() types.Instruction {
	ix := starter.MethodInstruction(c.program.ID, c.method, c.accounts...)
	ix.Data = append(ix.Data, c.args...)
	return ix
}

// RPC sends the call, waits for it to commit and returns the
// signature in its base58 form.
func (c *MethodCall) RPC(ctx context.Context) (string, error) {
	sig, err := c.program.provider.Send(ctx, []types.Instruction{c.Instruction()}, c.signers...)
	if err != nil {
		return "", fmt.Errorf("%s.%s: %w", c.program.Name, c.method, err)
	}
	return sig.String(), nil
}
