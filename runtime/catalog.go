package runtime

import (
	"fmt"
	"sort"

	"github.com/blockberries/progchain/program"
	"github.com/blockberries/progchain/program/counter"
	"github.com/blockberries/progchain/program/starter"
	"github.com/blockberries/progchain/program/system"
	"github.com/blockberries/progchain/types"
)

// NativeLoaderID owns the executable accounts of native programs.
var NativeLoaderID = types.MustPubkey("NativeLoader1111111111111111111111111111111")

// Factory instantiates a native program at an address.
type Factory struct {
	DefaultID types.Pubkey
	New       func(id types.Pubkey) program.Program
}

// Catalog maps workspace program names to factories.
type Catalog map[string]Factory

// DefaultCatalog returns the built-in programs.
func DefaultCatalog() Catalog {
	return Catalog{
		"counter": {
			DefaultID: counter.ProgramID,
			New:       func(id types.Pubkey) program.Program { return counter.NewAt(id) },
		},
		"starter": {
			DefaultID: starter.ProgramID,
			New:       func(id types.Pubkey) program.Program { return starter.NewAt(id) },
		},
	}
}

// Names returns the catalog's program names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// buildRegistry loads the system program plus every listed program.
func (c Catalog) buildRegistry(deploy []GenesisProgram) (*program.Registry, error) {
	reg, err := program.NewRegistry(system.New())
	if err != nil {
		return nil, err
	}
	for _, d := range deploy {
		f, ok := c[d.Name]
		if !ok {
			return nil, fmt.Errorf("unknown program %q (available: %v)", d.Name, c.Names())
		}
		id := f.DefaultID
		if d.ID != nil {
			id = *d.ID
		}
		if err := reg.Register(f.New(id)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// ProgramInfo describes a loaded program.
type ProgramInfo struct {
	Name string       `json:"name"`
	ID   types.Pubkey `json:"id"`
}
