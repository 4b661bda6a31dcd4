package program

import (
	"fmt"
	"sort"
	"sync"

	"github.com/blockberries/progchain/types"
)

// Registry maps program IDs to loaded programs.
type Registry struct {
	mu   sync.RWMutex
	byID map[types.Pubkey]Program
}

// NewRegistry creates a registry holding the given programs.
func NewRegistry(programs ...Program) (*Registry, error) {
	r := &Registry{byID: make(map[types.Pubkey]Program, len(programs))}
	for _, p := range programs {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a program. A second program with the same ID is
// rejected.
func (r *Registry) Register(p Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[p.ID()]; ok {
		return fmt.Errorf("program id %s already registered to %q", p.ID(), existing.Name())
	}
	r.byID[p.ID()] = p
	return nil
}

// Lookup returns the program with the given ID.
func (r *Registry) Lookup(id types.Pubkey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Programs returns all registered programs ordered by name.
func (r *Registry) Programs() []Program {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Program, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
