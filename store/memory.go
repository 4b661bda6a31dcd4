package store

import (
	"context"
	"sync"

	"github.com/blockberries/progchain/types"
)

// MemStore keeps committed state in memory. It is used by tests and
// by nodes started without a data directory.
type MemStore struct {
	mu        sync.RWMutex
	committed bool
	state     State
	statuses  map[types.Signature]types.SignatureStatus
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		state:    State{Accounts: make(map[types.Pubkey]types.Account)},
		statuses: make(map[types.Signature]types.SignatureStatus),
	}
}

func (m *MemStore) Load(_ context.Context) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.committed {
		return nil, ErrNoState
	}

	out := &State{
		ChainID:     m.state.ChainID,
		AppState:    append([]byte(nil), m.state.AppState...),
		Height:      m.state.Height,
		AppHash:     m.state.AppHash,
		Accounts:    make(map[types.Pubkey]types.Account, len(m.state.Accounts)),
		Blockhashes: append([]Blockhash(nil), m.state.Blockhashes...),
		Statuses:    make(map[types.Signature]types.SignatureStatus),
	}
	for k, a := range m.state.Accounts {
		out.Accounts[k] = a.Clone()
	}
	var oldest uint64
	if len(out.Blockhashes) > 0 {
		oldest = out.Blockhashes[0].Height
	}
	for sig, st := range m.statuses {
		if st.Slot >= oldest {
			out.Statuses[sig] = st
		}
	}
	return out, nil
}

func (m *MemStore) Commit(_ context.Context, cs *Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.ChainID = cs.ChainID
	m.state.AppState = append([]byte(nil), cs.AppState...)
	m.state.Height = cs.Height
	m.state.AppHash = cs.AppHash
	for k, a := range cs.Accounts {
		if a.IsEmpty() {
			delete(m.state.Accounts, k)
			continue
		}
		m.state.Accounts[k] = a.Clone()
	}

	hashes := append(m.state.Blockhashes, cs.Blockhashes...)
	kept := hashes[:0]
	for _, bh := range hashes {
		if bh.Height >= cs.PruneBelow {
			kept = append(kept, bh)
		}
	}
	m.state.Blockhashes = kept

	for sig, st := range cs.Statuses {
		m.statuses[sig] = st
	}
	m.committed = true
	return nil
}

func (m *MemStore) Status(_ context.Context, sig types.Signature) (types.SignatureStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.statuses[sig]
	return st, ok, nil
}

func (m *MemStore) Close() error { return nil }
