package node

import (
	"errors"
	"sort"
	"sync"

	"github.com/blockberries/progchain/types"
)

var (
	// ErrMempoolFull is returned when the pool holds its maximum
	// number of transactions.
	ErrMempoolFull = errors.New("mempool is full")
	// ErrDuplicateTx is returned for a transaction already pending.
	ErrDuplicateTx = errors.New("transaction already in mempool")
)

type poolEntry struct {
	sig      types.Signature
	tx       types.Tx
	priority int64
	seq      uint64
}

// Mempool holds admitted transactions until they are included in a
// block. Transactions are ordered by priority, then arrival.
type Mempool struct {
	mu      sync.Mutex
	max     int
	seq     uint64
	entries map[types.Signature]*poolEntry
}

// NewMempool creates a pool holding at most max transactions.
func NewMempool(max int) *Mempool {
	return &Mempool{max: max, entries: make(map[types.Signature]*poolEntry)}
}

// Add inserts an admitted transaction.
func (m *Mempool) Add(sig types.Signature, tx types.Tx, verdict types.GateVerdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[sig]; ok {
		return ErrDuplicateTx
	}
	if m.max > 0 && len(m.entries) >= m.max {
		return ErrMempoolFull
	}
	m.seq++
	m.entries[sig] = &poolEntry{
		sig:      sig,
		tx:       tx,
		priority: verdict.Priority,
		seq:      m.seq,
	}
	return nil
}

// Has reports whether sig is pending.
func (m *Mempool) Has(sig types.Signature) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[sig]
	return ok
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Mempool) sorted() []*poolEntry {
	out := make([]*poolEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Reap returns pending transactions in priority order whose combined
// size fits maxBytes. Zero means no limit. Reaped transactions stay in
// the pool until Remove.
func (m *Mempool) Reap(maxBytes uint64) []types.Tx {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		txs   []types.Tx
		total uint64
	)
	for _, e := range m.sorted() {
		size := uint64(len(e.tx))
		if maxBytes > 0 && total+size > maxBytes {
			continue
		}
		total += size
		txs = append(txs, e.tx)
	}
	return txs
}

// Remove drops the given signatures.
func (m *Mempool) Remove(sigs ...types.Signature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sigs {
		delete(m.entries, s)
	}
}

// Entries returns the pending signatures and transactions in
// priority order.
func (m *Mempool) Entries() ([]types.Signature, []types.Tx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := m.sorted()
	sigs := make([]types.Signature, len(sorted))
	txs := make([]types.Tx, len(sorted))
	for i, e := range sorted {
		sigs[i] = e.sig
		txs[i] = e.tx
	}
	return sigs, txs
}

// Update replaces the priority of a pending transaction.
func (m *Mempool) Update(sig types.Signature, verdict types.GateVerdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[sig]; ok {
		e.priority = verdict.Priority
	}
}
