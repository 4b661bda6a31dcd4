package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blockberries/progchain/store"
	"github.com/blockberries/progchain/types"
)

// snapshotState is the body of a SnapshotFormatJSON snapshot.
type snapshotState struct {
	ChainID     string               `json:"chain_id"`
	AppState    []byte               `json:"app_state"`
	Height      uint64               `json:"height"`
	Accounts    []types.KeyedAccount `json:"accounts"`
	Blockhashes []snapshotBlockhash  `json:"blockhashes"`
}

type snapshotBlockhash struct {
	Height uint64     `json:"height"`
	Hash   types.Hash `json:"hash"`
}

// encodeSnapshot serializes committed state. Caller holds a.mu.
func (a *App) encodeSnapshot() ([]byte, error) {
	s := snapshotState{
		ChainID:  a.chainID,
		AppState: a.appState,
		Height:   a.height,
	}
	for _, k := range sortedKeys(a.accounts) {
		s.Accounts = append(s.Accounts, types.KeyedAccount{Pubkey: k, Account: a.accounts[k]})
	}
	for _, bh := range a.hashes.list() {
		s.Blockhashes = append(s.Blockhashes, snapshotBlockhash{Height: bh.Height, Hash: bh.Hash})
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

func (a *App) AvailableSnapshots(_ context.Context) ([]types.SnapshotDescriptor, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.ready || a.height == 0 {
		return nil, nil
	}
	data, err := a.encodeSnapshot()
	if err != nil {
		return nil, err
	}
	return []types.SnapshotDescriptor{types.DescribeSnapshot(a.height, types.SnapshotFormatJSON, data)}, nil
}

func (a *App) ExportSnapshot(_ context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if format != types.SnapshotFormatJSON {
		return nil, nil, fmt.Errorf("unsupported snapshot format %d", format)
	}
	if !a.ready || a.height != height {
		return nil, nil, fmt.Errorf("snapshot at height %d not available (current: %d)", height, a.height)
	}

	data, err := a.encodeSnapshot()
	if err != nil {
		return nil, nil, err
	}
	desc := types.DescribeSnapshot(height, format, data)

	ch := make(chan types.SnapshotChunk, desc.Chunks)
	for i := uint32(0); i < desc.Chunks; i++ {
		ch <- desc.Chunk(data, i)
	}
	close(ch)
	return ch, &desc, nil
}

func (a *App) ImportSnapshot(ctx context.Context, descriptor types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	if descriptor.Format != types.SnapshotFormatJSON {
		return types.ImportRejected("unsupported format %d", descriptor.Format), nil
	}

	received := make(map[uint32][]byte)
	for chunk := range chunks {
		received[chunk.Index] = chunk.Data
	}
	if uint32(len(received)) != descriptor.Chunks {
		var missing []uint32
		for i := uint32(0); i < descriptor.Chunks; i++ {
			if _, ok := received[i]; !ok {
				missing = append(missing, i)
			}
		}
		return types.ImportRetry(missing), nil
	}

	var full []byte
	for i := uint32(0); i < descriptor.Chunks; i++ {
		full = append(full, received[i]...)
	}
	if types.Hash(sha256.Sum256(full)) != descriptor.Hash {
		return types.ImportRejected("snapshot hash mismatch"), nil
	}

	var s snapshotState
	if err := json.Unmarshal(full, &s); err != nil {
		return types.ImportRejected("unmarshal state: %v", err), nil
	}
	if s.Height != descriptor.Height {
		return types.ImportRejected("snapshot body is at height %d, descriptor says %d", s.Height, descriptor.Height), nil
	}

	appHash, err := a.restoreSnapshot(ctx, s)
	if err != nil {
		var reject *snapshotRejection
		if errors.As(err, &reject) {
			return types.ImportRejected("%s", reject.reason), nil
		}
		return types.ImportResult{}, err
	}
	return types.ImportAccepted(appHash), nil
}

type snapshotRejection struct{ reason string }

func (e *snapshotRejection) Error() string { return e.reason }

// restoreSnapshot installs and persists an imported state.
func (a *App) restoreSnapshot(ctx context.Context, s snapshotState) (types.AppHash, error) {
	cfg, err := ParseAppState(s.AppState)
	if err != nil {
		return types.AppHash{}, &snapshotRejection{reason: err.Error()}
	}

	accounts := make(map[types.Pubkey]types.Account, len(s.Accounts))
	for _, ka := range s.Accounts {
		accounts[ka.Pubkey] = ka.Account
	}
	entries := make([]store.Blockhash, 0, len(s.Blockhashes))
	for _, bh := range s.Blockhashes {
		entries = append(entries, store.Blockhash{Height: bh.Height, Hash: bh.Hash})
	}
	hashes := newBlockhashQueue(entries)
	if hashes.last().Height != s.Height {
		return types.AppHash{}, &snapshotRejection{reason: "snapshot blockhashes do not end at the snapshot height"}
	}
	prev, ok := hashes.at(s.Height - 1)
	if !ok {
		return types.AppHash{}, &snapshotRejection{reason: "snapshot is missing the parent blockhash"}
	}
	appHash := computeAppHash(accounts, prev)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.loadPrograms(cfg); err != nil {
		return types.AppHash{}, &snapshotRejection{reason: err.Error()}
	}

	cs := &store.Changeset{
		ChainID:     s.ChainID,
		AppState:    s.AppState,
		Height:      s.Height,
		AppHash:     appHash,
		Accounts:    make(map[types.Pubkey]types.Account, len(accounts)),
		Blockhashes: entries,
		PruneBelow:  hashes.oldest(),
	}
	for k := range a.accounts {
		cs.Accounts[k] = types.Account{}
	}
	for k, acct := range accounts {
		cs.Accounts[k] = acct
	}
	if err := a.store.Commit(ctx, cs); err != nil {
		return types.AppHash{}, fmt.Errorf("persist snapshot: %w", err)
	}

	a.cfg = cfg
	a.chainID = s.ChainID
	a.appState = s.AppState
	a.height = s.Height
	a.appHash = appHash
	a.accounts = accounts
	a.hashes = hashes
	a.statuses = newStatusCache(nil)
	a.genesis = nil
	a.staged = nil
	a.ready = true

	a.logger.Info("runtime restored from snapshot",
		"height", s.Height,
		"accounts", len(accounts),
		"app_hash", types.Hash(appHash).String())
	return appHash, nil
}
