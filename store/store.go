// Package store persists committed runtime state.
//
// A Store holds exactly one committed height. Commit applies a
// Changeset atomically: after a crash the store reflects either the
// previous height or the new one, never a mix.
package store

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/blockberries/progchain/types"
)

// ErrNoState is returned by Load when nothing has been committed yet.
var ErrNoState = errors.New("store: no committed state")

// Blockhash is the hash recorded for a committed height.
type Blockhash struct {
	Height uint64
	Hash   types.Hash
}

// State is the full committed state as loaded at startup.
type State struct {
	ChainID  string
	AppState []byte
	Height   uint64
	AppHash  types.AppHash
	Accounts map[types.Pubkey]types.Account
	// Blockhashes are ordered by ascending height.
	Blockhashes []Blockhash
	// Statuses holds the signatures processed at or after the oldest
	// retained blockhash.
	Statuses map[types.Signature]types.SignatureStatus
}

// Changeset is everything one Commit writes.
type Changeset struct {
	ChainID  string
	AppState []byte
	Height   uint64
	AppHash  types.AppHash
	// Accounts maps changed accounts to their new contents. An empty
	// account is deleted.
	Accounts map[types.Pubkey]types.Account
	// Blockhashes are appended. Zero or more per commit; genesis adds
	// the seed hash alongside the first block's.
	Blockhashes []Blockhash
	// PruneBelow drops blockhashes with a lower height.
	PruneBelow uint64
	Statuses   map[types.Signature]types.SignatureStatus
}

// Store is the persistence layer behind the runtime.
type Store interface {
	// Load returns the committed state, or ErrNoState.
	Load(ctx context.Context) (*State, error)

	// Commit atomically applies a changeset.
	Commit(ctx context.Context, cs *Changeset) error

	// Status looks up any signature ever committed.
	Status(ctx context.Context, sig types.Signature) (types.SignatureStatus, bool, error)

	Close() error
}

func sortedPubkeys(m map[types.Pubkey]types.Account) []types.Pubkey {
	keys := make([]types.Pubkey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

func sortedSignatures(m map[types.Signature]types.SignatureStatus) []types.Signature {
	sigs := make([]types.Signature, 0, len(m))
	for s := range m {
		sigs = append(sigs, s)
	}
	sort.Slice(sigs, func(i, j int) bool { return bytes.Compare(sigs[i][:], sigs[j][:]) < 0 })
	return sigs
}
