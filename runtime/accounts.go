package runtime

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/blockberries/progchain/types"
)

// accountSet is a copy-on-write layer of account changes. The root
// layer reads through to committed state; child layers are opened per
// transaction and per instruction batch and either merged into their
// parent or dropped.
type accountSet struct {
	parent  *accountSet
	base    map[types.Pubkey]types.Account
	changes map[types.Pubkey]types.Account
}

func newAccountSet(base map[types.Pubkey]types.Account) *accountSet {
	return &accountSet{base: base, changes: make(map[types.Pubkey]types.Account)}
}

func (s *accountSet) child() *accountSet {
	return &accountSet{parent: s, changes: make(map[types.Pubkey]types.Account)}
}

// get returns a copy of the account at key; absent accounts are empty.
func (s *accountSet) get(key types.Pubkey) types.Account {
	for l := s; l != nil; l = l.parent {
		if a, ok := l.changes[key]; ok {
			return a.Clone()
		}
		if l.parent == nil {
			return l.base[key].Clone()
		}
	}
	return types.Account{}
}

func (s *accountSet) set(key types.Pubkey, acct types.Account) {
	s.changes[key] = acct.Clone()
}

// merge pushes this layer's changes into its parent.
func (s *accountSet) merge() {
	for k, a := range s.changes {
		s.parent.changes[k] = a
	}
	s.changes = make(map[types.Pubkey]types.Account)
}

// snapshot returns the full account state visible through this layer,
// with empty accounts removed.
func (s *accountSet) snapshot() map[types.Pubkey]types.Account {
	var layers []*accountSet
	for l := s; l != nil; l = l.parent {
		layers = append(layers, l)
	}
	root := layers[len(layers)-1]
	out := make(map[types.Pubkey]types.Account, len(root.base))
	for k, a := range root.base {
		out[k] = a
	}
	for i := len(layers) - 1; i >= 0; i-- {
		for k, a := range layers[i].changes {
			if a.IsEmpty() {
				delete(out, k)
				continue
			}
			out[k] = a
		}
	}
	return out
}

func sortedKeys(accounts map[types.Pubkey]types.Account) []types.Pubkey {
	keys := make([]types.Pubkey, 0, len(accounts))
	for k := range accounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

// computeAppHash hashes every account in key order followed by the
// blockhash transactions in the next block may reference.
func computeAppHash(accounts map[types.Pubkey]types.Account, lastBlockhash types.Hash) types.AppHash {
	h := sha256.New()
	var buf [8]byte
	for _, k := range sortedKeys(accounts) {
		a := accounts[k]
		h.Write(k[:])
		binary.BigEndian.PutUint64(buf[:], a.Lamports)
		h.Write(buf[:])
		h.Write(a.Owner[:])
		if a.Executable {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		binary.BigEndian.PutUint64(buf[:], uint64(len(a.Data)))
		h.Write(buf[:])
		h.Write(a.Data)
	}
	h.Write(lastBlockhash[:])
	var out types.AppHash
	copy(out[:], h.Sum(nil))
	return out
}

// nextBlockhash chains the blockhash of a committed height.
func nextBlockhash(prev types.Hash, height uint64, appHash types.AppHash) types.Hash {
	h := sha256.New()
	h.Write(prev[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	h.Write(buf[:])
	h.Write(appHash[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}
