package runtime

import (
	"github.com/blockberries/progchain/store"
	"github.com/blockberries/progchain/types"
)

// MaxRecentBlockhashes is how many committed blockhashes a
// transaction may reference.
const MaxRecentBlockhashes = 150

// blockhashQueue holds the most recent blockhashes, oldest first.
type blockhashQueue struct {
	entries []store.Blockhash
	index   map[types.Hash]uint64
}

func newBlockhashQueue(entries []store.Blockhash) *blockhashQueue {
	q := &blockhashQueue{index: make(map[types.Hash]uint64)}
	for _, e := range entries {
		q.push(e)
	}
	return q
}

func (q *blockhashQueue) push(e store.Blockhash) {
	q.entries = append(q.entries, e)
	q.index[e.Hash] = e.Height
	for len(q.entries) > MaxRecentBlockhashes {
		delete(q.index, q.entries[0].Hash)
		q.entries = q.entries[1:]
	}
}

// lookup returns the height a blockhash was recorded at.
func (q *blockhashQueue) lookup(h types.Hash) (uint64, bool) {
	height, ok := q.index[h]
	return height, ok
}

// at returns the blockhash recorded for height.
func (q *blockhashQueue) at(height uint64) (types.Hash, bool) {
	for i := len(q.entries) - 1; i >= 0; i-- {
		if q.entries[i].Height == height {
			return q.entries[i].Hash, true
		}
	}
	return types.Hash{}, false
}

func (q *blockhashQueue) last() store.Blockhash {
	if len(q.entries) == 0 {
		return store.Blockhash{}
	}
	return q.entries[len(q.entries)-1]
}

// oldest returns the lowest retained height.
func (q *blockhashQueue) oldest() uint64 {
	if len(q.entries) == 0 {
		return 0
	}
	return q.entries[0].Height
}

func (q *blockhashQueue) clone() *blockhashQueue {
	return newBlockhashQueue(append([]store.Blockhash(nil), q.entries...))
}

func (q *blockhashQueue) list() []store.Blockhash {
	return append([]store.Blockhash(nil), q.entries...)
}
