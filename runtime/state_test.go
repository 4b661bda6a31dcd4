package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/progchain/store"
	"github.com/blockberries/progchain/types"
)

func TestBlockhashQueue_Trims(t *testing.T) {
	q := newBlockhashQueue(nil)
	for h := uint64(0); h < MaxRecentBlockhashes+10; h++ {
		q.push(store.Blockhash{Height: h, Hash: types.Hash{byte(h), byte(h >> 8), 1}})
	}
	assert.Len(t, q.list(), MaxRecentBlockhashes)
	assert.Equal(t, uint64(10), q.oldest())
	assert.Equal(t, uint64(MaxRecentBlockhashes+9), q.last().Height)

	_, ok := q.lookup(types.Hash{9, 0, 1})
	assert.False(t, ok)
	height, ok := q.lookup(types.Hash{10, 0, 1})
	require.True(t, ok)
	assert.Equal(t, uint64(10), height)

	hash, ok := q.at(42)
	require.True(t, ok)
	assert.Equal(t, types.Hash{42, 0, 1}, hash)

	c := q.clone()
	c.push(store.Blockhash{Height: 500, Hash: types.Hash{0xaa}})
	assert.Equal(t, uint64(MaxRecentBlockhashes+9), q.last().Height)
}

func TestAccountSet_Layers(t *testing.T) {
	a, b := types.Pubkey{1}, types.Pubkey{2}
	base := map[types.Pubkey]types.Account{
		a: {Lamports: 10},
		b: {Lamports: 20},
	}
	root := newAccountSet(base)

	tx := root.child()
	acct := tx.get(a)
	acct.Lamports = 5
	tx.set(a, acct)
	tx.set(b, types.Account{})

	assert.Equal(t, uint64(5), tx.get(a).Lamports)
	assert.Equal(t, uint64(10), root.get(a).Lamports)

	dropped := tx.child()
	dropped.set(a, types.Account{Lamports: 99})
	assert.Equal(t, uint64(99), dropped.get(a).Lamports)

	tx.merge()
	assert.Equal(t, uint64(5), root.get(a).Lamports)

	snap := root.snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, uint64(5), snap[a].Lamports)
	assert.Equal(t, uint64(10), base[a].Lamports)
}

func TestAccountSet_GetCopies(t *testing.T) {
	key := types.Pubkey{1}
	s := newAccountSet(map[types.Pubkey]types.Account{key: {Lamports: 1, Data: []byte{1, 2}}})
	acct := s.get(key)
	acct.Data[0] = 9
	assert.Equal(t, byte(1), s.get(key).Data[0])
}

func TestComputeAppHash_OrderIndependent(t *testing.T) {
	one := map[types.Pubkey]types.Account{
		{1}: {Lamports: 1},
		{2}: {Lamports: 2, Data: []byte("x")},
	}
	two := map[types.Pubkey]types.Account{
		{2}: {Lamports: 2, Data: []byte("x")},
		{1}: {Lamports: 1},
	}
	prev := types.Hash{7}
	assert.Equal(t, computeAppHash(one, prev), computeAppHash(two, prev))
	assert.NotEqual(t, computeAppHash(one, prev), computeAppHash(one, types.Hash{8}))

	h := computeAppHash(one, prev)
	assert.NotEqual(t, nextBlockhash(prev, 1, h), nextBlockhash(prev, 2, h))
}

func TestStatusCache_Prune(t *testing.T) {
	c := newStatusCache(map[types.Signature]types.SignatureStatus{{1}: {Slot: 1}})
	c.add(map[types.Signature]types.SignatureStatus{{2}: {Slot: 5}})
	c.prune(3)
	_, ok := c.get(types.Signature{1})
	assert.False(t, ok)
	st, ok := c.get(types.Signature{2})
	require.True(t, ok)
	assert.Equal(t, uint64(5), st.Slot)
}

func TestRent(t *testing.T) {
	r := DefaultRent()
	assert.Equal(t, uint64(890880), r.MinimumBalance(0))
	assert.Equal(t, uint64((128+9)*3480*2), r.MinimumBalance(9))

	assert.True(t, r.IsExempt(types.Account{}))
	assert.True(t, r.IsExempt(types.Account{Lamports: 1, Executable: true}))
	assert.False(t, r.IsExempt(types.Account{Lamports: 890879}))
	assert.True(t, r.IsExempt(types.Account{Lamports: 890880}))
}

func TestParseAppState(t *testing.T) {
	st, err := ParseAppState(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFeePerSignature, st.FeePerSignature)
	assert.Len(t, st.Programs, len(DefaultCatalog().Names()))

	st, err = ParseAppState([]byte(`{"programs":[{"name":"system"}]}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultRent(), st.Rent)
	assert.Equal(t, DefaultFeePerSignature, st.FeePerSignature)

	_, err = ParseAppState([]byte(`{"faucet_lamports": 5}`))
	assert.Error(t, err)

	_, err = ParseAppState([]byte(`not json`))
	assert.Error(t, err)
}

func TestGenesisAccounts_RejectsNonExempt(t *testing.T) {
	st := DefaultAppState(types.Pubkey{9}, 100)
	st.Accounts = []GenesisAccount{{Pubkey: types.Pubkey{3}, Lamports: 1}}
	_, err := st.genesisAccounts(nil)
	assert.ErrorContains(t, err, "rent-exempt")

	st.Accounts = []GenesisAccount{{Pubkey: types.Pubkey{9}, Lamports: DefaultRent().MinimumBalance(0)}}
	_, err = st.genesisAccounts(nil)
	assert.ErrorContains(t, err, "duplicate")
}
