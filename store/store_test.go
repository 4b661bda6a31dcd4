package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/progchain/types"
)

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, openSQLite(t)) })
}

var (
	alice = types.Pubkey{1}
	bob   = types.Pubkey{2}
	owner = types.Pubkey{9}
	sig1  = types.Signature{1}
	sig2  = types.Signature{2}
)

func TestStore_EmptyLoad(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.Load(context.Background())
		assert.ErrorIs(t, err, ErrNoState)

		_, ok, err := s.Status(context.Background(), sig1)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_CommitAndLoad(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Commit(ctx, &Changeset{
			ChainID:  "test-chain",
			AppState: []byte(`{"faucet":"x"}`),
			Height:   1,
			AppHash:  types.AppHash{0xAA},
			Accounts: map[types.Pubkey]types.Account{
				alice: {Lamports: 100, Owner: owner, Data: []byte{1, 2, 3}},
				bob:   {Lamports: 1 << 62, Executable: true},
			},
			Blockhashes: []Blockhash{{Height: 0, Hash: types.Hash{0x10}}, {Height: 1, Hash: types.Hash{0x11}}},
			Statuses:    map[types.Signature]types.SignatureStatus{sig1: {Slot: 1}},
		}))

		st, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "test-chain", st.ChainID)
		assert.Equal(t, `{"faucet":"x"}`, string(st.AppState))
		assert.Equal(t, uint64(1), st.Height)
		assert.Equal(t, types.AppHash{0xAA}, st.AppHash)
		assert.Equal(t, types.Account{Lamports: 100, Owner: owner, Data: []byte{1, 2, 3}}, st.Accounts[alice])
		assert.Equal(t, uint64(1<<62), st.Accounts[bob].Lamports)
		assert.True(t, st.Accounts[bob].Executable)
		assert.Equal(t, []Blockhash{{0, types.Hash{0x10}}, {1, types.Hash{0x11}}}, st.Blockhashes)
		assert.Contains(t, st.Statuses, sig1)
	})
}

func TestStore_DeleteAndPrune(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Commit(ctx, &Changeset{
			Height:      1,
			Accounts:    map[types.Pubkey]types.Account{alice: {Lamports: 5}},
			Blockhashes: []Blockhash{{Height: 1, Hash: types.Hash{1}}},
			Statuses:    map[types.Signature]types.SignatureStatus{sig1: {Slot: 1}},
		}))
		require.NoError(t, s.Commit(ctx, &Changeset{
			Height:      2,
			Accounts:    map[types.Pubkey]types.Account{alice: {}},
			Blockhashes: []Blockhash{{Height: 2, Hash: types.Hash{2}}},
			PruneBelow:  2,
			Statuses:    map[types.Signature]types.SignatureStatus{sig2: {Slot: 2, Code: 1007, Info: "bad"}},
		}))

		st, err := s.Load(ctx)
		require.NoError(t, err)
		assert.NotContains(t, st.Accounts, alice)
		assert.Equal(t, []Blockhash{{2, types.Hash{2}}}, st.Blockhashes)
		assert.NotContains(t, st.Statuses, sig1, "statuses older than the oldest blockhash are not reloaded")
		assert.Contains(t, st.Statuses, sig2)

		old, ok, err := s.Status(ctx, sig1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint64(1), old.Slot)

		got, ok, err := s.Status(ctx, sig2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, types.SignatureStatus{Slot: 2, Code: 1007, Info: "bad"}, got)
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, &Changeset{
		Height:   7,
		Accounts: map[types.Pubkey]types.Account{alice: {Lamports: 42}},
	}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	st, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), st.Height)
	assert.Equal(t, uint64(42), st.Accounts[alice].Lamports)
	assert.Empty(t, st.Accounts[alice].Data)
}

func TestSQLiteStore_CommitRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO meta").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("INSERT INTO accounts").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	s := newSQLiteStore(db)
	err = s.Commit(context.Background(), &Changeset{
		Height:   1,
		Accounts: map[types.Pubkey]types.Account{alice: {Lamports: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
