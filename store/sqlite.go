package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/blockberries/progchain/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	metaChainID  = "chain_id"
	metaAppState = "app_state"
	metaHeight   = "height"
	metaAppHash  = "app_hash"
)

// SQLiteStore persists state in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and
// brings its schema up to date. Use ":memory:" for a throwaway
// database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection: a single writer, and ":memory:" is per-connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return newSQLiteStore(db), nil
}

func newSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*State, error) {
	meta, err := s.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	rawHeight, ok := meta[metaHeight]
	if !ok {
		return nil, ErrNoState
	}
	height, err := strconv.ParseUint(string(rawHeight), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt height %q: %w", rawHeight, err)
	}

	st := &State{
		ChainID:  string(meta[metaChainID]),
		AppState: meta[metaAppState],
		Height:   height,
		Accounts: make(map[types.Pubkey]types.Account),
		Statuses: make(map[types.Signature]types.SignatureStatus),
	}
	if err := copyFixed(st.AppHash[:], meta[metaAppHash], "app hash"); err != nil {
		return nil, err
	}
	if err := s.loadAccounts(ctx, st); err != nil {
		return nil, err
	}
	if err := s.loadBlockhashes(ctx, st); err != nil {
		return nil, err
	}
	var oldest uint64
	if len(st.Blockhashes) > 0 {
		oldest = st.Blockhashes[0].Height
	}
	if err := s.loadStatuses(ctx, st, oldest); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) loadMeta(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("failed to query meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string][]byte)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (s *SQLiteStore) loadAccounts(ctx context.Context, st *State) error {
	rows, err := s.db.QueryContext(ctx, `SELECT pubkey, lamports, owner, data, executable FROM accounts`)
	if err != nil {
		return fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key, owner, data []byte
			lamports         int64
			executable       bool
		)
		if err := rows.Scan(&key, &lamports, &owner, &data, &executable); err != nil {
			return fmt.Errorf("failed to scan account: %w", err)
		}
		var pk types.Pubkey
		acct := types.Account{Lamports: uint64(lamports), Data: data, Executable: executable}
		if err := copyFixed(pk[:], key, "account pubkey"); err != nil {
			return err
		}
		if err := copyFixed(acct.Owner[:], owner, "account owner"); err != nil {
			return err
		}
		st.Accounts[pk] = acct
	}
	return rows.Err()
}

func (s *SQLiteStore) loadBlockhashes(ctx context.Context, st *State) error {
	rows, err := s.db.QueryContext(ctx, `SELECT height, hash FROM blockhashes ORDER BY height`)
	if err != nil {
		return fmt.Errorf("failed to query blockhashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			height int64
			hash   []byte
			bh     Blockhash
		)
		if err := rows.Scan(&height, &hash); err != nil {
			return fmt.Errorf("failed to scan blockhash: %w", err)
		}
		bh.Height = uint64(height)
		if err := copyFixed(bh.Hash[:], hash, "blockhash"); err != nil {
			return err
		}
		st.Blockhashes = append(st.Blockhashes, bh)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadStatuses(ctx context.Context, st *State, minSlot uint64) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT signature, slot, code, info FROM signatures WHERE slot >= ?`, int64(minSlot))
	if err != nil {
		return fmt.Errorf("failed to query signatures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			raw    []byte
			sig    types.Signature
			status types.SignatureStatus
			slot   int64
			code   int64
		)
		if err := rows.Scan(&raw, &slot, &code, &status.Info); err != nil {
			return fmt.Errorf("failed to scan signature: %w", err)
		}
		if err := copyFixed(sig[:], raw, "signature"); err != nil {
			return err
		}
		status.Slot = uint64(slot)
		status.Code = uint32(code)
		st.Statuses[sig] = status
	}
	return rows.Err()
}

// Commit writes the changeset in a single transaction.
func (s *SQLiteStore) Commit(ctx context.Context, cs *Changeset) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	appState := cs.AppState
	if appState == nil {
		appState = []byte{}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?), (?, ?), (?, ?), (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaChainID, []byte(cs.ChainID),
		metaAppState, appState,
		metaHeight, []byte(strconv.FormatUint(cs.Height, 10)),
		metaAppHash, cs.AppHash[:],
	); err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}

	for _, key := range sortedPubkeys(cs.Accounts) {
		acct := cs.Accounts[key]
		if acct.IsEmpty() {
			_, err = tx.ExecContext(ctx, `DELETE FROM accounts WHERE pubkey = ?`, key[:])
		} else {
			data := acct.Data
			if data == nil {
				data = []byte{}
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO accounts (pubkey, lamports, owner, data, executable) VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(pubkey) DO UPDATE SET lamports = excluded.lamports, owner = excluded.owner,
				 data = excluded.data, executable = excluded.executable`,
				key[:], int64(acct.Lamports), acct.Owner[:], data, acct.Executable)
		}
		if err != nil {
			return fmt.Errorf("failed to write account %s: %w", key, err)
		}
	}

	for _, bh := range cs.Blockhashes {
		if _, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO blockhashes (height, hash) VALUES (?, ?)`,
			int64(bh.Height), bh.Hash[:]); err != nil {
			return fmt.Errorf("failed to write blockhash: %w", err)
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM blockhashes WHERE height < ?`, int64(cs.PruneBelow)); err != nil {
		return fmt.Errorf("failed to prune blockhashes: %w", err)
	}

	for _, sig := range sortedSignatures(cs.Statuses) {
		st := cs.Statuses[sig]
		if _, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO signatures (signature, slot, code, info) VALUES (?, ?, ?, ?)`,
			sig[:], int64(st.Slot), int64(st.Code), st.Info); err != nil {
			return fmt.Errorf("failed to write signature status: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Status(ctx context.Context, sig types.Signature) (types.SignatureStatus, bool, error) {
	var (
		st   types.SignatureStatus
		slot int64
		code int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT slot, code, info FROM signatures WHERE signature = ?`, sig[:]).
		Scan(&slot, &code, &st.Info)
	if errors.Is(err, sql.ErrNoRows) {
		return types.SignatureStatus{}, false, nil
	}
	if err != nil {
		return types.SignatureStatus{}, false, fmt.Errorf("failed to get signature status: %w", err)
	}
	st.Slot = uint64(slot)
	st.Code = uint32(code)
	return st, true, nil
}

func copyFixed(dst, src []byte, what string) error {
	if len(src) != len(dst) {
		return fmt.Errorf("corrupt %s: %d bytes, want %d", what, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}
