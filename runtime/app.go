// Package runtime is the program runtime: it owns the account state,
// verifies and executes transactions by dispatching their instructions
// to native programs, and exposes the result to the engine through the
// progchain application interfaces.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/program"
	"github.com/blockberries/progchain/store"
	"github.com/blockberries/progchain/types"
)

// MaxTxBytes bounds the size of an encoded transaction.
const MaxTxBytes = 1232

// Compile-time interface checks.
var (
	_ progchain.Lifecycle       = (*App)(nil)
	_ progchain.ProposalControl = (*App)(nil)
	_ progchain.StateSync       = (*App)(nil)
	_ progchain.Simulator       = (*App)(nil)
)

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithStore sets the persistence layer. Defaults to a MemStore.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithCatalog replaces the built-in program catalog.
func WithCatalog(c Catalog) Option {
	return func(a *App) { a.catalog = c }
}

// stagedBlock holds the results of ExecuteBlock until Commit.
type stagedBlock struct {
	height    uint64
	appHash   types.AppHash
	blockhash types.Hash
	changes   map[types.Pubkey]types.Account
	accounts  map[types.Pubkey]types.Account
	statuses  map[types.Signature]types.SignatureStatus
}

// App is the program runtime.
type App struct {
	logger  *slog.Logger
	store   store.Store
	catalog Catalog

	mu       sync.RWMutex
	ready    bool
	cfg      AppState
	chainID  string
	appState []byte
	registry *program.Registry
	programs []ProgramInfo
	height   uint64
	appHash  types.AppHash
	accounts map[types.Pubkey]types.Account
	hashes   *blockhashQueue
	statuses *statusCache

	// Genesis accounts and seed blockhash, written by the first Commit.
	genesis *store.Changeset

	// Staging area (between ExecuteBlock and Commit).
	staged *stagedBlock
}

// New creates a runtime. State is established by Handshake.
func New(opts ...Option) *App {
	a := &App{
		logger:  slog.Default(),
		catalog: DefaultCatalog(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.store == nil {
		a.store = store.NewMemStore()
	}
	return a
}

const capabilities = types.CapProposalControl | types.CapStateSync | types.CapSimulation

func (a *App) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if req.IsGenesis() {
		if err := a.initGenesis(ctx, req.Genesis); err != nil {
			return types.HandshakeResponse{}, err
		}
		h := a.appHash
		return types.HandshakeResponse{
			AppHash:      &h,
			Capabilities: capabilities,
			ChainID:      a.chainID,
		}, nil
	}

	if err := a.restore(ctx, *req.LastCommitted); err != nil {
		return types.HandshakeResponse{}, err
	}
	h := a.appHash
	return types.HandshakeResponse{
		LastBlock: &types.BlockID{
			Height: a.height,
			Hash:   a.hashes.last().Hash,
		},
		AppHash:      &h,
		Capabilities: capabilities,
		ChainID:      a.chainID,
	}, nil
}

func (a *App) initGenesis(ctx context.Context, doc *types.GenesisDoc) error {
	if doc == nil {
		return errors.New("genesis handshake without a genesis document")
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	if st, err := a.store.Load(ctx); err == nil {
		return progchain.NewHaltError(st.Height,
			fmt.Sprintf("store holds state at height %d but the engine is starting from genesis", st.Height))
	} else if !errors.Is(err, store.ErrNoState) {
		return fmt.Errorf("load state: %w", err)
	}

	cfg, err := ParseAppState(doc.AppState)
	if err != nil {
		return err
	}
	if err := a.loadPrograms(cfg); err != nil {
		return err
	}
	accounts, err := cfg.genesisAccounts(a.programs)
	if err != nil {
		return err
	}

	height := doc.ParentHeight()
	seed := store.Blockhash{Height: height, Hash: genesisBlockhash(doc)}

	a.cfg = cfg
	a.chainID = doc.ChainID
	a.appState = append([]byte(nil), doc.AppState...)
	a.height = height
	a.accounts = accounts
	a.hashes = newBlockhashQueue([]store.Blockhash{seed})
	a.statuses = newStatusCache(nil)
	a.appHash = computeAppHash(accounts, seed.Hash)
	a.genesis = &store.Changeset{Accounts: accounts, Blockhashes: []store.Blockhash{seed}}
	a.ready = true

	a.logger.Info("runtime initialized from genesis",
		"chain_id", a.chainID,
		"height", a.height,
		"accounts", len(accounts),
		"programs", len(a.programs),
		"app_hash", types.Hash(a.appHash).String())
	return nil
}

func (a *App) restore(ctx context.Context, last types.BlockID) error {
	st, err := a.store.Load(ctx)
	if errors.Is(err, store.ErrNoState) {
		return progchain.NewHaltError(last.Height,
			fmt.Sprintf("engine is at height %d but the runtime has no committed state", last.Height))
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st.Height != last.Height {
		return progchain.NewHaltError(last.Height,
			fmt.Sprintf("runtime committed height %d, engine committed %d", st.Height, last.Height))
	}

	cfg, err := ParseAppState(st.AppState)
	if err != nil {
		return progchain.WrapHalt(last.Height, "stored app state is unreadable", err)
	}
	if err := a.loadPrograms(cfg); err != nil {
		return progchain.WrapHalt(last.Height, "stored app state names unavailable programs", err)
	}

	hashes := newBlockhashQueue(st.Blockhashes)
	if last.Hash != (types.Hash{}) && hashes.last().Hash != last.Hash {
		return progchain.NewHaltError(last.Height,
			fmt.Sprintf("blockhash mismatch: runtime %s, engine %s", hashes.last().Hash, last.Hash))
	}
	if prev, ok := hashes.at(st.Height - 1); ok {
		if got := computeAppHash(st.Accounts, prev); got != st.AppHash {
			return progchain.NewHaltError(last.Height, "stored accounts do not match the stored app hash")
		}
	}

	a.cfg = cfg
	a.chainID = st.ChainID
	a.appState = st.AppState
	a.height = st.Height
	a.appHash = st.AppHash
	a.accounts = st.Accounts
	a.hashes = hashes
	a.statuses = newStatusCache(st.Statuses)
	a.ready = true

	a.logger.Info("runtime restored",
		"chain_id", a.chainID,
		"height", a.height,
		"accounts", len(a.accounts),
		"app_hash", types.Hash(a.appHash).String())
	return nil
}

func (a *App) loadPrograms(cfg AppState) error {
	reg, err := a.catalog.buildRegistry(cfg.Programs)
	if err != nil {
		return err
	}
	a.registry = reg
	a.programs = a.programs[:0]
	for _, p := range reg.Programs() {
		a.programs = append(a.programs, ProgramInfo{Name: p.Name(), ID: p.ID()})
	}
	return nil
}

func (a *App) CheckTx(_ context.Context, tx types.Tx, _ types.MempoolContext) (types.GateVerdict, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.ready {
		return types.GateVerdict{}, errors.New("runtime not initialized")
	}

	ptx, err := a.sanitize(tx)
	if err == nil {
		err = a.checkAge(ptx, nil)
	}
	var fee uint64
	if err == nil {
		fee, err = a.chargeFee(newAccountSet(a.accounts), ptx)
	}
	if err != nil {
		code, info := outcomeCode(err)
		return types.GateVerdict{Code: code, Info: info}, nil
	}
	return types.GateVerdict{
		Code:     0,
		Priority: int64(fee),
		FeePayer: ptx.Message.FeePayer,
		Fee:      fee,
	}, nil
}

func (a *App) ExecuteBlock(_ context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	a.mu.RLock()
	outcome, staged, err := a.executeBlock(block)
	a.mu.RUnlock()
	if err != nil {
		return types.BlockOutcome{}, err
	}
	a.mu.Lock()
	a.staged = staged
	a.mu.Unlock()
	return outcome, nil
}

func (a *App) executeBlock(block types.FinalizedBlock) (types.BlockOutcome, *stagedBlock, error) {
	if !a.ready {
		return types.BlockOutcome{}, nil, errors.New("runtime not initialized")
	}
	if block.Height != a.height+1 {
		return types.BlockOutcome{}, nil, progchain.NewHaltError(block.Height,
			fmt.Sprintf("block does not follow committed height %d", a.height))
	}
	last := a.hashes.last()
	if block.LastBlockHash != (types.Hash{}) && block.LastBlockHash != last.Hash {
		return types.BlockOutcome{}, nil, progchain.NewHaltError(block.Height,
			fmt.Sprintf("engine last blockhash %s does not match runtime %s", block.LastBlockHash, last.Hash))
	}

	ec := &execContext{
		slot:     block.Height,
		accounts: newAccountSet(a.accounts),
		statuses: make(map[types.Signature]types.SignatureStatus),
	}
	outcomes := make([]types.TxOutcome, len(block.Txs))
	var fees uint64
	var failed int
	for i, tx := range block.Txs {
		outcomes[i] = a.executeTx(ec, uint32(i), tx)
		fees += outcomes[i].Fee
		if !outcomes[i].OK() {
			failed++
		}
	}

	accounts := ec.accounts.snapshot()
	appHash := computeAppHash(accounts, last.Hash)
	blockhash := nextBlockhash(last.Hash, block.Height, appHash)

	a.logger.Debug("executed block",
		"height", block.Height,
		"txs", len(block.Txs),
		"failed", failed,
		"fees", fees)

	return types.BlockOutcome{
			TxOutcomes: outcomes,
			BlockEvents: []types.Event{types.NewEvent(types.EventBlockFees,
				types.UintAttr("collected", fees),
				types.Attr("disposition", "burned"),
			)},
			AppHash:   appHash,
			Blockhash: blockhash,
		}, &stagedBlock{
			height:    block.Height,
			appHash:   appHash,
			blockhash: blockhash,
			changes:   ec.accounts.changes,
			accounts:  accounts,
			statuses:  ec.statuses,
		}, nil
}

func (a *App) Commit(ctx context.Context) (types.CommitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.staged
	if s == nil {
		return types.CommitResult{}, errors.New("commit without an executed block")
	}

	hashes := a.hashes.clone()
	hashes.push(store.Blockhash{Height: s.height, Hash: s.blockhash})

	cs := &store.Changeset{
		ChainID:     a.chainID,
		AppState:    a.appState,
		Height:      s.height,
		AppHash:     s.appHash,
		Accounts:    make(map[types.Pubkey]types.Account, len(s.changes)),
		Blockhashes: []store.Blockhash{{Height: s.height, Hash: s.blockhash}},
		PruneBelow:  hashes.oldest(),
		Statuses:    s.statuses,
	}
	if a.genesis != nil {
		for k, acct := range a.genesis.Accounts {
			cs.Accounts[k] = acct
		}
		cs.Blockhashes = append(a.genesis.Blockhashes, cs.Blockhashes...)
	}
	for k, acct := range s.changes {
		cs.Accounts[k] = acct
	}

	if err := a.store.Commit(ctx, cs); err != nil {
		return types.CommitResult{}, fmt.Errorf("persist height %d: %w", s.height, err)
	}

	a.height = s.height
	a.appHash = s.appHash
	a.accounts = s.accounts
	a.hashes = hashes
	a.statuses.add(s.statuses)
	a.statuses.prune(hashes.oldest())
	a.genesis = nil
	a.staged = nil

	return types.CommitResult{RetainHeight: 0}, nil
}

// Close releases the store. The runtime must not be used afterwards.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ready = false
	return a.store.Close()
}

// Height returns the last committed height.
func (a *App) Height() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.height
}

// Account returns the committed account at key.
func (a *App) Account(key types.Pubkey) (types.Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acct, ok := a.accounts[key]
	return acct.Clone(), ok
}

// Programs lists the loaded programs.
func (a *App) Programs() []ProgramInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]ProgramInfo(nil), a.programs...)
}
