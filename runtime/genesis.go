package runtime

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blockberries/progchain/program/system"
	"github.com/blockberries/progchain/types"
)

// DefaultFeePerSignature is the fee charged per transaction signature.
const DefaultFeePerSignature uint64 = 5000

// AppState is the runtime's section of the genesis document.
type AppState struct {
	Faucet          types.Pubkey     `json:"faucet"`
	FaucetLamports  uint64           `json:"faucet_lamports"`
	Accounts        []GenesisAccount `json:"accounts,omitempty"`
	FeePerSignature uint64           `json:"fee_per_signature"`
	Rent            Rent             `json:"rent"`
	Programs        []GenesisProgram `json:"programs"`
}

// GenesisAccount is a pre-funded account.
type GenesisAccount struct {
	Pubkey   types.Pubkey `json:"pubkey"`
	Lamports uint64       `json:"lamports"`
	Owner    types.Pubkey `json:"owner"`
	Data     []byte       `json:"data,omitempty"`
}

// GenesisProgram deploys a catalog program. ID defaults to the
// program's well-known address.
type GenesisProgram struct {
	Name string        `json:"name"`
	ID   *types.Pubkey `json:"id,omitempty"`
}

// DefaultAppState returns a genesis app state funding faucet and
// deploying every catalog program at its default address.
func DefaultAppState(faucet types.Pubkey, lamports uint64) AppState {
	st := AppState{
		Faucet:          faucet,
		FaucetLamports:  lamports,
		FeePerSignature: DefaultFeePerSignature,
		Rent:            DefaultRent(),
	}
	for _, name := range DefaultCatalog().Names() {
		st.Programs = append(st.Programs, GenesisProgram{Name: name})
	}
	return st
}

// Marshal encodes the app state for GenesisDoc.AppState.
func (s AppState) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ParseAppState decodes and validates a genesis app state. Zero fee
// and rent fields take their defaults; an empty document deploys the
// catalog and funds nothing.
func ParseAppState(data []byte) (AppState, error) {
	if len(data) == 0 {
		return DefaultAppState(types.Pubkey{}, 0), nil
	}
	var s AppState
	if err := json.Unmarshal(data, &s); err != nil {
		return AppState{}, fmt.Errorf("failed to parse genesis app state: %w", err)
	}
	if s.FeePerSignature == 0 {
		s.FeePerSignature = DefaultFeePerSignature
	}
	if s.Rent.LamportsPerByteYear == 0 {
		s.Rent.LamportsPerByteYear = DefaultLamportsPerByteYear
	}
	if s.Rent.ExemptionYears == 0 {
		s.Rent.ExemptionYears = DefaultExemptionYears
	}
	if s.FaucetLamports > 0 && s.Faucet.IsZero() {
		return AppState{}, errors.New("genesis faucet lamports set without a faucet pubkey")
	}
	return s, nil
}

// genesisAccounts builds the initial account set.
func (s AppState) genesisAccounts(programs []ProgramInfo) (map[types.Pubkey]types.Account, error) {
	accounts := make(map[types.Pubkey]types.Account)
	put := func(key types.Pubkey, acct types.Account) error {
		if _, dup := accounts[key]; dup {
			return fmt.Errorf("duplicate genesis account %s", key)
		}
		accounts[key] = acct
		return nil
	}

	if s.FaucetLamports > 0 {
		if err := put(s.Faucet, types.Account{Lamports: s.FaucetLamports, Owner: system.ID}); err != nil {
			return nil, err
		}
	}
	for _, ga := range s.Accounts {
		acct := types.Account{Lamports: ga.Lamports, Owner: ga.Owner, Data: ga.Data}
		if !s.Rent.IsExempt(acct) {
			return nil, fmt.Errorf("genesis account %s is not rent-exempt", ga.Pubkey)
		}
		if err := put(ga.Pubkey, acct); err != nil {
			return nil, err
		}
	}
	for _, p := range programs {
		acct := types.Account{
			Lamports:   1,
			Owner:      NativeLoaderID,
			Data:       []byte(p.Name),
			Executable: true,
		}
		if err := put(p.ID, acct); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

// genesisBlockhash seeds the blockhash chain.
func genesisBlockhash(doc *types.GenesisDoc) types.Hash {
	h := sha256.New()
	h.Write([]byte("progchain/genesis"))
	h.Write([]byte(doc.ChainID))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(doc.GenesisTime.Seconds))
	h.Write(buf[:])
	h.Write(doc.AppState)
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}
