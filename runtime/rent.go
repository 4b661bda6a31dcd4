package runtime

import "github.com/blockberries/progchain/types"

// AccountStorageOverhead is the per-account byte overhead charged on
// top of the account's data.
const AccountStorageOverhead = 128

// Default rent parameters.
const (
	DefaultLamportsPerByteYear uint64 = 3480
	DefaultExemptionYears      uint64 = 2
)

// Rent holds the rent-exemption parameters.
type Rent struct {
	LamportsPerByteYear uint64 `json:"lamports_per_byte_year"`
	ExemptionYears      uint64 `json:"exemption_years"`
}

// DefaultRent returns the default rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionYears:      DefaultExemptionYears,
	}
}

// MinimumBalance returns the lamports an account with dataLen bytes
// of data must hold to be rent-exempt.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	return (AccountStorageOverhead + dataLen) * r.LamportsPerByteYear * r.ExemptionYears
}

// IsExempt reports whether acct may exist. Empty accounts are
// removed rather than charged.
func (r Rent) IsExempt(acct types.Account) bool {
	if acct.IsEmpty() || acct.Executable {
		return true
	}
	return acct.Lamports >= r.MinimumBalance(uint64(len(acct.Data)))
}
