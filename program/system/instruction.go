package system

import (
	"github.com/blockberries/progchain/types"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

func encode(ix Instruction) []byte {
	data, err := cramberry.Marshal(ix)
	if err != nil {
		// Instruction holds only fixed-size fields.
		panic(err)
	}
	return data
}

// CreateAccount builds an instruction that funds a new account with
// lamports, allocates space bytes of zeroed data and assigns it to
// owner. Both from and newAccount must sign.
func CreateAccount(from, newAccount types.Pubkey, lamports, space uint64, owner types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: ID,
		Accounts: []types.AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: newAccount, IsSigner: true, IsWritable: true},
		},
		Data: encode(Instruction{Kind: KindCreateAccount, Lamports: lamports, Space: space, Owner: owner}),
	}
}

// Assign builds an instruction that hands account to owner.
func Assign(account, owner types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: ID,
		Accounts: []types.AccountMeta{
			{Pubkey: account, IsSigner: true, IsWritable: true},
		},
		Data: encode(Instruction{Kind: KindAssign, Owner: owner}),
	}
}

// Transfer builds an instruction that moves lamports from a
// system-owned account to any account.
func Transfer(from, to types.Pubkey, lamports uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ID,
		Accounts: []types.AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsSigner: false, IsWritable: true},
		},
		Data: encode(Instruction{Kind: KindTransfer, Lamports: lamports}),
	}
}
