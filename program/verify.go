package program

import (
	"bytes"

	"github.com/blockberries/progchain/types"
)

// VerifyChange checks that the program that processed an instruction
// was allowed to turn pre into post.
//
// Only the owner may change data or debit lamports. Ownership moves
// only by the current owner and only while the account data is all
// zero. Read-only accounts may not change at all, and executable
// accounts are immutable.
func VerifyChange(programID types.Pubkey, pre types.Account, post *AccountInfo) error {
	dataChanged := !bytes.Equal(pre.Data, post.Data)
	lamportsChanged := pre.Lamports != post.Lamports
	ownerChanged := pre.Owner != post.Owner

	if pre.Executable {
		if dataChanged || lamportsChanged || ownerChanged || !post.Executable {
			return ErrExecutableModified
		}
		return nil
	}
	if post.Executable {
		return ErrExecutableModified
	}
	if !post.IsWritable && (dataChanged || lamportsChanged || ownerChanged) {
		return ErrAccountNotWritable
	}
	if ownerChanged && (pre.Owner != programID || !zeroed(post.Data)) {
		return ErrModifiedProgramID
	}
	if pre.Owner != programID {
		if dataChanged {
			return ErrExternalAccountDataModified
		}
		if post.Lamports < pre.Lamports {
			return ErrExternalAccountLamportSpend
		}
	}
	return nil
}

func zeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
