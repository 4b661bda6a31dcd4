package counter

import (
	"math"

	"github.com/blockberries/progchain/program"
)

func processInstruction(ictx *program.InvokeContext, accounts []*program.AccountInfo, data []byte) error {
	ix, err := UnpackInstruction(data)
	if err != nil {
		return err
	}
	if err := program.CheckAccounts(accounts, 1); err != nil {
		return err
	}
	acct := accounts[0]
	if acct.Owner != ictx.ProgramID {
		return program.ErrIncorrectProgramID
	}
	if !acct.IsWritable {
		return program.ErrAccountNotWritable
	}

	ictx.Logf("Instruction: %s", ix)

	state, err := Unpack(acct.Data)
	if err != nil {
		return err
	}

	switch ix {
	case Initialize:
		if state.IsInitialized {
			return program.ErrAccountAlreadyInitialized
		}
		state = Counter{IsInitialized: true, Count: 0}
	case Increment:
		if !state.IsInitialized {
			return program.ErrUninitializedAccount
		}
		if state.Count == math.MaxUint64 {
			return ErrOverflow
		}
		state.Count++
	case Decrement:
		if !state.IsInitialized {
			return program.ErrUninitializedAccount
		}
		if state.Count == 0 {
			return ErrUnderflow
		}
		state.Count--
	}

	if err := state.Pack(acct.Data); err != nil {
		return err
	}
	ictx.Logf("count: %d", state.Count)
	return nil
}
