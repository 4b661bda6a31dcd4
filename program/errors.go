package program

import (
	"errors"
	"fmt"
)

// CustomErrorBase is added to a program's custom error code to form
// the outcome code reported for a failed transaction.
const CustomErrorBase uint32 = 1000

// Error is a program failure. Built-in errors are shared by every
// program; custom errors are defined per program.
type Error struct {
	Code   uint32
	Custom bool
	Msg    string
}

func (e *Error) Error() string {
	if e.Custom {
		return fmt.Sprintf("custom program error: 0x%x (%s)", e.Code, e.Msg)
	}
	return e.Msg
}

// Is matches errors with the same code and kind, so freshly built
// custom errors compare equal to their sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Custom == e.Custom
}

// OutcomeCode returns the transaction outcome code for this error.
func (e *Error) OutcomeCode() uint32 {
	if e.Custom {
		return CustomErrorBase + e.Code
	}
	return e.Code
}

// Custom creates a program-defined error.
func Custom(code uint32, msg string) *Error {
	return &Error{Code: code, Custom: true, Msg: msg}
}

func builtin(code uint32, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Built-in program errors.
var (
	ErrProgramFailed               = builtin(1, "program failed")
	ErrInvalidArgument             = builtin(2, "invalid program argument")
	ErrInvalidInstructionData      = builtin(3, "invalid instruction data")
	ErrInvalidAccountData          = builtin(4, "invalid account data for instruction")
	ErrAccountDataTooSmall         = builtin(5, "account data too small for instruction")
	ErrInsufficientFunds           = builtin(6, "insufficient funds for instruction")
	ErrIncorrectProgramID          = builtin(7, "incorrect program id for instruction")
	ErrMissingRequiredSignature    = builtin(8, "missing required signature for instruction")
	ErrAccountAlreadyInitialized   = builtin(9, "instruction requires an uninitialized account")
	ErrUninitializedAccount        = builtin(10, "instruction requires an initialized account")
	ErrNotEnoughAccountKeys        = builtin(11, "insufficient account keys for instruction")
	ErrAccountNotWritable          = builtin(12, "instruction modified a read-only account")
	ErrExternalAccountDataModified = builtin(13, "instruction modified data of an account it does not own")
	ErrExternalAccountLamportSpend = builtin(14, "instruction spent from the balance of an account it does not own")
	ErrModifiedProgramID           = builtin(15, "instruction illegally modified the program id of an account")
	ErrExecutableModified          = builtin(16, "instruction changed executable account")
	ErrUnbalancedInstruction       = builtin(17, "sum of account balances before and after instruction do not match")
	ErrProgramNotFound             = builtin(18, "program not found")
	ErrArithmeticOverflow          = builtin(19, "program arithmetic overflowed")
	ErrAccountNotRentExempt        = builtin(20, "account does not have enough lamports to be rent-exempt")
)

// AsError converts any error returned by a program into a program
// Error. Untyped errors become ErrProgramFailed carrying the message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Code: ErrProgramFailed.Code, Msg: err.Error()}
}
