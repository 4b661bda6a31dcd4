package runtime

import "fmt"

// TxError is a transaction-level failure detected by the runtime
// before or around instruction execution. Its code is reported in
// TxOutcome.Code and GateVerdict.Code.
type TxError struct {
	Code uint32
	Msg  string
}

func (e *TxError) Error() string { return e.Msg }

// Is matches on code so wrapped sentinels compare equal.
func (e *TxError) Is(target error) bool {
	t, ok := target.(*TxError)
	return ok && t.Code == e.Code
}

func txError(code uint32, msg string) *TxError {
	return &TxError{Code: code, Msg: msg}
}

// Transaction errors. Codes below 100 belong to programs.
var (
	ErrSanitizeFailure          = txError(100, "transaction failed to sanitize")
	ErrSignatureFailure         = txError(101, "transaction did not pass signature verification")
	ErrBlockhashNotFound        = txError(102, "blockhash not found")
	ErrAlreadyProcessed         = txError(103, "this transaction has already been processed")
	ErrAccountNotFound          = txError(104, "attempt to debit an account but found no record of a prior credit")
	ErrInsufficientFundsForFee  = txError(105, "insufficient funds for fee")
	ErrInvalidAccountForFee     = txError(106, "this account may not be used to pay transaction fees")
	ErrInsufficientFundsForRent = txError(107, "transaction results in an account with insufficient funds for rent")
	ErrTooLarge                 = txError(108, "transaction too large")
)

// instructionError reports which instruction failed.
type instructionError struct {
	index int
	err   error
}

func (e *instructionError) Error() string {
	return fmt.Sprintf("error processing instruction %d: %v", e.index, e.err)
}

func (e *instructionError) Unwrap() error { return e.err }
