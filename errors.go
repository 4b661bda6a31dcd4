package progchain

import (
	"errors"
	"fmt"
)

// HaltError stops block production. The runtime returns it from
// Handshake or ExecuteBlock when its state cannot be trusted; the
// node must not call Commit afterwards and refuses further work.
type HaltError struct {
	Height uint64
	Reason string
	// Err is the underlying failure, if any. It does not cross the
	// gRPC boundary except as text in Detail.
	Err error
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("halted at height %d: %s", e.Height, e.Detail())
}

// Detail is the reason followed by the cause, when there is one.
func (e *HaltError) Detail() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *HaltError) Unwrap() error { return e.Err }

func NewHaltError(height uint64, reason string) *HaltError {
	return &HaltError{Height: height, Reason: reason}
}

// WrapHalt turns err into a halt at height.
func WrapHalt(height uint64, reason string, err error) *HaltError {
	return &HaltError{Height: height, Reason: reason, Err: err}
}

// IsHalt returns the first HaltError in err's chain.
func IsHalt(err error) (*HaltError, bool) {
	var h *HaltError
	if errors.As(err, &h) {
		return h, true
	}
	return nil, false
}
