package counter

import "github.com/blockberries/progchain/program"

// Custom counter errors.
var (
	ErrOverflow  = program.Custom(0, "counter overflow")
	ErrUnderflow = program.Custom(1, "counter underflow")
)
