package counter

import (
	"encoding/binary"
	"fmt"

	"github.com/blockberries/progchain/program"
)

// LEN is the packed size of a Counter: one initialized flag byte
// followed by the little-endian count.
const LEN = 9

// Counter is the state stored in a counter account.
type Counter struct {
	IsInitialized bool
	Count         uint64
}

// Pack writes the counter into dst, which must be at least LEN bytes.
func (c Counter) Pack(dst []byte) error {
	if len(dst) < LEN {
		return fmt.Errorf("%w: have %d bytes, need %d", program.ErrAccountDataTooSmall, len(dst), LEN)
	}
	if c.IsInitialized {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	binary.LittleEndian.PutUint64(dst[1:LEN], c.Count)
	return nil
}

// Unpack reads a counter from account data.
func Unpack(data []byte) (Counter, error) {
	if len(data) < LEN {
		return Counter{}, fmt.Errorf("%w: have %d bytes, need %d", program.ErrAccountDataTooSmall, len(data), LEN)
	}
	var c Counter
	switch data[0] {
	case 0:
	case 1:
		c.IsInitialized = true
	default:
		return Counter{}, fmt.Errorf("%w: bad initialized flag %d", program.ErrInvalidAccountData, data[0])
	}
	c.Count = binary.LittleEndian.Uint64(data[1:LEN])
	return c, nil
}
