package types

import (
	"errors"
	"time"
)

// Default consensus parameters.
const (
	DefaultMaxBlockBytes = 1 << 20
	DefaultBlockInterval = 400 * time.Millisecond
	DefaultMaxTxBytes    = 64 * 1024
)

// GenesisDoc describes a fresh chain. AppState is the runtime's JSON
// genesis state.
type GenesisDoc struct {
	ChainID         string          `cramberry:"1"`
	GenesisTime     Timestamp       `cramberry:"2"`
	InitialHeight   uint64          `cramberry:"3"`
	ConsensusParams ConsensusParams `cramberry:"4"`
	AppState        []byte          `cramberry:"5"`
}

// Validate checks the fields every participant relies on.
func (g GenesisDoc) Validate() error {
	if g.ChainID == "" {
		return errors.New("genesis: chain id is empty")
	}
	if g.InitialHeight == 0 {
		return errors.New("genesis: initial height must be at least 1")
	}
	return nil
}

// ParentHeight is the height considered committed before the first
// block, InitialHeight-1.
func (g GenesisDoc) ParentHeight() uint64 {
	if g.InitialHeight == 0 {
		return 0
	}
	return g.InitialHeight - 1
}

// ConsensusParams bound block production. A zero field means the
// node's own default.
type ConsensusParams struct {
	MaxBlockBytes uint64   `cramberry:"1"`
	BlockInterval Duration `cramberry:"2"`
	MaxTxBytes    uint64   `cramberry:"3"`
}

func DefaultConsensusParams() ConsensusParams {
	return ConsensusParams{
		MaxBlockBytes: DefaultMaxBlockBytes,
		BlockInterval: DurationFromGo(DefaultBlockInterval),
		MaxTxBytes:    DefaultMaxTxBytes,
	}
}

// Timestamp is a point in time as Unix seconds and nanoseconds, so the
// encoding does not depend on time.Time's internals.
type Timestamp struct {
	Seconds int64 `cramberry:"1"`
	Nanos   int32 `cramberry:"2"`
}

func TimeToTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// ToTime returns ts in UTC.
func (ts Timestamp) ToTime() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// Duration is a span in nanoseconds.
type Duration struct {
	Nanos int64 `cramberry:"1"`
}

func DurationFromGo(d time.Duration) Duration { return Duration{Nanos: d.Nanoseconds()} }

func (d Duration) ToGo() time.Duration { return time.Duration(d.Nanos) }
