package types

import "fmt"

// ProposalContext is handed to BuildProposal when the node is about
// to produce the block at Height.
type ProposalContext struct {
	Height uint64    `cramberry:"1"`
	Time   Timestamp `cramberry:"2"`
	// MempoolTxs are in mempool priority order.
	MempoolTxs []Tx `cramberry:"3"`
	// MaxTxBytes bounds the summed size of the chosen transactions.
	// Zero means no bound.
	MaxTxBytes uint64 `cramberry:"4"`
}

// Fits reports whether a transaction of size bytes still fits after
// used bytes have been chosen.
func (p ProposalContext) Fits(used, size uint64) bool {
	return p.MaxTxBytes == 0 || used+size <= p.MaxTxBytes
}

type BuiltProposal struct {
	Txs []Tx `cramberry:"1"`
}

// ReceivedProposal is a block checked by VerifyProposal before it is
// executed.
type ReceivedProposal struct {
	Height uint64    `cramberry:"1"`
	Time   Timestamp `cramberry:"2"`
	Txs    []Tx      `cramberry:"3"`
}

type ProposalVerdict struct {
	Accept       bool   `cramberry:"1"`
	RejectReason string `cramberry:"2"`
}

func AcceptProposal() ProposalVerdict { return ProposalVerdict{Accept: true} }

func RejectProposal(format string, args ...any) ProposalVerdict {
	return ProposalVerdict{RejectReason: fmt.Sprintf(format, args...)}
}
