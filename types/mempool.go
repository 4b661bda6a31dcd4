package types

// MempoolContext says why CheckTx is being called.
type MempoolContext uint8

const (
	// MempoolFirstSeen is admission of a newly submitted transaction.
	MempoolFirstSeen MempoolContext = 1
	// MempoolRevalidation re-checks a pending transaction after a
	// block changed the accounts it reads.
	MempoolRevalidation MempoolContext = 2
)

func (c MempoolContext) String() string {
	switch c {
	case MempoolFirstSeen:
		return "first-seen"
	case MempoolRevalidation:
		return "revalidation"
	default:
		return "unknown"
	}
}

// GateVerdict is the runtime's admission decision for a transaction.
// Code uses the same numbering as TxOutcome.Code.
type GateVerdict struct {
	Code uint32 `cramberry:"1"`
	// Info is a human-readable rejection reason.
	Info string `cramberry:"2"`
	// Priority orders the mempool, highest first.
	Priority int64 `cramberry:"3"`
	// FeePayer and Fee are set on acceptance.
	FeePayer Pubkey `cramberry:"4"`
	Fee      uint64 `cramberry:"5"`
}

// Accepted reports whether the transaction may enter the mempool.
func (v GateVerdict) Accepted() bool { return v.Code == 0 }
