package types

// TxOutcome is the result of executing a single transaction.
type TxOutcome struct {
	// Position of this tx in the block (0-indexed).
	Index uint32 `cramberry:"1"`
	// Program error code. 0 = success.
	Code uint32 `cramberry:"2"`
	// Human-readable result info (non-deterministic, for debugging).
	Info string `cramberry:"3"`
	// Data returned from execution (deterministic).
	Data []byte `cramberry:"4"`
	// Events emitted by this transaction, including program logs.
	Events []Event `cramberry:"5"`
	// Fee charged to the fee payer, in lamports.
	Fee uint64 `cramberry:"6"`
}

// OK returns true if the transaction executed successfully.
func (t TxOutcome) OK() bool { return t.Code == 0 }

// Logs returns the program log lines carried in the outcome events.
func (t TxOutcome) Logs() []string {
	var logs []string
	for _, e := range t.Events {
		if e.Kind != EventProgramLog {
			continue
		}
		if msg, ok := e.Get("message"); ok {
			logs = append(logs, msg)
		}
	}
	return logs
}

// BlockOutcome is the comprehensive output of executing a finalized block.
// All execution side-effects live here.
type BlockOutcome struct {
	// Per-transaction results, in block order.
	TxOutcomes []TxOutcome `cramberry:"1"`
	// Block-level events (fees collected, blockhash rotation).
	BlockEvents []Event `cramberry:"2"`
	// New app state root after this block.
	AppHash AppHash `cramberry:"3"`
	// Changes to consensus params. Nil = no change.
	ParamsUpdate *ConsensusParams `cramberry:"4"`
	// Blockhash assigned to this block once committed.
	Blockhash Hash `cramberry:"5"`
}

// FinalizedBlock is a decided block delivered to the application
// for execution.
type FinalizedBlock struct {
	Height        uint64    `cramberry:"1"`
	Time          Timestamp `cramberry:"2"`
	Txs           []Tx      `cramberry:"3"`
	LastBlockHash Hash      `cramberry:"4"`
}

// CommitResult is returned after the application persists
// state to disk.
type CommitResult struct {
	// Minimum height the app still needs for queries / proofs.
	// The engine may prune blocks below this. 0 = no pruning preference.
	RetainHeight uint64 `cramberry:"1"`
}
