// Package types defines the core data types shared by the
// progchain runtime, its engine and its clients.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. Transport concerns
// (gRPC codec registration, JSON-RPC) are handled in the
// transport packages.
package types

// Hash is a 32-byte cryptographic hash. Committed block hashes
// double as the "recent blockhash" a transaction must reference.
type Hash [32]byte

// AppHash is a deterministic fingerprint of the account state
// after execution.
type AppHash [32]byte

// Tx is an encoded transaction. The engine never inspects its
// contents; the runtime decodes it into a Transaction.
type Tx []byte

// QueryPath is a structured key for state queries
// (e.g., "/account", "/balance").
type QueryPath string

// BlockID uniquely identifies a point in the chain.
type BlockID struct {
	Height uint64 `cramberry:"1"`
	Hash   Hash   `cramberry:"2"`
}
