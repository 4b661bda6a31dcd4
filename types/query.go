package types

// Query paths served by the runtime.
const (
	QueryAccount   QueryPath = "/account"
	QueryBalance   QueryPath = "/balance"
	QueryBlockhash QueryPath = "/blockhash"
	QuerySignature QueryPath = "/signature"
	QueryRent      QueryPath = "/rent"
	QueryPrograms  QueryPath = "/programs"
)

// StateQuery is a request to read application state.
type StateQuery struct {
	Path QueryPath `cramberry:"1"`
	Data []byte    `cramberry:"2"`
	// Height to query at. Nil = latest committed state.
	// Only the latest committed state is retained.
	Height *uint64 `cramberry:"3"`
}

// StateQueryResult is the application's response to a state query.
type StateQueryResult struct {
	Code   uint32 `cramberry:"1"`
	Key    []byte `cramberry:"2"`
	Value  []byte `cramberry:"3"`
	Height uint64 `cramberry:"4"`
	Info   string `cramberry:"5"`
}

// Query result codes.
const (
	QueryOK          uint32 = 0
	QueryNotFound    uint32 = 1
	QueryBadRequest  uint32 = 2
	QueryUnsupported uint32 = 3
)

// OK returns true if the query succeeded.
func (r StateQueryResult) OK() bool { return r.Code == QueryOK }
