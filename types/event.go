package types

import "strconv"

// Event kinds.
const (
	// EventProgramLog carries one program log line under "message".
	EventProgramLog = "program_log"
	// EventFee records the fee charged to one transaction.
	EventFee = "fee"
	// EventBlockFees totals a block's fees.
	EventBlockFees = "block_fees"
)

// EventAttribute is one key/value tag. Indexed attributes may be
// used by clients to look transactions up.
type EventAttribute struct {
	Key   string `cramberry:"1"`
	Value string `cramberry:"2"`
	Index bool   `cramberry:"3"`
}

type Event struct {
	Kind       string           `cramberry:"1"`
	Attributes []EventAttribute `cramberry:"2"`
}

func NewEvent(kind string, attrs ...EventAttribute) Event {
	return Event{Kind: kind, Attributes: attrs}
}

func Attr(key, value string) EventAttribute {
	return EventAttribute{Key: key, Value: value}
}

func IndexedAttr(key, value string) EventAttribute {
	return EventAttribute{Key: key, Value: value, Index: true}
}

func UintAttr(key string, v uint64) EventAttribute {
	return Attr(key, strconv.FormatUint(v, 10))
}

// Get returns the first attribute named key.
func (e Event) Get(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}
