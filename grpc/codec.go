// Package progchaingrpc carries the runtime lifecycle over gRPC so a
// node can drive a runtime in another process. Messages are the wire
// structs of the types package encoded with cramberry; there is no
// protobuf schema.
package progchaingrpc

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype both sides negotiate.
const CodecName = "cramberry"

// Codec encodes gRPC messages with cramberry.
type Codec struct{}

var _ encoding.Codec = Codec{}

func (Codec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%s: cannot marshal nil message", CodecName)
	}
	data, err := cramberry.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal %T: %w", CodecName, v, err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := cramberry.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: unmarshal %T: %w", CodecName, v, err)
	}
	return nil
}

func (Codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}
