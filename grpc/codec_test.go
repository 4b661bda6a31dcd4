package progchaingrpc_test

import (
	"testing"

	"google.golang.org/grpc/encoding"

	progchaingrpc "github.com/blockberries/progchain/grpc"
	"github.com/blockberries/progchain/types"
)

func TestCodec_Registered(t *testing.T) {
	c := encoding.GetCodec(progchaingrpc.CodecName)
	if c == nil {
		t.Fatal("codec not registered")
	}

	in := types.GateVerdict{Code: 0, Priority: 5000, FeePayer: types.Pubkey{7}, Fee: 5000}
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out types.GateVerdict
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}

	if _, err := c.Marshal(nil); err == nil {
		t.Fatal("expected an error marshalling nil")
	}
}
