package progchaingrpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/progchain"
)

// haltHeightKey carries HaltError.Height in the response trailer.
const haltHeightKey = "progchain-halt-height"

// haltStatus converts a HaltError into an Aborted status, recording
// the height in the trailer. Other errors pass through.
func haltStatus(ctx context.Context, err error) error {
	h, ok := progchain.IsHalt(err)
	if !ok {
		return err
	}
	_ = grpc.SetTrailer(ctx, metadata.Pairs(haltHeightKey, strconv.FormatUint(h.Height, 10)))
	return status.Error(codes.Aborted, h.Detail())
}

// haltFromStatus reverses haltStatus on the client side.
func haltFromStatus(err error, trailer metadata.MD) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return err
	}
	vals := trailer.Get(haltHeightKey)
	if len(vals) == 0 {
		return err
	}
	height, perr := strconv.ParseUint(vals[0], 10, 64)
	if perr != nil {
		return err
	}
	return progchain.NewHaltError(height, st.Message())
}
