package progchaingrpc

import (
	"context"
	"errors"

	"github.com/blockberries/progchain/types"
)

// Request and response envelopes for calls whose Go signatures are
// not a single struct in and out.

type CheckTxRequest struct {
	Tx      types.Tx             `cramberry:"1"`
	Context types.MempoolContext `cramberry:"2"`
}

type CommitRequest struct{}

type AvailableSnapshotsRequest struct{}

type AvailableSnapshotsResponse struct {
	Snapshots []types.SnapshotDescriptor `cramberry:"1"`
}

type ExportSnapshotRequest struct {
	Height uint64 `cramberry:"1"`
	Format uint32 `cramberry:"2"`
}

type SimulateRequest struct {
	Tx types.Tx `cramberry:"1"`
}

// SnapshotMessage frames both snapshot streams. The first message of
// a stream carries Descriptor; every later one carries a Chunk.
type SnapshotMessage struct {
	Descriptor *types.SnapshotDescriptor `cramberry:"1"`
	Chunk      *types.SnapshotChunk      `cramberry:"2"`
}

var errNoDescriptor = errors.New("snapshot stream did not start with a descriptor")

type msgSender interface{ SendMsg(m any) error }

type msgReceiver interface{ RecvMsg(m any) error }

// sendSnapshot writes desc followed by every chunk.
func sendSnapshot(s msgSender, desc *types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) error {
	if err := s.SendMsg(&SnapshotMessage{Descriptor: desc}); err != nil {
		return err
	}
	for chunk := range chunks {
		if err := s.SendMsg(&SnapshotMessage{Chunk: &chunk}); err != nil {
			return err
		}
	}
	return nil
}

func recvDescriptor(r msgReceiver) (*types.SnapshotDescriptor, error) {
	first := new(SnapshotMessage)
	if err := r.RecvMsg(first); err != nil {
		return nil, err
	}
	if first.Descriptor == nil {
		return nil, errNoDescriptor
	}
	return first.Descriptor, nil
}

// recvChunks forwards chunks to out until the stream ends, which is
// reported as the returned error (io.EOF on a clean end), or until
// ctx is done. It closes out.
func recvChunks(ctx context.Context, r msgReceiver, out chan<- types.SnapshotChunk) error {
	defer close(out)
	for {
		msg := new(SnapshotMessage)
		if err := r.RecvMsg(msg); err != nil {
			return err
		}
		if msg.Chunk == nil {
			continue
		}
		select {
		case out <- *msg.Chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
