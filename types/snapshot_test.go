package types_test

import (
	"bytes"
	"testing"

	"github.com/blockberries/progchain/types"
)

func TestDescribeSnapshot_Chunks(t *testing.T) {
	body := bytes.Repeat([]byte{0x5A}, 2*types.SnapshotChunkSize+10)
	desc := types.DescribeSnapshot(9, types.SnapshotFormatJSON, body)
	if desc.Chunks != 3 {
		t.Fatalf("expected 3 chunks, got %d", desc.Chunks)
	}

	var joined []byte
	for i := uint32(0); i < desc.Chunks; i++ {
		c := desc.Chunk(body, i)
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		joined = append(joined, c.Data...)
	}
	if !bytes.Equal(joined, body) {
		t.Fatal("chunks do not reassemble the body")
	}
	if got := len(desc.Chunk(body, 2).Data); got != 10 {
		t.Fatalf("expected a 10-byte tail chunk, got %d", got)
	}

	if empty := types.DescribeSnapshot(1, types.SnapshotFormatJSON, nil); empty.Chunks != 0 {
		t.Fatalf("empty body should have no chunks, got %d", empty.Chunks)
	}
}

func TestImportResult_Constructors(t *testing.T) {
	ok := types.ImportAccepted(types.AppHash{0x01})
	if ok.Status != types.ImportOK || ok.AppHash == nil || ok.AppHash[0] != 0x01 {
		t.Fatalf("unexpected accepted result: %+v", ok)
	}
	rej := types.ImportRejected("unsupported format %d", 7)
	if rej.Status != types.ImportReject || rej.Reason != "unsupported format 7" {
		t.Fatalf("unexpected rejected result: %+v", rej)
	}
	retry := types.ImportRetry([]uint32{2, 4})
	if retry.Status.String() != "retry-chunks" || len(retry.RetryIndices) != 2 {
		t.Fatalf("unexpected retry result: %+v", retry)
	}
}

func TestGenesisDoc_Validate(t *testing.T) {
	doc := types.GenesisDoc{ChainID: "c", InitialHeight: 5}
	if err := doc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if doc.ParentHeight() != 4 {
		t.Fatalf("expected parent height 4, got %d", doc.ParentHeight())
	}
	if err := (types.GenesisDoc{ChainID: "c"}).Validate(); err == nil {
		t.Fatal("expected an error for initial height 0")
	}
	if err := (types.GenesisDoc{InitialHeight: 1}).Validate(); err == nil {
		t.Fatal("expected an error for an empty chain id")
	}
}
