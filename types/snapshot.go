package types

import (
	"crypto/sha256"
	"fmt"
)

// Snapshot formats.
const (
	// SnapshotFormatJSON is the runtime's committed state as one JSON
	// document, split into SnapshotChunkSize pieces.
	SnapshotFormatJSON uint32 = 1
)

// SnapshotChunkSize is the size of every chunk but the last.
const SnapshotChunkSize = 64 * 1024

// SnapshotDescriptor identifies the state at Height in some Format.
type SnapshotDescriptor struct {
	Height uint64 `cramberry:"1"`
	Format uint32 `cramberry:"2"`
	Chunks uint32 `cramberry:"3"`
	// Hash is the SHA-256 of the concatenated chunks.
	Hash     Hash   `cramberry:"4"`
	Metadata []byte `cramberry:"5"`
}

// DescribeSnapshot builds the descriptor of body split into
// SnapshotChunkSize chunks.
func DescribeSnapshot(height uint64, format uint32, body []byte) SnapshotDescriptor {
	return SnapshotDescriptor{
		Height: height,
		Format: format,
		Chunks: uint32((len(body) + SnapshotChunkSize - 1) / SnapshotChunkSize),
		Hash:   Hash(sha256.Sum256(body)),
	}
}

// Chunk returns chunk i of body.
func (d SnapshotDescriptor) Chunk(body []byte, i uint32) SnapshotChunk {
	start := int(i) * SnapshotChunkSize
	end := min(start+SnapshotChunkSize, len(body))
	return SnapshotChunk{Index: i, Data: body[start:end]}
}

type SnapshotChunk struct {
	Index uint32 `cramberry:"1"`
	Data  []byte `cramberry:"2"`
}

// ImportStatus is the outcome of ImportSnapshot.
type ImportStatus uint8

const (
	ImportOK          ImportStatus = 1
	ImportReject      ImportStatus = 2
	ImportRetryChunks ImportStatus = 3
)

func (s ImportStatus) String() string {
	switch s {
	case ImportOK:
		return "ok"
	case ImportReject:
		return "reject"
	case ImportRetryChunks:
		return "retry-chunks"
	default:
		return fmt.Sprintf("ImportStatus(%d)", uint8(s))
	}
}

// ImportResult carries AppHash on ImportOK, Reason on ImportReject
// and RetryIndices on ImportRetryChunks.
type ImportResult struct {
	Status       ImportStatus `cramberry:"1"`
	AppHash      *AppHash     `cramberry:"2"`
	Reason       string       `cramberry:"3"`
	RetryIndices []uint32     `cramberry:"4"`
}

func ImportAccepted(appHash AppHash) ImportResult {
	return ImportResult{Status: ImportOK, AppHash: &appHash}
}

func ImportRejected(format string, args ...any) ImportResult {
	return ImportResult{Status: ImportReject, Reason: fmt.Sprintf(format, args...)}
}

func ImportRetry(indices []uint32) ImportResult {
	return ImportResult{Status: ImportRetryChunks, RetryIndices: indices}
}
