package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blockberries/progchain/types"
)

// Checkpoint records the last block the node committed.
type Checkpoint interface {
	// Load returns the last committed block, or nil before genesis.
	Load() (*types.BlockID, error)
	Save(block types.BlockID) error
}

// MemCheckpoint keeps the last block in memory.
type MemCheckpoint struct {
	mu   sync.Mutex
	last *types.BlockID
}

func (c *MemCheckpoint) Load() (*types.BlockID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil, nil
	}
	b := *c.last
	return &b, nil
}

func (c *MemCheckpoint) Save(block types.BlockID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = &block
	return nil
}

// FileCheckpoint stores the last block as JSON, replacing the file
// atomically on every save.
type FileCheckpoint struct {
	path string
}

// NewFileCheckpoint returns a checkpoint stored at path.
func NewFileCheckpoint(path string) *FileCheckpoint {
	return &FileCheckpoint{path: path}
}

type checkpointFile struct {
	Height uint64     `json:"height"`
	Hash   types.Hash `json:"hash"`
}

func (c *FileCheckpoint) Load() (*types.BlockID, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f checkpointFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.path, err)
	}
	return &types.BlockID{Height: f.Height, Hash: f.Hash}, nil
}

func (c *FileCheckpoint) Save(block types.BlockID) error {
	data, err := json.Marshal(checkpointFile{Height: block.Height, Hash: block.Hash})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
