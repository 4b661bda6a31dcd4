// Package local connects a node to a runtime in the same process.
// Calls go straight through a server.Server with no encoding step.
package local

import (
	"context"
	"io"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/server"
	"github.com/blockberries/progchain/types"
)

var _ progchain.Connection = (*Connection)(nil)

// Connection is a progchain.Connection to an in-process runtime.
type Connection struct {
	app progchain.Lifecycle
	srv *server.Server
}

func NewConnection(app progchain.Lifecycle, opts ...server.Option) *Connection {
	return &Connection{app: app, srv: server.New(app, opts...)}
}

func (c *Connection) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	return c.srv.Handshake(ctx, req)
}

func (c *Connection) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	return c.srv.CheckTx(ctx, tx, mctx)
}

func (c *Connection) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	return c.srv.ExecuteBlock(ctx, block)
}

func (c *Connection) Commit(ctx context.Context) (types.CommitResult, error) {
	return c.srv.Commit(ctx)
}

func (c *Connection) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	return c.srv.Query(ctx, req)
}

func (c *Connection) Capabilities() types.Capabilities {
	return c.srv.Capabilities()
}

func (c *Connection) AsProposalControl() progchain.ProposalControl {
	return c.srv.AsProposalControl()
}

func (c *Connection) AsStateSync() progchain.StateSync {
	return c.srv.AsStateSync()
}

func (c *Connection) AsSimulator() progchain.Simulator {
	return c.srv.AsSimulator()
}

// Close closes the runtime when it implements io.Closer.
func (c *Connection) Close() error {
	if cl, ok := c.app.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Server exposes the guard-enforcing wrapper, mainly for tests.
func (c *Connection) Server() *server.Server {
	return c.srv
}
