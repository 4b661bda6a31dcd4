package runtime

import (
	"context"

	"github.com/blockberries/progchain/types"
)

// BuildProposal fills the block from the mempool in the order given,
// dropping transactions that fail to decode or verify, repeated
// signatures and anything that would overflow the byte budget.
func (a *App) BuildProposal(_ context.Context, pctx types.ProposalContext) (types.BuiltProposal, error) {
	seen := make(map[types.Signature]bool)
	var txs []types.Tx
	totalBytes := uint64(0)

	for _, tx := range pctx.MempoolTxs {
		txSize := uint64(len(tx))
		if !pctx.Fits(totalBytes, txSize) {
			continue
		}
		ptx, err := a.sanitize(tx)
		if err != nil {
			continue
		}
		sig := ptx.ID()
		if seen[sig] {
			continue
		}
		seen[sig] = true
		txs = append(txs, tx)
		totalBytes += txSize
	}

	return types.BuiltProposal{Txs: txs}, nil
}

// VerifyProposal rejects blocks carrying transactions that fail to
// decode or verify, or the same signature twice. It does not execute
// anything.
func (a *App) VerifyProposal(_ context.Context, proposal types.ReceivedProposal) (types.ProposalVerdict, error) {
	seen := make(map[types.Signature]int, len(proposal.Txs))
	for i, tx := range proposal.Txs {
		ptx, err := a.sanitize(tx)
		if err != nil {
			return types.RejectProposal("tx %d: %v", i, err), nil
		}
		sig := ptx.ID()
		if j, dup := seen[sig]; dup {
			return types.RejectProposal("tx %d repeats signature of tx %d", i, j), nil
		}
		seen[sig] = i
	}
	return types.AcceptProposal(), nil
}
