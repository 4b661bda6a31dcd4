package progchaintest

import (
	"context"
	"sync"
	"testing"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/types"
)

// garbage is not a decodable transaction.
var garbage = types.Tx{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

type complianceCheck struct {
	name string
	run  func(t *testing.T, newHarness func() *Harness)
}

var complianceChecks = []complianceCheck{
	{"genesis_reports_no_last_block", func(t *testing.T, newHarness func() *Harness) {
		resp := newHarness().GenesisDefault()
		if resp.LastBlock != nil {
			t.Error("genesis handshake should return nil LastBlock")
		}
		if resp.AppHash == nil {
			t.Error("genesis handshake should return an AppHash")
		}
	}},

	{"empty_blocks_are_deterministic", func(t *testing.T, newHarness func() *Harness) {
		h1, h2 := newHarness(), newHarness()
		h1.GenesisDefault()
		h2.GenesisDefault()
		for i := uint64(1); i <= 5; i++ {
			o1 := h1.ExecuteAndCommit(MakeEmptyBlock(i))
			o2 := h2.ExecuteAndCommit(MakeEmptyBlock(i))
			if o1.AppHash == (types.AppHash{}) {
				t.Errorf("height %d: zero app hash", i)
			}
			if o1.AppHash != o2.AppHash || o1.Blockhash != o2.Blockhash {
				t.Errorf("height %d: instances diverged", i)
			}
		}
	}},

	{"blockhash_rotates_each_block", func(t *testing.T, newHarness func() *Harness) {
		h := newHarness()
		h.GenesisDefault()
		seen := map[types.Hash]bool{h.LatestBlockhash(): true}
		for i := uint64(1); i <= 3; i++ {
			h.ExecuteAndCommit(MakeEmptyBlock(i))
			bh := h.LatestBlockhash()
			if seen[bh] {
				t.Fatalf("height %d: blockhash %s repeated", i, bh)
			}
			seen[bh] = true
		}
	}},

	{"undecodable_tx_fails_in_place", func(t *testing.T, newHarness func() *Harness) {
		h := newHarness()
		h.GenesisDefault()
		before := h.Query(types.QueryBlockhash, nil)

		outcome := h.ExecuteAndCommit(MakeBlock(1, garbage, append(types.Tx{0xFF}, garbage...)))
		if len(outcome.TxOutcomes) != 2 {
			t.Fatalf("expected 2 tx outcomes, got %d", len(outcome.TxOutcomes))
		}
		for i, o := range outcome.TxOutcomes {
			if o.Index != uint32(i) {
				t.Errorf("tx %d: index %d", i, o.Index)
			}
			if o.OK() {
				t.Errorf("tx %d: undecodable transaction succeeded", i)
			}
			if o.Fee != 0 {
				t.Errorf("tx %d: charged %d for an undecodable transaction", i, o.Fee)
			}
		}
		if after := h.Query(types.QueryBlockhash, nil); after.Height != before.Height+1 {
			t.Errorf("expected height %d after the block, got %d", before.Height+1, after.Height)
		}
	}},

	{"check_tx_rejects_garbage", func(t *testing.T, newHarness func() *Harness) {
		h := newHarness()
		h.GenesisDefault()
		h.MustRejectTx(garbage)
	}},

	{"concurrent_reads_after_handshake", func(t *testing.T, newHarness func() *Harness) {
		h := newHarness()
		h.GenesisDefault()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				if _, err := h.Server().CheckTx(context.Background(), garbage, types.MempoolFirstSeen); err != nil {
					t.Errorf("concurrent CheckTx failed: %v", err)
				}
			}()
			go func() {
				defer wg.Done()
				if _, err := h.Server().Query(context.Background(), types.StateQuery{Path: types.QueryBlockhash}); err != nil {
					t.Errorf("concurrent Query failed: %v", err)
				}
			}()
		}
		wg.Wait()
	}},

	{"query_reports_committed_height", func(t *testing.T, newHarness func() *Harness) {
		h := newHarness()
		h.GenesisDefault()
		h.ExecuteAndCommit(MakeEmptyBlock(1))
		h.ExecuteAndCommit(MakeEmptyBlock(2))
		if res := h.Query(types.QueryBlockhash, nil); res.Height != 2 {
			t.Errorf("expected query height 2, got %d", res.Height)
		}
	}},

	{"commit_without_execute_panics", func(t *testing.T, newHarness func() *Harness) {
		h := newHarness()
		h.GenesisDefault()
		expectPanic(t, "Commit before ExecuteBlock", func() {
			_, _ = h.Server().Commit(context.Background())
		})
	}},

	{"execute_before_handshake_panics", func(t *testing.T, newHarness func() *Harness) {
		h := newHarness()
		expectPanic(t, "ExecuteBlock before Handshake", func() {
			_, _ = h.Server().ExecuteBlock(context.Background(), MakeEmptyBlock(1))
		})
	}},
}

// RunComplianceSuite checks the lifecycle contract every runtime must
// honor. factory returns a fresh runtime with empty state on each
// call.
func RunComplianceSuite(t *testing.T, factory func() progchain.Lifecycle) {
	t.Helper()
	for _, c := range complianceChecks {
		t.Run(c.name, func(t *testing.T) {
			c.run(t, func() *Harness { return NewHarness(t, factory()) })
		})
	}
}

func expectPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected the lifecycle guard to panic", what)
		}
	}()
	fn()
}
