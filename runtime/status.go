package runtime

import "github.com/blockberries/progchain/types"

// statusCache remembers the outcome of recently processed signatures
// so replays are rejected while their blockhash is still valid.
type statusCache struct {
	bySig map[types.Signature]types.SignatureStatus
}

func newStatusCache(initial map[types.Signature]types.SignatureStatus) *statusCache {
	c := &statusCache{bySig: make(map[types.Signature]types.SignatureStatus, len(initial))}
	for sig, st := range initial {
		c.bySig[sig] = st
	}
	return c
}

func (c *statusCache) get(sig types.Signature) (types.SignatureStatus, bool) {
	st, ok := c.bySig[sig]
	return st, ok
}

func (c *statusCache) add(statuses map[types.Signature]types.SignatureStatus) {
	for sig, st := range statuses {
		c.bySig[sig] = st
	}
}

// prune drops statuses recorded before minSlot.
func (c *statusCache) prune(minSlot uint64) {
	for sig, st := range c.bySig {
		if st.Slot < minSlot {
			delete(c.bySig, sig)
		}
	}
}
