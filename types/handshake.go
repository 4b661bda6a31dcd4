package types

import "strings"

// HandshakeRequest opens every session between node and runtime.
// Exactly one of LastCommitted and Genesis is set.
type HandshakeRequest struct {
	LastCommitted *BlockID    `cramberry:"1"`
	Genesis       *GenesisDoc `cramberry:"2"`
}

// IsGenesis reports whether the node is starting a fresh chain.
func (r HandshakeRequest) IsGenesis() bool { return r.LastCommitted == nil }

// HandshakeResponse reports the runtime's committed position.
type HandshakeResponse struct {
	// LastBlock is nil after a genesis handshake.
	LastBlock    *BlockID     `cramberry:"1"`
	AppHash      *AppHash     `cramberry:"2"`
	Capabilities Capabilities `cramberry:"3"`
	ChainID      string       `cramberry:"4"`
}

// Height is the runtime's last committed height, 0 when it has none.
func (r HandshakeResponse) Height() uint64 {
	if r.LastBlock == nil {
		return 0
	}
	return r.LastBlock.Height
}

// Capabilities is the set of optional interfaces a runtime declares
// in its handshake.
type Capabilities uint8

const (
	CapProposalControl Capabilities = 1 << iota
	CapStateSync
	CapSimulation
)

var capabilityNames = []struct {
	cap  Capabilities
	name string
}{
	{CapProposalControl, "ProposalControl"},
	{CapStateSync, "StateSync"},
	{CapSimulation, "Simulation"},
}

// Has reports whether every bit of cap is set.
func (c Capabilities) Has(cap Capabilities) bool {
	return c&cap == cap
}

func (c Capabilities) String() string {
	var names []string
	for _, n := range capabilityNames {
		if c.Has(n.cap) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
