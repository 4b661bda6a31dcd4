package types

// AccountMeta describes one account an instruction touches.
type AccountMeta struct {
	Pubkey     Pubkey `cramberry:"1"`
	IsSigner   bool   `cramberry:"2"`
	IsWritable bool   `cramberry:"3"`
}

// Instruction is a request dispatched to a program's entry point.
type Instruction struct {
	ProgramID Pubkey        `cramberry:"1"`
	Accounts  []AccountMeta `cramberry:"2"`
	Data      []byte        `cramberry:"3"`
}

// Message is the signed portion of a transaction.
type Message struct {
	FeePayer        Pubkey        `cramberry:"1"`
	RecentBlockhash Hash          `cramberry:"2"`
	Instructions    []Instruction `cramberry:"3"`
}

// Transaction is a message plus one signature per required signer,
// in the order given by the message's signer list.
type Transaction struct {
	Signatures []Signature `cramberry:"1"`
	Message    Message     `cramberry:"2"`
}

// SignerKeys returns the ordered, de-duplicated list of keys that
// must sign the message: the fee payer first, then every signer
// account in order of first appearance.
func (m Message) SignerKeys() []Pubkey {
	keys := []Pubkey{m.FeePayer}
	seen := map[Pubkey]bool{m.FeePayer: true}
	for _, ix := range m.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner && !seen[meta.Pubkey] {
				seen[meta.Pubkey] = true
				keys = append(keys, meta.Pubkey)
			}
		}
	}
	return keys
}

// ID returns the transaction's identifying signature (the fee
// payer's). Zero if the transaction is unsigned.
func (t Transaction) ID() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

// SignatureStatus records where and how a transaction landed.
type SignatureStatus struct {
	Slot uint64 `cramberry:"1"`
	Code uint32 `cramberry:"2"`
	Info string `cramberry:"3"`
}

// OK returns true if the transaction executed successfully.
func (s SignatureStatus) OK() bool { return s.Code == 0 }
