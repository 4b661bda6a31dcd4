package types

// Account is a runtime-managed storage slot. Only the owning
// program may modify Data or debit Lamports.
type Account struct {
	Lamports   uint64 `cramberry:"1"`
	Owner      Pubkey `cramberry:"2"`
	Data       []byte `cramberry:"3"`
	Executable bool   `cramberry:"4"`
}

// Clone returns a deep copy of the account.
func (a Account) Clone() Account {
	c := a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return c
}

// IsEmpty reports whether the account holds nothing and
// therefore does not exist from the runtime's point of view.
func (a Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && !a.Executable
}

// KeyedAccount pairs an account with its address. Used where
// a deterministic, ordered list of accounts is needed.
type KeyedAccount struct {
	Pubkey  Pubkey  `cramberry:"1"`
	Account Account `cramberry:"2"`
}
