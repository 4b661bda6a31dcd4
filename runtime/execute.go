package runtime

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/blockberries/progchain/program"
	"github.com/blockberries/progchain/program/system"
	"github.com/blockberries/progchain/sdk"
	"github.com/blockberries/progchain/types"
)

// execContext carries state across the transactions of one block.
type execContext struct {
	slot     uint64
	accounts *accountSet
	// Statuses recorded so far in this block.
	statuses map[types.Signature]types.SignatureStatus
}

// executeTx runs one transaction against ec. Transactions rejected
// before the fee is charged leave no trace; once the fee is charged
// the signature is recorded whether or not the instructions succeed.
func (a *App) executeTx(ec *execContext, index uint32, raw types.Tx) types.TxOutcome {
	out := types.TxOutcome{Index: index}

	ptx, err := a.sanitize(raw)
	if err == nil {
		err = a.checkAge(ptx, ec.statuses)
	}
	feeSet := ec.accounts.child()
	if err == nil {
		out.Fee, err = a.chargeFee(feeSet, ptx)
	}
	if err != nil {
		out.Code, out.Info = outcomeCode(err)
		return out
	}

	sig := ptx.ID()
	out.Data = append([]byte(nil), sig[:]...)
	out.Events = append(out.Events, types.NewEvent(types.EventFee,
		types.IndexedAttr("payer", ptx.Message.FeePayer.String()),
		types.UintAttr("amount", out.Fee),
	))

	work := feeSet.child()
	logs, err := a.processInstructions(work, ptx, ec.slot)
	if err == nil {
		err = a.checkRent(work)
	}
	for _, line := range logs {
		out.Events = append(out.Events, types.NewEvent(types.EventProgramLog, types.Attr("message", line)))
	}
	if err != nil {
		out.Code, out.Info = outcomeCode(err)
	} else {
		work.merge()
	}
	feeSet.merge()

	ec.statuses[sig] = types.SignatureStatus{Slot: ec.slot, Code: out.Code, Info: out.Info}
	return out
}

// sanitize decodes a transaction and verifies its signatures.
func (a *App) sanitize(raw types.Tx) (*sdk.ParsedTx, error) {
	if len(raw) > MaxTxBytes {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrTooLarge, len(raw), MaxTxBytes)
	}
	ptx, err := sdk.DecodeTransaction(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSanitizeFailure, err)
	}
	if err := ptx.Verify(); err != nil {
		if errors.Is(err, sdk.ErrNoInstructions) {
			return nil, fmt.Errorf("%w: %v", ErrSanitizeFailure, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSignatureFailure, err)
	}
	return ptx, nil
}

// checkAge rejects stale blockhashes and replays. pending holds
// signatures already seen in the block being built, if any.
func (a *App) checkAge(ptx *sdk.ParsedTx, pending map[types.Signature]types.SignatureStatus) error {
	if _, ok := a.hashes.lookup(ptx.Message.RecentBlockhash); !ok {
		return fmt.Errorf("%w: %s", ErrBlockhashNotFound, ptx.Message.RecentBlockhash)
	}
	sig := ptx.ID()
	if _, ok := pending[sig]; ok {
		return ErrAlreadyProcessed
	}
	if _, ok := a.statuses.get(sig); ok {
		return ErrAlreadyProcessed
	}
	return nil
}

// chargeFee debits the fee payer in set and returns the fee.
func (a *App) chargeFee(set *accountSet, ptx *sdk.ParsedTx) (uint64, error) {
	payerKey := ptx.Message.FeePayer
	payer := set.get(payerKey)
	if payer.Lamports == 0 {
		return 0, fmt.Errorf("%w: fee payer %s", ErrAccountNotFound, payerKey)
	}
	if payer.Owner != system.ID || len(payer.Data) > 0 || payer.Executable {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAccountForFee, payerKey)
	}
	fee := a.cfg.FeePerSignature * uint64(len(ptx.Signatures))
	if payer.Lamports < fee {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFundsForFee, payer.Lamports, fee)
	}
	payer.Lamports -= fee
	set.set(payerKey, payer)
	return fee, nil
}

// processInstructions dispatches each instruction in order. The first
// failure aborts the rest; the caller discards work in that case.
func (a *App) processInstructions(work *accountSet, ptx *sdk.ParsedTx, slot uint64) ([]string, error) {
	signers := make(map[types.Pubkey]bool)
	for _, k := range ptx.Message.SignerKeys() {
		signers[k] = true
	}

	var logs []string
	for i, ix := range ptx.Message.Instructions {
		prog, ok := a.registry.Lookup(ix.ProgramID)
		if !ok {
			return logs, &instructionError{index: i, err: fmt.Errorf("%w: %s", program.ErrProgramNotFound, ix.ProgramID)}
		}

		infos, unique := buildAccountInfos(work, ix, signers, ptx.Message.FeePayer)
		pre := make(map[types.Pubkey]types.Account, len(unique))
		for _, info := range unique {
			pre[info.Key] = info.Account()
		}

		ictx := program.NewInvokeContext(ix.ProgramID, slot)
		logs = append(logs, fmt.Sprintf("Program %s invoke [1]", ix.ProgramID))
		err := prog.Process(ictx, infos, ix.Data)
		logs = append(logs, ictx.Logs()...)
		if err == nil {
			err = verifyInstruction(ix.ProgramID, pre, unique)
		}
		if err != nil {
			logs = append(logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
			return logs, &instructionError{index: i, err: err}
		}
		logs = append(logs, fmt.Sprintf("Program %s success", ix.ProgramID))

		for _, info := range unique {
			work.set(info.Key, info.Account())
		}
	}
	return logs, nil
}

// buildAccountInfos returns one view per instruction account, sharing
// the view when a key is listed twice, plus the distinct views in
// first-appearance order.
func buildAccountInfos(work *accountSet, ix types.Instruction, signers map[types.Pubkey]bool, payer types.Pubkey) ([]*program.AccountInfo, []*program.AccountInfo) {
	byKey := make(map[types.Pubkey]*program.AccountInfo, len(ix.Accounts))
	infos := make([]*program.AccountInfo, len(ix.Accounts))
	var unique []*program.AccountInfo
	for i, meta := range ix.Accounts {
		info, ok := byKey[meta.Pubkey]
		if !ok {
			info = program.NewAccountInfo(meta.Pubkey, work.get(meta.Pubkey),
				signers[meta.Pubkey], meta.Pubkey == payer)
			byKey[meta.Pubkey] = info
			unique = append(unique, info)
		}
		if meta.IsWritable {
			info.IsWritable = true
		}
		infos[i] = info
	}
	return infos, unique
}

// verifyInstruction enforces ownership rules on every touched account
// and that the instruction neither minted nor burned lamports.
func verifyInstruction(programID types.Pubkey, pre map[types.Pubkey]types.Account, post []*program.AccountInfo) error {
	var before, after, carry uint64
	for _, info := range post {
		if err := program.VerifyChange(programID, pre[info.Key], info); err != nil {
			return err
		}
		before, carry = bits.Add64(before, pre[info.Key].Lamports, 0)
		if carry != 0 {
			return program.ErrArithmeticOverflow
		}
		after, carry = bits.Add64(after, info.Lamports, 0)
		if carry != 0 {
			return program.ErrArithmeticOverflow
		}
	}
	if before != after {
		return program.ErrUnbalancedInstruction
	}
	return nil
}

// checkRent requires every account the instructions changed to be
// either closed or rent-exempt.
func (a *App) checkRent(work *accountSet) error {
	for _, key := range sortedKeys(work.changes) {
		acct := work.changes[key]
		if !a.cfg.Rent.IsExempt(acct) {
			return fmt.Errorf("%w: account %s holds %d, needs %d", ErrInsufficientFundsForRent,
				key, acct.Lamports, a.cfg.Rent.MinimumBalance(uint64(len(acct.Data))))
		}
	}
	return nil
}

// outcomeCode maps an execution error to its outcome code and info.
func outcomeCode(err error) (uint32, string) {
	var te *TxError
	if errors.As(err, &te) {
		return te.Code, err.Error()
	}
	return program.AsError(err).OutcomeCode(), err.Error()
}

// Simulate executes tx against committed state and discards the
// result.
func (a *App) Simulate(_ context.Context, tx types.Tx) (types.TxOutcome, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.ready {
		return types.TxOutcome{}, errors.New("runtime not initialized")
	}
	ec := &execContext{
		slot:     a.height + 1,
		accounts: newAccountSet(a.accounts),
		statuses: make(map[types.Signature]types.SignatureStatus),
	}
	return a.executeTx(ec, 0, tx), nil
}
