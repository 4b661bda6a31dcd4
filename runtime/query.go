package runtime

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/progchain/types"
)

func (a *App) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if req.Height != nil && *req.Height != a.height {
		return types.StateQueryResult{
			Code:   types.QueryUnsupported,
			Info:   fmt.Sprintf("only the latest height %d is queryable", a.height),
			Height: a.height,
		}, nil
	}

	switch req.Path {
	case types.QueryAccount:
		key, res, ok := a.pubkeyArg(req)
		if !ok {
			return res, nil
		}
		acct, found := a.accounts[key]
		if !found {
			return a.notFound(req, "account not found"), nil
		}
		data, err := cramberry.Marshal(acct)
		if err != nil {
			return types.StateQueryResult{}, fmt.Errorf("encode account: %w", err)
		}
		return a.found(req, data), nil

	case types.QueryBalance:
		key, res, ok := a.pubkeyArg(req)
		if !ok {
			return res, nil
		}
		return a.found(req, encodeUint64(a.accounts[key].Lamports)), nil

	case types.QueryBlockhash:
		last := a.hashes.last()
		return types.StateQueryResult{
			Code:   types.QueryOK,
			Key:    encodeUint64(last.Height),
			Value:  last.Hash[:],
			Height: a.height,
		}, nil

	case types.QuerySignature:
		if len(req.Data) != types.SignatureLen {
			return a.badRequest(fmt.Sprintf("data must be a %d-byte signature", types.SignatureLen)), nil
		}
		var sig types.Signature
		copy(sig[:], req.Data)
		st, found := a.statuses.get(sig)
		if !found {
			var err error
			st, found, err = a.store.Status(ctx, sig)
			if err != nil {
				return types.StateQueryResult{}, err
			}
		}
		if !found {
			return a.notFound(req, "signature not found"), nil
		}
		data, err := cramberry.Marshal(st)
		if err != nil {
			return types.StateQueryResult{}, fmt.Errorf("encode status: %w", err)
		}
		return a.found(req, data), nil

	case types.QueryRent:
		if len(req.Data) != 8 {
			return a.badRequest("data must be an 8-byte big-endian data length"), nil
		}
		n := binary.BigEndian.Uint64(req.Data)
		return a.found(req, encodeUint64(a.cfg.Rent.MinimumBalance(n))), nil

	case types.QueryPrograms:
		data, err := json.Marshal(a.programs)
		if err != nil {
			return types.StateQueryResult{}, fmt.Errorf("encode programs: %w", err)
		}
		return a.found(req, data), nil

	default:
		return types.StateQueryResult{
			Code:   types.QueryUnsupported,
			Info:   fmt.Sprintf("unknown query path %q", req.Path),
			Height: a.height,
		}, nil
	}
}

func (a *App) pubkeyArg(req types.StateQuery) (types.Pubkey, types.StateQueryResult, bool) {
	var key types.Pubkey
	if len(req.Data) != types.PubkeyLen {
		return key, a.badRequest(fmt.Sprintf("data must be a %d-byte pubkey", types.PubkeyLen)), false
	}
	copy(key[:], req.Data)
	return key, types.StateQueryResult{}, true
}

func (a *App) found(req types.StateQuery, value []byte) types.StateQueryResult {
	return types.StateQueryResult{Code: types.QueryOK, Key: req.Data, Value: value, Height: a.height}
}

func (a *App) notFound(req types.StateQuery, info string) types.StateQueryResult {
	return types.StateQueryResult{Code: types.QueryNotFound, Key: req.Data, Info: info, Height: a.height}
}

func (a *App) badRequest(info string) types.StateQueryResult {
	return types.StateQueryResult{Code: types.QueryBadRequest, Info: info, Height: a.height}
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
