// Package rpc serves the node over JSON-RPC 2.0 and provides a Go
// client for it.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blockberries/progchain/types"
)

const jsonrpcVersion = "2.0"

// Method names.
const (
	MethodGetHealth                         = "getHealth"
	MethodGetBalance                        = "getBalance"
	MethodGetAccountInfo                    = "getAccountInfo"
	MethodGetLatestBlockhash                = "getLatestBlockhash"
	MethodGetMinimumBalanceForRentExemption = "getMinimumBalanceForRentExemption"
	MethodSendTransaction                   = "sendTransaction"
	MethodGetSignatureStatus                = "getSignatureStatus"
	MethodRequestAirdrop                    = "requestAirdrop"
	MethodGetSlot                           = "getSlot"
	MethodSimulateTransaction               = "simulateTransaction"
)

// Error codes. The -32700..-32603 range is defined by JSON-RPC 2.0.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeTransactionRejected = -32002
	CodeNodeUnhealthy       = -32005
)

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Context carries the slot a result was read at.
type Context struct {
	Slot uint64 `json:"slot"`
}

type BalanceResult struct {
	Context Context `json:"context"`
	Value   uint64  `json:"value"`
}

// AccountInfo is the JSON form of an account. Data is base64.
type AccountInfo struct {
	Lamports   uint64       `json:"lamports"`
	Owner      types.Pubkey `json:"owner"`
	Data       []byte       `json:"data"`
	Executable bool         `json:"executable"`
}

type AccountInfoResult struct {
	Context Context      `json:"context"`
	Value   *AccountInfo `json:"value"`
}

type BlockhashInfo struct {
	Blockhash            types.Hash `json:"blockhash"`
	LastValidBlockHeight uint64     `json:"lastValidBlockHeight"`
}

type LatestBlockhashResult struct {
	Context Context       `json:"context"`
	Value   BlockhashInfo `json:"value"`
}

// TransactionError is a transaction that executed and failed, or was
// refused before execution.
type TransactionError struct {
	Code uint32 `json:"code"`
	Info string `json:"info"`
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed (code %d): %s", e.Code, e.Info)
}

// ErrBlockhashExpired is returned by confirmation when the slot has
// passed the transaction's last valid block height without a status.
var ErrBlockhashExpired = errors.New("blockhash expired before the transaction was confirmed")

// Confirmation statuses. A dropped transaction left the node without
// being committed and will not be retried.
const (
	StatusFinalized = "finalized"
	StatusDropped   = "dropped"
)

type SignatureStatus struct {
	Slot               uint64            `json:"slot"`
	Err                *TransactionError `json:"err"`
	ConfirmationStatus string            `json:"confirmationStatus"`
}

type SignatureStatusResult struct {
	Context Context          `json:"context"`
	Value   *SignatureStatus `json:"value"`
}

type SimulateValue struct {
	Err  *TransactionError `json:"err"`
	Logs []string          `json:"logs"`
	Fee  uint64            `json:"fee"`
}

type SimulateResult struct {
	Context Context       `json:"context"`
	Value   SimulateValue `json:"value"`
}
