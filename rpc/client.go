package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/blockberries/progchain/types"
)

// DefaultPollInterval is how often ConfirmTransaction polls.
const DefaultPollInterval = 200 * time.Millisecond

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithPollInterval sets the confirmation polling interval.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.poll = d }
}

// Client calls a node's JSON-RPC endpoint.
type Client struct {
	url  string
	http *http.Client
	poll time.Duration
}

// NewClient creates a client for the endpoint at url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{url: url, http: http.DefaultClient, poll: DefaultPollInterval}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint.
func (c *Client) URL() string { return c.url }

// Call invokes method with positional params and decodes the result
// into result. JSON-RPC errors are returned as *Error.
func (c *Client) Call(ctx context.Context, method string, result any, params ...any) error {
	raw := make([]json.RawMessage, len(params))
	for i, p := range params {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode param %d: %w", i, err)
		}
		raw[i] = data
	}
	id, err := json.Marshal(uuid.NewString())
	if err != nil {
		return err
	}
	body, err := json.Marshal(request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: raw})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http status %d", method, httpResp.StatusCode)
	}
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) GetHealth(ctx context.Context) error {
	return c.Call(ctx, MethodGetHealth, nil)
}

func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := c.Call(ctx, MethodGetSlot, &slot)
	return slot, err
}

func (c *Client) GetBalance(ctx context.Context, key types.Pubkey) (uint64, error) {
	var res BalanceResult
	if err := c.Call(ctx, MethodGetBalance, &res, key); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// GetAccountInfo returns nil when the account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, key types.Pubkey) (*AccountInfo, error) {
	var res AccountInfoResult
	if err := c.Call(ctx, MethodGetAccountInfo, &res, key); err != nil {
		return nil, err
	}
	return res.Value, nil
}

func (c *Client) GetLatestBlockhash(ctx context.Context) (BlockhashInfo, error) {
	var res LatestBlockhashResult
	err := c.Call(ctx, MethodGetLatestBlockhash, &res)
	return res.Value, err
}

func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error) {
	var lamports uint64
	err := c.Call(ctx, MethodGetMinimumBalanceForRentExemption, &lamports, dataLen)
	return lamports, err
}

func (c *Client) SendTransaction(ctx context.Context, tx types.Tx) (types.Signature, error) {
	var sig types.Signature
	err := c.Call(ctx, MethodSendTransaction, &sig, base64.StdEncoding.EncodeToString(tx))
	return sig, err
}

// GetSignatureStatus returns nil for an unknown signature.
func (c *Client) GetSignatureStatus(ctx context.Context, sig types.Signature) (*SignatureStatus, error) {
	var res SignatureStatusResult
	if err := c.Call(ctx, MethodGetSignatureStatus, &res, sig); err != nil {
		return nil, err
	}
	return res.Value, nil
}

func (c *Client) RequestAirdrop(ctx context.Context, key types.Pubkey, lamports uint64) (types.Signature, error) {
	var sig types.Signature
	err := c.Call(ctx, MethodRequestAirdrop, &sig, key, lamports)
	return sig, err
}

func (c *Client) SimulateTransaction(ctx context.Context, tx types.Tx) (SimulateValue, error) {
	var res SimulateResult
	err := c.Call(ctx, MethodSimulateTransaction, &res, base64.StdEncoding.EncodeToString(tx))
	return res.Value, err
}

// ConfirmOption bounds a confirmation.
type ConfirmOption func(*confirmOptions)

type confirmOptions struct {
	lastValid uint64
	bounded   bool
}

// UntilBlockHeight stops confirmation with ErrBlockhashExpired once the
// node's slot passes lastValid, the LastValidBlockHeight reported with
// the blockhash the transaction was signed against.
func UntilBlockHeight(lastValid uint64) ConfirmOption {
	return func(o *confirmOptions) {
		o.lastValid = lastValid
		o.bounded = true
	}
}

// ConfirmTransaction polls until sig is committed or dropped, the
// blockhash expires or ctx is done. A transaction that failed returns
// its status together with a *TransactionError.
func (c *Client) ConfirmTransaction(ctx context.Context, sig types.Signature, opts ...ConfirmOption) (*SignatureStatus, error) {
	var o confirmOptions
	for _, opt := range opts {
		opt(&o)
	}
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		var res SignatureStatusResult
		if err := c.Call(ctx, MethodGetSignatureStatus, &res, sig); err != nil {
			return nil, err
		}
		if st := res.Value; st != nil {
			if st.Err != nil {
				return st, st.Err
			}
			return st, nil
		}
		if o.bounded && res.Context.Slot > o.lastValid {
			return nil, fmt.Errorf("confirm %s at slot %d: %w", sig, res.Context.Slot, ErrBlockhashExpired)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("confirm %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// SendAndConfirmTransaction submits tx and waits for it to commit.
func (c *Client) SendAndConfirmTransaction(ctx context.Context, tx types.Tx, opts ...ConfirmOption) (types.Signature, error) {
	sig, err := c.SendTransaction(ctx, tx)
	if err != nil {
		return types.Signature{}, err
	}
	if _, err := c.ConfirmTransaction(ctx, sig, opts...); err != nil {
		return sig, err
	}
	return sig, nil
}
