package rpc

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/blockberries/progchain"
	"github.com/blockberries/progchain/node"
	"github.com/blockberries/progchain/program/system"
	"github.com/blockberries/progchain/runtime"
	"github.com/blockberries/progchain/sdk"
	"github.com/blockberries/progchain/types"
)

// maxRequestBytes bounds a request body.
const maxRequestBytes = 1 << 20

// Backend is the node surface the server needs.
type Backend interface {
	Submit(ctx context.Context, tx types.Tx) (types.Signature, error)
	Query(ctx context.Context, path types.QueryPath, data []byte) (types.StateQueryResult, error)
	Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error)
	Height() uint64
	Halted() *progchain.HaltError
	Dropped(sig types.Signature) (types.SignatureStatus, bool)
}

var _ Backend = (*node.Node)(nil)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithFaucet enables requestAirdrop, paid from kp.
func WithFaucet(kp *sdk.Keypair) ServerOption {
	return func(s *Server) { s.faucet = kp }
}

type handlerFunc func(ctx context.Context, params []json.RawMessage) (any, error)

// Server answers JSON-RPC requests on POST /.
type Server struct {
	backend  Backend
	logger   *slog.Logger
	faucet   *sdk.Keypair
	handlers map[string]handlerFunc
}

// NewServer creates a server over backend.
func NewServer(backend Backend, opts ...ServerOption) *Server {
	s := &Server{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = map[string]handlerFunc{
		MethodGetHealth:                         s.getHealth,
		MethodGetBalance:                        s.getBalance,
		MethodGetAccountInfo:                    s.getAccountInfo,
		MethodGetLatestBlockhash:                s.getLatestBlockhash,
		MethodGetMinimumBalanceForRentExemption: s.getMinimumBalance,
		MethodSendTransaction:                   s.sendTransaction,
		MethodGetSignatureStatus:                s.getSignatureStatus,
		MethodRequestAirdrop:                    s.requestAirdrop,
		MethodGetSlot:                           s.getSlot,
		MethodSimulateTransaction:               s.simulateTransaction,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.Recoverer)
	r.Post("/", s.serveHTTP)
	return r
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.logger.Info("starting RPC server", "addr", lis.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Debug("shutting down RPC server")
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.write(w, response{Error: &Error{Code: CodeParseError, Message: err.Error()}})
		return
	}
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		s.write(w, response{Error: &Error{Code: CodeParseError, Message: "parse error"}})
		return
	}
	resp := response{ID: req.ID}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		resp.Error = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
		s.write(w, resp)
		return
	}
	h, ok := s.handlers[req.Method]
	if !ok {
		resp.Error = &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
		s.write(w, resp)
		return
	}

	result, err := h(r.Context(), req.Params)
	if err != nil {
		resp.Error = toError(err)
		s.logger.Debug("rpc call failed", "method", req.Method, "error", err)
		s.write(w, resp)
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		resp.Error = &Error{Code: CodeInternalError, Message: err.Error()}
	} else {
		resp.Result = data
	}
	s.write(w, resp)
}

func (s *Server) write(w http.ResponseWriter, resp response) {
	resp.JSONRPC = jsonrpcVersion
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to write rpc response", "error", err)
	}
}

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

func invalidParams(format string, args ...any) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

func toError(err error) *Error {
	var (
		rpcErr   *Error
		pe       *paramError
		rejected *node.RejectedError
	)
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.As(err, &pe):
		return &Error{Code: CodeInvalidParams, Message: pe.msg}
	case errors.As(err, &rejected):
		data, _ := json.Marshal(TransactionError{Code: rejected.Code, Info: rejected.Info})
		return &Error{Code: CodeTransactionRejected, Message: err.Error(), Data: data}
	}
	if _, ok := progchain.IsHalt(err); ok {
		return &Error{Code: CodeNodeUnhealthy, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func param[T any](params []json.RawMessage, i int, name string) (T, error) {
	var v T
	if i >= len(params) {
		return v, invalidParams("missing parameter %d (%s)", i, name)
	}
	if err := json.Unmarshal(params[i], &v); err != nil {
		return v, invalidParams("invalid %s: %v", name, err)
	}
	return v, nil
}

func decodeTx(params []json.RawMessage) (types.Tx, error) {
	s, err := param[string](params, 0, "transaction")
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, invalidParams("transaction is not base64: %v", err)
	}
	return types.Tx(raw), nil
}

func (s *Server) query(ctx context.Context, path types.QueryPath, data []byte) (types.StateQueryResult, error) {
	res, err := s.backend.Query(ctx, path, data)
	if err != nil {
		return res, err
	}
	switch res.Code {
	case types.QueryOK, types.QueryNotFound:
		return res, nil
	case types.QueryBadRequest:
		return res, invalidParams("%s", res.Info)
	default:
		return res, fmt.Errorf("query %s: %s", path, res.Info)
	}
}

func (s *Server) getHealth(context.Context, []json.RawMessage) (any, error) {
	if h := s.backend.Halted(); h != nil {
		return nil, h
	}
	return "ok", nil
}

func (s *Server) getSlot(context.Context, []json.RawMessage) (any, error) {
	return s.backend.Height(), nil
}

func (s *Server) getBalance(ctx context.Context, params []json.RawMessage) (any, error) {
	key, err := param[types.Pubkey](params, 0, "pubkey")
	if err != nil {
		return nil, err
	}
	res, err := s.query(ctx, types.QueryBalance, key[:])
	if err != nil {
		return nil, err
	}
	return BalanceResult{Context: Context{Slot: res.Height}, Value: binary.BigEndian.Uint64(res.Value)}, nil
}

func (s *Server) getAccountInfo(ctx context.Context, params []json.RawMessage) (any, error) {
	key, err := param[types.Pubkey](params, 0, "pubkey")
	if err != nil {
		return nil, err
	}
	res, err := s.query(ctx, types.QueryAccount, key[:])
	if err != nil {
		return nil, err
	}
	out := AccountInfoResult{Context: Context{Slot: res.Height}}
	if res.Code == types.QueryNotFound {
		return out, nil
	}
	var acct types.Account
	if err := cramberry.Unmarshal(res.Value, &acct); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	out.Value = &AccountInfo{
		Lamports:   acct.Lamports,
		Owner:      acct.Owner,
		Data:       acct.Data,
		Executable: acct.Executable,
	}
	return out, nil
}

func (s *Server) getLatestBlockhash(ctx context.Context, _ []json.RawMessage) (any, error) {
	res, err := s.query(ctx, types.QueryBlockhash, nil)
	if err != nil {
		return nil, err
	}
	var out LatestBlockhashResult
	out.Context.Slot = res.Height
	copy(out.Value.Blockhash[:], res.Value)
	if len(res.Key) == 8 {
		out.Value.LastValidBlockHeight = binary.BigEndian.Uint64(res.Key) + runtime.MaxRecentBlockhashes
	}
	return out, nil
}

func (s *Server) getMinimumBalance(ctx context.Context, params []json.RawMessage) (any, error) {
	n, err := param[uint64](params, 0, "data length")
	if err != nil {
		return nil, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	res, err := s.query(ctx, types.QueryRent, buf[:])
	if err != nil {
		return nil, err
	}
	return binary.BigEndian.Uint64(res.Value), nil
}

func (s *Server) sendTransaction(ctx context.Context, params []json.RawMessage) (any, error) {
	tx, err := decodeTx(params)
	if err != nil {
		return nil, err
	}
	sig, err := s.backend.Submit(ctx, tx)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

func (s *Server) getSignatureStatus(ctx context.Context, params []json.RawMessage) (any, error) {
	sig, err := param[types.Signature](params, 0, "signature")
	if err != nil {
		return nil, err
	}
	res, err := s.query(ctx, types.QuerySignature, sig[:])
	if err != nil {
		return nil, err
	}
	out := SignatureStatusResult{Context: Context{Slot: res.Height}}
	var st types.SignatureStatus
	if res.Code == types.QueryNotFound {
		dropped, ok := s.backend.Dropped(sig)
		if !ok {
			return out, nil
		}
		st = dropped
		out.Value = &SignatureStatus{Slot: st.Slot, ConfirmationStatus: StatusDropped}
	} else {
		if err := cramberry.Unmarshal(res.Value, &st); err != nil {
			return nil, fmt.Errorf("decode status: %w", err)
		}
		out.Value = &SignatureStatus{Slot: st.Slot, ConfirmationStatus: StatusFinalized}
	}
	if !st.OK() {
		out.Value.Err = &TransactionError{Code: st.Code, Info: st.Info}
	}
	return out, nil
}

func (s *Server) requestAirdrop(ctx context.Context, params []json.RawMessage) (any, error) {
	if s.faucet == nil {
		return nil, &Error{Code: CodeInvalidRequest, Message: "airdrops are disabled on this node"}
	}
	to, err := param[types.Pubkey](params, 0, "pubkey")
	if err != nil {
		return nil, err
	}
	lamports, err := param[uint64](params, 1, "lamports")
	if err != nil {
		return nil, err
	}
	if lamports == 0 {
		return nil, invalidParams("lamports must be positive")
	}
	res, err := s.query(ctx, types.QueryBlockhash, nil)
	if err != nil {
		return nil, err
	}
	var recent types.Hash
	copy(recent[:], res.Value)

	ix := system.Transfer(s.faucet.Pubkey(), to, lamports)
	tx, err := sdk.NewSignedTransaction([]types.Instruction{ix}, s.faucet, nil, recent)
	if err != nil {
		return nil, err
	}
	raw, err := sdk.EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}
	sig, err := s.backend.Submit(ctx, raw)
	if err != nil {
		return nil, err
	}
	s.logger.Info("airdrop submitted", "to", to.String(), "lamports", lamports, "signature", sig.String())
	return sig, nil
}

func (s *Server) simulateTransaction(ctx context.Context, params []json.RawMessage) (any, error) {
	tx, err := decodeTx(params)
	if err != nil {
		return nil, err
	}
	out, err := s.backend.Simulate(ctx, tx)
	if err != nil {
		return nil, err
	}
	result := SimulateResult{
		Context: Context{Slot: s.backend.Height()},
		Value:   SimulateValue{Logs: out.Logs(), Fee: out.Fee},
	}
	if !out.OK() {
		result.Value.Err = &TransactionError{Code: out.Code, Info: out.Info}
	}
	if result.Value.Logs == nil {
		result.Value.Logs = []string{}
	}
	return result, nil
}
