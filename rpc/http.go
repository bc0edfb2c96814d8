// Package rpc exposes the reward claim service's wire contract as JSON-RPC
// 2.0 over HTTP. Mutating operations authenticate their caller by recovering
// a secp256k1 signature over an operation digest; queries are open.
package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atachain/native/rewardclaim"
	"atachain/native/token"
	"atachain/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeFeeBudget      = -32030
)

// CodeEpochNotFound is returned by rewards_epochInfo for ids that were never
// established. Exported so clients match the code, not the message text.
const CodeEpochNotFound = -32004

// Server dispatches JSON-RPC calls onto the reward engine and token ledger.
type Server struct {
	engine   *rewardclaim.Engine
	ledger   *token.Ledger
	sweepFee uint64
	logger   *slog.Logger
}

// NewServer wires the RPC surface for an engine/ledger pair. sweepFee is the
// flat fee quoted to sweep submitters.
func NewServer(engine *rewardclaim.Engine, ledger *token.Ledger, sweepFee uint64, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, ledger: ledger, sweepFee: sweepFee, logger: logger}
}

// Router mounts the RPC endpoint plus health and metrics probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, 0, codeParseError, "failed to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, 0, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "jsonrpc must be \"2.0\"", nil)
		return
	}
	metrics.Rewards().ObserveRPC(req.Method)

	switch req.Method {
	case "rewards_serviceInfo":
		s.handleServiceInfo(w, &req)
	case "rewards_epochCount":
		s.handleEpochCount(w, &req)
	case "rewards_fundNonce":
		s.handleFundNonce(w, &req)
	case "rewards_epochInfo":
		s.handleEpochInfo(w, &req)
	case "rewards_hasClaimed":
		s.handleHasClaimed(w, &req)
	case "rewards_estimateSweepFee":
		s.handleEstimateSweepFee(w, &req)
	case "rewards_fund":
		s.handleFund(w, &req)
	case "rewards_publishRoot":
		s.handlePublishRoot(w, &req)
	case "rewards_claim":
		s.handleClaim(w, &req)
	case "rewards_sweep":
		s.handleSweep(w, &req)
	case "rewards_transferAdmin":
		s.handleTransferAdmin(w, &req)
	case "token_balanceOf":
		s.handleBalanceOf(w, &req)
	case "token_approve":
		s.handleApprove(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func writeResult(w http.ResponseWriter, id int, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status, id, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}
