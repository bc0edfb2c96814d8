package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"atachain/crypto/merkle"
	"atachain/native/rewardclaim"
	"atachain/observability/metrics"
)

type epochInfoParams struct {
	Epoch uint64 `json:"epoch"`
}

type epochInfoResult struct {
	Epoch          uint64 `json:"epoch"`
	Root           string `json:"root"`
	Funded         string `json:"funded"`
	TotalClaimed   string `json:"totalClaimed"`
	Unclaimed      string `json:"unclaimed"`
	Start          int64  `json:"start"`
	ClaimsOpenAt   int64  `json:"claimsOpenAt"`
	WindowClosesAt int64  `json:"windowClosesAt"`
	Swept          bool   `json:"swept"`
	SweptAmount    string `json:"sweptAmount"`
	Status         string `json:"status"`
}

type hasClaimedParams struct {
	Epoch   uint64 `json:"epoch"`
	Address string `json:"address"`
}

type serviceInfoResult struct {
	Vault    string `json:"vault"`
	Treasury string `json:"treasury"`
	Admin    string `json:"admin"`
	SweepFee uint64 `json:"sweepFee"`
	Now      int64  `json:"now"`
}

type fundParams struct {
	Epoch     uint64 `json:"epoch"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type approveParams struct {
	Spender   string `json:"spender"`
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

type publishRootParams struct {
	Epoch     uint64 `json:"epoch"`
	Root      string `json:"root"`
	Signature string `json:"signature"`
}

type claimParams struct {
	Epoch     uint64   `json:"epoch"`
	Amount    string   `json:"amount"`
	Proof     []string `json:"proof"`
	Signature string   `json:"signature"`
}

type sweepParams struct {
	Epoch     uint64 `json:"epoch"`
	FeeBudget uint64 `json:"feeBudget"`
	Signature string `json:"signature"`
}

type sweepResult struct {
	Epoch uint64 `json:"epoch"`
	Swept string `json:"swept"`
}

type transferAdminParams struct {
	Next      string `json:"next"`
	Signature string `json:"signature"`
}

type balanceOfParams struct {
	Address string `json:"address"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("parameters required")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("decode address: %w", err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseDigest(raw string) ([32]byte, error) {
	var digest [32]byte
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return digest, fmt.Errorf("decode digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("digest must be 32 bytes, got %d", len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount must be a decimal string, got %q", raw)
	}
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("amount must fit in 32 bytes")
	}
	return amount, nil
}

func formatEpoch(epoch *rewardclaim.Epoch, now int64) epochInfoResult {
	return epochInfoResult{
		Epoch:          epoch.Index,
		Root:           "0x" + hex.EncodeToString(epoch.Root[:]),
		Funded:         epoch.Funded.String(),
		TotalClaimed:   epoch.TotalClaimed.String(),
		Unclaimed:      epoch.Remainder().String(),
		Start:          epoch.Start,
		ClaimsOpenAt:   epoch.ClaimsOpenAt,
		WindowClosesAt: epoch.WindowClosesAt(),
		Swept:          epoch.Swept,
		SweptAmount:    epoch.SweptAmount.String(),
		Status:         epoch.StatusAt(now).String(),
	}
}

func (s *Server) handleServiceInfo(w http.ResponseWriter, req *RPCRequest) {
	admin, err := s.engine.Admin()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load admin role", err.Error())
		return
	}
	treasury := s.engine.Treasury()
	writeResult(w, req.ID, serviceInfoResult{
		Vault:    "0x" + hex.EncodeToString(rewardclaim.VaultAddress[:]),
		Treasury: "0x" + hex.EncodeToString(treasury[:]),
		Admin:    "0x" + hex.EncodeToString(admin[:]),
		SweepFee: s.sweepFee,
		Now:      s.engine.Now(),
	})
}

func (s *Server) handleEpochCount(w http.ResponseWriter, req *RPCRequest) {
	count, err := s.engine.EpochCount()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load epoch count", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]uint64{"count": count})
}

func (s *Server) handleFundNonce(w http.ResponseWriter, req *RPCRequest) {
	nonce, err := s.engine.FundNonce()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load funding nonce", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]uint64{"nonce": nonce})
}

func (s *Server) handleEpochInfo(w http.ResponseWriter, req *RPCRequest) {
	var params epochInfoParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	epoch, ok, err := s.engine.EpochInfo(params.Epoch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load epoch", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, CodeEpochNotFound, "epoch not found", params.Epoch)
		return
	}
	writeResult(w, req.ID, formatEpoch(epoch, s.engine.Now()))
}

func (s *Server) handleHasClaimed(w http.ResponseWriter, req *RPCRequest) {
	var params hasClaimedParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	claimed, err := s.engine.HasClaimed(params.Epoch, addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load claim flag", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]bool{"claimed": claimed})
}

func (s *Server) handleEstimateSweepFee(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, map[string]uint64{"fee": s.sweepFee})
}

func (s *Server) handleFund(w http.ResponseWriter, req *RPCRequest) {
	var params fundParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	caller, err := recoverCaller(FundDigest(params.Epoch, amount.String(), params.Nonce), params.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "invalid signature", err.Error())
		return
	}
	if err := s.engine.FundEpoch(caller, params.Epoch, amount, params.Nonce); err != nil {
		s.writeEngineError(w, req, "funding rejected", err)
		return
	}
	metrics.Rewards().ObserveFunding()
	s.observeEpochCount()
	s.logger.Info("epoch funded", "epoch", params.Epoch, "amount", amount.String())
	writeResult(w, req.ID, map[string]string{"status": "funded"})
}

func (s *Server) handleApprove(w http.ResponseWriter, req *RPCRequest) {
	var params approveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	spender, err := parseAddress(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender", err.Error())
		return
	}
	// Zero is a valid grant: it revokes the standing allowance.
	amount, ok := new(big.Int).SetString(strings.TrimSpace(params.Amount), 10)
	if !ok || amount.Sign() < 0 || amount.BitLen() > 256 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", params.Amount)
		return
	}
	caller, err := recoverCaller(ApproveDigest(spender, amount.String()), params.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "invalid signature", err.Error())
		return
	}
	if err := s.ledger.Approve(caller, spender, amount); err != nil {
		writeError(w, http.StatusUnprocessableEntity, req.ID, codeServerError, "approval rejected", err.Error())
		return
	}
	s.logger.Info("allowance granted", "owner", "0x"+hex.EncodeToString(caller[:]), "spender", params.Spender, "amount", amount.String())
	writeResult(w, req.ID, map[string]string{"status": "approved", "amount": amount.String()})
}

func (s *Server) handlePublishRoot(w http.ResponseWriter, req *RPCRequest) {
	var params publishRootParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	root, err := parseDigest(params.Root)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid root", err.Error())
		return
	}
	caller, err := recoverCaller(PublishDigest(params.Epoch, root), params.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "invalid signature", err.Error())
		return
	}
	if err := s.engine.PublishRoot(caller, params.Epoch, root); err != nil {
		s.writeEngineError(w, req, "publication rejected", err)
		return
	}
	s.observeEpochCount()
	s.logger.Info("root published", "epoch", params.Epoch, "root", params.Root)
	writeResult(w, req.ID, map[string]string{"status": "published"})
}

func (s *Server) handleClaim(w http.ResponseWriter, req *RPCRequest) {
	var params claimParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	proof := make([]merkle.Hash, 0, len(params.Proof))
	for _, node := range params.Proof {
		sibling, err := parseDigest(node)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid proof node", err.Error())
			return
		}
		proof = append(proof, sibling)
	}
	caller, err := recoverCaller(ClaimDigest(params.Epoch, amount.String()), params.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "invalid signature", err.Error())
		return
	}
	if err := s.engine.Claim(caller, params.Epoch, amount, proof); err != nil {
		metrics.Rewards().ObserveClaim(claimOutcome(err))
		s.writeEngineError(w, req, "claim rejected", err)
		return
	}
	metrics.Rewards().ObserveClaim("ok")
	s.logger.Info("reward claimed", "epoch", params.Epoch, "claimant", "0x"+hex.EncodeToString(caller[:]), "amount", amount.String())
	writeResult(w, req.ID, map[string]string{"status": "claimed", "amount": amount.String()})
}

func (s *Server) handleSweep(w http.ResponseWriter, req *RPCRequest) {
	var params sweepParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if params.FeeBudget < s.sweepFee {
		writeError(w, http.StatusBadRequest, req.ID, codeFeeBudget, "fee budget below quote", s.sweepFee)
		return
	}
	caller, err := recoverCaller(SweepDigest(params.Epoch, params.FeeBudget), params.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "invalid signature", err.Error())
		return
	}
	swept, err := s.engine.SweepUnclaimed(caller, params.Epoch)
	if err != nil {
		s.writeEngineError(w, req, "sweep rejected", err)
		return
	}
	remainder, _ := new(big.Float).SetInt(swept).Float64()
	metrics.Rewards().ObserveSweep(remainder)
	s.logger.Info("epoch swept", "epoch", params.Epoch, "amount", swept.String())
	writeResult(w, req.ID, sweepResult{Epoch: params.Epoch, Swept: swept.String()})
}

func (s *Server) handleTransferAdmin(w http.ResponseWriter, req *RPCRequest) {
	var params transferAdminParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	next, err := parseAddress(params.Next)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	caller, err := recoverCaller(TransferAdminDigest(next), params.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "invalid signature", err.Error())
		return
	}
	if err := s.engine.TransferAdmin(caller, next); err != nil {
		s.writeEngineError(w, req, "rotation rejected", err)
		return
	}
	s.logger.Info("admin rotated", "next", params.Next)
	writeResult(w, req.ID, map[string]string{"status": "rotated", "admin": params.Next})
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	var params balanceOfParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.ledger.BalanceOf(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load balance", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}

// observeEpochCount refreshes the established-epochs gauge after a transition
// that can mint an epoch record, so the gauge tracks the state machine rather
// than query traffic.
func (s *Server) observeEpochCount() {
	count, err := s.engine.EpochCount()
	if err != nil {
		return
	}
	metrics.Rewards().SetEpochCount(float64(count))
}

// writeEngineError surfaces engine rejections verbatim; the sentinel text is
// the wire contract clients match on.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, message string, err error) {
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, rewardclaim.ErrNotAdmin), errors.Is(err, rewardclaim.ErrNotTreasury):
		status = http.StatusForbidden
	case errors.Is(err, rewardclaim.ErrTokenTransfer):
		status = http.StatusInternalServerError
	}
	writeError(w, status, req.ID, codeServerError, message, err.Error())
}

func claimOutcome(err error) string {
	switch {
	case errors.Is(err, rewardclaim.ErrNoRootPublished):
		return "no_root"
	case errors.Is(err, rewardclaim.ErrClaimWindowClosed):
		return "window_closed"
	case errors.Is(err, rewardclaim.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, rewardclaim.ErrInvalidProof):
		return "invalid_proof"
	case errors.Is(err, rewardclaim.ErrTokenTransfer):
		return "transfer_failed"
	default:
		return "error"
	}
}
