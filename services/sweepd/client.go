package sweepd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"atachain/rpc"
)

// ServiceInfo mirrors rewards_serviceInfo.
type ServiceInfo struct {
	Vault    common.Address
	Treasury common.Address
	Admin    common.Address
	SweepFee uint64
	Now      int64
}

// EpochRecord is the client-side view of one epoch.
type EpochRecord struct {
	Index          uint64
	Funded         *big.Int
	TotalClaimed   *big.Int
	Unclaimed      *big.Int
	ClaimsOpenAt   int64
	WindowClosesAt int64
	Swept          bool
	Status         string
}

// Published reports whether a root was ever published for the epoch.
func (r *EpochRecord) Published() bool { return r != nil && r.ClaimsOpenAt != 0 }

// Client is the subset of the reward daemon RPC the runner uses.
type Client interface {
	ServiceInfo(ctx context.Context) (*ServiceInfo, error)
	EpochCount(ctx context.Context) (uint64, error)
	EpochInfo(ctx context.Context, epoch uint64) (*EpochRecord, bool, error)
	EstimateSweepFee(ctx context.Context, epoch uint64) (uint64, error)
	SubmitSweep(ctx context.Context, epoch uint64, feeBudget uint64, signature string) (*big.Int, error)
}

// HTTPClient implements Client against the daemon's JSON-RPC endpoint.
type HTTPClient struct {
	url        string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the given endpoint URL.
func NewHTTPClient(url string) *HTTPClient {
	return &HTTPClient{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type wireError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *wireError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("%s (code %d): %v", e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

type wireResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *wireError      `json:"error"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	var rawParams []json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("sweepd: encode params: %w", err)
		}
		rawParams = []json.RawMessage{encoded}
	}
	body, err := json.Marshal(rpc.RPCRequest{JSONRPC: "2.0", Method: method, Params: rawParams, ID: 1})
	if err != nil {
		return fmt.Errorf("sweepd: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sweepd: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sweepd: call %s: %w", method, err)
	}
	defer resp.Body.Close()
	var decoded wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("sweepd: decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("sweepd: %s: %w", method, decoded.Error)
	}
	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("sweepd: decode %s result: %w", method, err)
		}
	}
	return nil
}

// ServiceInfo fetches the daemon's role and fee configuration.
func (c *HTTPClient) ServiceInfo(ctx context.Context) (*ServiceInfo, error) {
	var result struct {
		Vault    string `json:"vault"`
		Treasury string `json:"treasury"`
		Admin    string `json:"admin"`
		SweepFee uint64 `json:"sweepFee"`
		Now      int64  `json:"now"`
	}
	if err := c.call(ctx, "rewards_serviceInfo", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &ServiceInfo{
		Vault:    common.HexToAddress(result.Vault),
		Treasury: common.HexToAddress(result.Treasury),
		Admin:    common.HexToAddress(result.Admin),
		SweepFee: result.SweepFee,
		Now:      result.Now,
	}, nil
}

// EpochCount returns the number of established epochs.
func (c *HTTPClient) EpochCount(ctx context.Context) (uint64, error) {
	var result struct {
		Count uint64 `json:"count"`
	}
	if err := c.call(ctx, "rewards_epochCount", struct{}{}, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// EpochInfo fetches one epoch record; ok=false means the id was never
// established.
func (c *HTTPClient) EpochInfo(ctx context.Context, epoch uint64) (*EpochRecord, bool, error) {
	var result struct {
		Epoch          uint64 `json:"epoch"`
		Funded         string `json:"funded"`
		TotalClaimed   string `json:"totalClaimed"`
		Unclaimed      string `json:"unclaimed"`
		ClaimsOpenAt   int64  `json:"claimsOpenAt"`
		WindowClosesAt int64  `json:"windowClosesAt"`
		Swept          bool   `json:"swept"`
		Status         string `json:"status"`
	}
	err := c.call(ctx, "rewards_epochInfo", map[string]uint64{"epoch": epoch}, &result)
	if err != nil {
		var wired *wireError
		if errors.As(err, &wired) && wired.Code == rpc.CodeEpochNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	record := &EpochRecord{
		Index:          result.Epoch,
		ClaimsOpenAt:   result.ClaimsOpenAt,
		WindowClosesAt: result.WindowClosesAt,
		Swept:          result.Swept,
		Status:         result.Status,
	}
	if record.Funded, err = parseUnits(result.Funded); err != nil {
		return nil, false, err
	}
	if record.TotalClaimed, err = parseUnits(result.TotalClaimed); err != nil {
		return nil, false, err
	}
	if record.Unclaimed, err = parseUnits(result.Unclaimed); err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// EstimateSweepFee asks the daemon for the current sweep fee quote.
func (c *HTTPClient) EstimateSweepFee(ctx context.Context, epoch uint64) (uint64, error) {
	var result struct {
		Fee uint64 `json:"fee"`
	}
	if err := c.call(ctx, "rewards_estimateSweepFee", map[string]uint64{"epoch": epoch}, &result); err != nil {
		return 0, err
	}
	return result.Fee, nil
}

// SubmitSweep submits the signed sweep and returns the settled amount.
func (c *HTTPClient) SubmitSweep(ctx context.Context, epoch uint64, feeBudget uint64, signature string) (*big.Int, error) {
	var result struct {
		Swept string `json:"swept"`
	}
	params := map[string]interface{}{
		"epoch":     epoch,
		"feeBudget": feeBudget,
		"signature": signature,
	}
	if err := c.call(ctx, "rewards_sweep", params, &result); err != nil {
		return nil, err
	}
	return parseUnits(result.Swept)
}

func parseUnits(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("sweepd: malformed amount %q", raw)
	}
	return value, nil
}
