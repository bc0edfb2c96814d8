package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"

	"atachain/rpc"
)

type fundCLIParams struct {
	Epoch     uint64 `json:"epoch"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type approveCLIParams struct {
	Spender   string `json:"spender"`
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

type publishCLIParams struct {
	Epoch     uint64 `json:"epoch"`
	Root      string `json:"root"`
	Signature string `json:"signature"`
}

type claimCLIParams struct {
	Epoch     uint64   `json:"epoch"`
	Amount    string   `json:"amount"`
	Proof     []string `json:"proof"`
	Signature string   `json:"signature"`
}

type sweepCLIParams struct {
	Epoch     uint64 `json:"epoch"`
	FeeBudget uint64 `json:"feeBudget"`
	Signature string `json:"signature"`
}

func parseCLIAmount(raw string, stderr io.Writer) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		fmt.Fprintf(stderr, "Error: amount must be a positive decimal, got %q\n", raw)
		return nil, false
	}
	return amount, true
}

func runFund(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fund", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		epoch  uint64
		amount string
		key    string
	)
	fs.Uint64Var(&epoch, "epoch", 0, "epoch id to fund")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	fs.StringVar(&key, "key", "wallet.key", "path to the treasury signing key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	parsed, ok := parseCLIAmount(amount, stderr)
	if !ok {
		return 1
	}
	privKey, err := loadPrivateKey(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading key: %v\n", err)
		return 1
	}
	nonce, err := fetchFundNonce()
	if err != nil {
		fmt.Fprintf(stderr, "Error fetching funding nonce: %v\n", err)
		return 1
	}
	signature, err := signDigest(privKey, rpc.FundDigest(epoch, parsed.String(), nonce))
	if err != nil {
		fmt.Fprintf(stderr, "Error signing: %v\n", err)
		return 1
	}
	result, err := callRPC("rewards_fund", fundCLIParams{Epoch: epoch, Amount: parsed.String(), Nonce: nonce, Signature: signature})
	if err != nil {
		fmt.Fprintf(stderr, "Error funding epoch: %v\n", err)
		return 1
	}
	printJSONResult(stdout, result)
	return 0
}

// fetchFundNonce asks the daemon which nonce the next funding must carry.
func fetchFundNonce() (uint64, error) {
	raw, err := callRPC("rewards_fundNonce", struct{}{})
	if err != nil {
		return 0, err
	}
	var result struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("decode nonce: %w", err)
	}
	return result.Nonce, nil
}

func runApprove(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		spender string
		amount  string
		key     string
	)
	fs.StringVar(&spender, "spender", "", "spender address (the vault, see rewards_serviceInfo)")
	fs.StringVar(&amount, "amount", "", "allowance in base units, 0 revokes")
	fs.StringVar(&key, "key", "wallet.key", "path to the owner signing key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := parseEntryAddress(spender)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	parsed, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok || parsed.Sign() < 0 {
		fmt.Fprintf(stderr, "Error: amount must be a non-negative decimal, got %q\n", amount)
		return 1
	}
	privKey, err := loadPrivateKey(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading key: %v\n", err)
		return 1
	}
	signature, err := signDigest(privKey, rpc.ApproveDigest(addr, parsed.String()))
	if err != nil {
		fmt.Fprintf(stderr, "Error signing: %v\n", err)
		return 1
	}
	result, err := callRPC("token_approve", approveCLIParams{Spender: spender, Amount: parsed.String(), Signature: signature})
	if err != nil {
		fmt.Fprintf(stderr, "Error approving spender: %v\n", err)
		return 1
	}
	printJSONResult(stdout, result)
	return 0
}

func runPublish(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		epoch uint64
		root  string
		key   string
	)
	fs.Uint64Var(&epoch, "epoch", 0, "epoch id")
	fs.StringVar(&root, "root", "", "hex Merkle root (see merkle-root)")
	fs.StringVar(&key, "key", "wallet.key", "path to the administrator signing key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	parsed, err := parseRootHex(root)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	privKey, err := loadPrivateKey(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading key: %v\n", err)
		return 1
	}
	signature, err := signDigest(privKey, rpc.PublishDigest(epoch, parsed))
	if err != nil {
		fmt.Fprintf(stderr, "Error signing: %v\n", err)
		return 1
	}
	result, err := callRPC("rewards_publishRoot", publishCLIParams{Epoch: epoch, Root: root, Signature: signature})
	if err != nil {
		fmt.Fprintf(stderr, "Error publishing root: %v\n", err)
		return 1
	}
	printJSONResult(stdout, result)
	return 0
}

func runClaim(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		epoch  uint64
		amount string
		proof  string
		key    string
	)
	fs.Uint64Var(&epoch, "epoch", 0, "epoch id")
	fs.StringVar(&amount, "amount", "", "claimable amount in base units")
	fs.StringVar(&proof, "proof", "", "comma separated hex sibling digests, leaf to root")
	fs.StringVar(&key, "key", "wallet.key", "path to the claimant signing key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	parsed, ok := parseCLIAmount(amount, stderr)
	if !ok {
		return 1
	}
	nodes := []string{}
	if trimmed := strings.TrimSpace(proof); trimmed != "" {
		nodes = strings.Split(trimmed, ",")
	}
	privKey, err := loadPrivateKey(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading key: %v\n", err)
		return 1
	}
	signature, err := signDigest(privKey, rpc.ClaimDigest(epoch, parsed.String()))
	if err != nil {
		fmt.Fprintf(stderr, "Error signing: %v\n", err)
		return 1
	}
	result, err := callRPC("rewards_claim", claimCLIParams{
		Epoch:     epoch,
		Amount:    parsed.String(),
		Proof:     nodes,
		Signature: signature,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error claiming: %v\n", err)
		return 1
	}
	printJSONResult(stdout, result)
	return 0
}

func runSweep(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		epoch     uint64
		feeBudget uint64
		key       string
	)
	fs.Uint64Var(&epoch, "epoch", 0, "epoch id")
	fs.Uint64Var(&feeBudget, "fee-budget", 0, "maximum fee, must cover the rewards_estimateSweepFee quote")
	fs.StringVar(&key, "key", "wallet.key", "path to the administrator signing key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if feeBudget == 0 {
		fmt.Fprintln(stderr, "Error: --fee-budget is required")
		return 1
	}
	privKey, err := loadPrivateKey(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading key: %v\n", err)
		return 1
	}
	signature, err := signDigest(privKey, rpc.SweepDigest(epoch, feeBudget))
	if err != nil {
		fmt.Fprintf(stderr, "Error signing: %v\n", err)
		return 1
	}
	result, err := callRPC("rewards_sweep", sweepCLIParams{Epoch: epoch, FeeBudget: feeBudget, Signature: signature})
	if err != nil {
		fmt.Fprintf(stderr, "Error sweeping: %v\n", err)
		return 1
	}
	printJSONResult(stdout, result)
	return 0
}

func runTransferAdmin(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transfer-admin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		next string
		key  string
	)
	fs.StringVar(&next, "next", "", "hex address receiving the administrator role")
	fs.StringVar(&key, "key", "wallet.key", "path to the current administrator signing key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := parseEntryAddress(next)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	privKey, err := loadPrivateKey(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading key: %v\n", err)
		return 1
	}
	signature, err := signDigest(privKey, rpc.TransferAdminDigest(addr))
	if err != nil {
		fmt.Fprintf(stderr, "Error signing: %v\n", err)
		return 1
	}
	result, err := callRPC("rewards_transferAdmin", map[string]string{"next": next, "signature": signature})
	if err != nil {
		fmt.Fprintf(stderr, "Error rotating admin: %v\n", err)
		return 1
	}
	printJSONResult(stdout, result)
	return 0
}

func runEpochInfo(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("epoch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var epoch uint64
	fs.Uint64Var(&epoch, "epoch", 0, "epoch id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := callRPC("rewards_epochInfo", map[string]uint64{"epoch": epoch})
	if err != nil {
		fmt.Fprintf(stderr, "Error fetching epoch: %v\n", err)
		return 1
	}
	printJSONResult(stdout, result)
	return 0
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var address string
	fs.StringVar(&address, "addr", "", "hex address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(address) == "" {
		fmt.Fprintln(stderr, "Error: --addr is required")
		return 1
	}
	result, err := callRPC("token_balanceOf", map[string]string{"address": address})
	if err != nil {
		fmt.Fprintf(stderr, "Error fetching balance: %v\n", err)
		return 1
	}
	printJSONResult(stdout, result)
	return 0
}
