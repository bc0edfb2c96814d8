package main

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"atachain/rpc"
)

var rpcEndpoint = defaultRPCEndpoint()

func defaultRPCEndpoint() string {
	if endpoint := strings.TrimSpace(os.Getenv("ATA_RPC_URL")); endpoint != "" {
		return endpoint
	}
	return "http://localhost:8680"
}

func main() {
	args := os.Args[1:]
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(args) < 1 {
		printUsage()
		return
	}
	switch args[0] {
	case "generate-key":
		os.Exit(runGenerateKey(args[1:], os.Stdout, os.Stderr))
	case "merkle-root":
		os.Exit(runMerkleRoot(args[1:], os.Stdout, os.Stderr))
	case "approve":
		os.Exit(runApprove(args[1:], os.Stdout, os.Stderr))
	case "fund":
		os.Exit(runFund(args[1:], os.Stdout, os.Stderr))
	case "publish":
		os.Exit(runPublish(args[1:], os.Stdout, os.Stderr))
	case "claim":
		os.Exit(runClaim(args[1:], os.Stdout, os.Stderr))
	case "sweep":
		os.Exit(runSweep(args[1:], os.Stdout, os.Stderr))
	case "transfer-admin":
		os.Exit(runTransferAdmin(args[1:], os.Stdout, os.Stderr))
	case "epoch":
		os.Exit(runEpochInfo(args[1:], os.Stdout, os.Stderr))
	case "balance":
		os.Exit(runBalance(args[1:], os.Stdout, os.Stderr))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func applyGlobalFlags(args []string) ([]string, error) {
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a URL")
			}
			i++
			rpcEndpoint = args[i]
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
		default:
			remaining = append(remaining, arg)
		}
	}
	if strings.TrimSpace(rpcEndpoint) == "" {
		return nil, fmt.Errorf("rpc endpoint must not be empty")
	}
	return remaining, nil
}

func printUsage() {
	fmt.Println("Usage: ata-cli [--rpc URL] <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  generate-key  Create a new secp256k1 key file")
	fmt.Println("  merkle-root   Build the distribution root and proofs from a payout file")
	fmt.Println("  approve       Grant the vault a spending allowance on your balance")
	fmt.Println("  fund          Deposit treasury funds into an epoch pool")
	fmt.Println("  publish       Publish an epoch's Merkle root, opening the claim window")
	fmt.Println("  claim         Claim a reward with a Merkle proof")
	fmt.Println("  sweep         Settle a closed epoch's remainder back to treasury")
	fmt.Println("  transfer-admin  Rotate the administrator role to a new address")
	fmt.Println("  epoch         Show one epoch record")
	fmt.Println("  balance       Show an address's ATA balance")
}

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	path := "wallet.key"
	if len(args) > 0 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists, refusing to overwrite\n", path)
		return 1
	}
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating key: %v\n", err)
		return 1
	}
	encoded := hex.EncodeToString(ethcrypto.FromECDSA(key))
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
		fmt.Fprintf(stderr, "Error writing key file: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Key written to %s\n", path)
	fmt.Fprintf(stdout, "Address: %s\n", ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	return 0
}

func loadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x")
	return ethcrypto.HexToECDSA(trimmed)
}

func signDigest(key *ecdsa.PrivateKey, digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// callRPC posts one JSON-RPC request and returns the raw result.
func callRPC(method string, params interface{}) (json.RawMessage, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	body, err := json.Marshal(rpc.RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []json.RawMessage{encoded},
		ID:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(rpcEndpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.RPCError   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		if decoded.Error.Data != nil {
			return nil, fmt.Errorf("%s: %v", decoded.Error.Message, decoded.Error.Data)
		}
		return nil, fmt.Errorf("%s", decoded.Error.Message)
	}
	return decoded.Result, nil
}

func printJSONResult(stdout io.Writer, result json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Fprintln(stdout, string(result))
		return
	}
	fmt.Fprintln(stdout, pretty.String())
}
