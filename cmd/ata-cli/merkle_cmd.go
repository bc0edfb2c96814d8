package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"atachain/crypto/merkle"
)

// distributionEntry is one payout line in the input file: who gets how much.
type distributionEntry struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type distributionProof struct {
	Address string   `json:"address"`
	Amount  string   `json:"amount"`
	Proof   []string `json:"proof"`
}

type distributionOutput struct {
	Epoch   uint64              `json:"epoch"`
	Root    string              `json:"root"`
	Entries []distributionProof `json:"entries"`
}

func parseRootHex(raw string) ([32]byte, error) {
	var root [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return root, fmt.Errorf("decode root: %w", err)
	}
	if len(decoded) != len(root) {
		return root, fmt.Errorf("root must be 32 bytes, got %d", len(decoded))
	}
	copy(root[:], decoded)
	return root, nil
}

func parseEntryAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("decode address %q: %w", raw, err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("address %q must be 20 bytes, got %d", raw, len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

// buildDistribution turns payout entries into the commitment artifacts: the
// root to publish and one proof per entry for claimants.
func buildDistribution(epoch uint64, entries []distributionEntry) (*distributionOutput, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("distribution has no entries")
	}
	leaves := make([]merkle.Hash, 0, len(entries))
	for _, entry := range entries {
		addr, err := parseEntryAddress(entry.Address)
		if err != nil {
			return nil, err
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(entry.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("entry %s: amount must be a positive decimal, got %q", entry.Address, entry.Amount)
		}
		if amount.BitLen() > 256 {
			return nil, fmt.Errorf("entry %s: amount does not fit in 32 bytes", entry.Address)
		}
		leaves = append(leaves, merkle.LeafHash(addr, amount, epoch))
	}
	tree, err := merkle.NewTree(leaves)
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	out := &distributionOutput{
		Epoch:   epoch,
		Root:    "0x" + hex.EncodeToString(root[:]),
		Entries: make([]distributionProof, 0, len(entries)),
	}
	for i, entry := range entries {
		proof, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		nodes := make([]string, 0, len(proof))
		for _, node := range proof {
			nodes = append(nodes, "0x"+hex.EncodeToString(node[:]))
		}
		out.Entries = append(out.Entries, distributionProof{
			Address: entry.Address,
			Amount:  entry.Amount,
			Proof:   nodes,
		})
	}
	return out, nil
}

func runMerkleRoot(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("merkle-root", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		file  string
		epoch uint64
	)
	fs.StringVar(&file, "file", "", "JSON payout file: [{\"address\": \"0x..\", \"amount\": \"100\"}, ...]")
	fs.Uint64Var(&epoch, "epoch", 0, "epoch id the leaves commit to")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(file) == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		return 1
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading %s: %v\n", file, err)
		return 1
	}
	var entries []distributionEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		fmt.Fprintf(stderr, "Error parsing %s: %v\n", file, err)
		return 1
	}
	out, err := buildDistribution(epoch, entries)
	if err != nil {
		fmt.Fprintf(stderr, "Error building distribution: %v\n", err)
		return 1
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error encoding output: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(encoded))
	return 0
}
