package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Operation digests bind a signature to one specific call shape. The signer
// is the caller: the engine's role checks run against the recovered address,
// so a stolen signature grants nothing beyond replaying the identical call.

// FundDigest is the signing payload for rewards_fund. The nonce makes each
// funding signature single-use: the engine only accepts the next unused
// value, so a captured submission cannot move treasury funds twice.
func FundDigest(epoch uint64, amount string, nonce uint64) []byte {
	payload := fmt.Sprintf("ata_fund|%d|%s|%d", epoch, amount, nonce)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

// ApproveDigest is the signing payload for token_approve.
func ApproveDigest(spender [20]byte, amount string) []byte {
	payload := fmt.Sprintf("ata_approve|%s|%s", hex.EncodeToString(spender[:]), amount)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

// PublishDigest is the signing payload for rewards_publishRoot.
func PublishDigest(epoch uint64, root [32]byte) []byte {
	payload := fmt.Sprintf("ata_publish|%d|%s", epoch, hex.EncodeToString(root[:]))
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

// ClaimDigest is the signing payload for rewards_claim.
func ClaimDigest(epoch uint64, amount string) []byte {
	payload := fmt.Sprintf("ata_claim|%d|%s", epoch, amount)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

// SweepDigest is the signing payload for rewards_sweep.
func SweepDigest(epoch uint64, feeBudget uint64) []byte {
	payload := fmt.Sprintf("ata_sweep|%d|%d", epoch, feeBudget)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

// TransferAdminDigest is the signing payload for rewards_transferAdmin.
func TransferAdminDigest(next [20]byte) []byte {
	payload := fmt.Sprintf("ata_transfer_admin|%s", hex.EncodeToString(next[:]))
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

// recoverCaller returns the address that produced the 65-byte hex signature
// over digest.
func recoverCaller(digest []byte, signature string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(signature), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != 65 {
		return addr, fmt.Errorf("signature must be 65 bytes, got %d", len(raw))
	}
	pub, err := ethcrypto.SigToPub(digest, raw)
	if err != nil {
		return addr, fmt.Errorf("recover signer: %w", err)
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	copy(addr[:], recovered[:])
	return addr, nil
}
