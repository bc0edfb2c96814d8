package sweepd

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs operation digests with the administrator key.
type Signer struct {
	key *ecdsa.PrivateKey
}

// LoadSigner reads a hex-encoded secp256k1 private key from path.
func LoadSigner(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sweepd: read key file: %w", err)
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x")
	key, err := ethcrypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("sweepd: parse key: %w", err)
	}
	return &Signer{key: key}, nil
}

// NewSigner wraps an in-memory key, for tests.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// Sign produces the 65-byte hex signature over digest.
func (s *Signer) Sign(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("sweepd: sign digest: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// Address returns the signer's address; it must hold the administrator role
// for sweeps to be accepted.
func (s *Signer) Address() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.PubkeyToAddress(s.key.PublicKey).Bytes())
	return addr
}
