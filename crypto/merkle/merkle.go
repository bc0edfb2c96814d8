// Package merkle implements the commitment scheme used for ATA reward
// distributions: keccak256 leaves over (address, amount, epoch) and
// sorted-pair interior hashing, so a proof carries no left/right position
// bits and verifies identically regardless of sibling order.
package merkle

import (
	"bytes"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Hash is a 32-byte keccak256 digest.
type Hash = [32]byte

// LeafHash derives the leaf digest for one claimable entry. The encoding is
// fixed width (20 + 32 + 32 bytes) so no field can bleed into another:
// keccak256(address || amount_be32 || epoch_be32). Amounts wider than 256
// bits have no encoding; callers must reject them before hashing.
func LeafHash(addr [20]byte, amount *big.Int, epoch uint64) Hash {
	buf := make([]byte, 20+32+32)
	copy(buf[:20], addr[:])
	if amount != nil && amount.Sign() > 0 {
		amount.FillBytes(buf[20:52])
	}
	new(big.Int).SetUint64(epoch).FillBytes(buf[52:84])
	var out Hash
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// hashPair combines two digests in byte order. Sorting before hashing is what
// makes proofs position free.
func hashPair(a, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var out Hash
	copy(out[:], ethcrypto.Keccak256(a[:], b[:]))
	return out
}

// Verify folds the proof path into the leaf and reports whether the result
// equals root. An empty proof means the tree has a single leaf, so membership
// reduces to leaf == root. Verify never fails; non-membership is just false.
func Verify(leaf Hash, proof []Hash, root Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}

// Tree is a full Merkle tree over a leaf set, used by the off-chain tooling
// and tests to generate proofs that the on-service verifier accepts. Interior
// nodes hash sorted pairs, matching Verify; an odd node at any level is
// paired with itself.
type Tree struct {
	levels [][]Hash
}

// NewTree builds the tree bottom-up from the given leaves. At least one leaf
// is required.
func NewTree(leaves []Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("merkle: empty leaf set")
	}
	level := make([]Hash, len(leaves))
	copy(level, leaves)
	levels := [][]Hash{level}
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}, nil
}

// Root returns the tree's commitment digest.
func (t *Tree) Root() Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the sibling path for the leaf at index i, ordered leaf to
// root.
func (t *Tree) Proof(i int) ([]Hash, error) {
	if i < 0 || i >= len(t.levels[0]) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range", i)
	}
	proof := make([]Hash, 0, len(t.levels)-1)
	idx := i
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx
		}
		proof = append(proof, level[sibling])
		idx /= 2
	}
	return proof, nil
}
