package merkle

import (
	"math/big"
	"testing"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func testLeaves(t *testing.T, n int) []Hash {
	t.Helper()
	leaves := make([]Hash, n)
	for i := 0; i < n; i++ {
		leaves[i] = LeafHash(testAddr(byte(i+1)), big.NewInt(int64(100*(i+1))), 7)
	}
	return leaves
}

func TestRoundTripAllLeaves(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 8, 13} {
		leaves := testLeaves(t, n)
		tree, err := NewTree(leaves)
		if err != nil {
			t.Fatalf("n=%d: build tree: %v", n, err)
		}
		root := tree.Root()
		for i, leaf := range leaves {
			proof, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("n=%d leaf=%d: proof: %v", n, i, err)
			}
			if !Verify(leaf, proof, root) {
				t.Fatalf("n=%d leaf=%d: proof rejected", n, i)
			}
		}
	}
}

func TestSingleLeafEmptyProof(t *testing.T) {
	leaf := LeafHash(testAddr(0xAB), big.NewInt(500), 1)
	tree, err := NewTree([]Hash{leaf})
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if tree.Root() != leaf {
		t.Fatal("single-leaf root should equal the leaf")
	}
	if !Verify(leaf, nil, leaf) {
		t.Fatal("empty proof should verify leaf against itself")
	}
}

func TestLeafFieldsAreJointlyCommitted(t *testing.T) {
	addr := testAddr(0x11)
	base := LeafHash(addr, big.NewInt(100), 3)
	if LeafHash(addr, big.NewInt(101), 3) == base {
		t.Fatal("amount change must alter the leaf")
	}
	if LeafHash(addr, big.NewInt(100), 4) == base {
		t.Fatal("epoch change must alter the leaf")
	}
	if LeafHash(testAddr(0x12), big.NewInt(100), 3) == base {
		t.Fatal("address change must alter the leaf")
	}
}

func TestProofDoesNotTransferAcrossLeafSets(t *testing.T) {
	included := testLeaves(t, 6)
	tree, err := NewTree(included)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	outsider := LeafHash(testAddr(0xEE), big.NewInt(999), 7)
	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if Verify(outsider, proof, tree.Root()) {
		t.Fatal("foreign leaf must not verify with a stolen proof")
	}

	excluding, err := NewTree(included[1:])
	if err != nil {
		t.Fatalf("build reduced tree: %v", err)
	}
	if Verify(included[0], proof, excluding.Root()) {
		t.Fatal("leaf must not verify against a root excluding it")
	}
}

func TestTamperedProofRejected(t *testing.T) {
	leaves := testLeaves(t, 4)
	tree, err := NewTree(leaves)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	proof, err := tree.Proof(2)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	proof[0][31] ^= 0x01
	if Verify(leaves[2], proof, tree.Root()) {
		t.Fatal("tampered sibling must invalidate the proof")
	}
}

func TestEmptyLeafSetRejected(t *testing.T) {
	if _, err := NewTree(nil); err == nil {
		t.Fatal("expected error for empty leaf set")
	}
}

func TestProofIndexBounds(t *testing.T) {
	tree, err := NewTree(testLeaves(t, 3))
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if _, err := tree.Proof(-1); err == nil {
		t.Fatal("expected error for negative index")
	}
	if _, err := tree.Proof(3); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}
