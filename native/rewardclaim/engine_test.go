package rewardclaim

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"atachain/core/events"
	"atachain/crypto/merkle"
	"atachain/native/token"
)

type mockState struct {
	epochs    map[uint64]*Epoch
	count     uint64
	claimed   map[string]bool
	fundNonce uint64
	admin     *[20]byte
}

func newMockState() *mockState {
	return &mockState{
		epochs:  make(map[uint64]*Epoch),
		claimed: make(map[string]bool),
	}
}

func claimKey(index uint64, addr [20]byte) string {
	return fmt.Sprintf("%d/%x", index, addr)
}

func (m *mockState) RewardEpoch(index uint64) (*Epoch, bool, error) {
	epoch, ok := m.epochs[index]
	if !ok {
		return nil, false, nil
	}
	return epoch.Clone(), true, nil
}

func (m *mockState) PutRewardEpoch(epoch *Epoch) error {
	m.epochs[epoch.Index] = epoch.Clone()
	return nil
}

func (m *mockState) RewardEpochCount() (uint64, error) { return m.count, nil }

func (m *mockState) SetRewardEpochCount(count uint64) error {
	m.count = count
	return nil
}

func (m *mockState) RewardClaimed(index uint64, addr [20]byte) (bool, error) {
	return m.claimed[claimKey(index, addr)], nil
}

func (m *mockState) SetRewardClaimed(index uint64, addr [20]byte) error {
	m.claimed[claimKey(index, addr)] = true
	return nil
}

func (m *mockState) RewardFundNonce() (uint64, error) { return m.fundNonce, nil }

func (m *mockState) SetRewardFundNonce(nonce uint64) error {
	m.fundNonce = nonce
	return nil
}

func (m *mockState) RewardAdmin() ([20]byte, bool, error) {
	if m.admin == nil {
		return [20]byte{}, false, nil
	}
	return *m.admin, true, nil
}

func (m *mockState) SetRewardAdmin(addr [20]byte) error {
	m.admin = &addr
	return nil
}

type memTokenState struct {
	balances   map[[20]byte]*big.Int
	allowances map[string]*big.Int
	supply     *big.Int
}

func newMemTokenState() *memTokenState {
	return &memTokenState{
		balances:   make(map[[20]byte]*big.Int),
		allowances: make(map[string]*big.Int),
	}
}

func allowanceKey(owner, spender [20]byte) string {
	return fmt.Sprintf("%x/%x", owner, spender)
}

func (s *memTokenState) TokenBalance(addr [20]byte) (*big.Int, error) {
	if balance, ok := s.balances[addr]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (s *memTokenState) SetTokenBalance(addr [20]byte, amount *big.Int) error {
	s.balances[addr] = new(big.Int).Set(amount)
	return nil
}

func (s *memTokenState) TokenAllowance(owner, spender [20]byte) (*big.Int, error) {
	if allowance, ok := s.allowances[allowanceKey(owner, spender)]; ok {
		return new(big.Int).Set(allowance), nil
	}
	return big.NewInt(0), nil
}

func (s *memTokenState) SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error {
	s.allowances[allowanceKey(owner, spender)] = new(big.Int).Set(amount)
	return nil
}

func (s *memTokenState) TokenSupply() (*big.Int, error) {
	if s.supply == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(s.supply), nil
}

func (s *memTokenState) SetTokenSupply(amount *big.Int) error {
	s.supply = new(big.Int).Set(amount)
	return nil
}

type captureEmitter struct {
	captured []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.captured = append(c.captured, evt)
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type testEnv struct {
	engine   *Engine
	ledger   *token.Ledger
	emitter  *captureEmitter
	treasury [20]byte
	admin    [20]byte
	now      int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		treasury: newTestAddress(0x71),
		admin:    newTestAddress(0xAD),
		now:      1_700_000_000,
	}
	env.ledger = token.NewLedger(newMemTokenState())
	if err := env.ledger.InitGenesis(env.treasury, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if err := env.ledger.Approve(env.treasury, VaultAddress, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("approve vault: %v", err)
	}
	env.emitter = &captureEmitter{}
	env.engine = NewEngine(env.treasury, env.admin)
	env.engine.SetState(newMockState())
	env.engine.SetLedger(env.ledger)
	env.engine.SetEmitter(env.emitter)
	env.engine.SetNowFunc(func() int64 { return env.now })
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.now += int64(d / time.Second)
}

// fund submits a funding with the current nonce, the way a signer that
// queried rewards_fundNonce first would.
func (env *testEnv) fund(caller [20]byte, index uint64, amount *big.Int) error {
	nonce, err := env.engine.FundNonce()
	if err != nil {
		return err
	}
	return env.engine.FundEpoch(caller, index, amount, nonce)
}

func (env *testEnv) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	balance, err := env.ledger.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

// distribution builds a Merkle tree over (address, amount) pairs for an epoch
// and returns the root plus a proof lookup.
func distribution(t *testing.T, epoch uint64, entries map[[20]byte]*big.Int) ([32]byte, map[[20]byte][]merkle.Hash) {
	t.Helper()
	addrs := make([][20]byte, 0, len(entries))
	leaves := make([]merkle.Hash, 0, len(entries))
	for addr, amount := range entries {
		addrs = append(addrs, addr)
		leaves = append(leaves, merkle.LeafHash(addr, amount, epoch))
	}
	tree, err := merkle.NewTree(leaves)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	proofs := make(map[[20]byte][]merkle.Hash, len(addrs))
	for i, addr := range addrs {
		proof, err := tree.Proof(i)
		if err != nil {
			t.Fatalf("proof: %v", err)
		}
		proofs[addr] = proof
	}
	return tree.Root(), proofs
}

func TestFundRequiresTreasury(t *testing.T) {
	env := newTestEnv(t)
	if err := env.fund(env.admin, 0, big.NewInt(100)); !errors.Is(err, ErrNotTreasury) {
		t.Fatalf("expected ErrNotTreasury, got %v", err)
	}
	if err := env.fund(newTestAddress(0x99), 0, big.NewInt(100)); !errors.Is(err, ErrNotTreasury) {
		t.Fatalf("expected ErrNotTreasury for stranger, got %v", err)
	}
}

func TestFundRejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)
	if err := env.fund(env.treasury, 0, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if err := env.fund(env.treasury, 0, nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount for nil, got %v", err)
	}
}

func TestFundMovesTokensIntoVault(t *testing.T) {
	env := newTestEnv(t)
	if err := env.fund(env.treasury, 0, big.NewInt(400)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.fund(env.treasury, 0, big.NewInt(100)); err != nil {
		t.Fatalf("second fund: %v", err)
	}
	if got := env.balance(t, VaultAddress); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("vault balance = %s, want 500", got)
	}
	epoch, ok, err := env.engine.EpochInfo(0)
	if err != nil || !ok {
		t.Fatalf("epoch info: ok=%v err=%v", ok, err)
	}
	if epoch.Funded.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("funded = %s, want 500", epoch.Funded)
	}
	if epoch.Start != env.now {
		t.Fatalf("start = %d, want %d", epoch.Start, env.now)
	}
	if epoch.StatusAt(env.now) != StatusFunded {
		t.Fatalf("status = %s, want funded", epoch.StatusAt(env.now))
	}
}

func TestFundFailsWithoutAllowance(t *testing.T) {
	env := newTestEnv(t)
	if err := env.ledger.Approve(env.treasury, VaultAddress, big.NewInt(0)); err != nil {
		t.Fatalf("clear allowance: %v", err)
	}
	err := env.fund(env.treasury, 0, big.NewInt(100))
	if !errors.Is(err, ErrTokenTransfer) {
		t.Fatalf("expected ErrTokenTransfer, got %v", err)
	}
	if count, _ := env.engine.EpochCount(); count != 0 {
		t.Fatalf("failed fund must not establish the epoch, count = %d", count)
	}
}

func TestEpochIdsAreDense(t *testing.T) {
	env := newTestEnv(t)
	if err := env.fund(env.treasury, 1, big.NewInt(100)); !errors.Is(err, ErrEpochOutOfOrder) {
		t.Fatalf("expected ErrEpochOutOfOrder, got %v", err)
	}
	if err := env.fund(env.treasury, 0, big.NewInt(100)); err != nil {
		t.Fatalf("fund epoch 0: %v", err)
	}
	if err := env.fund(env.treasury, 1, big.NewInt(100)); err != nil {
		t.Fatalf("fund epoch 1: %v", err)
	}
	count, err := env.engine.EpochCount()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestPublishRequiresAdminAndRoot(t *testing.T) {
	env := newTestEnv(t)
	root := [32]byte{0x01}
	if err := env.engine.PublishRoot(env.treasury, 0, root); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, [32]byte{}); !errors.Is(err, ErrZeroRoot) {
		t.Fatalf("expected ErrZeroRoot, got %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}
	epoch, ok, err := env.engine.EpochInfo(0)
	if err != nil || !ok {
		t.Fatalf("epoch info: ok=%v err=%v", ok, err)
	}
	if epoch.ClaimsOpenAt != env.now || epoch.Start != env.now {
		t.Fatalf("timestamps not set: open=%d start=%d now=%d", epoch.ClaimsOpenAt, epoch.Start, env.now)
	}
	if epoch.StatusAt(env.now) != StatusOpen {
		t.Fatalf("status = %s, want open", epoch.StatusAt(env.now))
	}
}

func TestClaimLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := newTestAddress(0xA1)
	bob := newTestAddress(0xB1)
	entries := map[[20]byte]*big.Int{
		alice: big.NewInt(300),
		bob:   big.NewInt(200),
	}
	root, proofs := distribution(t, 0, entries)
	if err := env.fund(env.treasury, 0, big.NewInt(1000)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := env.engine.Claim(alice, 0, big.NewInt(300), proofs[alice]); err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	if got := env.balance(t, alice); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("alice balance = %s, want 300", got)
	}
	epoch, _, _ := env.engine.EpochInfo(0)
	if epoch.TotalClaimed.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("totalClaimed = %s, want 300", epoch.TotalClaimed)
	}

	// Replay with a still-valid proof.
	if err := env.engine.Claim(alice, 0, big.NewInt(300), proofs[alice]); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	// Claiming a different amount than committed.
	if err := env.engine.Claim(bob, 0, big.NewInt(500), proofs[bob]); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for wrong amount, got %v", err)
	}
	// Claiming with another address's proof.
	if err := env.engine.Claim(newTestAddress(0xC1), 0, big.NewInt(200), proofs[bob]); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for stolen proof, got %v", err)
	}

	if err := env.engine.Claim(bob, 0, big.NewInt(200), proofs[bob]); err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	epoch, _, _ = env.engine.EpochInfo(0)
	if epoch.TotalClaimed.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("totalClaimed = %s, want 500", epoch.TotalClaimed)
	}
	if epoch.TotalClaimed.Cmp(epoch.Funded) > 0 {
		t.Fatal("totalClaimed exceeded funded")
	}
}

func TestClaimBeforePublishRejected(t *testing.T) {
	env := newTestEnv(t)
	if err := env.fund(env.treasury, 0, big.NewInt(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	err := env.engine.Claim(newTestAddress(0xA1), 0, big.NewInt(100), nil)
	if !errors.Is(err, ErrNoRootPublished) {
		t.Fatalf("expected ErrNoRootPublished, got %v", err)
	}
	// Unknown epoch id behaves the same.
	err = env.engine.Claim(newTestAddress(0xA1), 7, big.NewInt(100), nil)
	if !errors.Is(err, ErrNoRootPublished) {
		t.Fatalf("expected ErrNoRootPublished for unknown epoch, got %v", err)
	}
}

func TestClaimWindowBoundaryInclusive(t *testing.T) {
	env := newTestEnv(t)
	alice := newTestAddress(0xA1)
	bob := newTestAddress(0xB1)
	root, proofs := distribution(t, 0, map[[20]byte]*big.Int{
		alice: big.NewInt(50),
		bob:   big.NewInt(60),
	})
	if err := env.fund(env.treasury, 0, big.NewInt(200)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}

	env.advance(ClaimWindow)
	if err := env.engine.Claim(alice, 0, big.NewInt(50), proofs[alice]); err != nil {
		t.Fatalf("claim at exact deadline must succeed: %v", err)
	}
	env.advance(time.Second)
	if err := env.engine.Claim(bob, 0, big.NewInt(60), proofs[bob]); !errors.Is(err, ErrClaimWindowClosed) {
		t.Fatalf("expected ErrClaimWindowClosed, got %v", err)
	}
}

func TestRepublishRearmsWindow(t *testing.T) {
	env := newTestEnv(t)
	alice := newTestAddress(0xA1)
	bob := newTestAddress(0xB1)
	root, proofs := distribution(t, 0, map[[20]byte]*big.Int{
		alice: big.NewInt(50),
		bob:   big.NewInt(60),
	})
	if err := env.fund(env.treasury, 0, big.NewInt(200)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := env.engine.Claim(alice, 0, big.NewInt(50), proofs[alice]); err != nil {
		t.Fatalf("alice claim: %v", err)
	}

	env.advance(ClaimWindow + time.Hour)
	if err := env.engine.Claim(bob, 0, big.NewInt(60), proofs[bob]); !errors.Is(err, ErrClaimWindowClosed) {
		t.Fatalf("expected ErrClaimWindowClosed, got %v", err)
	}

	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("republish: %v", err)
	}
	if err := env.engine.Claim(bob, 0, big.NewInt(60), proofs[bob]); err != nil {
		t.Fatalf("claim in re-armed window: %v", err)
	}
	// Claimed flags survive republication.
	if err := env.engine.Claim(alice, 0, big.NewInt(50), proofs[alice]); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed after re-arm, got %v", err)
	}
}

func TestSweepLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := newTestAddress(0xA1)
	root, proofs := distribution(t, 0, map[[20]byte]*big.Int{alice: big.NewInt(100)})
	if err := env.fund(env.treasury, 0, big.NewInt(1000)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := env.engine.Claim(alice, 0, big.NewInt(100), proofs[alice]); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if _, err := env.engine.SweepUnclaimed(env.treasury, 0); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if _, err := env.engine.SweepUnclaimed(env.admin, 0); !errors.Is(err, ErrClaimWindowOpen) {
		t.Fatalf("expected ErrClaimWindowOpen, got %v", err)
	}

	treasuryBefore := env.balance(t, env.treasury)
	env.advance(ClaimWindow + time.Second)
	swept, err := env.engine.SweepUnclaimed(env.admin, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("swept = %s, want 900", swept)
	}
	gained := new(big.Int).Sub(env.balance(t, env.treasury), treasuryBefore)
	if gained.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("treasury gained %s, want 900", gained)
	}
	if got := env.balance(t, VaultAddress); got.Sign() != 0 {
		t.Fatalf("vault balance = %s, want 0", got)
	}

	// Exactly-once: re-sweeping the same remainder is rejected.
	if _, err := env.engine.SweepUnclaimed(env.admin, 0); !errors.Is(err, ErrAlreadySwept) {
		t.Fatalf("expected ErrAlreadySwept, got %v", err)
	}
	epoch, _, _ := env.engine.EpochInfo(0)
	if !epoch.Swept || epoch.SweptAmount.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("swept flag/amount = %v/%s", epoch.Swept, epoch.SweptAmount)
	}
	if epoch.StatusAt(env.now) != StatusSwept {
		t.Fatalf("status = %s, want swept", epoch.StatusAt(env.now))
	}
}

func TestSweepZeroRemainderIsNoop(t *testing.T) {
	env := newTestEnv(t)
	alice := newTestAddress(0xA1)
	root, proofs := distribution(t, 0, map[[20]byte]*big.Int{alice: big.NewInt(100)})
	if err := env.fund(env.treasury, 0, big.NewInt(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := env.engine.Claim(alice, 0, big.NewInt(100), proofs[alice]); err != nil {
		t.Fatalf("claim: %v", err)
	}
	env.advance(ClaimWindow + time.Second)
	treasuryBefore := env.balance(t, env.treasury)
	swept, err := env.engine.SweepUnclaimed(env.admin, 0)
	if err != nil {
		t.Fatalf("zero-remainder sweep must succeed: %v", err)
	}
	if swept.Sign() != 0 {
		t.Fatalf("swept = %s, want 0", swept)
	}
	if env.balance(t, env.treasury).Cmp(treasuryBefore) != 0 {
		t.Fatal("no transfer expected for zero remainder")
	}
	epoch, _, _ := env.engine.EpochInfo(0)
	if !epoch.Swept {
		t.Fatal("epoch must be marked swept")
	}
}

func TestSweepUnpublishedRejected(t *testing.T) {
	env := newTestEnv(t)
	if err := env.fund(env.treasury, 0, big.NewInt(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	env.advance(ClaimWindow * 2)
	if _, err := env.engine.SweepUnclaimed(env.admin, 0); !errors.Is(err, ErrNoRootPublished) {
		t.Fatalf("expected ErrNoRootPublished, got %v", err)
	}
}

func TestSweptEpochCannotBeRearmedOrRefunded(t *testing.T) {
	env := newTestEnv(t)
	root := [32]byte{0x01}
	if err := env.fund(env.treasury, 0, big.NewInt(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}
	env.advance(ClaimWindow + time.Second)
	if _, err := env.engine.SweepUnclaimed(env.admin, 0); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); !errors.Is(err, ErrAlreadySwept) {
		t.Fatalf("expected ErrAlreadySwept on republish, got %v", err)
	}
	if err := env.fund(env.treasury, 0, big.NewInt(50)); !errors.Is(err, ErrAlreadySwept) {
		t.Fatalf("expected ErrAlreadySwept on refund, got %v", err)
	}
}

func TestClaimCannotOverdrawEpoch(t *testing.T) {
	env := newTestEnv(t)
	alice := newTestAddress(0xA1)
	root, proofs := distribution(t, 0, map[[20]byte]*big.Int{alice: big.NewInt(150)})
	if err := env.fund(env.treasury, 0, big.NewInt(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := env.engine.Claim(alice, 0, big.NewInt(150), proofs[alice]); !errors.Is(err, ErrEpochOverdrawn) {
		t.Fatalf("expected ErrEpochOverdrawn, got %v", err)
	}
	if claimed, _ := env.engine.HasClaimed(0, alice); claimed {
		t.Fatal("failed claim must not set the claimed flag")
	}
}

func TestFundNonceBlocksReplay(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.FundEpoch(env.treasury, 0, big.NewInt(100), 0); err != nil {
		t.Fatalf("fund: %v", err)
	}
	// Resubmitting the identical call must not move funds again.
	if err := env.engine.FundEpoch(env.treasury, 0, big.NewInt(100), 0); !errors.Is(err, ErrFundNonce) {
		t.Fatalf("expected ErrFundNonce on replay, got %v", err)
	}
	if err := env.engine.FundEpoch(env.treasury, 0, big.NewInt(100), 5); !errors.Is(err, ErrFundNonce) {
		t.Fatalf("expected ErrFundNonce for future nonce, got %v", err)
	}
	if got := env.balance(t, VaultAddress); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault balance = %s, want 100", got)
	}
	nonce, err := env.engine.FundNonce()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if nonce != 1 {
		t.Fatalf("nonce = %d, want 1", nonce)
	}
	if err := env.engine.FundEpoch(env.treasury, 0, big.NewInt(50), 1); err != nil {
		t.Fatalf("fund with fresh nonce: %v", err)
	}
}

func TestClaimRejectsOversizedAmount(t *testing.T) {
	env := newTestEnv(t)
	alice := newTestAddress(0xA1)
	root, _ := distribution(t, 0, map[[20]byte]*big.Int{alice: big.NewInt(100)})
	if err := env.fund(env.treasury, 0, big.NewInt(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := env.engine.Claim(alice, 0, huge, nil); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for 33-byte amount, got %v", err)
	}
}

// faultyClaimState simulates a storage backend whose claim-flag write fails a
// set number of times before recovering.
type faultyClaimState struct {
	*mockState
	flagFailures int
}

func (f *faultyClaimState) SetRewardClaimed(index uint64, addr [20]byte) error {
	if f.flagFailures > 0 {
		f.flagFailures--
		return errors.New("write failed")
	}
	return f.mockState.SetRewardClaimed(index, addr)
}

func TestClaimStorageFaultCannotDoublePay(t *testing.T) {
	env := newTestEnv(t)
	faulty := &faultyClaimState{mockState: newMockState()}
	env.engine.SetState(faulty)
	alice := newTestAddress(0xA1)
	root, proofs := distribution(t, 0, map[[20]byte]*big.Int{alice: big.NewInt(100)})
	if err := env.fund(env.treasury, 0, big.NewInt(1000)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}

	faulty.flagFailures = 1
	if err := env.engine.Claim(alice, 0, big.NewInt(100), proofs[alice]); err == nil {
		t.Fatal("claim must fail while the flag write fails")
	}
	// The claim record commits before the payout, so the failed claim paid
	// nothing and left the vault whole.
	if got := env.balance(t, alice); got.Sign() != 0 {
		t.Fatalf("failed claim paid out %s", got)
	}
	if got := env.balance(t, VaultAddress); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("vault balance = %s, want 1000", got)
	}

	// The retry settles exactly once.
	if err := env.engine.Claim(alice, 0, big.NewInt(100), proofs[alice]); err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if got := env.balance(t, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice balance = %s, want 100", got)
	}
	epoch, _, _ := env.engine.EpochInfo(0)
	if epoch.TotalClaimed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("totalClaimed = %s, want 100", epoch.TotalClaimed)
	}
	if err := env.engine.Claim(alice, 0, big.NewInt(100), proofs[alice]); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestTransferAdminPersistsRotation(t *testing.T) {
	env := newTestEnv(t)
	next := newTestAddress(0xBB)
	if err := env.engine.TransferAdmin(next, next); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := env.engine.TransferAdmin(env.admin, [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := env.engine.TransferAdmin(env.admin, next); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, [32]byte{0x01}); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("old admin must lose the role, got %v", err)
	}
	if err := env.engine.PublishRoot(next, 0, [32]byte{0x01}); err != nil {
		t.Fatalf("new admin publish: %v", err)
	}
	admin, err := env.engine.Admin()
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if admin != next {
		t.Fatalf("admin = %x, want %x", admin, next)
	}
}

func TestEventsEmittedPerTransition(t *testing.T) {
	env := newTestEnv(t)
	alice := newTestAddress(0xA1)
	root, proofs := distribution(t, 0, map[[20]byte]*big.Int{alice: big.NewInt(40)})
	if err := env.fund(env.treasury, 0, big.NewInt(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 0, root); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := env.engine.Claim(alice, 0, big.NewInt(40), proofs[alice]); err != nil {
		t.Fatalf("claim: %v", err)
	}
	env.advance(ClaimWindow + time.Second)
	if _, err := env.engine.SweepUnclaimed(env.admin, 0); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	want := []string{EventEpochFunded, EventRootPublished, EventClaimed, EventSwept}
	if len(env.emitter.captured) != len(want) {
		t.Fatalf("captured %d events, want %d", len(env.emitter.captured), len(want))
	}
	for i, evt := range env.emitter.captured {
		if evt.EventType() != want[i] {
			t.Fatalf("event %d = %s, want %s", i, evt.EventType(), want[i])
		}
	}
}

// TestEndToEndDistribution walks the scenario from the design review: epoch 3
// funded with 1000 units, W holds a 100-unit leaf, sweep at T+50h returns the
// 900-unit remainder.
func TestEndToEndDistribution(t *testing.T) {
	env := newTestEnv(t)
	for i := uint64(0); i < 3; i++ {
		if err := env.fund(env.treasury, i, big.NewInt(1)); err != nil {
			t.Fatalf("establish epoch %d: %v", i, err)
		}
	}
	w := newTestAddress(0x77)
	z := newTestAddress(0x7A)
	root, proofs := distribution(t, 3, map[[20]byte]*big.Int{
		w:                    big.NewInt(100),
		newTestAddress(0x78): big.NewInt(400),
	})
	if err := env.fund(env.treasury, 3, big.NewInt(1000)); err != nil {
		t.Fatalf("fund epoch 3: %v", err)
	}
	if err := env.engine.PublishRoot(env.admin, 3, root); err != nil {
		t.Fatalf("publish: %v", err)
	}

	env.advance(10 * time.Hour)
	if err := env.engine.Claim(w, 3, big.NewInt(100), proofs[w]); err != nil {
		t.Fatalf("W claim: %v", err)
	}
	if err := env.engine.Claim(w, 3, big.NewInt(100), proofs[w]); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	forged := []merkle.Hash{{0xDE, 0xAD}}
	if err := env.engine.Claim(z, 3, big.NewInt(100), forged); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}

	env.advance(40 * time.Hour)
	treasuryBefore := env.balance(t, env.treasury)
	swept, err := env.engine.SweepUnclaimed(env.admin, 3)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("swept = %s, want 900", swept)
	}
	gained := new(big.Int).Sub(env.balance(t, env.treasury), treasuryBefore)
	if gained.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("treasury gained %s, want 900", gained)
	}
	epoch, _, _ := env.engine.EpochInfo(3)
	if epoch.TotalClaimed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("totalClaimed = %s, want 100", epoch.TotalClaimed)
	}
}
