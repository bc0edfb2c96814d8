// Package rewardclaim implements the epoch reward distribution lifecycle:
// treasury funds an epoch, the administrator publishes a Merkle root opening
// a 48 hour claim window, eligible holders claim with proofs, and after the
// window closes the unclaimed remainder is swept back to treasury exactly
// once.
package rewardclaim

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"atachain/core/events"
	"atachain/crypto/merkle"
)

// VaultAddress is the custody address holding funded-but-unsettled rewards.
// It has no key; balances only leave it through claim and sweep transitions.
var VaultAddress = func() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("rewardclaim/vault"))[12:])
	return addr
}()

// engineState is the persistence slice the engine depends on.
type engineState interface {
	RewardEpoch(index uint64) (*Epoch, bool, error)
	PutRewardEpoch(epoch *Epoch) error
	RewardEpochCount() (uint64, error)
	SetRewardEpochCount(count uint64) error
	RewardClaimed(index uint64, addr [20]byte) (bool, error)
	SetRewardClaimed(index uint64, addr [20]byte) error
	RewardFundNonce() (uint64, error)
	SetRewardFundNonce(nonce uint64) error
	RewardAdmin() ([20]byte, bool, error)
	SetRewardAdmin(addr [20]byte) error
}

// payoutLedger is the slice of the token ledger the engine moves funds with.
type payoutLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(owner, spender, to [20]byte, amount *big.Int) error
}

// Engine orchestrates the fund / publish / claim / sweep state machine. A
// single mutex serializes mutating transitions, giving the one-operation-at-
// a-time consistency the accounting invariants assume.
type Engine struct {
	mu       sync.Mutex
	state    engineState
	ledger   payoutLedger
	emitter  events.Emitter
	treasury [20]byte
	admin    [20]byte
	nowFn    func() int64
}

// NewEngine creates an engine with the immutable treasury role and the
// initial administrator. The admin can later rotate via TransferAdmin; the
// rotated role is persisted in state and survives restarts.
func NewEngine(treasury, admin [20]byte) *Engine {
	return &Engine{
		treasury: treasury,
		admin:    admin,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the token ledger payouts flow through.
func (e *Engine) SetLedger(ledger payoutLedger) { e.ledger = ledger }

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock, for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Treasury returns the immutable treasury address.
func (e *Engine) Treasury() [20]byte { return e.treasury }

// Admin returns the current administrator, preferring the persisted rotation
// over the constructor default.
func (e *Engine) Admin() ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	admin, ok, err := e.state.RewardAdmin()
	if err != nil {
		return [20]byte{}, fmt.Errorf("rewardclaim: load admin role: %w", err)
	}
	if !ok {
		return e.admin, nil
	}
	return admin, nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	admin, err := e.Admin()
	if err != nil {
		return err
	}
	if caller != admin {
		return ErrNotAdmin
	}
	return nil
}

// loadOrCreate fetches an epoch record, materialising a fresh one when index
// equals the stored count. Ids are dense and sequential; anything past the
// count is rejected so the sweep automation can iterate [0, count)
// exhaustively. Nothing is persisted here: storeEpoch commits the record and
// the count bump together, after the operation's token transfer succeeded.
func (e *Engine) loadOrCreate(index uint64) (*Epoch, bool, error) {
	epoch, ok, err := e.state.RewardEpoch(index)
	if err != nil {
		return nil, false, fmt.Errorf("rewardclaim: load epoch %d: %w", index, err)
	}
	if ok {
		return epoch, false, nil
	}
	count, err := e.state.RewardEpochCount()
	if err != nil {
		return nil, false, fmt.Errorf("rewardclaim: load epoch count: %w", err)
	}
	if index != count {
		return nil, false, ErrEpochOutOfOrder
	}
	return &Epoch{
		Index:        index,
		Funded:       big.NewInt(0),
		TotalClaimed: big.NewInt(0),
		SweptAmount:  big.NewInt(0),
	}, true, nil
}

func (e *Engine) storeEpoch(epoch *Epoch, created bool) error {
	if err := e.state.PutRewardEpoch(epoch); err != nil {
		return fmt.Errorf("rewardclaim: store epoch %d: %w", epoch.Index, err)
	}
	if created {
		if err := e.state.SetRewardEpochCount(epoch.Index + 1); err != nil {
			return fmt.Errorf("rewardclaim: bump epoch count: %w", err)
		}
	}
	return nil
}

// FundEpoch moves amount from treasury custody into the epoch's pool. Only
// the treasury may fund, the amount must be positive, the treasury must have
// pre-approved the vault for at least the amount, and nonce must equal the
// number of fundings settled so far. The nonce is folded into the signed
// funding digest, so a captured funding submission cannot be replayed.
func (e *Engine) FundEpoch(caller [20]byte, index uint64, amount *big.Int, nonce uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.treasury {
		return ErrNotTreasury
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	current, err := e.state.RewardFundNonce()
	if err != nil {
		return fmt.Errorf("rewardclaim: load funding nonce: %w", err)
	}
	if nonce != current {
		return ErrFundNonce
	}
	epoch, created, err := e.loadOrCreate(index)
	if err != nil {
		return err
	}
	if epoch.Swept {
		return ErrAlreadySwept
	}
	if err := e.ledger.TransferFrom(e.treasury, VaultAddress, VaultAddress, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
	}
	epoch.Funded = new(big.Int).Add(copyBigInt(epoch.Funded), amount)
	if epoch.Start == 0 {
		epoch.Start = e.nowFn()
	}
	if err := e.storeEpoch(epoch, created); err != nil {
		return err
	}
	if err := e.state.SetRewardFundNonce(current + 1); err != nil {
		return fmt.Errorf("rewardclaim: bump funding nonce: %w", err)
	}
	e.emit(EpochFunded{Epoch: index, Amount: copyBigInt(amount), Funded: copyBigInt(epoch.Funded)})
	return nil
}

// FundNonce returns the nonce the next funding submission must carry.
func (e *Engine) FundNonce() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.RewardFundNonce()
}

// PublishRoot sets the epoch's Merkle root and opens a fresh 48 hour claim
// window starting now. Republication re-arms the window; claimed flags are
// untouched, so addresses that already claimed stay blocked even if the new
// root re-derives their leaves. A swept epoch cannot be re-armed, there is
// nothing left in its pool.
func (e *Engine) PublishRoot(caller [20]byte, index uint64, root [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if root == ([32]byte{}) {
		return ErrZeroRoot
	}
	epoch, created, err := e.loadOrCreate(index)
	if err != nil {
		return err
	}
	if epoch.Swept {
		return ErrAlreadySwept
	}
	now := e.nowFn()
	epoch.Root = root
	epoch.ClaimsOpenAt = now
	if epoch.Start == 0 {
		epoch.Start = now
	}
	if err := e.storeEpoch(epoch, created); err != nil {
		return err
	}
	e.emit(RootPublished{Epoch: index, Root: root, ClaimsOpenAt: now})
	return nil
}

// Claim pays out amount to the caller if the epoch window is open, the caller
// has not claimed before, and the (caller, amount, epoch) leaf proves
// membership against the published root. All checks precede all effects, so
// any rejection leaves state untouched.
func (e *Engine) Claim(caller [20]byte, index uint64, amount *big.Int, proof []merkle.Hash) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	epoch, ok, err := e.state.RewardEpoch(index)
	if err != nil {
		return fmt.Errorf("rewardclaim: load epoch %d: %w", index, err)
	}
	if !ok || !epoch.Published() {
		return ErrNoRootPublished
	}
	if e.nowFn() > epoch.WindowClosesAt() {
		return ErrClaimWindowClosed
	}
	claimed, err := e.state.RewardClaimed(index, caller)
	if err != nil {
		return fmt.Errorf("rewardclaim: load claim flag: %w", err)
	}
	if claimed {
		return ErrAlreadyClaimed
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	// A leaf commits the amount in exactly 32 bytes; anything wider cannot
	// be a member of any published tree.
	if amount.BitLen() > 256 {
		return ErrInvalidProof
	}
	leaf := merkle.LeafHash(caller, amount, index)
	if !merkle.Verify(leaf, proof, epoch.Root) {
		return ErrInvalidProof
	}
	totalClaimed := new(big.Int).Add(copyBigInt(epoch.TotalClaimed), amount)
	if totalClaimed.Cmp(copyBigInt(epoch.Funded)) > 0 {
		return ErrEpochOverdrawn
	}
	// The claim record commits before the payout. A storage fault aborts
	// the claim with the vault untouched and the flag set, so a retry can
	// never pay the same leaf twice; settling a marked-but-unpaid claim is
	// an operator action, not a protocol hole.
	if err := e.state.SetRewardClaimed(index, caller); err != nil {
		return fmt.Errorf("rewardclaim: store claim flag: %w", err)
	}
	epoch.TotalClaimed = totalClaimed
	if err := e.state.PutRewardEpoch(epoch); err != nil {
		return fmt.Errorf("rewardclaim: store epoch %d: %w", index, err)
	}
	if err := e.ledger.Transfer(VaultAddress, caller, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenTransfer, err)
	}
	e.emit(Claimed{Epoch: index, Claimant: caller, Amount: copyBigInt(amount), TotalClaimed: copyBigInt(totalClaimed)})
	return nil
}

// SweepUnclaimed settles the epoch's unclaimed remainder back to treasury
// once the claim window has fully elapsed. The sweep is exactly-once: the
// epoch is marked swept even when the remainder is zero, and a second call
// fails with ErrAlreadySwept. Returns the settled amount.
func (e *Engine) SweepUnclaimed(caller [20]byte, index uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	epoch, ok, err := e.state.RewardEpoch(index)
	if err != nil {
		return nil, fmt.Errorf("rewardclaim: load epoch %d: %w", index, err)
	}
	if !ok || !epoch.Published() {
		return nil, ErrNoRootPublished
	}
	if epoch.Swept {
		return nil, ErrAlreadySwept
	}
	if e.nowFn() <= epoch.WindowClosesAt() {
		return nil, ErrClaimWindowOpen
	}
	remainder := epoch.Remainder()
	if remainder.Sign() > 0 {
		if err := e.ledger.Transfer(VaultAddress, e.treasury, remainder); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenTransfer, err)
		}
	} else {
		remainder = big.NewInt(0)
	}
	epoch.Swept = true
	epoch.SweptAmount = remainder
	if err := e.state.PutRewardEpoch(epoch); err != nil {
		return nil, fmt.Errorf("rewardclaim: store epoch %d: %w", index, err)
	}
	e.emit(Swept{Epoch: index, Amount: copyBigInt(remainder)})
	return copyBigInt(remainder), nil
}

// TransferAdmin rotates the administrator role to next. Only the current
// admin may rotate, and the new address must be non-zero.
func (e *Engine) TransferAdmin(caller, next [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if next == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := e.state.SetRewardAdmin(next); err != nil {
		return fmt.Errorf("rewardclaim: store admin role: %w", err)
	}
	e.emit(AdminRotated{Previous: caller, Next: next})
	return nil
}

// EpochInfo returns a copy of the epoch record, reporting ok=false for ids
// that were never established.
func (e *Engine) EpochInfo(index uint64) (*Epoch, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	epoch, ok, err := e.state.RewardEpoch(index)
	if err != nil {
		return nil, false, fmt.Errorf("rewardclaim: load epoch %d: %w", index, err)
	}
	if !ok {
		return nil, false, nil
	}
	return epoch.Clone(), true, nil
}

// EpochCount returns the number of established epochs; valid ids are
// [0, count).
func (e *Engine) EpochCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.RewardEpochCount()
}

// HasClaimed reports whether addr already claimed for the epoch.
func (e *Engine) HasClaimed(index uint64, addr [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.RewardClaimed(index, addr)
}

// Now exposes the engine clock so the RPC layer reports consistent window
// timestamps.
func (e *Engine) Now() int64 { return e.nowFn() }

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}
