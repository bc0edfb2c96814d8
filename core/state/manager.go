// Package state persists the reward service's records in a flat key-value
// store. Keys are keccak256 digests of readable prefixes plus the record
// coordinates; values are RLP encoded.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"atachain/native/rewardclaim"
	"atachain/storage"
)

// Manager reads and writes reward service state over a storage backend. It
// satisfies the narrow state interfaces declared by native/token and
// native/rewardclaim.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func epochKeyBytes(index uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	return buf[:]
}

func (m *Manager) getBigInt(key []byte) (*big.Int, error) {
	data, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, fmt.Errorf("state: decode amount: %w", err)
	}
	return value, nil
}

func (m *Manager) putBigInt(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode amount: %w", err)
	}
	return m.db.Put(key, data)
}

// --- token ledger state ---

// TokenBalance returns the ATA balance stored for addr, zero when absent.
func (m *Manager) TokenBalance(addr [20]byte) (*big.Int, error) {
	return m.getBigInt(prefixedKey(tokenBalancePrefix, addr[:]))
}

// SetTokenBalance stores the ATA balance for addr.
func (m *Manager) SetTokenBalance(addr [20]byte, amount *big.Int) error {
	return m.putBigInt(prefixedKey(tokenBalancePrefix, addr[:]), amount)
}

// TokenAllowance returns the grant from owner to spender, zero when absent.
func (m *Manager) TokenAllowance(owner, spender [20]byte) (*big.Int, error) {
	return m.getBigInt(prefixedKey(tokenAllowancePrefix, owner[:], spender[:]))
}

// SetTokenAllowance stores the grant from owner to spender.
func (m *Manager) SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error {
	return m.putBigInt(prefixedKey(tokenAllowancePrefix, owner[:], spender[:]), amount)
}

// TokenSupply returns the minted supply, zero before genesis.
func (m *Manager) TokenSupply() (*big.Int, error) {
	return m.getBigInt(ethcrypto.Keccak256(tokenSupplyKeyBytes))
}

// SetTokenSupply stores the minted supply.
func (m *Manager) SetTokenSupply(amount *big.Int) error {
	return m.putBigInt(ethcrypto.Keccak256(tokenSupplyKeyBytes), amount)
}

// --- reward claim state ---

type storedEpoch struct {
	Index        uint64
	Root         [32]byte
	Funded       *big.Int
	Start        uint64
	ClaimsOpenAt uint64
	TotalClaimed *big.Int
	Swept        bool
	SweptAmount  *big.Int
}

func newStoredEpoch(e *rewardclaim.Epoch) *storedEpoch {
	stored := &storedEpoch{
		Index:        e.Index,
		Root:         e.Root,
		Funded:       big.NewInt(0),
		Start:        uint64(e.Start),
		ClaimsOpenAt: uint64(e.ClaimsOpenAt),
		TotalClaimed: big.NewInt(0),
		Swept:        e.Swept,
		SweptAmount:  big.NewInt(0),
	}
	if e.Funded != nil {
		stored.Funded = new(big.Int).Set(e.Funded)
	}
	if e.TotalClaimed != nil {
		stored.TotalClaimed = new(big.Int).Set(e.TotalClaimed)
	}
	if e.SweptAmount != nil {
		stored.SweptAmount = new(big.Int).Set(e.SweptAmount)
	}
	return stored
}

func (s *storedEpoch) toEpoch() *rewardclaim.Epoch {
	return &rewardclaim.Epoch{
		Index:        s.Index,
		Root:         s.Root,
		Funded:       new(big.Int).Set(s.Funded),
		Start:        int64(s.Start),
		ClaimsOpenAt: int64(s.ClaimsOpenAt),
		TotalClaimed: new(big.Int).Set(s.TotalClaimed),
		Swept:        s.Swept,
		SweptAmount:  new(big.Int).Set(s.SweptAmount),
	}
}

// RewardEpoch loads the epoch record for index, reporting ok=false when it
// was never stored.
func (m *Manager) RewardEpoch(index uint64) (*rewardclaim.Epoch, bool, error) {
	data, err := m.db.Get(prefixedKey(rewardEpochPrefix, epochKeyBytes(index)))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var stored storedEpoch
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode epoch %d: %w", index, err)
	}
	return stored.toEpoch(), true, nil
}

// PutRewardEpoch stores the epoch record.
func (m *Manager) PutRewardEpoch(epoch *rewardclaim.Epoch) error {
	if epoch == nil {
		return fmt.Errorf("state: nil epoch record")
	}
	data, err := rlp.EncodeToBytes(newStoredEpoch(epoch))
	if err != nil {
		return fmt.Errorf("state: encode epoch %d: %w", epoch.Index, err)
	}
	return m.db.Put(prefixedKey(rewardEpochPrefix, epochKeyBytes(epoch.Index)), data)
}

// RewardEpochCount returns the number of established epochs.
func (m *Manager) RewardEpochCount() (uint64, error) {
	data, err := m.db.Get(ethcrypto.Keccak256(rewardEpochCountKey))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var count uint64
	if err := rlp.DecodeBytes(data, &count); err != nil {
		return 0, fmt.Errorf("state: decode epoch count: %w", err)
	}
	return count, nil
}

// SetRewardEpochCount stores the number of established epochs.
func (m *Manager) SetRewardEpochCount(count uint64) error {
	data, err := rlp.EncodeToBytes(count)
	if err != nil {
		return fmt.Errorf("state: encode epoch count: %w", err)
	}
	return m.db.Put(ethcrypto.Keccak256(rewardEpochCountKey), data)
}

// RewardFundNonce returns the nonce the next funding must carry.
func (m *Manager) RewardFundNonce() (uint64, error) {
	data, err := m.db.Get(ethcrypto.Keccak256(rewardFundNonceKey))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var nonce uint64
	if err := rlp.DecodeBytes(data, &nonce); err != nil {
		return 0, fmt.Errorf("state: decode funding nonce: %w", err)
	}
	return nonce, nil
}

// SetRewardFundNonce stores the funding nonce.
func (m *Manager) SetRewardFundNonce(nonce uint64) error {
	data, err := rlp.EncodeToBytes(nonce)
	if err != nil {
		return fmt.Errorf("state: encode funding nonce: %w", err)
	}
	return m.db.Put(ethcrypto.Keccak256(rewardFundNonceKey), data)
}

// RewardClaimed reports whether addr has claimed for the epoch.
func (m *Manager) RewardClaimed(index uint64, addr [20]byte) (bool, error) {
	return m.db.Has(prefixedKey(rewardClaimPrefix, epochKeyBytes(index), addr[:]))
}

// SetRewardClaimed flips the one-way claimed flag for (epoch, addr).
func (m *Manager) SetRewardClaimed(index uint64, addr [20]byte) error {
	return m.db.Put(prefixedKey(rewardClaimPrefix, epochKeyBytes(index), addr[:]), []byte{1})
}

// RewardAdmin returns the rotated administrator role, ok=false when the
// constructor default still applies.
func (m *Manager) RewardAdmin() ([20]byte, bool, error) {
	var addr [20]byte
	data, err := m.db.Get(ethcrypto.Keccak256(rewardAdminKeyBytes))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return addr, false, nil
		}
		return addr, false, err
	}
	if len(data) != len(addr) {
		return addr, false, fmt.Errorf("state: malformed admin role record")
	}
	copy(addr[:], data)
	return addr, true, nil
}

// SetRewardAdmin stores the rotated administrator role.
func (m *Manager) SetRewardAdmin(addr [20]byte) error {
	return m.db.Put(ethcrypto.Keccak256(rewardAdminKeyBytes), addr[:])
}
