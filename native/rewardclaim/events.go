package rewardclaim

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"atachain/core/types"
)

const (
	EventEpochFunded   = "rewards.epoch.funded"
	EventRootPublished = "rewards.root.published"
	EventClaimed       = "rewards.claimed"
	EventSwept         = "rewards.swept"
	EventAdminRotated  = "rewards.admin.rotated"
)

// EpochFunded signals a treasury deposit into an epoch's reward pool.
type EpochFunded struct {
	Epoch  uint64
	Amount *big.Int
	Funded *big.Int
}

// EventType implements the events.Event interface.
func (EpochFunded) EventType() string { return EventEpochFunded }

// Event converts the funding into a types.Event payload.
func (e EpochFunded) Event() *types.Event {
	return &types.Event{Type: EventEpochFunded, Attributes: map[string]string{
		"epoch":  strconv.FormatUint(e.Epoch, 10),
		"amount": copyBigInt(e.Amount).String(),
		"funded": copyBigInt(e.Funded).String(),
	}}
}

// RootPublished signals a (re-)publication that opens the claim window.
type RootPublished struct {
	Epoch        uint64
	Root         [32]byte
	ClaimsOpenAt int64
}

// EventType implements the events.Event interface.
func (RootPublished) EventType() string { return EventRootPublished }

// Event converts the publication into a types.Event payload.
func (e RootPublished) Event() *types.Event {
	return &types.Event{Type: EventRootPublished, Attributes: map[string]string{
		"epoch":        strconv.FormatUint(e.Epoch, 10),
		"root":         "0x" + hex.EncodeToString(e.Root[:]),
		"claimsOpenAt": strconv.FormatInt(e.ClaimsOpenAt, 10),
	}}
}

// Claimed signals a successful reward payout.
type Claimed struct {
	Epoch        uint64
	Claimant     [20]byte
	Amount       *big.Int
	TotalClaimed *big.Int
}

// EventType implements the events.Event interface.
func (Claimed) EventType() string { return EventClaimed }

// Event converts the claim into a types.Event payload.
func (e Claimed) Event() *types.Event {
	return &types.Event{Type: EventClaimed, Attributes: map[string]string{
		"epoch":        strconv.FormatUint(e.Epoch, 10),
		"claimant":     "0x" + hex.EncodeToString(e.Claimant[:]),
		"amount":       copyBigInt(e.Amount).String(),
		"totalClaimed": copyBigInt(e.TotalClaimed).String(),
	}}
}

// Swept signals that an epoch's unclaimed remainder was settled back to
// treasury. Amount may be zero for a no-op settlement.
type Swept struct {
	Epoch  uint64
	Amount *big.Int
}

// EventType implements the events.Event interface.
func (Swept) EventType() string { return EventSwept }

// Event converts the sweep into a types.Event payload.
func (e Swept) Event() *types.Event {
	return &types.Event{Type: EventSwept, Attributes: map[string]string{
		"epoch":  strconv.FormatUint(e.Epoch, 10),
		"amount": copyBigInt(e.Amount).String(),
	}}
}

// AdminRotated signals a transfer of the administrator role.
type AdminRotated struct {
	Previous [20]byte
	Next     [20]byte
}

// EventType implements the events.Event interface.
func (AdminRotated) EventType() string { return EventAdminRotated }

// Event converts the rotation into a types.Event payload.
func (e AdminRotated) Event() *types.Event {
	return &types.Event{Type: EventAdminRotated, Attributes: map[string]string{
		"previous": "0x" + hex.EncodeToString(e.Previous[:]),
		"next":     "0x" + hex.EncodeToString(e.Next[:]),
	}}
}
