package rewardclaim

import (
	"math/big"
	"time"
)

// ClaimWindow is the period after root publication during which eligible
// addresses may claim. The boundary is inclusive: a claim at exactly
// ClaimsOpenAt+ClaimWindow still succeeds.
const ClaimWindow = 48 * time.Hour

// EpochStatus is the derived lifecycle position of an epoch.
type EpochStatus uint8

const (
	// StatusUnknown marks an epoch id that was never established.
	StatusUnknown EpochStatus = iota
	// StatusFunded marks an established epoch whose root is unpublished.
	StatusFunded
	// StatusOpen marks an epoch inside its claim window.
	StatusOpen
	// StatusClosed marks an epoch past its claim window, not yet swept.
	StatusClosed
	// StatusSwept marks an epoch whose remainder was returned to treasury.
	StatusSwept
)

func (s EpochStatus) String() string {
	switch s {
	case StatusFunded:
		return "funded"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusSwept:
		return "swept"
	default:
		return "unknown"
	}
}

// Epoch is the per-distribution record tracked by the claim service.
type Epoch struct {
	Index uint64
	// Root commits to the (address, amount, epoch) entries. Zero means the
	// root was never published and the epoch has no claim window.
	Root [32]byte
	// Funded is the cumulative ATA deposited by treasury for this epoch.
	Funded *big.Int
	// Start is the unix time the epoch was established, set once.
	Start int64
	// ClaimsOpenAt is the unix time of the most recent root publication.
	// Republication resets it, re-arming the window.
	ClaimsOpenAt int64
	// TotalClaimed is the exact sum of amounts paid to claimants.
	TotalClaimed *big.Int
	// Swept records that the post-window remainder was settled, making the
	// sweep exactly-once even when the remainder was zero.
	Swept       bool
	SweptAmount *big.Int
}

// Published reports whether a root has ever been set for the epoch.
func (e *Epoch) Published() bool {
	return e != nil && e.Root != ([32]byte{})
}

// WindowClosesAt returns the last unix second at which a claim is accepted.
// Zero when no root was published.
func (e *Epoch) WindowClosesAt() int64 {
	if e == nil || !e.Published() {
		return 0
	}
	return e.ClaimsOpenAt + int64(ClaimWindow/time.Second)
}

// Remainder is the unclaimed balance, funded minus claimed.
func (e *Epoch) Remainder() *big.Int {
	if e == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(copyBigInt(e.Funded), copyBigInt(e.TotalClaimed))
}

// StatusAt derives the lifecycle status at the given unix time.
func (e *Epoch) StatusAt(now int64) EpochStatus {
	switch {
	case e == nil:
		return StatusUnknown
	case e.Swept:
		return StatusSwept
	case !e.Published():
		return StatusFunded
	case now <= e.WindowClosesAt():
		return StatusOpen
	default:
		return StatusClosed
	}
}

// Clone produces a deep copy so callers cannot mutate stored records.
func (e *Epoch) Clone() *Epoch {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Funded = copyBigInt(e.Funded)
	clone.TotalClaimed = copyBigInt(e.TotalClaimed)
	clone.SweptAmount = copyBigInt(e.SweptAmount)
	return &clone
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
