// Package token implements the fixed-supply ATA ledger. The full supply is
// minted once at genesis to the treasury; afterwards the only ways balances
// move are direct transfers and allowance-backed transfers, which is all the
// reward-claim engine needs.
package token

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// Symbol identifies the reward currency in events and display output.
	Symbol = "ATA"
	// Decimals matches the wei-style base unit used in reward leaves.
	Decimals = 18
)

var (
	ErrNilState              = errors.New("token: state not configured")
	ErrNilAmount             = errors.New("token: amount required")
	ErrNonPositiveAmount     = errors.New("token: amount must be positive")
	ErrSupplyInitialized     = errors.New("token: supply already initialized")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// State is the narrow slice of persistence the ledger depends on.
type State interface {
	TokenBalance(addr [20]byte) (*big.Int, error)
	SetTokenBalance(addr [20]byte, amount *big.Int) error
	TokenAllowance(owner, spender [20]byte) (*big.Int, error)
	SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error
	TokenSupply() (*big.Int, error)
	SetTokenSupply(amount *big.Int) error
}

// Ledger exposes the token operations over a state backend.
type Ledger struct {
	state State
}

// NewLedger creates a ledger bound to the provided state.
func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

// InitGenesis mints the entire fixed supply to the treasury. It is a no-op
// error after the first call so daemon restarts cannot inflate the supply.
func (l *Ledger) InitGenesis(treasury [20]byte, supply *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if supply == nil {
		return ErrNilAmount
	}
	if supply.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	existing, err := l.state.TokenSupply()
	if err != nil {
		return fmt.Errorf("token: load supply: %w", err)
	}
	if existing != nil && existing.Sign() > 0 {
		return ErrSupplyInitialized
	}
	if err := l.state.SetTokenSupply(new(big.Int).Set(supply)); err != nil {
		return fmt.Errorf("token: store supply: %w", err)
	}
	if err := l.state.SetTokenBalance(treasury, new(big.Int).Set(supply)); err != nil {
		return fmt.Errorf("token: credit treasury: %w", err)
	}
	return nil
}

// TotalSupply returns the minted supply, zero before genesis.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	supply, err := l.state.TokenSupply()
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(supply), nil
}

// BalanceOf returns the current balance for addr.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	balance, err := l.state.TokenBalance(addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// Transfer moves amount from one balance to another.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	fromBal, err := l.state.TokenBalance(from)
	if err != nil {
		return fmt.Errorf("token: load sender balance: %w", err)
	}
	if fromBal == nil || fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := l.state.TokenBalance(to)
	if err != nil {
		return fmt.Errorf("token: load recipient balance: %w", err)
	}
	if toBal == nil {
		toBal = big.NewInt(0)
	}
	if err := l.state.SetTokenBalance(from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return fmt.Errorf("token: debit sender: %w", err)
	}
	if err := l.state.SetTokenBalance(to, new(big.Int).Add(toBal, amount)); err != nil {
		return fmt.Errorf("token: credit recipient: %w", err)
	}
	return nil
}

// Approve sets the allowance spender may move out of owner's balance. A zero
// amount clears the grant.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() < 0 {
		return ErrNonPositiveAmount
	}
	return l.state.SetTokenAllowance(owner, spender, new(big.Int).Set(amount))
}

// Allowance reports the remaining grant from owner to spender.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	allowance, err := l.state.TokenAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	if allowance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(allowance), nil
}

// TransferFrom moves amount from owner to recipient under spender's
// allowance, decrementing the grant.
func (l *Ledger) TransferFrom(owner, spender, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	allowance, err := l.state.TokenAllowance(owner, spender)
	if err != nil {
		return fmt.Errorf("token: load allowance: %w", err)
	}
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(owner, to, amount); err != nil {
		return err
	}
	if err := l.state.SetTokenAllowance(owner, spender, new(big.Int).Sub(allowance, amount)); err != nil {
		return fmt.Errorf("token: decrement allowance: %w", err)
	}
	return nil
}

func validateAmount(amount *big.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	return nil
}
