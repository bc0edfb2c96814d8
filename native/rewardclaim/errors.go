package rewardclaim

import "errors"

var (
	ErrNotTreasury       = errors.New("rewardclaim: caller is not the treasury")
	ErrNotAdmin          = errors.New("rewardclaim: caller is not the administrator")
	ErrZeroAmount        = errors.New("rewardclaim: amount must be positive")
	ErrZeroRoot          = errors.New("rewardclaim: root must be non-zero")
	ErrZeroAddress       = errors.New("rewardclaim: zero address")
	ErrEpochOutOfOrder   = errors.New("rewardclaim: epoch ids are assigned sequentially")
	ErrFundNonce         = errors.New("rewardclaim: stale funding nonce")
	ErrNoRootPublished   = errors.New("rewardclaim: no root published for epoch")
	ErrClaimWindowClosed = errors.New("rewardclaim: claim window closed")
	ErrClaimWindowOpen   = errors.New("rewardclaim: claim window still open")
	ErrAlreadyClaimed    = errors.New("rewardclaim: reward already claimed")
	ErrAlreadySwept      = errors.New("rewardclaim: epoch already swept")
	ErrInvalidProof      = errors.New("rewardclaim: invalid merkle proof")
	ErrEpochOverdrawn    = errors.New("rewardclaim: claim exceeds epoch funding")
	ErrTokenTransfer     = errors.New("rewardclaim: token transfer failed")
	errNilState          = errors.New("rewardclaim: state not configured")
	errNilLedger         = errors.New("rewardclaim: token ledger not configured")
)
