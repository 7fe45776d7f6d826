package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrPriceUnavailable  = errors.New("price unavailable and no cached value")
	ErrLockHeld          = errors.New("lock already held")
	ErrInsufficientPool  = errors.New("insufficient pool")
	ErrAlreadySettled    = errors.New("payout already settled")
	ErrSettlementFailed  = errors.New("settlement failed")
	ErrAttemptsExhausted = errors.New("settlement attempts exhausted")
)
